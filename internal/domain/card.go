package domain

// RawCard is a single card record as returned by the remote catalog API,
// before normalization. Any field may be absent in the source payload;
// pointers and slices are nil in that case.
type RawCard struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Number      string       `json:"number"`
	HP          string       `json:"hp"`
	Supertype   string       `json:"supertype"`
	Subtypes    []string     `json:"subtypes"`
	Types       []string     `json:"types"`
	Weaknesses  []TypeValue  `json:"weaknesses"`
	Resistances []TypeValue  `json:"resistances"`
	RetreatCost []string     `json:"retreatCost"`
	Set         *RawSet      `json:"set"`
	Variants    []RawVariant `json:"variants"`
	Attacks     []RawAttack  `json:"attacks"`
	Abilities   []RawAbility `json:"abilities"`
}

// TypeValue is a weakness or resistance entry: an energy type plus a
// modifier like "×2" or "-30".
type TypeValue struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// RawSet is the expansion object embedded in a catalog card.
type RawSet struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Series       string `json:"series"`
	PrintedTotal int    `json:"printedTotal"`
	Total        int    `json:"total"`
}

// RawVariant is one printing of a card carrying zero or more price
// snapshots, newest first.
type RawVariant struct {
	Name   string     `json:"name"`
	Prices []RawPrice `json:"prices"`
}

// RawPrice is one point-in-time price snapshot. Monetary fields are
// pointers so that "absent" and "zero" stay distinguishable.
type RawPrice struct {
	Low       *float64 `json:"low"`
	Mid       *float64 `json:"mid"`
	High      *float64 `json:"high"`
	Market    *float64 `json:"market"`
	UpdatedAt string   `json:"updatedAt"`
}

// RawAttack is an attack entry on a catalog card.
type RawAttack struct {
	Name   string   `json:"name"`
	Text   string   `json:"text"`
	Cost   []string `json:"cost"`
	Damage string   `json:"damage"`
}

// RawAbility is an ability entry on a catalog card.
type RawAbility struct {
	Name string `json:"name"`
	Text string `json:"text"`
	Type string `json:"type"`
}

// SetRecord is the relational shape of an expansion. Identity is ID;
// many cards reference one set.
type SetRecord struct {
	ID           string
	Name         string
	Series       string
	PrintedTotal int
	Total        int
}

// CardRecord is the relational shape of one card. Identity is ID and must
// be globally unique in the store. SetID is empty when the source card
// carried no expansion object; storage maps that to NULL.
type CardRecord struct {
	ID          string   `json:"id"`
	Name        string   `json:"card_name"`
	Number      string   `json:"number"`
	HP          string   `json:"hp"`
	Supertype   string   `json:"supertype"`
	Subtypes    []string `json:"subtypes,omitempty"`
	Types       []string `json:"pokemon_types,omitempty"`
	Weakness    []string `json:"weakness,omitempty"`
	Resistance  []string `json:"resistance,omitempty"`
	RetreatCost []string `json:"retreat_cost,omitempty"`
	SetID       string   `json:"set_id,omitempty"`
}

// PriceRecord is at most one per card per run: the first qualifying price
// snapshot found across the card's variants in source order.
type PriceRecord struct {
	CardID      string
	Low         *float64
	Mid         *float64
	High        *float64
	Market      *float64
	LastUpdated string
}

// AbilityAttackRecord holds one attack or ability of a card. Attacks and
// abilities share a shape and a table; TypeTags distinguishes them:
// ["attack"] for attacks, ["ability", <subtype>] for abilities.
type AbilityAttackRecord struct {
	CardID      string
	Name        string
	Description string
	TypeTags    []string
	Cost        []string
	Damage      string
}
