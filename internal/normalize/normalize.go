// Package normalize flattens one raw catalog card into the typed records
// the store persists. The transform is pure: no I/O, and every missing or
// malformed optional field resolves to nil or an empty slice rather than
// an error.
package normalize

import (
	"fmt"

	"github.com/cardvault/cardvault/internal/domain"
)

// DefaultAbilitySubtype tags abilities whose source entry carries no
// subtype of its own.
const DefaultAbilitySubtype = "Pokémon Power"

// Normalized is the full output bundle for one card. Set and Price are nil
// when the source card carried no expansion object or no qualifying price
// snapshot.
type Normalized struct {
	Set   *domain.SetRecord
	Card  domain.CardRecord
	Price *domain.PriceRecord
	Moves []domain.AbilityAttackRecord
}

// Card flattens raw into its relational sub-records.
func Card(raw domain.RawCard) Normalized {
	n := Normalized{
		Card: domain.CardRecord{
			ID:          raw.ID,
			Name:        raw.Name,
			Number:      raw.Number,
			HP:          raw.HP,
			Supertype:   raw.Supertype,
			Subtypes:    raw.Subtypes,
			Types:       raw.Types,
			Weakness:    typeValues(raw.Weaknesses),
			Resistance:  typeValues(raw.Resistances),
			RetreatCost: raw.RetreatCost,
		},
	}

	if raw.Set != nil {
		n.Set = &domain.SetRecord{
			ID:           raw.Set.ID,
			Name:         raw.Set.Name,
			Series:       raw.Set.Series,
			PrintedTotal: raw.Set.PrintedTotal,
			Total:        raw.Set.Total,
		}
		n.Card.SetID = raw.Set.ID
	}

	n.Price = selectPrice(raw)
	n.Moves = moves(raw)
	return n
}

// typeValues maps each weakness/resistance entry to "<type> <value>",
// preserving order and length.
func typeValues(entries []domain.TypeValue) []string {
	if len(entries) == 0 {
		return nil
	}
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = fmt.Sprintf("%s %s", e.Type, e.Value)
	}
	return out
}

// selectPrice scans variants in source order and returns the first
// variant's first snapshot that has any non-null monetary field. Later
// variants are not considered once a qualifying snapshot is found.
func selectPrice(raw domain.RawCard) *domain.PriceRecord {
	for _, v := range raw.Variants {
		if len(v.Prices) == 0 {
			continue
		}
		snap := v.Prices[0]
		if snap.Low == nil && snap.Mid == nil && snap.High == nil && snap.Market == nil {
			continue
		}
		return &domain.PriceRecord{
			CardID:      raw.ID,
			Low:         snap.Low,
			Mid:         snap.Mid,
			High:        snap.High,
			Market:      snap.Market,
			LastUpdated: snap.UpdatedAt,
		}
	}
	return nil
}

// moves maps attacks and abilities 1:1 into the shared record shape.
func moves(raw domain.RawCard) []domain.AbilityAttackRecord {
	if len(raw.Attacks) == 0 && len(raw.Abilities) == 0 {
		return nil
	}
	out := make([]domain.AbilityAttackRecord, 0, len(raw.Attacks)+len(raw.Abilities))
	for _, a := range raw.Attacks {
		out = append(out, domain.AbilityAttackRecord{
			CardID:      raw.ID,
			Name:        a.Name,
			Description: a.Text,
			TypeTags:    []string{"attack"},
			Cost:        a.Cost,
			Damage:      a.Damage,
		})
	}
	for _, a := range raw.Abilities {
		subtype := a.Type
		if subtype == "" {
			subtype = DefaultAbilitySubtype
		}
		out = append(out, domain.AbilityAttackRecord{
			CardID:      raw.ID,
			Name:        a.Name,
			Description: a.Text,
			TypeTags:    []string{"ability", subtype},
		})
	}
	return out
}
