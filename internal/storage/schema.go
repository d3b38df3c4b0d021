package storage

const schema = `
-- One row per expansion. Upserted by id: the same set arrives embedded in
-- every card of that set, and again on every rerun.
CREATE TABLE IF NOT EXISTS sets (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    series TEXT,
    printed_total INTEGER,
    total INTEGER
);

-- One row per card. List-valued columns hold JSON arrays of strings.
CREATE TABLE IF NOT EXISTS cardinfo (
    id TEXT PRIMARY KEY,
    card_name TEXT NOT NULL,
    number TEXT,
    hp TEXT,
    supertype TEXT,
    subtypes TEXT,
    pokemon_types TEXT,
    weakness TEXT,
    resistance TEXT,
    retreat_cost TEXT,
    set_id TEXT,

    FOREIGN KEY(set_id) REFERENCES sets(id)
);

-- At most one price row per card per run.
CREATE TABLE IF NOT EXISTS prices (
    card_id TEXT NOT NULL,
    price_low REAL,
    price_mid REAL,
    price_high REAL,
    price_market REAL,
    last_updated TEXT,

    FOREIGN KEY(card_id) REFERENCES cardinfo(id)
);

-- Attacks and abilities share this table; the type column is a JSON array
-- of tags, ["attack"] or ["ability", <subtype>].
CREATE TABLE IF NOT EXISTS attacks (
    card_id TEXT NOT NULL,
    name TEXT,
    description TEXT,
    type TEXT,
    cost TEXT,
    damage TEXT,

    FOREIGN KEY(card_id) REFERENCES cardinfo(id)
);

-- One row per ingestion run, for operator reporting.
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    started_at DATETIME NOT NULL,
    finished_at DATETIME,
    total INTEGER,
    success INTEGER,
    errors INTEGER,
    unique_sets INTEGER,
    priced INTEGER,
    aborted INTEGER DEFAULT 0
);
`
