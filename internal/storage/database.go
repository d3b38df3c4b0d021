package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cardvault/cardvault/internal/domain"
	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// DB wraps the SQL database connection holding the four catalog tables
// plus the runs table.
type DB struct {
	conn *sql.DB
}

// Open creates a new database connection and ensures the schema is up to date.
func Open(dsn string) (*DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &DB{conn: db}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping verifies the connection is still alive.
func (db *DB) Ping() error {
	return db.conn.Ping()
}

// IsConflict reports whether err is a SQLite constraint violation, which
// is how a duplicate primary key surfaces on insert.
func IsConflict(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT
	}
	return false
}

// UpsertSet inserts a set or, if a row with the same id already exists,
// refreshes its fields. Duplicates across cards and runs are expected.
func (db *DB) UpsertSet(set domain.SetRecord) error {
	_, err := db.conn.Exec(`
		INSERT INTO sets (id, name, series, printed_total, total)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			series = excluded.series,
			printed_total = excluded.printed_total,
			total = excluded.total
	`,
		set.ID,
		set.Name,
		set.Series,
		set.PrintedTotal,
		set.Total,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert set %s: %w", set.ID, err)
	}
	return nil
}

// InsertCard inserts a card by primary key. A duplicate id fails with a
// constraint error the caller can classify via IsConflict.
func (db *DB) InsertCard(card domain.CardRecord) error {
	_, err := db.conn.Exec(`
		INSERT INTO cardinfo (id, card_name, number, hp, supertype, subtypes,
			pokemon_types, weakness, resistance, retreat_cost, set_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, cardArgs(card)...)
	if err != nil {
		return fmt.Errorf("failed to insert card %s: %w", card.ID, err)
	}
	return nil
}

// UpsertCard inserts a card or replaces the existing row with the same id.
// Used when the run is configured with the upsert write policy.
func (db *DB) UpsertCard(card domain.CardRecord) error {
	_, err := db.conn.Exec(`
		INSERT INTO cardinfo (id, card_name, number, hp, supertype, subtypes,
			pokemon_types, weakness, resistance, retreat_cost, set_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			card_name = excluded.card_name,
			number = excluded.number,
			hp = excluded.hp,
			supertype = excluded.supertype,
			subtypes = excluded.subtypes,
			pokemon_types = excluded.pokemon_types,
			weakness = excluded.weakness,
			resistance = excluded.resistance,
			retreat_cost = excluded.retreat_cost,
			set_id = excluded.set_id
	`, cardArgs(card)...)
	if err != nil {
		return fmt.Errorf("failed to upsert card %s: %w", card.ID, err)
	}
	return nil
}

func cardArgs(card domain.CardRecord) []any {
	return []any{
		card.ID,
		card.Name,
		card.Number,
		card.HP,
		card.Supertype,
		encodeList(card.Subtypes),
		encodeList(card.Types),
		encodeList(card.Weakness),
		encodeList(card.Resistance),
		encodeList(card.RetreatCost),
		nullString(card.SetID),
	}
}

// DeleteCardChildren removes a card's price and attack/ability rows in one
// transaction. The upsert write policy clears them before re-inserting so
// a refreshed card does not accumulate duplicate children across reruns.
func (db *DB) DeleteCardChildren(cardID string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin child cleanup for card %s: %w", cardID, err)
	}
	if _, err := tx.Exec(`DELETE FROM prices WHERE card_id = ?`, cardID); err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to delete prices for card %s: %w", cardID, err)
	}
	if _, err := tx.Exec(`DELETE FROM attacks WHERE card_id = ?`, cardID); err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to delete moves for card %s: %w", cardID, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit child cleanup for card %s: %w", cardID, err)
	}
	return nil
}

// InsertPrice inserts the card's price row.
func (db *DB) InsertPrice(price domain.PriceRecord) error {
	_, err := db.conn.Exec(`
		INSERT INTO prices (card_id, price_low, price_mid, price_high, price_market, last_updated)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		price.CardID,
		price.Low,
		price.Mid,
		price.High,
		price.Market,
		price.LastUpdated,
	)
	if err != nil {
		return fmt.Errorf("failed to insert price for card %s: %w", price.CardID, err)
	}
	return nil
}

// InsertMoves inserts all attack and ability rows for one card in a single
// transaction.
func (db *DB) InsertMoves(moves []domain.AbilityAttackRecord) error {
	if len(moves) == 0 {
		return nil
	}
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin moves transaction: %w", err)
	}
	stmt, err := tx.Prepare(`
		INSERT INTO attacks (card_id, name, description, type, cost, damage)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to prepare moves insert: %w", err)
	}
	defer stmt.Close()

	for _, m := range moves {
		if _, err := stmt.Exec(
			m.CardID,
			m.Name,
			m.Description,
			encodeList(m.TypeTags),
			encodeList(m.Cost),
			m.Damage,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to insert move %q for card %s: %w", m.Name, m.CardID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit moves for card %s: %w", moves[0].CardID, err)
	}
	return nil
}

// FindCardByID retrieves a stored card by id, or nil if absent.
func (db *DB) FindCardByID(id string) (*domain.CardRecord, error) {
	row := db.conn.QueryRow(`
		SELECT id, card_name, number, hp, supertype, subtypes,
			pokemon_types, weakness, resistance, retreat_cost, set_id
		FROM cardinfo WHERE id = ?
	`, id)
	return scanCard(row)
}

// FindCardByName retrieves the first stored card with the given name, or
// nil if absent. Used to enrich identification responses.
func (db *DB) FindCardByName(name string) (*domain.CardRecord, error) {
	row := db.conn.QueryRow(`
		SELECT id, card_name, number, hp, supertype, subtypes,
			pokemon_types, weakness, resistance, retreat_cost, set_id
		FROM cardinfo WHERE card_name = ? ORDER BY id LIMIT 1
	`, name)
	return scanCard(row)
}

func scanCard(row *sql.Row) (*domain.CardRecord, error) {
	var c domain.CardRecord
	var subtypes, types, weakness, resistance, retreat string
	var setID sql.NullString

	err := row.Scan(
		&c.ID,
		&c.Name,
		&c.Number,
		&c.HP,
		&c.Supertype,
		&subtypes,
		&types,
		&weakness,
		&resistance,
		&retreat,
		&setID,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan card row: %w", err)
	}

	c.Subtypes = decodeList(subtypes)
	c.Types = decodeList(types)
	c.Weakness = decodeList(weakness)
	c.Resistance = decodeList(resistance)
	c.RetreatCost = decodeList(retreat)
	if setID.Valid {
		c.SetID = setID.String
	}
	return &c, nil
}

// CountSets returns the number of stored sets.
func (db *DB) CountSets() (int, error) {
	var n int
	if err := db.conn.QueryRow(`SELECT COUNT(*) FROM sets`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count sets: %w", err)
	}
	return n, nil
}

// CountPricesForCard returns the number of price rows for a card.
func (db *DB) CountPricesForCard(cardID string) (int, error) {
	var n int
	if err := db.conn.QueryRow(`SELECT COUNT(*) FROM prices WHERE card_id = ?`, cardID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count prices for card %s: %w", cardID, err)
	}
	return n, nil
}

// CountMovesForCard returns the number of attack/ability rows for a card.
func (db *DB) CountMovesForCard(cardID string) (int, error) {
	var n int
	if err := db.conn.QueryRow(`SELECT COUNT(*) FROM attacks WHERE card_id = ?`, cardID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count moves for card %s: %w", cardID, err)
	}
	return n, nil
}

// Run is one ingestion run's recorded summary.
type Run struct {
	ID         string
	StartedAt  time.Time
	FinishedAt sql.NullTime
	Total      int
	Success    int
	Errors     int
	UniqueSets int
	Priced     int
	Aborted    bool
}

// InsertRun records a completed (or aborted) run's summary.
func (db *DB) InsertRun(run Run) error {
	_, err := db.conn.Exec(`
		INSERT INTO runs (id, started_at, finished_at, total, success, errors, unique_sets, priced, aborted)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID,
		run.StartedAt,
		run.FinishedAt,
		run.Total,
		run.Success,
		run.Errors,
		run.UniqueSets,
		run.Priced,
		run.Aborted,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", run.ID, err)
	}
	return nil
}

// LatestRun returns the most recently started run, or nil when no run has
// been recorded yet.
func (db *DB) LatestRun() (*Run, error) {
	var r Run
	row := db.conn.QueryRow(`
		SELECT id, started_at, finished_at, total, success, errors, unique_sets, priced, aborted
		FROM runs ORDER BY started_at DESC LIMIT 1
	`)
	err := row.Scan(
		&r.ID,
		&r.StartedAt,
		&r.FinishedAt,
		&r.Total,
		&r.Success,
		&r.Errors,
		&r.UniqueSets,
		&r.Priced,
		&r.Aborted,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan latest run: %w", err)
	}
	return &r, nil
}

// encodeList serializes a string slice as a JSON array column value.
// nil encodes the same as empty.
func encodeList(values []string) string {
	if len(values) == 0 {
		return "[]"
	}
	b, err := json.Marshal(values)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func decodeList(raw string) []string {
	if raw == "" || raw == "[]" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	return out
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
