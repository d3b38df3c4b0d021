// Package ingest orchestrates one ingestion run: fetch the catalog,
// normalize each card, persist it with per-card failure isolation, and
// report a summary.
package ingest

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/cardvault/cardvault/internal/domain"
	"github.com/cardvault/cardvault/internal/normalize"
)

// Store is the slice of the storage layer the persister writes through.
type Store interface {
	UpsertSet(domain.SetRecord) error
	InsertCard(domain.CardRecord) error
	UpsertCard(domain.CardRecord) error
	DeleteCardChildren(cardID string) error
	InsertPrice(domain.PriceRecord) error
	InsertMoves([]domain.AbilityAttackRecord) error
}

// WritePolicy controls how the card row itself is written. Sets are always
// upserted; this policy covers only step 2 of the write sequence.
type WritePolicy string

const (
	// PolicyInsert is the default: card rows are insert-only, so re-running
	// against an unchanged catalog fails every card with a conflict.
	PolicyInsert WritePolicy = "insert"

	// PolicyUpsert replaces the existing card row on id conflict, making
	// reruns additive-and-refreshing instead of conflicting.
	PolicyUpsert WritePolicy = "upsert"
)

// PersistError isolates one card: its record could not be durably written,
// so its child records were skipped and the run moved on.
type PersistError struct {
	CardID   string
	CardName string
	Err      error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("persist card %s (%s): %v", e.CardID, e.CardName, e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }

// Persister writes one normalized card's sub-records in dependency order:
// set before card, card before price and moves.
type Persister struct {
	Store  Store
	Policy WritePolicy

	setLocks keyLocks
}

// Persist writes the bundle and returns the card id on success. Success is
// decided by the card write alone: price and move failures are logged as
// warnings and do not flip the outcome. A set or card write failure yields
// a *PersistError and skips the children.
func (p *Persister) Persist(n normalize.Normalized) (string, error) {
	if n.Set != nil {
		// Serialized per set id so concurrent workers do not race the
		// same upsert.
		l := p.setLocks.get(n.Set.ID)
		l.Lock()
		err := p.Store.UpsertSet(*n.Set)
		l.Unlock()
		if err != nil {
			return "", &PersistError{CardID: n.Card.ID, CardName: n.Card.Name, Err: err}
		}
	}

	var err error
	if p.Policy == PolicyUpsert {
		err = p.Store.UpsertCard(n.Card)
	} else {
		err = p.Store.InsertCard(n.Card)
	}
	if err != nil {
		return "", &PersistError{CardID: n.Card.ID, CardName: n.Card.Name, Err: err}
	}

	if p.Policy == PolicyUpsert {
		// The refreshed card replaces its children; without this a rerun
		// would duplicate every price and move row.
		if err := p.Store.DeleteCardChildren(n.Card.ID); err != nil {
			slog.Warn("stale child cleanup failed", "card_id", n.Card.ID, "error", err)
		}
	}

	if n.Price != nil {
		if err := p.Store.InsertPrice(*n.Price); err != nil {
			slog.Warn("price write failed", "card_id", n.Card.ID, "error", err)
		}
	}
	if len(n.Moves) > 0 {
		if err := p.Store.InsertMoves(n.Moves); err != nil {
			slog.Warn("attack/ability write failed", "card_id", n.Card.ID, "count", len(n.Moves), "error", err)
		}
	}
	return n.Card.ID, nil
}

// keyLocks hands out one mutex per key, serializing writes that share a
// key while letting distinct keys proceed in parallel.
type keyLocks struct {
	mu sync.Mutex
	m  map[string]*sync.Mutex
}

func (k *keyLocks) get(key string) *sync.Mutex {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.m == nil {
		k.m = make(map[string]*sync.Mutex)
	}
	l, ok := k.m[key]
	if !ok {
		l = &sync.Mutex{}
		k.m[key] = l
	}
	return l
}
