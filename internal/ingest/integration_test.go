package ingest

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/cardvault/cardvault/internal/normalize"
	"github.com/cardvault/cardvault/internal/storage"
)

func openTestDB(t *testing.T) *storage.DB {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRunAgainstSQLite(t *testing.T) {
	db := openTestDB(t)
	cards := catalogOf(30, "base1", "base2")
	r := newRunner(&fakeFetcher{cards: cards}, db)

	first, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if first.Success != 30 || first.Errors != 0 {
		t.Fatalf("first run report = %+v", first)
	}

	sets, err := db.CountSets()
	if err != nil {
		t.Fatalf("CountSets: %v", err)
	}
	if sets != 2 {
		t.Errorf("stored %d sets, want 2", sets)
	}

	// The insert-only policy makes a rerun fail every card while set
	// upserts stay idempotent.
	second, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if second.Errors != 30 || second.Success != 0 {
		t.Errorf("second run report = %+v, want 30 conflicts", second)
	}
	if second.UniqueSets != first.UniqueSets {
		t.Errorf("unique sets changed: %d vs %d", second.UniqueSets, first.UniqueSets)
	}

	moves, err := db.CountMovesForCard("base1-1")
	if err != nil {
		t.Fatalf("CountMovesForCard: %v", err)
	}
	if moves != 1 {
		t.Errorf("got %d moves for base1-1, want 1: rerun must not duplicate children", moves)
	}
}

func TestRerunUpsertRefreshesChildren(t *testing.T) {
	db := openTestDB(t)
	r := newRunner(&fakeFetcher{cards: catalogOf(1, "base1")}, db)
	r.Persister.Policy = PolicyUpsert

	for i := 0; i < 2; i++ {
		report, err := r.Run(context.Background())
		if err != nil {
			t.Fatalf("run %d: %v", i+1, err)
		}
		if report.Errors != 0 {
			t.Fatalf("run %d errors = %d, want 0 under upsert policy", i+1, report.Errors)
		}
	}

	moves, err := db.CountMovesForCard("base1-1")
	if err != nil {
		t.Fatalf("CountMovesForCard: %v", err)
	}
	if moves != 1 {
		t.Errorf("attacks rows = %d, want 1 (refreshed, not duplicated)", moves)
	}
	prices, err := db.CountPricesForCard("base1-1")
	if err != nil {
		t.Fatalf("CountPricesForCard: %v", err)
	}
	if prices != 1 {
		t.Errorf("price rows = %d, want 1 (refreshed, not duplicated)", prices)
	}
}

func TestPersistConflictClassification(t *testing.T) {
	db := openTestDB(t)
	p := &Persister{Store: db, Policy: PolicyInsert}

	n := normalize.Card(catalogOf(1, "base1")[0])
	if _, err := p.Persist(n); err != nil {
		t.Fatalf("first persist: %v", err)
	}

	_, err := p.Persist(n)
	if err == nil {
		t.Fatal("expected a persist error on duplicate card id")
	}
	var pe *PersistError
	if !errors.As(err, &pe) {
		t.Fatalf("error is %T, want *PersistError", err)
	}
	if pe.CardID != n.Card.ID {
		t.Errorf("PersistError.CardID = %q, want %q", pe.CardID, n.Card.ID)
	}
	if !storage.IsConflict(err) {
		t.Errorf("IsConflict(%v) = false, want true through the error chain", err)
	}
}
