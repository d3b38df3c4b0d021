package storage

import (
	"database/sql"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/cardvault/cardvault/internal/domain"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testSet() domain.SetRecord {
	return domain.SetRecord{ID: "base1", Name: "Base", Series: "Base", PrintedTotal: 102, Total: 102}
}

func testCard(id string) domain.CardRecord {
	return domain.CardRecord{
		ID:          id,
		Name:        "Charizard",
		Number:      "4",
		HP:          "120",
		Supertype:   "Pokémon",
		Subtypes:    []string{"Stage 2"},
		Types:       []string{"Fire"},
		Weakness:    []string{"Water ×2"},
		Resistance:  []string{"Fighting -30"},
		RetreatCost: []string{"Colorless", "Colorless", "Colorless"},
		SetID:       "base1",
	}
}

func TestUpsertSetIdempotent(t *testing.T) {
	db := openTestDB(t)

	if err := db.UpsertSet(testSet()); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	updated := testSet()
	updated.Name = "Base Set"
	if err := db.UpsertSet(updated); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	n, err := db.CountSets()
	if err != nil {
		t.Fatalf("CountSets: %v", err)
	}
	if n != 1 {
		t.Errorf("got %d sets, want 1", n)
	}
}

func TestInsertCardDuplicateIsConflict(t *testing.T) {
	db := openTestDB(t)
	if err := db.UpsertSet(testSet()); err != nil {
		t.Fatalf("UpsertSet: %v", err)
	}

	if err := db.InsertCard(testCard("base1-4")); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	err := db.InsertCard(testCard("base1-4"))
	if err == nil {
		t.Fatal("expected a conflict on duplicate card id")
	}
	if !IsConflict(err) {
		t.Errorf("IsConflict(%v) = false, want true", err)
	}
}

func TestUpsertCardReplaces(t *testing.T) {
	db := openTestDB(t)
	if err := db.UpsertSet(testSet()); err != nil {
		t.Fatalf("UpsertSet: %v", err)
	}

	if err := db.InsertCard(testCard("base1-4")); err != nil {
		t.Fatalf("insert: %v", err)
	}
	changed := testCard("base1-4")
	changed.HP = "150"
	if err := db.UpsertCard(changed); err != nil {
		t.Fatalf("upsert over existing card: %v", err)
	}

	got, err := db.FindCardByID("base1-4")
	if err != nil {
		t.Fatalf("FindCardByID: %v", err)
	}
	if got == nil || got.HP != "150" {
		t.Errorf("got %+v, want HP 150", got)
	}
}

func TestCardRoundTrip(t *testing.T) {
	db := openTestDB(t)
	if err := db.UpsertSet(testSet()); err != nil {
		t.Fatalf("UpsertSet: %v", err)
	}

	want := testCard("base1-4")
	if err := db.InsertCard(want); err != nil {
		t.Fatalf("InsertCard: %v", err)
	}
	got, err := db.FindCardByID("base1-4")
	if err != nil {
		t.Fatalf("FindCardByID: %v", err)
	}
	if got == nil {
		t.Fatal("card not found after insert")
	}
	if !reflect.DeepEqual(*got, want) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", *got, want)
	}

	missing, err := db.FindCardByID("nope")
	if err != nil {
		t.Fatalf("FindCardByID missing: %v", err)
	}
	if missing != nil {
		t.Errorf("got %+v for unknown id, want nil", missing)
	}
}

func TestCardWithoutSetStoresNull(t *testing.T) {
	db := openTestDB(t)

	card := domain.CardRecord{ID: "promo-1", Name: "Pikachu"}
	if err := db.InsertCard(card); err != nil {
		t.Fatalf("InsertCard: %v", err)
	}
	got, err := db.FindCardByID("promo-1")
	if err != nil {
		t.Fatalf("FindCardByID: %v", err)
	}
	if got.SetID != "" {
		t.Errorf("SetID = %q, want empty", got.SetID)
	}
}

func TestFindCardByName(t *testing.T) {
	db := openTestDB(t)
	if err := db.UpsertSet(testSet()); err != nil {
		t.Fatalf("UpsertSet: %v", err)
	}
	if err := db.InsertCard(testCard("base1-4")); err != nil {
		t.Fatalf("InsertCard: %v", err)
	}

	got, err := db.FindCardByName("Charizard")
	if err != nil {
		t.Fatalf("FindCardByName: %v", err)
	}
	if got == nil || got.ID != "base1-4" {
		t.Errorf("got %+v, want base1-4", got)
	}
}

func TestInsertPriceAndMoves(t *testing.T) {
	db := openTestDB(t)
	if err := db.UpsertSet(testSet()); err != nil {
		t.Fatalf("UpsertSet: %v", err)
	}
	if err := db.InsertCard(testCard("base1-4")); err != nil {
		t.Fatalf("InsertCard: %v", err)
	}

	market := 5.0
	err := db.InsertPrice(domain.PriceRecord{CardID: "base1-4", Market: &market, LastUpdated: "2024/03/01"})
	if err != nil {
		t.Fatalf("InsertPrice: %v", err)
	}

	moves := []domain.AbilityAttackRecord{
		{CardID: "base1-4", Name: "Fire Spin", TypeTags: []string{"attack"}, Cost: []string{"Fire", "Fire"}, Damage: "100"},
		{CardID: "base1-4", Name: "Energy Burn", TypeTags: []string{"ability", "Ability"}},
	}
	if err := db.InsertMoves(moves); err != nil {
		t.Fatalf("InsertMoves: %v", err)
	}

	n, err := db.CountMovesForCard("base1-4")
	if err != nil {
		t.Fatalf("CountMovesForCard: %v", err)
	}
	if n != 2 {
		t.Errorf("got %d moves, want 2", n)
	}
}

func TestDeleteCardChildren(t *testing.T) {
	db := openTestDB(t)
	if err := db.UpsertSet(testSet()); err != nil {
		t.Fatalf("UpsertSet: %v", err)
	}
	if err := db.InsertCard(testCard("base1-4")); err != nil {
		t.Fatalf("InsertCard: %v", err)
	}

	market := 5.0
	if err := db.InsertPrice(domain.PriceRecord{CardID: "base1-4", Market: &market}); err != nil {
		t.Fatalf("InsertPrice: %v", err)
	}
	moves := []domain.AbilityAttackRecord{
		{CardID: "base1-4", Name: "Fire Spin", TypeTags: []string{"attack"}},
	}
	if err := db.InsertMoves(moves); err != nil {
		t.Fatalf("InsertMoves: %v", err)
	}

	if err := db.DeleteCardChildren("base1-4"); err != nil {
		t.Fatalf("DeleteCardChildren: %v", err)
	}

	if n, err := db.CountPricesForCard("base1-4"); err != nil || n != 0 {
		t.Errorf("price rows after cleanup = (%d, %v), want 0", n, err)
	}
	if n, err := db.CountMovesForCard("base1-4"); err != nil || n != 0 {
		t.Errorf("move rows after cleanup = (%d, %v), want 0", n, err)
	}
}

func TestRunRoundTrip(t *testing.T) {
	db := openTestDB(t)

	if got, err := db.LatestRun(); err != nil || got != nil {
		t.Fatalf("LatestRun on empty db = (%+v, %v), want (nil, nil)", got, err)
	}

	started := time.Now().Add(-time.Minute).UTC()
	run := Run{
		ID:         "6b2f43a1-0000-0000-0000-000000000000",
		StartedAt:  started,
		FinishedAt: sql.NullTime{Time: started.Add(30 * time.Second), Valid: true},
		Total:      600,
		Success:    598,
		Errors:     2,
		UniqueSets: 3,
		Priced:     590,
	}
	if err := db.InsertRun(run); err != nil {
		t.Fatalf("InsertRun: %v", err)
	}

	got, err := db.LatestRun()
	if err != nil {
		t.Fatalf("LatestRun: %v", err)
	}
	if got == nil {
		t.Fatal("no run returned")
	}
	if got.ID != run.ID || got.Total != 600 || got.Success != 598 || got.Errors != 2 || got.Aborted {
		t.Errorf("got %+v, want %+v", got, run)
	}
}
