package storage

import (
	"testing"
	"time"

	"github.com/hailam/endgamelab/internal/tablebase"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(t.TempDir(), time.Hour)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStoreRoundTrip(t *testing.T) {
	store := openTestStore(t)

	dtz := 5
	record := &tablebase.Evaluation{
		Key:     "4k3/8/4K3/4P3/8/8/8/8 w - -",
		Outcome: tablebase.OutcomeWin,
		DTZ:     &dtz,
		Pieces:  3,
		Moves: []tablebase.Candidate{
			{UCI: "e5e6", Outcome: tablebase.OutcomeWin, DTZ: &dtz},
		},
	}
	if err := store.Save(record); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := store.Load(record.Key)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded == nil {
		t.Fatal("Load returned nil for a saved key")
	}
	if loaded.Outcome != tablebase.OutcomeWin || loaded.Pieces != 3 {
		t.Errorf("loaded record wrong: %+v", loaded)
	}
	if loaded.DTZ == nil || *loaded.DTZ != 5 {
		t.Errorf("dtz not preserved: %v", loaded.DTZ)
	}
	if len(loaded.Moves) != 1 || loaded.Moves[0].UCI != "e5e6" {
		t.Errorf("moves not preserved: %+v", loaded.Moves)
	}
}

func TestStoreMissingKey(t *testing.T) {
	store := openTestStore(t)

	record, err := store.Load("8/8/8/8/8/8/8/KQk5 b - -")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if record != nil {
		t.Errorf("Load of unknown key: got %+v, want nil", record)
	}
}

func TestStoreMetricAbsenceSurvivesPersistence(t *testing.T) {
	store := openTestStore(t)

	record := &tablebase.Evaluation{Key: "k", Outcome: tablebase.OutcomeDraw}
	if err := store.Save(record); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	loaded, err := store.Load("k")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.DTZ != nil || loaded.DTM != nil {
		t.Errorf("absent metrics materialized on reload: dtz=%v dtm=%v", loaded.DTZ, loaded.DTM)
	}
}

func TestStoreLen(t *testing.T) {
	store := openTestStore(t)

	for _, key := range []string{"a", "b", "c"} {
		if err := store.Save(&tablebase.Evaluation{Key: key}); err != nil {
			t.Fatalf("Save(%s) failed: %v", key, err)
		}
	}
	n, err := store.Len()
	if err != nil {
		t.Fatalf("Len failed: %v", err)
	}
	if n != 3 {
		t.Errorf("Len: got %d, want 3", n)
	}
}
