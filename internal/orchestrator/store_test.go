package orchestrator

import (
	"path/filepath"
	"testing"
	"time"
)

func record(id string, at time.Time, outcome string) SessionRecord {
	return SessionRecord{ID: id, TriggeredAt: at, EndedAt: at.Add(30 * time.Second), Reason: "completed", Outcome: outcome}
}

func TestInMemoryStore_RecentSessions_newestFirst(t *testing.T) {
	store := NewInMemoryStore(0)
	base := time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		if err := store.SaveSession(record(id, base.Add(time.Duration(i)*time.Minute), "retained")); err != nil {
			t.Fatalf("SaveSession: %v", err)
		}
	}

	got, err := store.RecentSessions(2)
	if err != nil {
		t.Fatalf("RecentSessions: %v", err)
	}
	if len(got) != 2 || got[0].ID != "c" || got[1].ID != "b" {
		t.Errorf("got %v, want [c b]", ids(got))
	}

	all, _ := store.RecentSessions(0)
	if len(all) != 3 {
		t.Errorf("limit 0 should return everything, got %d", len(all))
	}
}

func TestInMemoryStore_bounded(t *testing.T) {
	store := NewInMemoryStore(2)
	base := time.Now()
	for i, id := range []string{"a", "b", "c"} {
		_ = store.SaveSession(record(id, base.Add(time.Duration(i)*time.Second), "discarded"))
	}

	got, _ := store.RecentSessions(10)
	if len(got) != 2 || got[0].ID != "c" || got[1].ID != "b" {
		t.Errorf("oldest record should be evicted, got %v", ids(got))
	}
}

func TestSQLiteStore_roundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.db")
	store, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	base := time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)
	fps := 6.5
	rec := record("older", base, "retained")
	rec.MinFPS = &fps
	rec.LiveLabels = "person"
	if err := store.SaveSession(rec); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}
	if err := store.SaveSession(record("newer", base.Add(time.Minute), "discarded")); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Reopen: the ledger must survive a restart.
	store, err = NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer store.Close()

	got, err := store.RecentSessions(5)
	if err != nil {
		t.Fatalf("RecentSessions: %v", err)
	}
	if len(got) != 2 || got[0].ID != "newer" || got[1].ID != "older" {
		t.Fatalf("got %v, want [newer older]", ids(got))
	}
	if got[1].MinFPS == nil || *got[1].MinFPS != 6.5 || got[1].LiveLabels != "person" {
		t.Errorf("fields not persisted: %+v", got[1])
	}
	if got[0].MinFPS != nil {
		t.Errorf("MinFPS should stay nil, got %v", *got[0].MinFPS)
	}
}

func TestSQLiteStore_duplicateID(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "sessions.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer store.Close()

	rec := record("same", time.Now(), "retained")
	if err := store.SaveSession(rec); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}
	if err := store.SaveSession(rec); err == nil {
		t.Error("expected a primary key error for a duplicate session id")
	}
}

func ids(recs []SessionRecord) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.ID
	}
	return out
}
