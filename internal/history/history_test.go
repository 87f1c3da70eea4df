package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jfmyers9/spotwatch/internal/player"
)

// createTestStore creates an in-memory history for testing
func createTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}

	t.Cleanup(func() {
		_ = store.Close()
	})

	return store
}

func testPlay(trackID string, started time.Time) player.Play {
	return player.Play{
		AccountID: "acct",
		TrackID:   trackID,
		Name:      "Song " + trackID,
		Artists:   "Band",
		Album:     "Record",
		Duration:  3 * time.Minute,
		StartedAt: started,
	}
}

func TestOpen_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), DBFile)

	store, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	ctx := context.Background()
	if err := store.Record(ctx, testPlay("t1", time.Now())); err != nil {
		t.Fatalf("Record: %v", err)
	}
	_ = store.Close()

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = reopened.Close() }()

	count, err := reopened.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 1 {
		t.Errorf("Count = %d, want 1", count)
	}
}

func TestRecent(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour).Truncate(time.Second)

	for i, id := range []string{"t1", "t2", "t3"} {
		if _, err := store.Add(ctx, testPlay(id, base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("Add %s: %v", id, err)
		}
	}

	entries, err := store.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("len = %d, want 2", len(entries))
	}
	if entries[0].TrackID != "t3" || entries[1].TrackID != "t2" {
		t.Errorf("order = %s, %s; want t3, t2", entries[0].TrackID, entries[1].TrackID)
	}

	e := entries[0]
	if e.Name != "Song t3" || e.Artists != "Band" || e.Album != "Record" || e.AccountID != "acct" {
		t.Errorf("entry = %+v", e)
	}
	if e.Duration != 3*time.Minute {
		t.Errorf("Duration = %v", e.Duration)
	}
	if !e.StartedAt.Equal(base.Add(2 * time.Minute)) {
		t.Errorf("StartedAt = %v, want %v", e.StartedAt, base.Add(2*time.Minute))
	}

	all, err := store.Recent(ctx, 0)
	if err != nil {
		t.Fatalf("Recent(0): %v", err)
	}
	if len(all) != 3 {
		t.Errorf("Recent(0) = %d entries, want 3", len(all))
	}
}

func TestCleanup(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()
	now := time.Now()

	plays := []player.Play{
		testPlay("old", now.Add(-60*24*time.Hour)),
		testPlay("older", now.Add(-90*24*time.Hour)),
		testPlay("new", now.Add(-time.Hour)),
	}
	for _, p := range plays {
		if err := store.Record(ctx, p); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	deleted, err := store.Cleanup(ctx, 30*24*time.Hour)
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if deleted != 2 {
		t.Errorf("deleted = %d, want 2", deleted)
	}

	entries, err := store.Recent(ctx, 0)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 1 || entries[0].TrackID != "new" {
		t.Errorf("remaining = %+v", entries)
	}
}

func TestStoreIsRecorder(t *testing.T) {
	var _ player.Recorder = (*Store)(nil)
}
