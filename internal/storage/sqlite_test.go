package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/hyperjump/matome/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "matome.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sampleThemes() models.ThemeSet {
	return models.ThemeSet{
		{
			Name:            "Customer Support Issues",
			Description:     "Complaints about support",
			Keywords:        []string{"support", "ticket"},
			DocumentIndices: []int{0, 1, 2},
			DocumentCount:   3,
			AvgSimilarity:   0.72,
			ConfidenceScore: 0.81,
		},
	}
}

func TestSQLiteStore_SessionRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sess := &Session{ID: "s1", RefinedQuery: "complaints", Keywords: []string{"support"}}
	if err := store.CreateSession(ctx, sess); err != nil {
		t.Fatal(err)
	}
	got, err := store.GetSession(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if got.RefinedQuery != "complaints" || len(got.Keywords) != 1 || got.Keywords[0] != "support" {
		t.Errorf("session round trip: %+v", got)
	}

	n, err := store.CountSessions(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("count: got %d", n)
	}

	if _, err := store.GetSession(ctx, "missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("missing session: got %v", err)
	}
}

func TestSQLiteStore_ThemeSetRevisions(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.CreateSession(ctx, &Session{ID: "s1"}); err != nil {
		t.Fatal(err)
	}

	themes := sampleThemes()
	summary := models.RunSummary{TotalDocuments: 100, ThemesSelected: 1}

	rev, err := store.SaveThemeSet(ctx, "s1", 0, themes, summary)
	if err != nil {
		t.Fatal(err)
	}
	if rev != 1 {
		t.Errorf("first revision: got %d", rev)
	}

	rec, err := store.GetThemeSet(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Revision != 1 || len(rec.Themes) != 1 || rec.Themes[0].Name != "Customer Support Issues" {
		t.Errorf("record: %+v", rec)
	}
	if rec.Summary.TotalDocuments != 100 {
		t.Errorf("summary: %+v", rec.Summary)
	}

	// Save against the current revision succeeds and bumps it.
	rev2, err := store.SaveThemeSet(ctx, "s1", 1, themes, summary)
	if err != nil {
		t.Fatal(err)
	}
	if rev2 != 2 {
		t.Errorf("second revision: got %d", rev2)
	}
}

func TestSQLiteStore_StaleRevisionRejected(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.CreateSession(ctx, &Session{ID: "s1"}); err != nil {
		t.Fatal(err)
	}
	if _, err := store.SaveThemeSet(ctx, "s1", 0, sampleThemes(), models.RunSummary{}); err != nil {
		t.Fatal(err)
	}

	// A writer holding revision 0 lost the race; its save must be rejected
	// and must not create a new revision.
	_, err := store.SaveThemeSet(ctx, "s1", 0, sampleThemes(), models.RunSummary{})
	if !errors.Is(err, models.ErrConcurrentModification) {
		t.Fatalf("want ErrConcurrentModification, got %v", err)
	}
	rec, err := store.GetThemeSet(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Revision != 1 {
		t.Errorf("revision after rejected save: got %d, want 1", rec.Revision)
	}
}

func TestSQLiteStore_SaveForMissingSession(t *testing.T) {
	store := newTestStore(t)
	_, err := store.SaveThemeSet(context.Background(), "nope", 0, sampleThemes(), models.RunSummary{})
	if !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("want ErrSessionNotFound, got %v", err)
	}
}

func TestSQLiteStore_ListSessions(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		if err := store.CreateSession(ctx, &Session{ID: id}); err != nil {
			t.Fatal(err)
		}
	}
	sessions, err := store.ListSessions(ctx, 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 3 {
		t.Errorf("sessions: got %d", len(sessions))
	}
	sessions, err = store.ListSessions(ctx, 1, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 1 {
		t.Errorf("paged sessions: got %d", len(sessions))
	}
}
