// Package integration tests the full analyze-mutate-persist flow with real
// storage (requires cgo for SQLite).
package integration

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hyperjump/matome/internal/assign"
	"github.com/hyperjump/matome/internal/corpus"
	"github.com/hyperjump/matome/internal/dedupe"
	"github.com/hyperjump/matome/internal/engine"
	"github.com/hyperjump/matome/internal/llm"
	"github.com/hyperjump/matome/internal/models"
	"github.com/hyperjump/matome/internal/mutate"
	"github.com/hyperjump/matome/internal/scoring"
	"github.com/hyperjump/matome/internal/selection"
	"github.com/hyperjump/matome/internal/storage"
)

// prefixEmbedder maps texts onto fixed axes by prefix so the test controls
// the similarity structure exactly.
type prefixEmbedder struct{}

func (*prefixEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	switch {
	case strings.HasPrefix(text, "battery"), strings.HasPrefix(text, "Battery"):
		return []float32{1, 0, 0}, nil
	case strings.HasPrefix(text, "screen"), strings.HasPrefix(text, "Screen"):
		return []float32{0, 1, 0}, nil
	default:
		return []float32{0, 0, 1}, nil
	}
}

func (p *prefixEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := p.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (*prefixEmbedder) Dimensions() int { return 3 }
func (*prefixEmbedder) Close() error    { return nil }

func writeCorpus(t *testing.T, dir string) string {
	t.Helper()
	var lines []string
	for i := 0; i < 12; i++ {
		lines = append(lines, fmt.Sprintf("battery drains too fast on day %d", i))
	}
	for i := 0; i < 9; i++ {
		lines = append(lines, fmt.Sprintf("screen flickers when scrolling, report %d", i))
	}
	path := filepath.Join(dir, "posts.txt")
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestIntegration_AnalyzeMutatePersist(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := storage.NewSQLiteStore(filepath.Join(dir, "matome.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	docs, err := corpus.NewLoader(nil).Load([]string{writeCorpus(t, dir)})
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 21 {
		t.Fatalf("corpus: got %d documents, want 21", len(docs))
	}

	embedder := &prefixEmbedder{}
	assigner := assign.NewAssigner(nil, nil)
	scorer := scoring.NewScorer(nil, nil)
	queries := &llm.MockQueryBuilder{Fail: true}

	eng := engine.NewEngine(assigner, scorer, selection.NewSelector(nil, nil),
		dedupe.NewDeduplicator(nil, nil), embedder, nil, queries, nil, nil)

	result, err := eng.Analyze(ctx, &engine.AnalyzeRequest{
		Documents: docs,
		CandidateThemes: []models.CandidateTheme{
			{Name: "Battery Life", Description: "Complaints about battery drain", Keywords: []string{"battery", "drain"}},
			{Name: "Screen Issues", Description: "Display and flicker problems", Keywords: []string{"screen", "flicker"}},
		},
		Keywords:     []string{"battery"},
		RefinedQuery: "device complaints",
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Themes) != 2 {
		t.Fatalf("themes: got %d, want 2", len(result.Themes))
	}

	session := &storage.Session{ID: "it-session", RefinedQuery: "device complaints"}
	if err := store.CreateSession(ctx, session); err != nil {
		t.Fatal(err)
	}
	rev, err := store.SaveThemeSet(ctx, session.ID, 0, result.Themes, result.Summary)
	if err != nil {
		t.Fatal(err)
	}
	if rev != 1 {
		t.Fatalf("first revision: got %d, want 1", rev)
	}

	mut := mutate.NewMutator(nil, assigner, scorer, embedder, nil, queries, nil, nil)
	mutated, err := mut.Apply(ctx, result.Themes, mutate.Op{
		Kind:   mutate.KindRemove,
		Target: "Screen Issues",
	}, result.Pool)
	if err != nil {
		t.Fatal(err)
	}
	if len(mutated) != 1 {
		t.Fatalf("themes after remove: got %d, want 1", len(mutated))
	}

	summary := result.Summary
	summary.ThemesSelected = len(mutated)
	rev, err = store.SaveThemeSet(ctx, session.ID, rev, mutated, summary)
	if err != nil {
		t.Fatal(err)
	}
	if rev != 2 {
		t.Fatalf("second revision: got %d, want 2", rev)
	}

	// A writer holding the old revision must be rejected.
	if _, err := store.SaveThemeSet(ctx, session.ID, 1, mutated, summary); err == nil {
		t.Fatal("stale save accepted")
	}

	record, err := store.GetThemeSet(ctx, session.ID)
	if err != nil {
		t.Fatal(err)
	}
	if record.Revision != 2 || len(record.Themes) != 1 {
		t.Fatalf("stored record: revision %d, themes %d", record.Revision, len(record.Themes))
	}
	if record.Themes[0].Name != "Battery Life" {
		t.Errorf("surviving theme: got %q", record.Themes[0].Name)
	}
}
