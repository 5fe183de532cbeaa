package assign

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/hyperjump/matome/internal/models"
	"github.com/hyperjump/matome/internal/vectormath"
)

// docsWithSims builds documents whose cosine similarity to the single theme
// vector (1, 0) equals the given values (unit vectors at the matching angle).
func docsWithSims(sims []float64) ([]models.Document, [][]float32) {
	docs := make([]models.Document, len(sims))
	embs := make([][]float32, len(sims))
	for i, s := range sims {
		angle := math.Acos(s)
		embs[i] = []float32{float32(math.Cos(angle)), float32(math.Sin(angle))}
		docs[i] = models.Document{Index: i, Text: fmt.Sprintf("doc %d", i), Embedding: embs[i]}
	}
	return docs, embs
}

func TestAssign_InputErrors(t *testing.T) {
	a := NewAssigner(nil, nil)
	theme := []models.CandidateTheme{{Name: "t", Description: "d"}}
	themeEmb := [][]float32{{1, 0}}

	if _, err := a.Assign(nil, theme, nil, themeEmb); !errors.Is(err, models.ErrEmptyCorpus) {
		t.Errorf("empty corpus: got %v", err)
	}

	docs, embs := docsWithSims([]float64{0.9})
	if _, err := a.Assign(docs, theme, embs, themeEmb); !errors.Is(err, models.ErrTooFewDocuments) {
		t.Errorf("single document: got %v", err)
	}

	docs, _ = docsWithSims([]float64{0.9, 0.8})
	bad := [][]float32{{1, 0, 0}, {0, 1, 0}}
	_, err := a.Assign(docs, theme, bad, themeEmb)
	var dimErr *vectormath.DimensionError
	if !errors.As(err, &dimErr) {
		t.Errorf("dimension mismatch: got %v", err)
	}
}

func TestQualityThreshold_Branches(t *testing.T) {
	// Scenario: three similarity columns whose maxima fall into the three
	// branches (0.82, 0.51, 0.28).
	a := NewAssigner(nil, nil)

	high := []float64{0.82, 0.7, 0.55, 0.4, 0.3, 0.2, 0.15, 0.1}
	mid := []float64{0.51, 0.45, 0.4, 0.3, 0.25, 0.2, 0.1, 0.05}
	low := []float64{0.28, 0.22, 0.2, 0.15, 0.12, 0.1, 0.08, 0.05}

	tests := []struct {
		name   string
		column []float64
		want   float64
	}{
		{"high branch uses p75", high, math.Max(0.35, vectormath.Percentile(high, 75)*0.8)},
		{"mid branch uses p50", mid, math.Max(0.25, vectormath.Percentile(mid, 50)*0.8)},
		{"low branch uses mean", low, math.Max(0.2, vectormath.Mean(low)*0.8)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := a.qualityThreshold(tt.column, vectormath.Max(tt.column))
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("qualityThreshold = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAssign_Exclusivity(t *testing.T) {
	// Two near-identical themes compete for the same documents; every
	// document may be claimed at most once.
	sims := []float64{0.95, 0.9, 0.85, 0.8, 0.75, 0.1, 0.1, 0.1, 0.1, 0.1}
	docs, embs := docsWithSims(sims)
	themes := []models.CandidateTheme{
		{Name: "first", Description: "a"},
		{Name: "second", Description: "b"},
	}
	themeEmbs := [][]float32{{1, 0}, {0.999, 0.0447}}

	a := NewAssigner(nil, nil)
	result, err := a.Assign(docs, themes, embs, themeEmbs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	seen := make(map[int]string)
	for _, d := range result.Drafts {
		if d.DocumentCount != len(d.DocumentIndices) {
			t.Errorf("theme %q: count %d != len(indices) %d", d.Name, d.DocumentCount, len(d.DocumentIndices))
		}
		for _, idx := range d.DocumentIndices {
			if prev, ok := seen[idx]; ok {
				t.Errorf("document %d assigned to both %q and %q", idx, prev, d.Name)
			}
			seen[idx] = d.Name
		}
	}
	if len(result.Assignments) != len(seen) {
		t.Errorf("assignments %d != unique assigned docs %d", len(result.Assignments), len(seen))
	}
}

func TestAssign_MaxSimOrdering(t *testing.T) {
	// The weaker theme is processed second and must not steal documents the
	// stronger theme already claimed.
	sims := []float64{0.9, 0.88, 0.86, 0.2, 0.2, 0.2, 0.2, 0.2, 0.2, 0.2}
	docs, embs := docsWithSims(sims)
	themes := []models.CandidateTheme{
		{Name: "weak", Description: "overlapping but weaker"},
		{Name: "strong", Description: "best match"},
	}
	// weak sits 5 degrees below the x axis, so it peaks at ~0.86 against the
	// same documents strong peaks at 0.9 on.
	themeEmbs := [][]float32{{0.9962, -0.0872}, {1, 0}}

	result, err := NewAssigner(nil, nil).Assign(docs, themes, embs, themeEmbs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Drafts) == 0 {
		t.Fatal("expected at least one draft")
	}
	if result.Drafts[0].Name != "strong" {
		t.Errorf("first processed draft = %q, want strong (maxSim descending)", result.Drafts[0].Name)
	}
}

func TestAssign_SkipBelowMinDocs(t *testing.T) {
	// All similarities sit at 0.05: the low branch floor (0.2) leaves no
	// candidates, so the theme is skipped and the result is empty.
	sims := make([]float64, 100)
	for i := range sims {
		sims[i] = 0.05
	}
	docs, embs := docsWithSims(sims)
	themes := []models.CandidateTheme{{Name: "nothing", Description: "matches nothing"}}
	themeEmbs := [][]float32{{1, 0}}

	result, err := NewAssigner(nil, nil).Assign(docs, themes, embs, themeEmbs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Drafts) != 0 {
		t.Errorf("expected empty result, got %d drafts", len(result.Drafts))
	}
	if result.DocumentsAssigned() != 0 {
		t.Errorf("expected no assignments, got %d", result.DocumentsAssigned())
	}
}

func TestAssign_MaxDocsBound(t *testing.T) {
	// 20 documents, all similar to the theme: maxDocs = round(0.30*20) = 6.
	sims := make([]float64, 20)
	for i := range sims {
		sims[i] = 0.9
	}
	docs, embs := docsWithSims(sims)
	themes := []models.CandidateTheme{{Name: "broad", Description: "matches everything"}}
	themeEmbs := [][]float32{{1, 0}}

	result, err := NewAssigner(nil, nil).Assign(docs, themes, embs, themeEmbs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Drafts) != 1 {
		t.Fatalf("expected 1 draft, got %d", len(result.Drafts))
	}
	if got := result.Drafts[0].DocumentCount; got != 6 {
		t.Errorf("DocumentCount = %d, want 6 (30%% of 20)", got)
	}
	if len(result.Drafts[0].SamplePosts) != 3 {
		t.Errorf("SamplePosts = %d, want 3", len(result.Drafts[0].SamplePosts))
	}
}

func TestAssign_RestrictedPoolKeepsOriginalIndices(t *testing.T) {
	sims := []float64{0.9, 0.85, 0.8}
	docs, embs := docsWithSims(sims)
	// Simulate a restricted pool whose documents keep corpus indices 40..42.
	for i := range docs {
		docs[i].Index = 40 + i
	}
	themes := []models.CandidateTheme{{Name: "sub", Description: "pool"}}
	themeEmbs := [][]float32{{1, 0}}

	result, err := NewAssigner(nil, nil).Assign(docs, themes, embs, themeEmbs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Drafts) != 1 {
		t.Fatalf("expected 1 draft, got %d", len(result.Drafts))
	}
	for _, idx := range result.Drafts[0].DocumentIndices {
		if idx < 40 || idx > 42 {
			t.Errorf("index %d outside restricted pool range", idx)
		}
	}
}
