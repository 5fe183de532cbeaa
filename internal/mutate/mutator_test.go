package mutate

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/hyperjump/matome/internal/assign"
	"github.com/hyperjump/matome/internal/llm"
	"github.com/hyperjump/matome/internal/models"
	"github.com/hyperjump/matome/internal/scoring"
)

// cannedEmbedder returns fixed vectors for known texts so tests control the
// similarity structure exactly.
type cannedEmbedder struct {
	vectors map[string][]float32
	dim     int
}

func (c *cannedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := c.vectors[text]; ok {
		return v, nil
	}
	return nil, fmt.Errorf("no canned vector for %q", text)
}

func (c *cannedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := c.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (c *cannedEmbedder) Dimensions() int { return c.dim }
func (c *cannedEmbedder) Close() error    { return nil }

var (
	axisX = []float32{1, 0, 0}
	axisY = []float32{0, 1, 0}
	axisZ = []float32{0, 0, 1}
)

// makePool builds documents 0..n-1; pick maps a document index to its
// embedding, defaulting to axisX.
func makePool(n int, pick func(i int) []float32) []models.Document {
	docs := make([]models.Document, n)
	for i := range docs {
		emb := axisX
		if pick != nil {
			if v := pick(i); v != nil {
				emb = v
			}
		}
		docs[i] = models.Document{Index: i, Text: fmt.Sprintf("post %d", i), Embedding: emb}
	}
	return docs
}

func newTestMutator(embedder *cannedEmbedder, proposer llm.ThemeProposer, resolver llm.TargetResolver) *Mutator {
	return NewMutator(
		nil,
		assign.NewAssigner(nil, nil),
		scoring.NewScorer(nil, nil),
		embedder,
		proposer,
		&llm.MockQueryBuilder{Query: `"canned" AND "query"`},
		resolver,
		nil,
	)
}

func baseSet() models.ThemeSet {
	return models.ThemeSet{
		{
			Name:            "Customer Support Issues",
			Description:     "Complaints about support responsiveness",
			Keywords:        []string{"support", "ticket"},
			DocumentIndices: []int{0, 1},
			DocumentCount:   2,
			ConfidenceScore: 0.7,
		},
	}
}

func TestMutator_AddThenRemoveRestoresSet(t *testing.T) {
	proposal := &models.ThemeProposal{
		Name:        "Shipping Delays",
		Description: "Orders arriving late",
		Keywords:    []string{"shipping", "late"},
	}
	embedder := &cannedEmbedder{dim: 3, vectors: map[string][]float32{
		"Shipping Delays: Orders arriving late": axisY,
	}}
	m := newTestMutator(embedder, &llm.MockProposer{Proposal: proposal}, nil)

	// Documents 0-1 belong to the existing theme; 2-9 are unassigned and
	// close to the proposed theme.
	pool := makePool(10, func(i int) []float32 {
		if i < 2 {
			return axisX
		}
		return axisY
	})
	set := baseSet()
	original := set.Clone()

	added, err := m.Apply(context.Background(), set, Op{Kind: KindAdd, Request: "add a shipping theme"}, pool)
	if err != nil {
		t.Fatal(err)
	}
	if len(added) != 2 {
		t.Fatalf("themes after add: got %d", len(added))
	}
	got := added[1]
	if got.Name != "Shipping Delays" {
		t.Errorf("added name: %q", got.Name)
	}
	if got.ConfidenceScore != 0.85 {
		t.Errorf("added confidence: got %f, want 0.85", got.ConfidenceScore)
	}
	if got.DocumentCount < 1 {
		t.Error("added theme should have claimed documents")
	}
	for _, idx := range got.DocumentIndices {
		if idx < 2 {
			t.Errorf("added theme claimed document %d owned by an existing theme", idx)
		}
	}
	if got.BooleanQuery == "" {
		t.Error("added theme should carry a boolean query")
	}

	removed, err := m.Apply(context.Background(), added, Op{Kind: KindRemove, Target: "Shipping Delays"}, pool)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(removed, original) {
		t.Errorf("remove(add(S)) != S:\ngot  %+v\nwant %+v", removed, original)
	}
}

func TestMutator_AddNoMatchingDocuments(t *testing.T) {
	proposal := &models.ThemeProposal{Name: "Nothing", Description: "Matches nothing", Keywords: nil}
	embedder := &cannedEmbedder{dim: 3, vectors: map[string][]float32{
		"Nothing: Matches nothing": axisZ,
	}}
	m := newTestMutator(embedder, &llm.MockProposer{Proposal: proposal}, nil)

	// Every unassigned document is orthogonal to the proposal, so the
	// assignment pass produces no draft and the set must stay unchanged.
	pool := makePool(10, nil)
	set := baseSet()
	_, err := m.Apply(context.Background(), set, Op{Kind: KindAdd, Request: "add"}, pool)
	if !errors.Is(err, models.ErrNoMatchingDocuments) {
		t.Fatalf("want ErrNoMatchingDocuments, got %v", err)
	}
	if len(set) != 1 || set[0].Name != "Customer Support Issues" {
		t.Errorf("set changed on failed add: %+v", set)
	}
}

func TestMutator_RemoveThemeNotFound(t *testing.T) {
	m := newTestMutator(&cannedEmbedder{dim: 3}, &llm.MockProposer{}, nil)
	set := baseSet()
	_, err := m.Apply(context.Background(), set, Op{Kind: KindRemove, Target: "No Such Theme"}, nil)
	if !errors.Is(err, models.ErrThemeNotFound) {
		t.Fatalf("want ErrThemeNotFound, got %v", err)
	}
}

func TestMutator_RemoveViaResolverDisambiguation(t *testing.T) {
	resolver := &llm.MockResolver{Resolution: &llm.Resolution{
		Operation:   llm.OpRemoveTheme,
		TargetTheme: "Customer Support Issues",
	}}
	m := newTestMutator(&cannedEmbedder{dim: 3}, &llm.MockProposer{}, resolver)
	set := baseSet()
	out, err := m.Apply(context.Background(), set, Op{
		Kind:    KindRemove,
		Target:  "the one about helpdesk",
		Request: "remove the helpdesk theme",
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 0 {
		t.Errorf("themes after resolver-backed remove: got %d", len(out))
	}
}

func TestMutator_ModifyKeepsDocuments(t *testing.T) {
	proposal := &models.ThemeProposal{
		Name:        "Support Responsiveness",
		Description: "How quickly support answers",
		Keywords:    []string{"support", "response", "slow"},
	}
	m := newTestMutator(&cannedEmbedder{dim: 3}, &llm.MockProposer{Proposal: proposal}, nil)
	set := baseSet()

	out, err := m.Apply(context.Background(), set, Op{
		Kind:    KindModify,
		Target:  "Customer Support Issues",
		Request: "rename to focus on responsiveness",
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	got := out[0]
	if got.Name != "Support Responsiveness" {
		t.Errorf("modified name: %q", got.Name)
	}
	if !reflect.DeepEqual(got.DocumentIndices, []int{0, 1}) || got.DocumentCount != 2 {
		t.Errorf("modify must keep documents: %+v", got)
	}
	if got.BooleanQuery != `"canned" AND "query"` {
		t.Errorf("modify should regenerate the boolean query: %q", got.BooleanQuery)
	}
	// input set untouched
	if set[0].Name != "Customer Support Issues" {
		t.Errorf("input set mutated: %q", set[0].Name)
	}
}

func TestMutator_ModifyInvalidProposalLeavesSetUnchanged(t *testing.T) {
	bad := &models.ThemeProposal{Name: "X"} // no description
	m := newTestMutator(&cannedEmbedder{dim: 3}, &llm.MockProposer{Proposal: bad}, nil)
	set := baseSet()
	_, err := m.Apply(context.Background(), set, Op{Kind: KindModify, Target: "Customer Support Issues"}, nil)
	if !errors.Is(err, models.ErrInvalidProposal) {
		t.Fatalf("want ErrInvalidProposal, got %v", err)
	}
	if set[0].Name != "Customer Support Issues" {
		t.Errorf("set changed on failed modify: %+v", set[0])
	}
}

func TestMutator_CreateSubTheme(t *testing.T) {
	children := []models.CandidateTheme{
		{Name: "Slow Replies", Description: "Long first-response times", Keywords: []string{"slow"}},
		{Name: "Unresolved Tickets", Description: "Tickets closed without resolution", Keywords: []string{"unresolved"}},
		{Name: "Rude Agents", Description: "Unfriendly support staff", Keywords: []string{"rude"}},
	}
	embedder := &cannedEmbedder{dim: 3, vectors: map[string][]float32{
		children[0].EmbeddingText(): axisX,
		children[1].EmbeddingText(): axisY,
		children[2].EmbeddingText(): axisZ,
	}}
	m := newTestMutator(embedder, &llm.MockProposer{SubThemes: children}, nil)

	// Parent owns documents 0..49; 50..59 belong to no one and must never
	// reach a sub-theme.
	parentIndices := make([]int, 50)
	for i := range parentIndices {
		parentIndices[i] = i
	}
	pool := makePool(60, func(i int) []float32 {
		switch {
		case i < 20:
			return axisX
		case i < 35:
			return axisY
		case i < 50:
			return axisZ
		default:
			return axisX
		}
	})
	set := models.ThemeSet{{
		Name:            "Customer Support Issues",
		Description:     "Complaints about support",
		Keywords:        []string{"support"},
		DocumentIndices: parentIndices,
		DocumentCount:   50,
		ConfidenceScore: 0.7,
	}}

	out, err := m.Apply(context.Background(), set, Op{
		Kind:   KindCreateSubTheme,
		Target: "Customer Support Issues",
	}, pool)
	if err != nil {
		t.Fatal(err)
	}
	if !out[0].HasSubThemes {
		t.Error("parent should be marked has_sub_themes")
	}
	subs := out[1:]
	if len(subs) != 3 {
		t.Fatalf("sub-themes: got %d, want 3", len(subs))
	}
	parentSet := make(map[int]bool, 50)
	for _, i := range parentIndices {
		parentSet[i] = true
	}
	seen := make(map[int]bool)
	for _, sub := range subs {
		if !sub.IsSubTheme || sub.ParentTheme != "Customer Support Issues" {
			t.Errorf("sub-theme flags wrong: %+v", sub)
		}
		if sub.ConfidenceScore != 0.80 {
			t.Errorf("sub-theme confidence: got %f, want 0.80", sub.ConfidenceScore)
		}
		if sub.DocumentCount < 1 {
			t.Errorf("sub-theme %q has no documents", sub.Name)
		}
		for _, idx := range sub.DocumentIndices {
			if !parentSet[idx] {
				t.Errorf("sub-theme %q claimed document %d outside the parent pool", sub.Name, idx)
			}
			if seen[idx] {
				t.Errorf("document %d claimed by two sub-themes", idx)
			}
			seen[idx] = true
		}
	}
}

func TestMutator_ApplyRequestRoutesThroughResolver(t *testing.T) {
	resolver := &llm.MockResolver{Resolution: &llm.Resolution{
		Operation:   llm.OpRemoveTheme,
		TargetTheme: "Customer Support Issues",
	}}
	m := newTestMutator(&cannedEmbedder{dim: 3}, &llm.MockProposer{}, resolver)
	out, err := m.ApplyRequest(context.Background(), baseSet(), "get rid of the support theme", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 0 {
		t.Errorf("themes after request: got %d", len(out))
	}
}

// blockingProposer parks ProposeTheme until released, so a second writer can
// race the first.
type blockingProposer struct {
	llm.MockProposer
	entered chan struct{}
	release chan struct{}
}

func (b *blockingProposer) ProposeTheme(ctx context.Context, request string, existing []string) (*models.ThemeProposal, error) {
	close(b.entered)
	<-b.release
	return nil, errors.New("released")
}

func TestMutator_ConcurrentModificationRejected(t *testing.T) {
	proposer := &blockingProposer{
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	m := newTestMutator(&cannedEmbedder{dim: 3}, proposer, nil)
	set := baseSet()
	pool := makePool(10, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = m.Apply(context.Background(), set, Op{Kind: KindAdd, Request: "first"}, pool)
	}()
	<-proposer.entered

	_, err := m.Apply(context.Background(), set, Op{Kind: KindRemove, Target: "Customer Support Issues"}, nil)
	if !errors.Is(err, models.ErrConcurrentModification) {
		t.Errorf("want ErrConcurrentModification, got %v", err)
	}
	close(proposer.release)
	<-done
}
