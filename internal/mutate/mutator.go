// Package mutate applies human-directed operations to an existing theme set:
// add, remove, modify, and split into sub-themes. Operations reuse the
// assignment and scoring primitives on restricted document pools instead of
// re-processing the whole corpus. Every operation is transactional: on any
// failure the caller's theme set is unchanged.
package mutate

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/hyperjump/matome/internal/assign"
	"github.com/hyperjump/matome/internal/embedding"
	"github.com/hyperjump/matome/internal/llm"
	"github.com/hyperjump/matome/internal/models"
	"github.com/hyperjump/matome/internal/scoring"
)

// Config holds the confidence priors for user-directed themes. They are high
// because the user asked for the theme; it is not an unsupervised find.
type Config struct {
	AddPrior      float64 `yaml:"add_prior"`
	SubThemePrior float64 `yaml:"sub_theme_prior"`
}

// DefaultConfig returns the contractual priors.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero values with the contractual priors.
func (c *Config) ApplyDefaults() {
	if c.AddPrior == 0 {
		c.AddPrior = 0.85
	}
	if c.SubThemePrior == 0 {
		c.SubThemePrior = 0.80
	}
}

// Mutator applies operations to theme sets. Operations on one Mutator are
// single-writer: a second concurrent Apply is rejected with
// models.ErrConcurrentModification rather than queued.
type Mutator struct {
	config   *Config
	assigner *assign.Assigner
	scorer   *scoring.Scorer
	embedder embedding.Embedder
	proposer llm.ThemeProposer
	queries  llm.QueryBuilder
	resolver llm.TargetResolver
	logger   *zap.Logger
	mu       sync.Mutex
}

// NewMutator creates a mutator sharing the pipeline's assigner and scorer.
func NewMutator(
	config *Config,
	assigner *assign.Assigner,
	scorer *scoring.Scorer,
	embedder embedding.Embedder,
	proposer llm.ThemeProposer,
	queries llm.QueryBuilder,
	resolver llm.TargetResolver,
	logger *zap.Logger,
) *Mutator {
	if config == nil {
		config = DefaultConfig()
	}
	config.ApplyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Mutator{
		config:   config,
		assigner: assigner,
		scorer:   scorer,
		embedder: embedder,
		proposer: proposer,
		queries:  queries,
		resolver: resolver,
		logger:   logger,
	}
}

// ApplyRequest resolves a natural-language request into an operation via the
// target resolver and applies it.
func (m *Mutator) ApplyRequest(ctx context.Context, set models.ThemeSet, userText string, pool []models.Document) (models.ThemeSet, error) {
	if m.resolver == nil {
		return nil, errors.New("natural-language mutations require the target resolver")
	}
	res, err := m.resolver.ResolveTarget(ctx, userText, set.Summaries())
	if err != nil {
		return nil, fmt.Errorf("resolve mutation target: %w", err)
	}
	kind, err := ParseKind(res.Operation)
	if err != nil {
		return nil, err
	}
	return m.Apply(ctx, set, Op{Kind: kind, Target: res.TargetTheme, Request: userText}, pool)
}

// Apply runs one operation against set and returns the mutated copy. pool is
// the run's document pool with embeddings; it is only consulted by operations
// that re-cluster. The input set is never modified: on error the caller keeps
// its set, and the returned set is nil.
func (m *Mutator) Apply(ctx context.Context, set models.ThemeSet, op Op, pool []models.Document) (models.ThemeSet, error) {
	if op.Kind != KindRemove && m.proposer == nil {
		return nil, errors.New("this operation requires the theme proposer")
	}
	if !m.mu.TryLock() {
		return nil, models.ErrConcurrentModification
	}
	defer m.mu.Unlock()

	work := set.Clone()
	var (
		out models.ThemeSet
		err error
	)
	switch op.Kind {
	case KindAdd:
		out, err = m.addTheme(ctx, work, op, pool)
	case KindRemove:
		out, err = m.removeTheme(ctx, work, op)
	case KindModify:
		out, err = m.modifyTheme(ctx, work, op, pool)
	case KindCreateSubTheme:
		out, err = m.createSubTheme(ctx, work, op, pool)
	default:
		err = fmt.Errorf("unknown operation %v", op.Kind)
	}
	if err != nil {
		m.logger.Warn("mutation failed, theme set unchanged",
			zap.String("operation", op.Kind.String()),
			zap.String("target", op.Target),
			zap.Error(err))
		return nil, err
	}
	m.logger.Info("mutation applied",
		zap.String("operation", op.Kind.String()),
		zap.String("target", op.Target),
		zap.Int("themes", len(out)))
	return out, nil
}

// addTheme clusters a proposed theme over the documents no existing theme has
// claimed (or over the full pool if everything is claimed) and appends it.
func (m *Mutator) addTheme(ctx context.Context, set models.ThemeSet, op Op, pool []models.Document) (models.ThemeSet, error) {
	proposal, err := m.proposer.ProposeTheme(ctx, op.Request, themeNames(set))
	if err != nil {
		return nil, err
	}
	if err := proposal.Validate(); err != nil {
		return nil, err
	}
	candidate := models.CandidateTheme{
		Name:        proposal.Name,
		Description: proposal.Description,
		Keywords:    proposal.Keywords,
	}

	docs := unassignedDocuments(set, pool)
	if len(docs) < 2 {
		docs = pool
	}

	theme, err := m.clusterOne(ctx, candidate, docs)
	if err != nil {
		return nil, err
	}
	theme.ConfidenceScore = m.config.AddPrior
	theme.BooleanQuery = m.buildQuery(ctx, *theme)
	return append(set, *theme), nil
}

// removeTheme deletes the resolved target.
func (m *Mutator) removeTheme(ctx context.Context, set models.ThemeSet, op Op) (models.ThemeSet, error) {
	idx, err := m.resolveTarget(ctx, set, op)
	if err != nil {
		return nil, err
	}
	return append(set[:idx], set[idx+1:]...), nil
}

// modifyTheme replaces the target's definition. Documents are kept unless the
// operation requests re-clustering, in which case assignment re-runs over the
// theme's own documents plus the unassigned pool.
func (m *Mutator) modifyTheme(ctx context.Context, set models.ThemeSet, op Op, pool []models.Document) (models.ThemeSet, error) {
	idx, err := m.resolveTarget(ctx, set, op)
	if err != nil {
		return nil, err
	}
	proposal, err := m.proposer.ReviseTheme(ctx, set[idx], op.Request)
	if err != nil {
		return nil, err
	}
	if err := proposal.Validate(); err != nil {
		return nil, err
	}

	theme := &set[idx]
	theme.Name = proposal.Name
	theme.Description = proposal.Description
	theme.Keywords = append([]string(nil), proposal.Keywords...)

	if op.Recluster {
		// The candidate pool is the theme's own documents plus everything
		// unclaimed: documents of other themes stay where they are.
		others := set[:idx:idx]
		others = append(others, set[idx+1:]...)
		docs := unassignedDocuments(others, pool)
		reclustered, err := m.clusterOne(ctx, models.CandidateTheme{
			Name:        theme.Name,
			Description: theme.Description,
			Keywords:    theme.Keywords,
		}, docs)
		if err != nil {
			return nil, err
		}
		reclustered.ConfidenceScore = theme.ConfidenceScore
		reclustered.IsSubTheme = theme.IsSubTheme
		reclustered.ParentTheme = theme.ParentTheme
		reclustered.HasSubThemes = theme.HasSubThemes
		*theme = *reclustered
	}

	theme.BooleanQuery = m.buildQuery(ctx, *theme)
	return set, nil
}

// createSubTheme splits the parent into proposed children clustered over the
// parent's documents only.
func (m *Mutator) createSubTheme(ctx context.Context, set models.ThemeSet, op Op, pool []models.Document) (models.ThemeSet, error) {
	idx, err := m.resolveTarget(ctx, set, op)
	if err != nil {
		return nil, err
	}
	parent := &set[idx]

	children, err := m.proposer.ProposeSubThemes(ctx, *parent, op.Request)
	if err != nil {
		return nil, err
	}
	for i := range children {
		if err := children[i].Validate(); err != nil {
			return nil, err
		}
	}

	parentDocs := restrictPool(pool, parent.DocumentIndices)
	if len(parentDocs) < 2 {
		return nil, fmt.Errorf("%w: parent %q has %d documents in the pool",
			models.ErrNoMatchingDocuments, parent.Name, len(parentDocs))
	}

	themes, err := m.cluster(ctx, children, parentDocs)
	if err != nil {
		return nil, err
	}
	if len(themes) == 0 {
		return nil, fmt.Errorf("%w: no sub-theme attracted documents of %q",
			models.ErrNoMatchingDocuments, parent.Name)
	}

	for i := range themes {
		themes[i].IsSubTheme = true
		themes[i].ParentTheme = parent.Name
		themes[i].ConfidenceScore = m.config.SubThemePrior
		themes[i].BooleanQuery = m.buildQuery(ctx, themes[i])
	}
	parent.HasSubThemes = true
	return append(set, themes...), nil
}

// resolveTarget finds the index of the operation's target theme. Exact and
// substring name matching run first; when they fail and a request text
// exists, disambiguation is delegated to the target resolver.
func (m *Mutator) resolveTarget(ctx context.Context, set models.ThemeSet, op Op) (int, error) {
	if idx := set.FindByName(op.Target); idx >= 0 {
		return idx, nil
	}
	if op.Request != "" && m.resolver != nil {
		res, err := m.resolver.ResolveTarget(ctx, op.Request, set.Summaries())
		if err == nil && res.TargetTheme != "" {
			if idx := set.FindByName(res.TargetTheme); idx >= 0 {
				return idx, nil
			}
		}
	}
	return 0, fmt.Errorf("%w: %q", models.ErrThemeNotFound, op.Target)
}

// cluster runs one assignment+scoring pass over docs for the candidates.
func (m *Mutator) cluster(ctx context.Context, candidates []models.CandidateTheme, docs []models.Document) ([]models.RefinedTheme, error) {
	docEmbs := make([][]float32, len(docs))
	for i, d := range docs {
		docEmbs[i] = d.Embedding
	}
	themeTexts := make([]string, len(candidates))
	for i, c := range candidates {
		themeTexts[i] = c.EmbeddingText()
	}
	themeEmbs, err := m.embedder.EmbedBatch(ctx, themeTexts)
	if err != nil {
		return nil, fmt.Errorf("embed proposed themes: %w", err)
	}

	result, err := m.assigner.Assign(docs, candidates, docEmbs, themeEmbs)
	if err != nil {
		return nil, err
	}
	return m.scorer.ScoreAll(ctx, result.Drafts, len(docs), nil, "")
}

// clusterOne clusters a single candidate and requires it to claim documents.
func (m *Mutator) clusterOne(ctx context.Context, candidate models.CandidateTheme, docs []models.Document) (*models.RefinedTheme, error) {
	if len(docs) < 2 {
		return nil, fmt.Errorf("%w: only %d documents available", models.ErrNoMatchingDocuments, len(docs))
	}
	themes, err := m.cluster(ctx, []models.CandidateTheme{candidate}, docs)
	if err != nil {
		return nil, err
	}
	if len(themes) == 0 {
		return nil, fmt.Errorf("%w: theme %q", models.ErrNoMatchingDocuments, candidate.Name)
	}
	return &themes[0], nil
}

// buildQuery regenerates a boolean query, degrading to the keyword fallback.
func (m *Mutator) buildQuery(ctx context.Context, theme models.RefinedTheme) string {
	if m.queries == nil {
		return llm.FallbackQuery(theme.Keywords)
	}
	query, err := m.queries.BuildQuery(ctx, theme)
	if err != nil {
		m.logger.Warn("boolean query generation failed",
			zap.String("theme", theme.Name),
			zap.Error(err))
		return llm.FallbackQuery(theme.Keywords)
	}
	return query
}

func themeNames(set models.ThemeSet) []string {
	names := make([]string, len(set))
	for i := range set {
		names[i] = set[i].Name
	}
	return names
}

// unassignedDocuments returns the pool documents no theme in set has claimed.
func unassignedDocuments(set models.ThemeSet, pool []models.Document) []models.Document {
	assigned := set.AssignedIndices()
	var out []models.Document
	for _, d := range pool {
		if !assigned[d.Index] {
			out = append(out, d)
		}
	}
	return out
}

// restrictPool returns the pool documents whose indices are in want.
func restrictPool(pool []models.Document, want []int) []models.Document {
	set := make(map[int]bool, len(want))
	for _, i := range want {
		set[i] = true
	}
	var out []models.Document
	for _, d := range pool {
		if set[d.Index] {
			out = append(out, d)
		}
	}
	return out
}
