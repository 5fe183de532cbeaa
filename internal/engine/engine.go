// Package engine orchestrates one theme-discovery run: embed the corpus,
// obtain candidate themes, assign documents, score, select, deduplicate, and
// attach boolean queries. The engine itself is deterministic; all
// non-determinism lives behind the injected collaborator interfaces.
package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/matome/internal/assign"
	"github.com/hyperjump/matome/internal/dedupe"
	"github.com/hyperjump/matome/internal/embedding"
	"github.com/hyperjump/matome/internal/knowledge"
	"github.com/hyperjump/matome/internal/llm"
	"github.com/hyperjump/matome/internal/models"
	"github.com/hyperjump/matome/internal/scoring"
	"github.com/hyperjump/matome/internal/selection"
)

// embedBatchSize is how many texts one embedding goroutine handles.
const embedBatchSize = 64

// sampleDocsForProposer caps the corpus sample sent to the theme proposer.
const sampleDocsForProposer = 30

// defaultKnowledgeTop is how many known themes enrich the proposer prompt.
const defaultKnowledgeTop = 5

// Engine runs the discovery pipeline.
type Engine struct {
	assigner  *assign.Assigner
	scorer    *scoring.Scorer
	selector  *selection.Selector
	dedup     *dedupe.Deduplicator
	embedder  embedding.Embedder
	proposer  llm.ThemeProposer
	queries   llm.QueryBuilder
	knowledge *knowledge.Base
	logger    *zap.Logger

	knowledgeTop int
}

// WithKnowledgeContext sets how many known themes are pulled into the
// proposer prompt. Values below 1 keep the default.
func (e *Engine) WithKnowledgeContext(top int) *Engine {
	if top >= 1 {
		e.knowledgeTop = top
	}
	return e
}

// NewEngine wires the pipeline. proposer, queries, and kb may be nil:
// without a proposer the caller must supply candidate themes, without a
// query builder themes get the keyword fallback query, and without a
// knowledge base the proposer prompt carries no known-theme context.
func NewEngine(
	assigner *assign.Assigner,
	scorer *scoring.Scorer,
	selector *selection.Selector,
	dedup *dedupe.Deduplicator,
	embedder embedding.Embedder,
	proposer llm.ThemeProposer,
	queries llm.QueryBuilder,
	kb *knowledge.Base,
	logger *zap.Logger,
) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		assigner:  assigner,
		scorer:    scorer,
		selector:  selector,
		dedup:     dedup,
		embedder:  embedder,
		proposer:  proposer,
		queries:   queries,
		knowledge: kb,
		logger:    logger,

		knowledgeTop: defaultKnowledgeTop,
	}
}

// AnalyzeRequest is one corpus batch with its analysis context.
type AnalyzeRequest struct {
	// Documents are the raw hit texts, one per document.
	Documents []string `json:"documents"`
	// CandidateThemes, when non-empty, skip the proposer.
	CandidateThemes []models.CandidateTheme `json:"candidate_themes,omitempty"`
	// Keywords are external keywords for the scorer's alignment component.
	Keywords []string `json:"keywords,omitempty"`
	// RefinedQuery is the analysis focus, used for scoring and for the
	// proposer/knowledge context.
	RefinedQuery string `json:"refined_query,omitempty"`
	// MaxThemes caps the proposer's candidate count; 0 uses the default.
	MaxThemes int `json:"max_themes,omitempty"`
}

// AnalyzeResult is the structured output of one run.
type AnalyzeResult struct {
	Themes  models.ThemeSet   `json:"themes"`
	Summary models.RunSummary `json:"summary"`
	// Pool carries the embedded documents for later mutations. It is not
	// serialized; documents are never persisted.
	Pool []models.Document `json:"-"`
}

// Analyze runs the full pipeline over the request.
func (e *Engine) Analyze(ctx context.Context, req *AnalyzeRequest) (*AnalyzeResult, error) {
	if len(req.Documents) == 0 {
		return nil, models.ErrEmptyCorpus
	}
	if len(req.Documents) < 2 {
		return nil, models.ErrTooFewDocuments
	}

	docEmbs, err := e.embedAll(ctx, req.Documents)
	if err != nil {
		return nil, fmt.Errorf("embed documents: %w", err)
	}
	pool := make([]models.Document, len(req.Documents))
	for i, text := range req.Documents {
		pool[i] = models.Document{Index: i, Text: text, Embedding: docEmbs[i]}
	}

	candidates := req.CandidateThemes
	if len(candidates) == 0 {
		candidates, err = e.proposeThemes(ctx, req)
		if err != nil {
			return nil, err
		}
	}
	for i := range candidates {
		if err := candidates[i].Validate(); err != nil {
			return nil, err
		}
	}

	themeTexts := make([]string, len(candidates))
	for i := range candidates {
		themeTexts[i] = candidates[i].EmbeddingText()
	}
	themeEmbs, err := e.embedAll(ctx, themeTexts)
	if err != nil {
		return nil, fmt.Errorf("embed candidate themes: %w", err)
	}

	result, err := e.assigner.Assign(pool, candidates, docEmbs, themeEmbs)
	if err != nil {
		return nil, err
	}

	summary := models.RunSummary{
		TotalDocuments:    len(pool),
		DocumentsAssigned: result.DocumentsAssigned(),
		ThemesConsidered:  len(candidates),
	}
	if len(result.Drafts) == 0 {
		// A valid degenerate outcome, not an error.
		summary.NoThemesReason = "no candidate theme attracted enough documents"
		return &AnalyzeResult{Themes: models.ThemeSet{}, Summary: summary, Pool: pool}, nil
	}

	scored, err := e.scorer.ScoreAll(ctx, result.Drafts, len(pool), req.Keywords, req.RefinedQuery)
	if err != nil {
		return nil, err
	}
	selected := e.selector.Select(scored)
	selected = models.ThemeSet(e.dedup.Deduplicate(selected))

	e.attachQueries(ctx, selected)

	summary.ThemesSelected = len(selected)
	var confSum float64
	for i := range selected {
		confSum += selected[i].ConfidenceScore
	}
	if len(selected) > 0 {
		summary.AverageConfidence = confSum / float64(len(selected))
	}

	e.logger.Info("analysis complete",
		zap.Int("documents", summary.TotalDocuments),
		zap.Int("assigned", summary.DocumentsAssigned),
		zap.Int("themes_considered", summary.ThemesConsidered),
		zap.Int("themes_selected", summary.ThemesSelected),
		zap.Float64("avg_confidence", summary.AverageConfidence))

	return &AnalyzeResult{Themes: selected, Summary: summary, Pool: pool}, nil
}

// proposeThemes obtains candidates from the proposer, enriched with known
// themes from the knowledge base when available.
func (e *Engine) proposeThemes(ctx context.Context, req *AnalyzeRequest) ([]models.CandidateTheme, error) {
	if e.proposer == nil {
		return nil, fmt.Errorf("%w: no candidate themes supplied and no proposer configured", models.ErrInvalidCandidateTheme)
	}
	sample := req.Documents
	if len(sample) > sampleDocsForProposer {
		sample = sample[:sampleDocsForProposer]
	}
	var known []string
	if e.knowledge != nil && req.RefinedQuery != "" {
		hits, err := e.knowledge.Search(req.RefinedQuery, e.knowledgeTop)
		if err != nil {
			e.logger.Warn("knowledge search failed", zap.Error(err))
		} else {
			known = hits
		}
	}
	return e.proposer.ProposeThemes(ctx, llm.PromptContext{
		Query:       req.RefinedQuery,
		Keywords:    req.Keywords,
		SampleDocs:  sample,
		KnownThemes: known,
		MaxThemes:   req.MaxThemes,
	})
}

// embedAll embeds texts in parallel batches. Embedding failures are fatal for
// the run.
func (e *Engine) embedAll(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	for start := 0; start < len(texts); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		start := start
		g.Go(func() error {
			embs, err := e.embedder.EmbedBatch(gctx, texts[start:end])
			if err != nil {
				return err
			}
			copy(out[start:end], embs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// attachQueries builds a boolean query for each selected theme. Failures
// degrade to the keyword fallback and never fail the run.
func (e *Engine) attachQueries(ctx context.Context, themes models.ThemeSet) {
	for i := range themes {
		if e.queries == nil {
			themes[i].BooleanQuery = llm.FallbackQuery(themes[i].Keywords)
			continue
		}
		query, err := e.queries.BuildQuery(ctx, themes[i])
		if err != nil {
			e.logger.Warn("boolean query generation failed",
				zap.String("theme", themes[i].Name),
				zap.Error(err))
			themes[i].BooleanQuery = llm.FallbackQuery(themes[i].Keywords)
			continue
		}
		themes[i].BooleanQuery = query
	}
}
