// Package scoring computes composite confidence scores for theme drafts.
// The score is a weighted sum of four normalized components: semantic
// similarity, document-count optimality, keyword alignment, and query
// relevance.
package scoring

import (
	"context"
	"math"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/matome/internal/models"
	"github.com/hyperjump/matome/pkg/utils"
)

// Scorer computes confidence scores.
type Scorer struct {
	config *Config
	logger *zap.Logger
}

// NewScorer creates a scorer. A nil config uses the contractual defaults.
func NewScorer(config *Config, logger *zap.Logger) *Scorer {
	if config == nil {
		config = DefaultConfig()
	}
	config.ApplyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scorer{config: config, logger: logger}
}

// Breakdown carries the per-component values behind one confidence score.
type Breakdown struct {
	Similarity float64 `json:"similarity"`
	Quality    float64 `json:"quality"`
	Keyword    float64 `json:"keyword"`
	Query      float64 `json:"query"`
	Bonus      float64 `json:"bonus"`
	Final      float64 `json:"final"`
}

// Score returns the confidence for one draft given the run context.
func (s *Scorer) Score(draft *models.ThemeDraft, totalDocs int, keywords []string, refinedQuery string) float64 {
	return s.ScoreWithBreakdown(draft, totalDocs, keywords, refinedQuery).Final
}

// ScoreWithBreakdown returns the confidence plus its components.
func (s *Scorer) ScoreWithBreakdown(draft *models.ThemeDraft, totalDocs int, keywords []string, refinedQuery string) *Breakdown {
	themeText := strings.ToLower(draft.Name + " " + draft.Description)

	b := &Breakdown{
		Similarity: draft.AvgSimilarity,
		Quality:    s.qualityComponent(draft.DocumentCount, totalDocs),
		Keyword:    s.keywordComponent(themeText, keywords),
		Query:      s.queryComponent(themeText, refinedQuery),
	}
	if draft.SimilarityThreshold > s.config.BonusThreshold {
		b.Bonus = s.config.ThresholdBonus
	}

	sum := s.config.SimilarityWeight*b.Similarity +
		s.config.QualityWeight*b.Quality +
		s.config.KeywordWeight*b.Keyword +
		s.config.QueryWeight*b.Query +
		b.Bonus
	b.Final = utils.Clamp01(sum)
	return b
}

// ScoreAll scores drafts concurrently (the drafts are disjoint, so scoring
// order does not matter) and returns refined themes in draft order.
func (s *Scorer) ScoreAll(ctx context.Context, drafts []models.ThemeDraft, totalDocs int, keywords []string, refinedQuery string) ([]models.RefinedTheme, error) {
	themes := make([]models.RefinedTheme, len(drafts))
	g, _ := errgroup.WithContext(ctx)
	for i := range drafts {
		i := i
		g.Go(func() error {
			d := &drafts[i]
			b := s.ScoreWithBreakdown(d, totalDocs, keywords, refinedQuery)
			themes[i] = models.RefinedTheme{
				Name:                d.Name,
				Description:         d.Description,
				Keywords:            d.Keywords,
				DocumentIndices:     d.DocumentIndices,
				DocumentCount:       d.DocumentCount,
				AvgSimilarity:       d.AvgSimilarity,
				SimilarityThreshold: d.SimilarityThreshold,
				MaxSimilarity:       d.MaxSimilarity,
				ConfidenceScore:     b.Final,
				SamplePosts:         d.SamplePosts,
				Frequency:           d.DocumentCount,
			}
			s.logger.Debug("theme scored",
				zap.String("theme", d.Name),
				zap.Float64("similarity", b.Similarity),
				zap.Float64("quality", b.Quality),
				zap.Float64("keyword", b.Keyword),
				zap.Float64("query", b.Query),
				zap.Float64("confidence", b.Final))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return themes, nil
}

// qualityComponent rewards themes whose document count sits in the optimal
// band. Too few documents means a weak theme; too many means a generic one.
func (s *Scorer) qualityComponent(count, totalDocs int) float64 {
	lower := float64(s.config.OptimalMinDocs)
	if frac := s.config.OptimalMinFraction * float64(totalDocs); frac > lower {
		lower = frac
	}
	upper := s.config.OptimalMaxFraction * float64(totalDocs)

	c := float64(count)
	switch {
	case c < lower:
		return c / lower * s.config.BelowBandScale
	case c > upper:
		excess := (c - upper) / float64(totalDocs)
		return math.Max(s.config.AboveBandFloor, 1-excess*s.config.ExcessPenalty)
	default:
		return 1.0
	}
}

// keywordComponent measures how many external keywords appear in the theme
// text: a verbatim hit counts 1, a token-level hit counts 0.5.
func (s *Scorer) keywordComponent(themeText string, keywords []string) float64 {
	if len(keywords) == 0 {
		return 0
	}
	var matches float64
	for _, kw := range keywords {
		lower := strings.ToLower(kw)
		if strings.Contains(themeText, lower) {
			matches++
			continue
		}
		for _, token := range strings.Fields(lower) {
			if strings.Contains(themeText, token) {
				matches += 0.5
				break
			}
		}
	}
	return math.Min(1, matches/float64(len(keywords)))
}

// queryComponent measures the fraction of significant query words found in
// the theme text.
func (s *Scorer) queryComponent(themeText, refinedQuery string) float64 {
	if refinedQuery == "" {
		return 0
	}
	var words []string
	for _, w := range strings.Fields(strings.ToLower(refinedQuery)) {
		if len(w) > s.config.MinQueryWordLen {
			words = append(words, w)
		}
	}
	if len(words) == 0 {
		return 0
	}
	matches := 0
	for _, w := range words {
		if strings.Contains(themeText, w) {
			matches++
		}
	}
	return float64(matches) / float64(len(words))
}
