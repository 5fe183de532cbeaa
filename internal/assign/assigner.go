// Package assign clusters documents under candidate themes by semantic
// similarity. Assignment is greedy and set-exclusive: themes are processed in
// descending order of their best document match, and a document claimed by one
// theme is invisible to all later themes.
package assign

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/hyperjump/matome/internal/models"
	"github.com/hyperjump/matome/internal/vectormath"
	"github.com/hyperjump/matome/pkg/utils"
)

// Assigner computes document→theme assignments.
type Assigner struct {
	config *Config
	logger *zap.Logger
}

// NewAssigner creates an assigner. A nil config uses the contractual defaults.
func NewAssigner(config *Config, logger *zap.Logger) *Assigner {
	if config == nil {
		config = DefaultConfig()
	}
	config.ApplyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assigner{config: config, logger: logger}
}

// Result holds the drafts and the per-document assignment records of one pass.
type Result struct {
	Drafts      []models.ThemeDraft
	Assignments []models.Assignment
}

// DocumentsAssigned returns the number of documents claimed in this pass.
func (r *Result) DocumentsAssigned() int {
	return len(r.Assignments)
}

// Assign runs one exclusive assignment pass. documents and docEmbeddings are
// parallel slices; draft document indices refer to Document.Index values, so a
// restricted pool (a subset of a corpus) keeps its original indices.
//
// An empty result is a valid outcome: it means no theme attracted enough
// documents, not that the call failed.
func (a *Assigner) Assign(
	documents []models.Document,
	themes []models.CandidateTheme,
	docEmbeddings [][]float32,
	themeEmbeddings [][]float32,
) (*Result, error) {
	if len(documents) == 0 {
		return nil, models.ErrEmptyCorpus
	}
	if len(documents) < 2 {
		return nil, models.ErrTooFewDocuments
	}
	if len(docEmbeddings) != len(documents) {
		return nil, fmt.Errorf("got %d embeddings for %d documents", len(docEmbeddings), len(documents))
	}
	if len(themeEmbeddings) != len(themes) {
		return nil, fmt.Errorf("got %d embeddings for %d themes", len(themeEmbeddings), len(themes))
	}

	matrix, err := vectormath.CosineSimilarityMatrix(docEmbeddings, themeEmbeddings)
	if err != nil {
		return nil, err
	}

	total := len(documents)
	minDocs := utils.RoundInt(a.config.MinDocsFraction * float64(total))
	if minDocs < 1 {
		minDocs = 1
	}
	maxDocs := utils.RoundInt(a.config.MaxDocsFraction * float64(total))
	if maxDocs > a.config.MaxDocsCap {
		maxDocs = a.config.MaxDocsCap
	}
	if maxDocs < 1 {
		maxDocs = 1
	}

	// Themes are processed best-first so high-quality themes claim documents
	// before weaker ones see them. The order is load-bearing.
	order := make([]int, len(themes))
	maxSims := make([]float64, len(themes))
	for t := range themes {
		order[t] = t
		maxSims[t] = vectormath.Max(vectormath.Column(matrix, t))
	}
	sort.SliceStable(order, func(i, j int) bool {
		return maxSims[order[i]] > maxSims[order[j]]
	})

	assigned := make(map[int]bool, total)
	result := &Result{}

	for _, t := range order {
		theme := themes[t]
		column := vectormath.Column(matrix, t)
		threshold := a.qualityThreshold(column, maxSims[t])

		candidates := make([]int, 0, total)
		for pos, sim := range column {
			if sim >= threshold && !assigned[pos] {
				candidates = append(candidates, pos)
			}
		}
		sort.SliceStable(candidates, func(i, j int) bool {
			return column[candidates[i]] > column[candidates[j]]
		})
		if len(candidates) > maxDocs {
			candidates = candidates[:maxDocs]
		}
		if len(candidates) < minDocs {
			a.logger.Debug("theme skipped: below minimum document count",
				zap.String("theme", theme.Name),
				zap.Int("candidates", len(candidates)),
				zap.Int("min_docs", minDocs))
			continue
		}

		sims := make([]float64, len(candidates))
		indices := make([]int, len(candidates))
		var samples []string
		for i, pos := range candidates {
			assigned[pos] = true
			sims[i] = column[pos]
			indices[i] = documents[pos].Index
			if i < a.config.SamplePosts {
				samples = append(samples, documents[pos].Text)
			}
			result.Assignments = append(result.Assignments, models.Assignment{
				DocumentIndex: documents[pos].Index,
				ThemeIndex:    t,
				Similarity:    column[pos],
			})
		}

		result.Drafts = append(result.Drafts, models.ThemeDraft{
			Name:                theme.Name,
			Description:         theme.Description,
			Keywords:            append([]string(nil), theme.Keywords...),
			DocumentIndices:     indices,
			DocumentCount:       len(indices),
			AvgSimilarity:       vectormath.Mean(sims),
			SimilarityThreshold: threshold,
			MaxSimilarity:       maxSims[t],
			SamplePosts:         samples,
		})

		a.logger.Debug("theme assigned",
			zap.String("theme", theme.Name),
			zap.Int("documents", len(indices)),
			zap.Float64("avg_similarity", vectormath.Mean(sims)),
			zap.Float64("threshold", threshold))
	}

	if len(result.Drafts) == 0 {
		a.logger.Info("no themes survived assignment",
			zap.Int("documents", total),
			zap.Int("candidate_themes", len(themes)))
	}
	return result, nil
}

// qualityThreshold picks the minimum similarity a document needs to join the
// theme, based on how well the theme's best document matches.
func (a *Assigner) qualityThreshold(column []float64, maxSim float64) float64 {
	switch {
	case maxSim >= a.config.HighSimilarity:
		return maxOf(a.config.HighFloor, vectormath.Percentile(column, 75)*a.config.StatScale)
	case maxSim >= a.config.MidSimilarity:
		return maxOf(a.config.MidFloor, vectormath.Percentile(column, 50)*a.config.StatScale)
	default:
		return maxOf(a.config.LowFloor, vectormath.Mean(column)*a.config.StatScale)
	}
}

func maxOf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
