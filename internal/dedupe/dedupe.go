// Package dedupe merges semantically overlapping themes produced by
// independent extraction passes. Overlap is judged by Jaccard similarity over
// name words and over keyword sets.
package dedupe

import (
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/matome/internal/models"
)

// Config holds the merge thresholds and output caps.
type Config struct {
	NameThreshold    float64 `yaml:"name_threshold"`
	KeywordThreshold float64 `yaml:"keyword_threshold"`
	MaxKeywords      int     `yaml:"max_keywords"`
	MaxSamplePosts   int     `yaml:"max_sample_posts"`
}

// DefaultConfig returns the contractual dedupe constants.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero values with the contractual constants.
func (c *Config) ApplyDefaults() {
	if c.NameThreshold == 0 {
		c.NameThreshold = 0.7
	}
	if c.KeywordThreshold == 0 {
		c.KeywordThreshold = 0.5
	}
	if c.MaxKeywords == 0 {
		c.MaxKeywords = 10
	}
	if c.MaxSamplePosts == 0 {
		c.MaxSamplePosts = 3
	}
}

// Deduplicator merges overlapping themes.
type Deduplicator struct {
	config *Config
	logger *zap.Logger
}

// NewDeduplicator creates a deduplicator. A nil config uses the defaults.
func NewDeduplicator(config *Config, logger *zap.Logger) *Deduplicator {
	if config == nil {
		config = DefaultConfig()
	}
	config.ApplyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Deduplicator{config: config, logger: logger}
}

// Deduplicate merges themes whose name similarity exceeds NameThreshold or
// whose keyword similarity exceeds KeywordThreshold. The highest-scored theme
// of each cluster keeps its name; merged themes are emitted in score order.
func (d *Deduplicator) Deduplicate(themes []models.RefinedTheme) []models.RefinedTheme {
	if len(themes) == 0 {
		return nil
	}

	ranked := make([]models.RefinedTheme, len(themes))
	copy(ranked, themes)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].ConfidenceScore > ranked[j].ConfidenceScore
	})

	used := make([]bool, len(ranked))
	var out []models.RefinedTheme

	for i := range ranked {
		if used[i] {
			continue
		}
		used[i] = true
		cluster := []models.RefinedTheme{ranked[i]}

		for j := i + 1; j < len(ranked); j++ {
			if used[j] {
				continue
			}
			nameSim := jaccard(wordSet(ranked[i].Name), wordSet(ranked[j].Name))
			keywordSim := jaccard(keywordSet(ranked[i].Keywords), keywordSet(ranked[j].Keywords))
			// The keyword comparison is inclusive: a pair sharing exactly
			// half its keywords is still a duplicate.
			if nameSim > d.config.NameThreshold || keywordSim >= d.config.KeywordThreshold {
				used[j] = true
				cluster = append(cluster, ranked[j])
				d.logger.Debug("duplicate theme detected",
					zap.String("kept", ranked[i].Name),
					zap.String("merged", ranked[j].Name),
					zap.Float64("name_similarity", nameSim),
					zap.Float64("keyword_similarity", keywordSim))
			}
		}

		if len(cluster) == 1 {
			out = append(out, ranked[i])
			continue
		}
		out = append(out, d.merge(cluster))
	}
	return out
}

// merge collapses a duplicate cluster into one theme. The cluster is ordered
// by score, so cluster[0] supplies the name.
func (d *Deduplicator) merge(cluster []models.RefinedTheme) models.RefinedTheme {
	merged := cluster[0].Clone()

	// Keywords: union, ranked by occurrence count across the cluster,
	// first-seen order breaking ties.
	counts := make(map[string]int)
	var order []string
	for _, t := range cluster {
		for _, kw := range t.Keywords {
			key := strings.ToLower(kw)
			if counts[key] == 0 {
				order = append(order, key)
			}
			counts[key]++
		}
	}
	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})
	if len(order) > d.config.MaxKeywords {
		order = order[:d.config.MaxKeywords]
	}
	merged.Keywords = order

	// Sample posts: union, deduped, first MaxSamplePosts in original order.
	seen := make(map[string]bool)
	var samples []string
	for _, t := range cluster {
		for _, p := range t.SamplePosts {
			if seen[p] {
				continue
			}
			seen[p] = true
			samples = append(samples, p)
		}
	}
	if len(samples) > d.config.MaxSamplePosts {
		samples = samples[:d.config.MaxSamplePosts]
	}
	merged.SamplePosts = samples

	// Document pools are disjoint by construction, so the union preserves
	// the exclusivity invariant.
	var indices []int
	var confidenceSum, weightedSim float64
	frequency := 0
	for _, t := range cluster {
		indices = append(indices, t.DocumentIndices...)
		confidenceSum += t.ConfidenceScore
		weightedSim += t.AvgSimilarity * float64(t.DocumentCount)
		frequency += t.Frequency
	}
	merged.DocumentIndices = indices
	merged.DocumentCount = len(indices)
	merged.ConfidenceScore = confidenceSum / float64(len(cluster))
	if merged.DocumentCount > 0 {
		merged.AvgSimilarity = weightedSim / float64(merged.DocumentCount)
	}
	merged.Frequency = frequency

	if merged.Metadata == nil {
		merged.Metadata = make(map[string]string)
	}
	merged.Metadata["extraction_method"] = "merged"
	return merged
}

func wordSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(s)) {
		set[w] = struct{}{}
	}
	return set
}

func keywordSet(keywords []string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, k := range keywords {
		set[strings.ToLower(k)] = struct{}{}
	}
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for k := range a {
		if _, ok := b[k]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
