// Package selection ranks scored themes and truncates them into the final
// theme set, degrading gracefully instead of failing when confidence is low
// across the board.
package selection

import (
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/hyperjump/matome/internal/models"
)

// Config holds the selection bounds and confidence floors.
type Config struct {
	MaxThemes int `yaml:"max_themes"`
	MinThemes int `yaml:"min_themes"`

	// MinConfidenceFloor is the configured floor; the effective floor per run
	// is min(MinConfidenceFloor, max(DynamicFloor, best×DynamicScale)).
	MinConfidenceFloor float64 `yaml:"min_confidence_floor"`
	DynamicFloor       float64 `yaml:"dynamic_floor"`
	DynamicScale       float64 `yaml:"dynamic_scale"`

	// AbsoluteFloor is the last-resort acceptance threshold before returning
	// everything.
	AbsoluteFloor float64 `yaml:"absolute_floor"`
}

// DefaultConfig returns the contractual selection constants.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero values with the contractual constants.
func (c *Config) ApplyDefaults() {
	if c.MaxThemes == 0 {
		c.MaxThemes = 10
	}
	if c.MinThemes == 0 {
		c.MinThemes = 1
	}
	if c.MinConfidenceFloor == 0 {
		c.MinConfidenceFloor = 0.3
	}
	if c.DynamicFloor == 0 {
		c.DynamicFloor = 0.25
	}
	if c.DynamicScale == 0 {
		c.DynamicScale = 0.5
	}
	if c.AbsoluteFloor == 0 {
		c.AbsoluteFloor = 0.15
	}
}

// Selector ranks and truncates scored themes.
type Selector struct {
	config *Config
	logger *zap.Logger
}

// NewSelector creates a selector. A nil config uses the contractual defaults.
func NewSelector(config *Config, logger *zap.Logger) *Selector {
	if config == nil {
		config = DefaultConfig()
	}
	config.ApplyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Selector{config: config, logger: logger}
}

// Select orders themes by descending confidence and keeps at most MaxThemes
// whose confidence clears the effective floor. When fewer than MinThemes
// clear it, selection falls back to the absolute floor, and finally to
// returning everything truncated to MaxThemes. The returned order is the
// canonical theme-set order.
func (s *Selector) Select(themes []models.RefinedTheme) models.ThemeSet {
	if len(themes) == 0 {
		return models.ThemeSet{}
	}

	ranked := make([]models.RefinedTheme, len(themes))
	copy(ranked, themes)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].ConfidenceScore > ranked[j].ConfidenceScore
	})

	best := ranked[0].ConfidenceScore
	dynamic := math.Max(s.config.DynamicFloor, best*s.config.DynamicScale)
	floor := math.Min(s.config.MinConfidenceFloor, dynamic)

	selected := takeAbove(ranked, floor, s.config.MaxThemes)
	if len(selected) < s.config.MinThemes {
		s.logger.Debug("falling back to absolute confidence floor",
			zap.Float64("floor", floor),
			zap.Int("survivors", len(selected)))
		selected = takeAbove(ranked, s.config.AbsoluteFloor, s.config.MaxThemes)
	}
	if len(selected) == 0 {
		s.logger.Warn("no theme cleared any confidence floor; returning all ranked themes",
			zap.Int("themes", len(ranked)))
		selected = ranked
		if len(selected) > s.config.MaxThemes {
			selected = selected[:s.config.MaxThemes]
		}
	}

	out := make(models.ThemeSet, len(selected))
	copy(out, selected)
	return out
}

func takeAbove(ranked []models.RefinedTheme, floor float64, limit int) []models.RefinedTheme {
	var kept []models.RefinedTheme
	for _, t := range ranked {
		if t.ConfidenceScore >= floor {
			kept = append(kept, t)
		}
	}
	if len(kept) > limit {
		kept = kept[:limit]
	}
	return kept
}
