package scoring

// Config holds the confidence weights and the document-count optimality band.
// Defaults are the contractual values the selector's thresholds assume.
type Config struct {
	SimilarityWeight float64 `yaml:"similarity_weight"`
	QualityWeight    float64 `yaml:"quality_weight"`
	KeywordWeight    float64 `yaml:"keyword_weight"`
	QueryWeight      float64 `yaml:"query_weight"`

	// Optimal document-count band: [max(OptimalMinDocs, OptimalMinFraction×N),
	// OptimalMaxFraction×N].
	OptimalMinDocs     int     `yaml:"optimal_min_docs"`
	OptimalMinFraction float64 `yaml:"optimal_min_fraction"`
	OptimalMaxFraction float64 `yaml:"optimal_max_fraction"`

	// BelowBandScale shrinks the under-populated ratio; AboveBandFloor and
	// ExcessPenalty shape the over-populated penalty.
	BelowBandScale float64 `yaml:"below_band_scale"`
	AboveBandFloor float64 `yaml:"above_band_floor"`
	ExcessPenalty  float64 `yaml:"excess_penalty"`

	// ThresholdBonus is added when the draft's similarity threshold exceeds
	// BonusThreshold.
	ThresholdBonus float64 `yaml:"threshold_bonus"`
	BonusThreshold float64 `yaml:"bonus_threshold"`

	// MinQueryWordLen filters query words considered for the relevance
	// component (words of this length or shorter are ignored).
	MinQueryWordLen int `yaml:"min_query_word_len"`
}

// DefaultConfig returns the contractual scoring constants.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero values with the contractual constants.
func (c *Config) ApplyDefaults() {
	if c.SimilarityWeight == 0 {
		c.SimilarityWeight = 0.5
	}
	if c.QualityWeight == 0 {
		c.QualityWeight = 0.15
	}
	if c.KeywordWeight == 0 {
		c.KeywordWeight = 0.25
	}
	if c.QueryWeight == 0 {
		c.QueryWeight = 0.1
	}
	if c.OptimalMinDocs == 0 {
		c.OptimalMinDocs = 2
	}
	if c.OptimalMinFraction == 0 {
		c.OptimalMinFraction = 0.02
	}
	if c.OptimalMaxFraction == 0 {
		c.OptimalMaxFraction = 0.35
	}
	if c.BelowBandScale == 0 {
		c.BelowBandScale = 0.8
	}
	if c.AboveBandFloor == 0 {
		c.AboveBandFloor = 0.5
	}
	if c.ExcessPenalty == 0 {
		c.ExcessPenalty = 1.5
	}
	if c.ThresholdBonus == 0 {
		c.ThresholdBonus = 0.08
	}
	if c.BonusThreshold == 0 {
		c.BonusThreshold = 0.3
	}
	if c.MinQueryWordLen == 0 {
		c.MinQueryWordLen = 3
	}
}
