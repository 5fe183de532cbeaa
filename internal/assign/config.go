package assign

// Config holds the assignment thresholds and document bounds. The defaults are
// the contract the rest of the pipeline is tuned against; they are exposed as
// configuration because they are empirically chosen, not derived.
type Config struct {
	// HighSimilarity and MidSimilarity split themes into threshold branches
	// by their column-max similarity.
	HighSimilarity float64 `yaml:"high_similarity"`
	MidSimilarity  float64 `yaml:"mid_similarity"`

	// Per-branch quality-threshold floors.
	HighFloor float64 `yaml:"high_floor"`
	MidFloor  float64 `yaml:"mid_floor"`
	LowFloor  float64 `yaml:"low_floor"`

	// StatScale multiplies the per-branch distribution statistic (p75, p50 or
	// mean) before the floor is applied.
	StatScale float64 `yaml:"stat_scale"`

	// Document bounds as fractions of corpus size.
	MinDocsFraction float64 `yaml:"min_docs_fraction"`
	MaxDocsFraction float64 `yaml:"max_docs_fraction"`
	MaxDocsCap      int     `yaml:"max_docs_cap"`

	// SamplePosts is how many selected document texts are kept per draft.
	SamplePosts int `yaml:"sample_posts"`
}

// DefaultConfig returns the contractual assignment constants.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero values with the contractual constants.
func (c *Config) ApplyDefaults() {
	if c.HighSimilarity == 0 {
		c.HighSimilarity = 0.6
	}
	if c.MidSimilarity == 0 {
		c.MidSimilarity = 0.4
	}
	if c.HighFloor == 0 {
		c.HighFloor = 0.35
	}
	if c.MidFloor == 0 {
		c.MidFloor = 0.25
	}
	if c.LowFloor == 0 {
		c.LowFloor = 0.2
	}
	if c.StatScale == 0 {
		c.StatScale = 0.8
	}
	if c.MinDocsFraction == 0 {
		c.MinDocsFraction = 0.01
	}
	if c.MaxDocsFraction == 0 {
		c.MaxDocsFraction = 0.30
	}
	if c.MaxDocsCap == 0 {
		c.MaxDocsCap = 1000
	}
	if c.SamplePosts == 0 {
		c.SamplePosts = 3
	}
}
