package models

import (
	"fmt"
	"strings"
)

// CandidateTheme is an unscored theme proposal from the theme proposer.
// Input-only; never mutated by the engine.
type CandidateTheme struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Keywords    []string `json:"keywords,omitempty"`
}

// Validate checks that a candidate theme is usable.
func (c *CandidateTheme) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidCandidateTheme)
	}
	if strings.TrimSpace(c.Description) == "" {
		return fmt.Errorf("%w: theme %q has no description", ErrInvalidCandidateTheme, c.Name)
	}
	return nil
}

// EmbeddingText returns the text that is embedded to represent this theme.
func (c *CandidateTheme) EmbeddingText() string {
	return c.Name + ": " + c.Description
}

// ThemeProposal is a replacement or new theme supplied for a mutation.
type ThemeProposal struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Keywords    []string `json:"keywords,omitempty"`
}

// Validate checks that a proposal is usable for add/modify operations.
func (p *ThemeProposal) Validate() error {
	if p == nil {
		return fmt.Errorf("%w: nil proposal", ErrInvalidProposal)
	}
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidProposal)
	}
	if strings.TrimSpace(p.Description) == "" {
		return fmt.Errorf("%w: proposal %q has no description", ErrInvalidProposal, p.Name)
	}
	return nil
}

// ThemeDraft is the output of the assigner before confidence scoring: a theme
// with its claimed documents and the similarity statistics of the claim.
type ThemeDraft struct {
	Name                string   `json:"name"`
	Description         string   `json:"description"`
	Keywords            []string `json:"keywords,omitempty"`
	DocumentIndices     []int    `json:"document_indices"`
	DocumentCount       int      `json:"document_count"`
	AvgSimilarity       float64  `json:"avg_similarity"`
	SimilarityThreshold float64  `json:"similarity_threshold"`
	MaxSimilarity       float64  `json:"max_similarity"`
	SamplePosts         []string `json:"sample_posts,omitempty"`
}

// RefinedTheme is a scored, selected theme. Created by the assigner and
// scorer, mutated in place only by the mutator's modify operation.
type RefinedTheme struct {
	Name                string            `json:"name"`
	Description         string            `json:"description"`
	Keywords            []string          `json:"keywords,omitempty"`
	DocumentIndices     []int             `json:"document_indices"`
	DocumentCount       int               `json:"document_count"`
	AvgSimilarity       float64           `json:"avg_similarity"`
	SimilarityThreshold float64           `json:"similarity_threshold"`
	MaxSimilarity       float64           `json:"max_similarity"`
	ConfidenceScore     float64           `json:"confidence_score"`
	BooleanQuery        string            `json:"boolean_query,omitempty"`
	SamplePosts         []string          `json:"sample_posts,omitempty"`
	Frequency           int               `json:"frequency,omitempty"`
	IsSubTheme          bool              `json:"is_sub_theme,omitempty"`
	ParentTheme         string            `json:"parent_theme,omitempty"`
	HasSubThemes        bool              `json:"has_sub_themes,omitempty"`
	Metadata            map[string]string `json:"metadata,omitempty"`
}

// Clone returns a deep copy of the theme.
func (t *RefinedTheme) Clone() RefinedTheme {
	c := *t
	c.Keywords = append([]string(nil), t.Keywords...)
	c.DocumentIndices = append([]int(nil), t.DocumentIndices...)
	c.SamplePosts = append([]string(nil), t.SamplePosts...)
	if t.Metadata != nil {
		c.Metadata = make(map[string]string, len(t.Metadata))
		for k, v := range t.Metadata {
			c.Metadata[k] = v
		}
	}
	return c
}

// Summary returns the name/description pair used for target disambiguation.
func (t *RefinedTheme) Summary() ThemeSummary {
	return ThemeSummary{Name: t.Name, Description: t.Description}
}

// ThemeSummary is a compact view of a theme handed to the target resolver.
type ThemeSummary struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ThemeSet is an ordered sequence of refined themes. Order is selection rank,
// highest confidence first. It is the unit exposed to callers and the unit the
// mutator operates on.
type ThemeSet []RefinedTheme

// Clone returns a deep copy of the set.
func (s ThemeSet) Clone() ThemeSet {
	out := make(ThemeSet, len(s))
	for i := range s {
		out[i] = s[i].Clone()
	}
	return out
}

// FindByName returns the index of the theme matching name, preferring an exact
// case-insensitive match, then a substring match. Returns -1 when not found.
func (s ThemeSet) FindByName(name string) int {
	if strings.TrimSpace(name) == "" {
		return -1
	}
	lower := strings.ToLower(name)
	for i := range s {
		if strings.ToLower(s[i].Name) == lower {
			return i
		}
	}
	for i := range s {
		if strings.Contains(strings.ToLower(s[i].Name), lower) {
			return i
		}
	}
	return -1
}

// Summaries returns the name/description pairs for all themes in order.
func (s ThemeSet) Summaries() []ThemeSummary {
	out := make([]ThemeSummary, len(s))
	for i := range s {
		out[i] = s[i].Summary()
	}
	return out
}

// AssignedIndices returns the union of all document indices claimed by themes
// in the set.
func (s ThemeSet) AssignedIndices() map[int]bool {
	assigned := make(map[int]bool)
	for i := range s {
		for _, idx := range s[i].DocumentIndices {
			assigned[idx] = true
		}
	}
	return assigned
}

// RunSummary describes one pipeline run over a corpus.
type RunSummary struct {
	TotalDocuments    int     `json:"total_documents"`
	DocumentsAssigned int     `json:"documents_assigned"`
	ThemesConsidered  int     `json:"themes_considered"`
	ThemesSelected    int     `json:"themes_selected"`
	AverageConfidence float64 `json:"average_confidence"`
	NoThemesReason    string  `json:"no_themes_reason,omitempty"`
}
