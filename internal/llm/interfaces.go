package llm

import (
	"context"

	"github.com/hyperjump/matome/internal/models"
)

// PromptContext carries everything the proposer may use to ground candidate
// themes: the refined query, external keywords, a sample of the corpus, and
// summaries of similar known themes from the knowledge base.
type PromptContext struct {
	Query       string
	Keywords    []string
	SampleDocs  []string
	KnownThemes []string
	MaxThemes   int
}

// ThemeProposer generates candidate themes and mutation proposals. Malformed
// output is rejected with models.ErrInvalidCandidateTheme or
// models.ErrInvalidProposal, never guessed at.
type ThemeProposer interface {
	// ProposeThemes returns candidate themes for a fresh analysis run.
	ProposeThemes(ctx context.Context, pc PromptContext) ([]models.CandidateTheme, error)
	// ProposeSubThemes returns 3-5 child theme drafts for a parent.
	ProposeSubThemes(ctx context.Context, parent models.RefinedTheme, request string) ([]models.CandidateTheme, error)
	// ProposeTheme returns one new theme for an add operation.
	ProposeTheme(ctx context.Context, request string, existing []string) (*models.ThemeProposal, error)
	// ReviseTheme returns a replacement definition for a modify operation.
	ReviseTheme(ctx context.Context, current models.RefinedTheme, request string) (*models.ThemeProposal, error)
}

// QueryBuilder turns a refined theme into a boolean listening query. Failures
// degrade to an empty query at the call site; they are never fatal.
type QueryBuilder interface {
	BuildQuery(ctx context.Context, theme models.RefinedTheme) (string, error)
}

// Resolution is a target resolver's reading of a user request.
type Resolution struct {
	Operation   string `json:"operation"`
	TargetTheme string `json:"target_theme,omitempty"`
}

// TargetResolver classifies a natural-language mutation request into an
// operation and, when one is needed, a target theme name.
type TargetResolver interface {
	ResolveTarget(ctx context.Context, userText string, summaries []models.ThemeSummary) (*Resolution, error)
}
