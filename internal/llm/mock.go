package llm

import (
	"context"
	"errors"

	"github.com/hyperjump/matome/internal/models"
)

// MockProposer returns canned themes and proposals for tests.
type MockProposer struct {
	Themes    []models.CandidateTheme
	SubThemes []models.CandidateTheme
	Proposal  *models.ThemeProposal
	Err       error
}

func (m *MockProposer) ProposeThemes(ctx context.Context, pc PromptContext) ([]models.CandidateTheme, error) {
	return m.Themes, m.Err
}

func (m *MockProposer) ProposeSubThemes(ctx context.Context, parent models.RefinedTheme, request string) ([]models.CandidateTheme, error) {
	return m.SubThemes, m.Err
}

func (m *MockProposer) ProposeTheme(ctx context.Context, request string, existing []string) (*models.ThemeProposal, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Proposal, nil
}

func (m *MockProposer) ReviseTheme(ctx context.Context, current models.RefinedTheme, request string) (*models.ThemeProposal, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Proposal, nil
}

// MockQueryBuilder returns a canned query for tests. When Fail is set, it
// behaves like the real builder's degraded path and returns the keyword
// fallback.
type MockQueryBuilder struct {
	Query string
	Fail  bool
}

func (m *MockQueryBuilder) BuildQuery(ctx context.Context, theme models.RefinedTheme) (string, error) {
	if m.Fail {
		return FallbackQuery(theme.Keywords), nil
	}
	return m.Query, nil
}

// MockResolver returns a canned resolution for tests.
type MockResolver struct {
	Resolution *Resolution
	Err        error
}

func (m *MockResolver) ResolveTarget(ctx context.Context, userText string, summaries []models.ThemeSummary) (*Resolution, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	if m.Resolution == nil {
		return nil, errors.New("mock resolver has no resolution")
	}
	return m.Resolution, nil
}
