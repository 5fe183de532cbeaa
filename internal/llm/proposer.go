package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/matome/internal/models"
)

const proposerSystem = `You are a social-listening analyst. You return only valid JSON, no prose, no code fences.`

// ClaudeProposer implements ThemeProposer on the Anthropic API.
type ClaudeProposer struct {
	client *Client
	logger *zap.Logger
}

// NewClaudeProposer creates a proposer on the given client.
func NewClaudeProposer(client *Client, logger *zap.Logger) *ClaudeProposer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClaudeProposer{client: client, logger: logger}
}

// ProposeThemes asks for candidate themes over a corpus sample.
func (p *ClaudeProposer) ProposeThemes(ctx context.Context, pc PromptContext) ([]models.CandidateTheme, error) {
	maxThemes := pc.MaxThemes
	if maxThemes <= 0 {
		maxThemes = 10
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Identify up to %d distinct themes in the following social media posts.\n", maxThemes)
	if pc.Query != "" {
		fmt.Fprintf(&b, "The analysis focus is: %s\n", pc.Query)
	}
	if len(pc.Keywords) > 0 {
		fmt.Fprintf(&b, "Keywords of interest: %s\n", strings.Join(pc.Keywords, ", "))
	}
	if len(pc.KnownThemes) > 0 {
		b.WriteString("Known themes from previous analyses (reuse names when a theme matches):\n")
		for _, kt := range pc.KnownThemes {
			fmt.Fprintf(&b, "- %s\n", kt)
		}
	}
	b.WriteString("\nPosts:\n")
	for i, doc := range pc.SampleDocs {
		fmt.Fprintf(&b, "%d. %s\n", i+1, truncate(doc, 300))
	}
	b.WriteString(`
Respond with a JSON array only. Each element:
{"name": "...", "description": "...", "keywords": ["...", "..."]}`)

	text, err := p.client.Complete(ctx, proposerSystem, b.String())
	if err != nil {
		return nil, fmt.Errorf("propose themes: %w", err)
	}
	return parseCandidateThemes(text)
}

// ProposeSubThemes asks for 3-5 children of a parent theme.
func (p *ClaudeProposer) ProposeSubThemes(ctx context.Context, parent models.RefinedTheme, request string) ([]models.CandidateTheme, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Break the theme %q into 3 to 5 more specific sub-themes.\n", parent.Name)
	fmt.Fprintf(&b, "Parent description: %s\n", parent.Description)
	if len(parent.Keywords) > 0 {
		fmt.Fprintf(&b, "Parent keywords: %s\n", strings.Join(parent.Keywords, ", "))
	}
	if request != "" {
		fmt.Fprintf(&b, "User guidance: %s\n", request)
	}
	for i, post := range parent.SamplePosts {
		fmt.Fprintf(&b, "Sample post %d: %s\n", i+1, truncate(post, 300))
	}
	b.WriteString(`
Respond with a JSON array only. Each element:
{"name": "...", "description": "...", "keywords": ["...", "..."]}`)

	text, err := p.client.Complete(ctx, proposerSystem, b.String())
	if err != nil {
		return nil, fmt.Errorf("propose sub-themes: %w", err)
	}
	themes, err := parseCandidateThemes(text)
	if err != nil {
		return nil, err
	}
	if len(themes) < 3 || len(themes) > 5 {
		return nil, fmt.Errorf("%w: expected 3-5 sub-themes, got %d", models.ErrInvalidCandidateTheme, len(themes))
	}
	return themes, nil
}

// ProposeTheme asks for one new theme matching a user request.
func (p *ClaudeProposer) ProposeTheme(ctx context.Context, request string, existing []string) (*models.ThemeProposal, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Define a new social-listening theme for this request: %s\n", request)
	if len(existing) > 0 {
		fmt.Fprintf(&b, "Existing themes (the new theme must be distinct): %s\n", strings.Join(existing, "; "))
	}
	b.WriteString(`
Respond with a single JSON object only:
{"name": "...", "description": "...", "keywords": ["...", "..."]}`)

	text, err := p.client.Complete(ctx, proposerSystem, b.String())
	if err != nil {
		return nil, fmt.Errorf("propose theme: %w", err)
	}
	return parseProposal(text)
}

// ReviseTheme asks for a replacement definition of an existing theme.
func (p *ClaudeProposer) ReviseTheme(ctx context.Context, current models.RefinedTheme, request string) (*models.ThemeProposal, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Revise the theme %q per this request: %s\n", current.Name, request)
	fmt.Fprintf(&b, "Current description: %s\n", current.Description)
	if len(current.Keywords) > 0 {
		fmt.Fprintf(&b, "Current keywords: %s\n", strings.Join(current.Keywords, ", "))
	}
	b.WriteString(`
Respond with a single JSON object only:
{"name": "...", "description": "...", "keywords": ["...", "..."]}`)

	text, err := p.client.Complete(ctx, proposerSystem, b.String())
	if err != nil {
		return nil, fmt.Errorf("revise theme: %w", err)
	}
	return parseProposal(text)
}

// parseCandidateThemes parses and validates a JSON array of candidate themes.
func parseCandidateThemes(text string) ([]models.CandidateTheme, error) {
	text = stripCodeBlock(text)
	var themes []models.CandidateTheme
	if err := json.Unmarshal([]byte(text), &themes); err != nil {
		return nil, fmt.Errorf("%w: not a JSON array: %v (raw: %s)", models.ErrInvalidCandidateTheme, err, truncate(text, 200))
	}
	if len(themes) == 0 {
		return nil, fmt.Errorf("%w: empty theme list", models.ErrInvalidCandidateTheme)
	}
	for i := range themes {
		if err := themes[i].Validate(); err != nil {
			return nil, err
		}
	}
	return themes, nil
}

// parseProposal parses and validates a single JSON theme proposal.
func parseProposal(text string) (*models.ThemeProposal, error) {
	text = stripCodeBlock(text)
	var proposal models.ThemeProposal
	if err := json.Unmarshal([]byte(text), &proposal); err != nil {
		return nil, fmt.Errorf("%w: not a JSON object: %v (raw: %s)", models.ErrInvalidProposal, err, truncate(text, 200))
	}
	if err := proposal.Validate(); err != nil {
		return nil, err
	}
	return &proposal, nil
}
