package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/matome/internal/models"
)

// Operation names a resolver may return. These are the tagged-union variants
// the mutator dispatches on.
const (
	OpAddTheme       = "add_theme"
	OpRemoveTheme    = "remove_theme"
	OpModifyTheme    = "modify_theme"
	OpCreateSubTheme = "create_sub_theme"
)

const resolverSystem = `You classify theme-editing requests. You return only valid JSON, no prose, no code fences.`

// ClaudeResolver implements TargetResolver on the Anthropic API.
type ClaudeResolver struct {
	client *Client
	logger *zap.Logger
}

// NewClaudeResolver creates a resolver on the given client.
func NewClaudeResolver(client *Client, logger *zap.Logger) *ClaudeResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClaudeResolver{client: client, logger: logger}
}

// ResolveTarget classifies userText into an operation and target theme.
func (r *ClaudeResolver) ResolveTarget(ctx context.Context, userText string, summaries []models.ThemeSummary) (*Resolution, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Classify this theme-editing request: %s\n\nCurrent themes:\n", userText)
	for _, s := range summaries {
		fmt.Fprintf(&b, "- %s: %s\n", s.Name, truncate(s.Description, 150))
	}
	fmt.Fprintf(&b, `
Respond with a single JSON object only:
{"operation": "%s|%s|%s|%s", "target_theme": "<exact theme name or empty for %s>"}`,
		OpAddTheme, OpRemoveTheme, OpModifyTheme, OpCreateSubTheme, OpAddTheme)

	text, err := r.client.Complete(ctx, resolverSystem, b.String())
	if err != nil {
		return nil, fmt.Errorf("resolve target: %w", err)
	}
	return parseResolution(text)
}

func parseResolution(text string) (*Resolution, error) {
	text = stripCodeBlock(text)
	var res Resolution
	if err := json.Unmarshal([]byte(text), &res); err != nil {
		return nil, fmt.Errorf("resolver returned invalid JSON: %w (raw: %s)", err, truncate(text, 200))
	}
	switch res.Operation {
	case OpAddTheme, OpRemoveTheme, OpModifyTheme, OpCreateSubTheme:
	default:
		return nil, fmt.Errorf("resolver returned unknown operation %q", res.Operation)
	}
	return &res, nil
}
