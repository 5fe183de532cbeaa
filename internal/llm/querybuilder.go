package llm

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/matome/internal/models"
)

const queryBuilderSystem = `You write boolean queries for social-listening platforms. You return only the query string, nothing else.`

// ClaudeQueryBuilder implements QueryBuilder on the Anthropic API.
type ClaudeQueryBuilder struct {
	client *Client
	logger *zap.Logger
}

// NewClaudeQueryBuilder creates a query builder on the given client.
func NewClaudeQueryBuilder(client *Client, logger *zap.Logger) *ClaudeQueryBuilder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClaudeQueryBuilder{client: client, logger: logger}
}

// BuildQuery asks for a boolean query covering the theme. On any failure the
// keyword fallback is returned with a nil error, since query building must
// never fail a run.
func (q *ClaudeQueryBuilder) BuildQuery(ctx context.Context, theme models.RefinedTheme) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Write a boolean search query (terms joined by AND/OR, quotes for phrases) for the theme %q.\n", theme.Name)
	fmt.Fprintf(&b, "Description: %s\n", theme.Description)
	if len(theme.Keywords) > 0 {
		fmt.Fprintf(&b, "Keywords: %s\n", strings.Join(theme.Keywords, ", "))
	}

	text, err := q.client.Complete(ctx, queryBuilderSystem, b.String())
	if err != nil {
		q.logger.Warn("query builder failed, using keyword fallback",
			zap.String("theme", theme.Name),
			zap.Error(err))
		return FallbackQuery(theme.Keywords), nil
	}
	query := strings.TrimSpace(stripCodeBlock(text))
	if query == "" {
		return FallbackQuery(theme.Keywords), nil
	}
	return query, nil
}

// FallbackQuery builds a simple OR query over the first keywords. It returns
// the empty string when no keywords exist.
func FallbackQuery(keywords []string) string {
	if len(keywords) == 0 {
		return ""
	}
	if len(keywords) > 5 {
		keywords = keywords[:5]
	}
	quoted := make([]string, len(keywords))
	for i, kw := range keywords {
		quoted[i] = `"` + kw + `"`
	}
	return strings.Join(quoted, " OR ")
}
