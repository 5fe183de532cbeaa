// Package storage defines persistence for analysis sessions and their theme
// sets. Theme sets are revisioned: every save bumps the revision, and a save
// against a stale revision is rejected, which serializes writers per session.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/hyperjump/matome/internal/models"
)

// ErrSessionNotFound is returned when a session id does not exist.
var ErrSessionNotFound = errors.New("session not found")

// Session is one analysis conversation over a corpus.
type Session struct {
	ID           string    `json:"id"`
	RefinedQuery string    `json:"refined_query,omitempty"`
	Keywords     []string  `json:"keywords,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ThemeSetRecord is a stored theme set with its revision and run summary.
type ThemeSetRecord struct {
	SessionID string            `json:"session_id"`
	Revision  int64             `json:"revision"`
	Themes    models.ThemeSet   `json:"themes"`
	Summary   models.RunSummary `json:"summary"`
	CreatedAt time.Time         `json:"created_at"`
}

// Store persists sessions and theme sets.
type Store interface {
	CreateSession(ctx context.Context, s *Session) error
	GetSession(ctx context.Context, id string) (*Session, error)
	ListSessions(ctx context.Context, offset, limit int) ([]*Session, error)

	// SaveThemeSet stores a new revision of the session's theme set.
	// expectedRevision must match the current latest revision (0 for the
	// first save); a mismatch returns models.ErrConcurrentModification and
	// stores nothing.
	SaveThemeSet(ctx context.Context, sessionID string, expectedRevision int64, themes models.ThemeSet, summary models.RunSummary) (int64, error)
	// GetThemeSet returns the latest revision for the session.
	GetThemeSet(ctx context.Context, sessionID string) (*ThemeSetRecord, error)

	CountSessions(ctx context.Context) (int64, error)
	Close() error
}
