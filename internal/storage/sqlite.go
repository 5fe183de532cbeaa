package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/matome/internal/models"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates a SQLite database at dbPath and initializes
// the schema. Parent directories are created if they do not exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		refined_query TEXT,
		keywords TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_created_at ON sessions(created_at);

	CREATE TABLE IF NOT EXISTS theme_sets (
		session_id TEXT NOT NULL,
		revision INTEGER NOT NULL,
		themes TEXT NOT NULL,
		summary TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (session_id, revision),
		FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
	);
	`
	_, err := db.Exec(schema)
	return err
}

// CreateSession inserts a session.
func (s *SQLiteStore) CreateSession(ctx context.Context, sess *Session) error {
	keywordsJSON, err := json.Marshal(sess.Keywords)
	if err != nil {
		return fmt.Errorf("failed to marshal keywords: %w", err)
	}

	now := time.Now()
	sess.CreatedAt = now
	sess.UpdatedAt = now

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, refined_query, keywords, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		sess.ID, sess.RefinedQuery, string(keywordsJSON), sess.CreatedAt, sess.UpdatedAt,
	)
	return err
}

// GetSession returns a session by ID.
func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*Session, error) {
	var sess Session
	var keywordsJSON string

	err := s.db.QueryRowContext(ctx,
		`SELECT id, refined_query, keywords, created_at, updated_at
		 FROM sessions WHERE id = ?`, id,
	).Scan(&sess.ID, &sess.RefinedQuery, &keywordsJSON, &sess.CreatedAt, &sess.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	if keywordsJSON != "" {
		if err := json.Unmarshal([]byte(keywordsJSON), &sess.Keywords); err != nil {
			return nil, fmt.Errorf("failed to unmarshal keywords: %w", err)
		}
	}
	return &sess, nil
}

// ListSessions returns sessions newest first.
func (s *SQLiteStore) ListSessions(ctx context.Context, offset, limit int) ([]*Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, refined_query, keywords, created_at, updated_at
		 FROM sessions ORDER BY created_at DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Session
	for rows.Next() {
		var sess Session
		var keywordsJSON string
		if err := rows.Scan(&sess.ID, &sess.RefinedQuery, &keywordsJSON, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
			return nil, err
		}
		if keywordsJSON != "" {
			if err := json.Unmarshal([]byte(keywordsJSON), &sess.Keywords); err != nil {
				return nil, fmt.Errorf("failed to unmarshal keywords: %w", err)
			}
		}
		out = append(out, &sess)
	}
	return out, rows.Err()
}

// SaveThemeSet stores a new revision, rejecting stale writers.
func (s *SQLiteStore) SaveThemeSet(ctx context.Context, sessionID string, expectedRevision int64, themes models.ThemeSet, summary models.RunSummary) (int64, error) {
	themesJSON, err := json.Marshal(themes)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal themes: %w", err)
	}
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal summary: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sessions WHERE id = ?`, sessionID).Scan(&exists); err != nil {
		return 0, err
	}
	if exists == 0 {
		return 0, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	var current int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(revision), 0) FROM theme_sets WHERE session_id = ?`, sessionID).Scan(&current); err != nil {
		return 0, err
	}
	if current != expectedRevision {
		return 0, fmt.Errorf("%w: revision %d is behind %d", models.ErrConcurrentModification, expectedRevision, current)
	}

	next := current + 1
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO theme_sets (session_id, revision, themes, summary, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		sessionID, next, string(themesJSON), string(summaryJSON), time.Now()); err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE sessions SET updated_at = ? WHERE id = ?`, time.Now(), sessionID); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return next, nil
}

// GetThemeSet returns the latest revision for the session.
func (s *SQLiteStore) GetThemeSet(ctx context.Context, sessionID string) (*ThemeSetRecord, error) {
	var rec ThemeSetRecord
	var themesJSON, summaryJSON string

	err := s.db.QueryRowContext(ctx,
		`SELECT session_id, revision, themes, summary, created_at
		 FROM theme_sets WHERE session_id = ?
		 ORDER BY revision DESC LIMIT 1`, sessionID,
	).Scan(&rec.SessionID, &rec.Revision, &themesJSON, &summaryJSON, &rec.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s has no theme set", ErrSessionNotFound, sessionID)
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(themesJSON), &rec.Themes); err != nil {
		return nil, fmt.Errorf("failed to unmarshal themes: %w", err)
	}
	if err := json.Unmarshal([]byte(summaryJSON), &rec.Summary); err != nil {
		return nil, fmt.Errorf("failed to unmarshal summary: %w", err)
	}
	return &rec, nil
}

// CountSessions returns the number of sessions.
func (s *SQLiteStore) CountSessions(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions`).Scan(&n)
	return n, err
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
