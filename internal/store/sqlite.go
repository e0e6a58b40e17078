// ABOUTME: SQLite implementation of TokenCache using modernc.org/sqlite
// ABOUTME: Creates the schema on open and optionally seals token values at rest

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements TokenCache using SQLite
type SQLiteStore struct {
	db     *sql.DB
	sealer *sealer
	logger *slog.Logger
}

// Option configures a SQLiteStore.
type Option func(*SQLiteStore)

// WithSecret seals token values with a key derived from secret.
// An empty secret leaves values in plain text.
func WithSecret(secret string) Option {
	return func(s *SQLiteStore) {
		if secret != "" {
			s.sealer = newSealer(secret)
		}
	}
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string, opts ...Option) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path, "sealed", s.sealer != nil)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS session_tokens (
			account    TEXT PRIMARY KEY,
			token      TEXT NOT NULL,
			sealed     INTEGER NOT NULL DEFAULT 0,
			updated_at TEXT NOT NULL
		);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// GetToken returns the cached token for account.
// Returns ErrNotFound if nothing is cached.
func (s *SQLiteStore) GetToken(ctx context.Context, account string) (string, error) {
	var value string
	var sealed bool
	err := s.db.QueryRowContext(ctx,
		`SELECT token, sealed FROM session_tokens WHERE account = ?`, account,
	).Scan(&value, &sealed)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("querying token: %w", err)
	}
	return s.open(value, sealed)
}

// PutToken inserts or replaces the token for account.
func (s *SQLiteStore) PutToken(ctx context.Context, account, token string) error {
	value, sealed, err := s.seal(token)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO session_tokens (account, token, sealed, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(account) DO UPDATE SET
			token = excluded.token,
			sealed = excluded.sealed,
			updated_at = excluded.updated_at
	`, account, value, sealed, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("upserting token: %w", err)
	}

	s.logger.Debug("cached session token", "account", account)
	return nil
}

// DeleteToken removes the cached token for account.
// Returns ErrNotFound if nothing was cached.
func (s *SQLiteStore) DeleteToken(ctx context.Context, account string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM session_tokens WHERE account = ?`, account)
	if err != nil {
		return fmt.Errorf("deleting token: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListTokens returns every cached token ordered by account.
func (s *SQLiteStore) ListTokens(ctx context.Context) ([]*CachedToken, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT account, token, sealed, updated_at FROM session_tokens ORDER BY account`)
	if err != nil {
		return nil, fmt.Errorf("querying tokens: %w", err)
	}
	defer rows.Close()

	var tokens []*CachedToken
	for rows.Next() {
		var (
			t         CachedToken
			value     string
			sealed    bool
			updatedAt string
		)
		if err := rows.Scan(&t.Account, &value, &sealed, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning token: %w", err)
		}
		if t.Token, err = s.open(value, sealed); err != nil {
			return nil, fmt.Errorf("account %s: %w", t.Account, err)
		}
		if parsed, err := time.Parse(time.RFC3339, updatedAt); err != nil {
			s.logger.Warn("failed to parse token updated_at", "account", t.Account, "error", err)
		} else {
			t.UpdatedAt = parsed
		}
		tokens = append(tokens, &t)
	}
	return tokens, rows.Err()
}

func (s *SQLiteStore) seal(token string) (string, bool, error) {
	if s.sealer == nil {
		return token, false, nil
	}
	value, err := s.sealer.seal(token)
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (s *SQLiteStore) open(value string, sealed bool) (string, error) {
	if !sealed {
		return value, nil
	}
	if s.sealer == nil {
		return "", ErrSealed
	}
	return s.sealer.open(value)
}

// Ensure SQLiteStore implements TokenCache.
var _ TokenCache = (*SQLiteStore)(nil)
