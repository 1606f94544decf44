package authclient

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Tokens is the durable part of a session.
type Tokens struct {
	AccessToken  string
	RefreshToken string
}

// Store persists the token pair across client restarts.
type Store interface {
	// Load returns the zero Tokens when nothing is stored.
	Load(ctx context.Context) (Tokens, error)
	Save(ctx context.Context, t Tokens) error
	Clear(ctx context.Context) error
}

type nopStore struct{}

func (nopStore) Load(context.Context) (Tokens, error) { return Tokens{}, nil }
func (nopStore) Save(context.Context, Tokens) error    { return nil }
func (nopStore) Clear(context.Context) error           { return nil }

const (
	keyAccessToken  = "access_token"
	keyRefreshToken = "refresh_token"
)

const sessionSchema = `
CREATE TABLE IF NOT EXISTS session (
  key   TEXT PRIMARY KEY,
  value TEXT NOT NULL
);`

// SQLiteStore keeps the tokens in a key/value table.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (creating if needed) the database at dsn. ":memory:"
// gives a private in-memory database.
func OpenSQLiteStore(ctx context.Context, dsn string) (*SQLiteStore, error) {
	if dsn != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o700); err != nil {
			return nil, fmt.Errorf("create session dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open session db: %w", err)
	}
	// every new connection to :memory: is a new empty database
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sessionSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create session table: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Load(ctx context.Context) (Tokens, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM session WHERE key IN (?, ?)`, keyAccessToken, keyRefreshToken)
	if err != nil {
		return Tokens{}, fmt.Errorf("load session: %w", err)
	}
	defer rows.Close()

	var t Tokens
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return Tokens{}, fmt.Errorf("scan session row: %w", err)
		}
		switch key {
		case keyAccessToken:
			t.AccessToken = value
		case keyRefreshToken:
			t.RefreshToken = value
		}
	}
	if err := rows.Err(); err != nil {
		return Tokens{}, fmt.Errorf("iterate session rows: %w", err)
	}
	return t, nil
}

// Save writes both tokens in one transaction.
func (s *SQLiteStore) Save(ctx context.Context, t Tokens) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save session: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, kv := range [][2]string{{keyAccessToken, t.AccessToken}, {keyRefreshToken, t.RefreshToken}} {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO session (key, value) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value
		`, kv[0], kv[1])
		if err != nil {
			return fmt.Errorf("save session[%s]: %w", kv[0], err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM session`); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
