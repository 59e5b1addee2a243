package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore is a SQLite-backed Store.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) the database at dbPath and initializes
// the schema.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS interactions (
		id TEXT PRIMARY KEY,
		request_id TEXT NOT NULL,
		subject TEXT NOT NULL,
		model TEXT,
		temperature REAL NOT NULL,
		message_count INTEGER NOT NULL,
		prompt_tokens INTEGER NOT NULL,
		estimated INTEGER NOT NULL DEFAULT 0,
		status INTEGER NOT NULL,
		duration_ns INTEGER NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`)
	return err
}

// Record inserts one interaction row.
func (s *SQLiteStore) Record(ctx context.Context, in Interaction) error {
	if in.CreatedAt.IsZero() {
		in.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO interactions
			(id, request_id, subject, model, temperature, message_count,
			 prompt_tokens, estimated, status, duration_ns, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		in.ID, in.RequestID, in.Subject, in.Model, in.Temperature,
		in.MessageCount, in.PromptTokens, boolToInt(in.Estimated),
		in.Status, in.Duration.Nanoseconds(), in.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record interaction: %w", err)
	}
	return nil
}

// Recent returns the most recent interactions, newest first.
func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]Interaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, request_id, subject, model, temperature, message_count,
			prompt_tokens, estimated, status, duration_ns, created_at
		 FROM interactions ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query interactions: %w", err)
	}
	defer rows.Close()

	var out []Interaction
	for rows.Next() {
		var in Interaction
		var estimated int
		var durationNS int64
		if err := rows.Scan(&in.ID, &in.RequestID, &in.Subject, &in.Model,
			&in.Temperature, &in.MessageCount, &in.PromptTokens, &estimated,
			&in.Status, &durationNS, &in.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan interaction: %w", err)
		}
		in.Estimated = estimated != 0
		in.Duration = time.Duration(durationNS)
		out = append(out, in)
	}
	return out, rows.Err()
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
