package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	"github.com/adi-253/parley/backend/internal/models"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// SQLiteStore persists the history log in a SQLite database.
// Uses WAL mode so history reads do not block appends.
type SQLiteStore struct {
	db    *sql.DB
	clock *Clock
}

// OpenSQLite creates or opens a SQLite database at the given path and
// applies the schema. Safe to call on an existing database.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	s := &SQLiteStore{db: db, clock: NewClock()}
	var latest sql.NullInt64
	if err := db.QueryRow(`SELECT MAX(ts) FROM messages`).Scan(&latest); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to read latest timestamp: %w", err)
	}
	if latest.Valid {
		s.clock.Observe(time.Unix(0, latest.Int64))
	}
	return s, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Append inserts a message row.
func (s *SQLiteStore) Append(ctx context.Context, msg models.Message) (models.Message, error) {
	msg.ID = uuid.New().String()
	msg.Timestamp = s.clock.Next()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, sender, body, ts) VALUES (?, ?, ?, ?)`,
		msg.ID, msg.Sender, msg.Body, msg.Timestamp.UnixNano(),
	)
	if err != nil {
		return models.Message{}, fmt.Errorf("insert message: %w", err)
	}
	return msg, nil
}

// Recent returns up to limit rows ordered by timestamp descending.
func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]models.Message, error) {
	messages := make([]models.Message, 0)
	if limit <= 0 {
		return messages, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, sender, body, ts FROM messages ORDER BY ts DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var msg models.Message
		var ts int64
		if err := rows.Scan(&msg.ID, &msg.Sender, &msg.Body, &ts); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.Timestamp = time.Unix(0, ts).UTC()
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return messages, nil
}

// Empty reports whether the messages table has no row.
func (s *SQLiteStore) Empty(ctx context.Context) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM messages)`).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check messages: %w", err)
	}
	return !exists, nil
}
