// Package sqlite implements store.Store on an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"lumen-backend/internal/models"
	"lumen-backend/internal/store"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// Compile-time check to ensure SQLiteStore implements store.Store
var _ store.Store = (*SQLiteStore)(nil)

// SQLiteStore keeps each user as a JSON document next to a version column used
// for compare-and-swap updates.
type SQLiteStore struct {
	db *sql.DB
}

// New opens (or creates) the database at dbPath and ensures the schema exists.
func New(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := "file:" + dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One writer at a time keeps SQLITE_BUSY away without retry loops.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	log.Info().Str("path", dbPath).Msg("sqlite store ready")
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS users (
		username   TEXT PRIMARY KEY,
		version    INTEGER NOT NULL,
		data       TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS memory (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		at              INTEGER NOT NULL,
		username        TEXT NOT NULL,
		conversation_id TEXT NOT NULL,
		user_text       TEXT NOT NULL,
		assistant_text  TEXT NOT NULL
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// GetUser retrieves a user by username.
func (s *SQLiteStore) GetUser(ctx context.Context, username string) (*models.User, error) {
	if !store.ValidUsername(username) {
		return nil, store.ErrInvalidKey
	}

	var version int64
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT version, data FROM users WHERE username = ?`, username,
	).Scan(&version, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user row: %w", err)
	}

	var u models.User
	if err := json.Unmarshal([]byte(data), &u); err != nil {
		return nil, fmt.Errorf("decode user %s: %w", username, err)
	}
	u.Version = version
	return &u, nil
}

// CreateUser inserts a new user at version 1.
func (s *SQLiteStore) CreateUser(ctx context.Context, user *models.User) error {
	if !store.ValidUsername(user.Username) {
		return store.ErrInvalidKey
	}
	user.Version = 1
	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("encode user: %w", err)
	}

	now := time.Now().Unix()
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, version, data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(username) DO NOTHING`,
		user.Username, user.Version, string(data), now, now,
	)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return store.ErrAlreadyExists
	}
	return nil
}

// UpdateUser replaces the document if the stored version still equals user.Version.
func (s *SQLiteStore) UpdateUser(ctx context.Context, user *models.User) error {
	if !store.ValidUsername(user.Username) {
		return store.ErrInvalidKey
	}
	next := *user
	next.Version++
	data, err := json.Marshal(&next)
	if err != nil {
		return fmt.Errorf("encode user: %w", err)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE users SET version = ?, data = ?, updated_at = ?
		WHERE username = ? AND version = ?`,
		next.Version, string(data), time.Now().Unix(), user.Username, user.Version,
	)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return s.missOrConflict(ctx, user.Username)
	}
	user.Version = next.Version
	return nil
}

func (s *SQLiteStore) missOrConflict(ctx context.Context, username string) error {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM users WHERE username = ?`, username).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("check user existence: %w", err)
	}
	return store.ErrVersionConflict
}

// AppendMemory inserts one memory log row.
func (s *SQLiteStore) AppendMemory(ctx context.Context, e models.MemoryEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO memory (at, username, conversation_id, user_text, assistant_text)
		VALUES (?, ?, ?, ?, ?)`,
		e.At.UnixNano(), e.Username, e.ConversationID, e.UserText, e.AssistantText,
	)
	if err != nil {
		return fmt.Errorf("insert memory entry: %w", err)
	}
	return nil
}

// ListMemory returns the newest limit entries oldest-first; limit <= 0 returns all.
func (s *SQLiteStore) ListMemory(ctx context.Context, limit int) ([]models.MemoryEntry, error) {
	query := `
		SELECT at, username, conversation_id, user_text, assistant_text FROM (
			SELECT id, at, username, conversation_id, user_text, assistant_text
			FROM memory ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC`
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query memory: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("failed to close memory rows")
		}
	}()

	var entries []models.MemoryEntry
	for rows.Next() {
		var e models.MemoryEntry
		var at int64
		if err := rows.Scan(&at, &e.Username, &e.ConversationID, &e.UserText, &e.AssistantText); err != nil {
			return nil, fmt.Errorf("scan memory row: %w", err)
		}
		e.At = time.Unix(0, at).UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate memory rows: %w", err)
	}
	return entries, nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
