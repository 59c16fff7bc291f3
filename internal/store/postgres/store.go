package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"lumen-backend/internal/models"
	"lumen-backend/internal/store"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// Compile-time check to ensure PostgresStore implements store.Store
var _ store.Store = (*PostgresStore)(nil)

type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore wraps an existing pool. Call Migrate before first use.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
    username   TEXT PRIMARY KEY,
    version    BIGINT NOT NULL,
    data       JSONB NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS memory (
    id              BIGSERIAL PRIMARY KEY,
    at              TIMESTAMPTZ NOT NULL,
    username        TEXT NOT NULL,
    conversation_id TEXT NOT NULL,
    user_text       TEXT NOT NULL,
    assistant_text  TEXT NOT NULL
);
`

// Migrate creates the tables if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("database error creating schema: %w", err)
	}
	return nil
}

const getUser = `-- name: GetUser :one
SELECT version, data FROM users WHERE username = $1;
`

// GetUser retrieves a user by username.
// Returns store.ErrNotFound if the user does not exist.
func (s *PostgresStore) GetUser(ctx context.Context, username string) (*models.User, error) {
	if !store.ValidUsername(username) {
		return nil, store.ErrInvalidKey
	}

	var version int64
	var data []byte
	err := s.db.QueryRow(ctx, getUser, username).Scan(&version, &data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		log.Error().Err(err).Str("username", username).Msg("[PostgresStore] GetUser: query failed")
		return nil, fmt.Errorf("database error fetching user: %w", err)
	}

	var u models.User
	if err := json.Unmarshal(data, &u); err != nil {
		return nil, fmt.Errorf("decode user %s: %w", username, err)
	}
	u.Version = version
	return &u, nil
}

const createUser = `-- name: CreateUser :exec
INSERT INTO users (username, version, data)
VALUES ($1, $2, $3)
ON CONFLICT (username) DO NOTHING;
`

// CreateUser inserts a new user record at version 1.
func (s *PostgresStore) CreateUser(ctx context.Context, user *models.User) error {
	if !store.ValidUsername(user.Username) {
		return store.ErrInvalidKey
	}
	user.Version = 1
	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("encode user: %w", err)
	}

	tag, err := s.db.Exec(ctx, createUser, user.Username, user.Version, data)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			log.Error().Str("code", pgErr.Code).Str("detail", pgErr.Detail).Str("username", user.Username).
				Msg("[PostgresStore] CreateUser: PostgreSQL error")
		}
		return fmt.Errorf("database error creating user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrAlreadyExists
	}
	return nil
}

const updateUser = `-- name: UpdateUser :exec
UPDATE users
SET version = $1, data = $2, updated_at = $3
WHERE username = $4 AND version = $5;
`

// UpdateUser replaces the record if the stored version still equals user.Version.
func (s *PostgresStore) UpdateUser(ctx context.Context, user *models.User) error {
	if !store.ValidUsername(user.Username) {
		return store.ErrInvalidKey
	}
	next := *user
	next.Version++
	data, err := json.Marshal(&next)
	if err != nil {
		return fmt.Errorf("encode user: %w", err)
	}

	tag, err := s.db.Exec(ctx, updateUser, next.Version, data, time.Now(), user.Username, user.Version)
	if err != nil {
		return fmt.Errorf("database error updating user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE username = $1)`, user.Username).Scan(&exists)
		if err != nil {
			return fmt.Errorf("database error checking user: %w", err)
		}
		if !exists {
			return store.ErrNotFound
		}
		return store.ErrVersionConflict
	}
	user.Version = next.Version
	return nil
}

const appendMemory = `-- name: AppendMemory :exec
INSERT INTO memory (at, username, conversation_id, user_text, assistant_text)
VALUES ($1, $2, $3, $4, $5);
`

// AppendMemory inserts one memory log row.
func (s *PostgresStore) AppendMemory(ctx context.Context, e models.MemoryEntry) error {
	if _, err := s.db.Exec(ctx, appendMemory, e.At, e.Username, e.ConversationID, e.UserText, e.AssistantText); err != nil {
		return fmt.Errorf("database error appending memory: %w", err)
	}
	return nil
}

const listMemory = `-- name: ListMemory :many
SELECT at, username, conversation_id, user_text, assistant_text FROM (
    SELECT id, at, username, conversation_id, user_text, assistant_text
    FROM memory ORDER BY id DESC LIMIT $1
) recent ORDER BY id ASC;
`

// ListMemory returns the newest limit entries oldest-first; limit <= 0 returns all.
func (s *PostgresStore) ListMemory(ctx context.Context, limit int) ([]models.MemoryEntry, error) {
	var lim *int
	if limit > 0 {
		lim = &limit // NULL means no limit
	}

	rows, err := s.db.Query(ctx, listMemory, lim)
	if err != nil {
		return nil, fmt.Errorf("error querying memory: %w", err)
	}
	defer rows.Close()

	var entries []models.MemoryEntry
	for rows.Next() {
		var e models.MemoryEntry
		if err := rows.Scan(&e.At, &e.Username, &e.ConversationID, &e.UserText, &e.AssistantText); err != nil {
			return nil, fmt.Errorf("error scanning memory row: %w", err)
		}
		e.At = e.At.UTC()
		entries = append(entries, e)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating memory rows: %w", err)
	}
	return entries, nil
}

// Ping verifies database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	s.db.Close()
	return nil
}
