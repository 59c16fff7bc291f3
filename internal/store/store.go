package store

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"lumen-backend/internal/models"
)

var (
	// ErrNotFound is returned when a specific record is not found.
	ErrNotFound = errors.New("record not found")
	// ErrAlreadyExists is returned by CreateUser when the username is taken.
	ErrAlreadyExists = errors.New("record already exists")
	// ErrVersionConflict is returned by UpdateUser when the stored version moved on
	// since the record was read.
	ErrVersionConflict = errors.New("record version conflict")
	// ErrInvalidKey is returned for usernames that cannot be used as a storage key.
	ErrInvalidKey = errors.New("invalid username")
)

// Store persists user records and the shared memory log.
//
// Users are read and written whole. UpdateUser is a compare-and-swap on
// User.Version: it succeeds only if the stored version equals user.Version, and on
// success it increments user.Version in place. CreateUser stores the record at
// Version 1.
type Store interface {
	GetUser(ctx context.Context, username string) (*models.User, error)
	CreateUser(ctx context.Context, user *models.User) error
	UpdateUser(ctx context.Context, user *models.User) error

	AppendMemory(ctx context.Context, entry models.MemoryEntry) error
	// ListMemory reads the memory log back, newest limit entries oldest-first.
	// No endpoint exposes it because the log spans every user; it serves
	// operators and tests.
	ListMemory(ctx context.Context, limit int) ([]models.MemoryEntry, error)

	// Ping backs the /health endpoint.
	Ping(ctx context.Context) error
	Close() error
}

// NormalizeUsername is applied to every username received from a client before it
// is validated or used as a key, so login and session checks agree on the key.
func NormalizeUsername(name string) string {
	return strings.TrimSpace(name)
}

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{1,64}$`)

// ValidUsername reports whether name is usable as a storage key. Names made only
// of dots are rejected so they can never address a parent directory.
func ValidUsername(name string) bool {
	if !usernamePattern.MatchString(name) {
		return false
	}
	for _, r := range name {
		if r != '.' {
			return true
		}
	}
	return false
}
