// Package filestore keeps one JSON document per user under <dir>/users and the
// shared memory log in <dir>/memory.json.
package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"lumen-backend/internal/models"
	"lumen-backend/internal/store"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Compile-time check to ensure FileStore implements store.Store
var _ store.Store = (*FileStore)(nil)

type memoryFile struct {
	History []models.MemoryEntry `json:"history"`
}

// FileStore implements store.Store on the local filesystem. A single mutex
// serializes every read-modify-write, so it is only safe for one process.
type FileStore struct {
	dir    string
	mu     sync.Mutex
	logger zerolog.Logger
}

// New creates the directory layout under dir if needed.
func New(dir string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Join(dir, "users"), 0o755); err != nil {
		return nil, fmt.Errorf("create users directory: %w", err)
	}
	s := &FileStore{
		dir:    dir,
		logger: log.With().Str("component", "filestore").Logger(),
	}
	if _, err := os.Stat(s.memoryPath()); errors.Is(err, os.ErrNotExist) {
		if err := writeJSON(s.memoryPath(), memoryFile{History: []models.MemoryEntry{}}); err != nil {
			return nil, fmt.Errorf("initialize memory log: %w", err)
		}
	}
	return s, nil
}

func (s *FileStore) userPath(username string) string {
	return filepath.Join(s.dir, "users", username+".json")
}

func (s *FileStore) memoryPath() string {
	return filepath.Join(s.dir, "memory.json")
}

// GetUser loads a user document. Returns store.ErrNotFound if no file exists.
func (s *FileStore) GetUser(_ context.Context, username string) (*models.User, error) {
	if !store.ValidUsername(username) {
		return nil, store.ErrInvalidKey
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readUser(username)
}

func (s *FileStore) readUser(username string) (*models.User, error) {
	var u models.User
	if err := readJSON(s.userPath(username), &u); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("read user %s: %w", username, err)
	}
	return &u, nil
}

// CreateUser writes a new user document at version 1.
func (s *FileStore) CreateUser(_ context.Context, user *models.User) error {
	if !store.ValidUsername(user.Username) {
		return store.ErrInvalidKey
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.userPath(user.Username)); err == nil {
		return store.ErrAlreadyExists
	}
	user.Version = 1
	if err := writeJSON(s.userPath(user.Username), user); err != nil {
		return fmt.Errorf("create user %s: %w", user.Username, err)
	}
	s.logger.Debug().Str("username", user.Username).Msg("user created")
	return nil
}

// UpdateUser overwrites the document if its stored version still matches.
func (s *FileStore) UpdateUser(_ context.Context, user *models.User) error {
	if !store.ValidUsername(user.Username) {
		return store.ErrInvalidKey
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.readUser(user.Username)
	if err != nil {
		return err
	}
	if current.Version != user.Version {
		return store.ErrVersionConflict
	}

	next := *user
	next.Version++
	if err := writeJSON(s.userPath(user.Username), &next); err != nil {
		return fmt.Errorf("update user %s: %w", user.Username, err)
	}
	user.Version = next.Version
	return nil
}

// AppendMemory adds one entry to the shared memory log.
func (s *FileStore) AppendMemory(_ context.Context, entry models.MemoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var mem memoryFile
	if err := readJSON(s.memoryPath(), &mem); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("read memory log: %w", err)
	}
	mem.History = append(mem.History, entry)
	if err := writeJSON(s.memoryPath(), mem); err != nil {
		return fmt.Errorf("write memory log: %w", err)
	}
	return nil
}

// ListMemory returns the newest limit entries in chronological order; limit <= 0
// returns everything.
func (s *FileStore) ListMemory(_ context.Context, limit int) ([]models.MemoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var mem memoryFile
	if err := readJSON(s.memoryPath(), &mem); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read memory log: %w", err)
	}
	if limit > 0 && len(mem.History) > limit {
		return mem.History[len(mem.History)-limit:], nil
	}
	return mem.History, nil
}

// Ping checks that the data directory is still reachable.
func (s *FileStore) Ping(_ context.Context) error {
	if _, err := os.Stat(s.dir); err != nil {
		return fmt.Errorf("data directory: %w", err)
	}
	return nil
}

// Close is a no-op; every write is flushed before it returns.
func (s *FileStore) Close() error {
	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// writeJSON replaces path atomically via a temp file in the same directory.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
