// Package redisstore stores user records as JSON strings and the memory log as a list.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"lumen-backend/internal/models"
	"lumen-backend/internal/store"

	"github.com/redis/go-redis/v9"
)

const (
	userKeyPrefix = "lumen:user:"
	memoryKey     = "lumen:memory"
)

var _ store.Store = (*RedisStore)(nil)

// RedisStore implements store.Store with optimistic locking via WATCH/MULTI/EXEC.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Open parses a redis:// URL and returns a connected store.
func Open(ctx context.Context, url string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedisStore(client), nil
}

func (s *RedisStore) GetUser(ctx context.Context, username string) (*models.User, error) {
	if !store.ValidUsername(username) {
		return nil, store.ErrInvalidKey
	}
	val, err := s.client.Get(ctx, s.key(username)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get user: %w", err)
	}

	var u models.User
	if err := json.Unmarshal([]byte(val), &u); err != nil {
		return nil, fmt.Errorf("decode user %s: %w", username, err)
	}
	return &u, nil
}

// CreateUser stores the record at Version 1 with SETNX.
func (s *RedisStore) CreateUser(ctx context.Context, user *models.User) error {
	if !store.ValidUsername(user.Username) {
		return store.ErrInvalidKey
	}
	user.Version = 1
	val, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("encode user: %w", err)
	}

	ok, err := s.client.SetNX(ctx, s.key(user.Username), val, 0).Result()
	if err != nil {
		return fmt.Errorf("redis create user: %w", err)
	}
	if !ok {
		return store.ErrAlreadyExists
	}
	return nil
}

// UpdateUser checks the stored Version inside a WATCH and writes in MULTI/EXEC.
// A concurrent write between the read and EXEC aborts the transaction and is
// reported as store.ErrVersionConflict.
func (s *RedisStore) UpdateUser(ctx context.Context, user *models.User) error {
	if !store.ValidUsername(user.Username) {
		return store.ErrInvalidKey
	}
	key := s.key(user.Username)

	var next models.User
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		val, err := tx.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			return store.ErrNotFound
		}
		if err != nil {
			return err
		}

		var stored models.User
		if err := json.Unmarshal([]byte(val), &stored); err != nil {
			return err
		}
		if stored.Version != user.Version {
			return store.ErrVersionConflict
		}

		next = *user
		next.Version++
		next.UpdatedAt = time.Now().UTC()
		newVal, err := json.Marshal(&next)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, newVal, 0)
			return nil
		})
		return err
	}, key)

	switch {
	case errors.Is(err, redis.TxFailedErr):
		return store.ErrVersionConflict
	case err != nil:
		return err
	}
	user.Version = next.Version
	user.UpdatedAt = next.UpdatedAt
	return nil
}

func (s *RedisStore) AppendMemory(ctx context.Context, e models.MemoryEntry) error {
	val, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode memory entry: %w", err)
	}
	return s.client.RPush(ctx, memoryKey, val).Err()
}

// ListMemory returns the newest limit entries oldest-first; limit <= 0 returns all.
func (s *RedisStore) ListMemory(ctx context.Context, limit int) ([]models.MemoryEntry, error) {
	start := int64(0)
	if limit > 0 {
		start = -int64(limit)
	}
	vals, err := s.client.LRange(ctx, memoryKey, start, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list memory: %w", err)
	}

	entries := make([]models.MemoryEntry, 0, len(vals))
	for _, v := range vals {
		var e models.MemoryEntry
		if err := json.Unmarshal([]byte(v), &e); err != nil {
			return nil, fmt.Errorf("decode memory entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) key(username string) string {
	return userKeyPrefix + username
}
