// Package storetest holds the behaviour every store.Store backend must share.
package storetest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"lumen-backend/internal/models"
	"lumen-backend/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns an empty store. Cleanup is the factory's job.
type Factory func(t *testing.T) store.Store

// Run exercises a backend against the store.Store contract.
func Run(t *testing.T, newStore Factory) {
	t.Run("CreateAndGetRoundTrip", func(t *testing.T) { testRoundTrip(t, newStore(t)) })
	t.Run("CreateDuplicate", func(t *testing.T) { testCreateDuplicate(t, newStore(t)) })
	t.Run("GetMissing", func(t *testing.T) { testGetMissing(t, newStore(t)) })
	t.Run("UpdateCompareAndSwap", func(t *testing.T) { testUpdateCAS(t, newStore(t)) })
	t.Run("UpdateMissing", func(t *testing.T) { testUpdateMissing(t, newStore(t)) })
	t.Run("InvalidUsername", func(t *testing.T) { testInvalidUsername(t, newStore(t)) })
	t.Run("MemoryLog", func(t *testing.T) { testMemory(t, newStore(t)) })
}

var epoch = time.Date(2025, 11, 11, 12, 33, 57, 0, time.UTC)

// SampleUser builds a user with n conversations, newest first, each holding one exchange.
func SampleUser(name string, n int) *models.User {
	u := &models.User{
		Username:     name,
		PasswordHash: "$2a$10$hash",
		TokenDigest:  "digest",
		CreatedAt:    epoch,
		UpdatedAt:    epoch,
	}
	for i := n - 1; i >= 0; i-- {
		u.Conversations = append(u.Conversations, models.Conversation{
			ID:    fmt.Sprintf("c_%03d", i),
			Title: fmt.Sprintf("Conversation %d", i),
			Messages: []models.Message{
				{Role: models.RoleUser, Text: fmt.Sprintf("question %d", i)},
				{Role: models.RoleAssistant, Text: fmt.Sprintf("answer %d ✨", i)},
			},
			LastAccess: epoch.Add(time.Duration(i) * time.Minute),
		})
	}
	return u
}

func testRoundTrip(t *testing.T, s store.Store) {
	ctx := context.Background()
	u := SampleUser("alice", 3)
	require.NoError(t, s.CreateUser(ctx, u))

	got, err := s.GetUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, u.Conversations, got.Conversations)
	assert.Equal(t, u.PasswordHash, got.PasswordHash)
	assert.Equal(t, u.TokenDigest, got.TokenDigest)
	assert.Equal(t, u.Version, got.Version)
	assert.True(t, u.CreatedAt.Equal(got.CreatedAt))
}

func testCreateDuplicate(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.CreateUser(ctx, SampleUser("bob", 0)))
	err := s.CreateUser(ctx, SampleUser("bob", 1))
	assert.ErrorIs(t, err, store.ErrAlreadyExists)
}

func testGetMissing(t *testing.T, s store.Store) {
	_, err := s.GetUser(context.Background(), "nobody")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testUpdateCAS(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.CreateUser(ctx, SampleUser("carol", 1)))

	first, err := s.GetUser(ctx, "carol")
	require.NoError(t, err)
	stale, err := s.GetUser(ctx, "carol")
	require.NoError(t, err)

	before := first.Version
	first.Conversations[0].Title = "Renamed"
	require.NoError(t, s.UpdateUser(ctx, first))
	assert.Equal(t, before+1, first.Version)

	stale.TokenDigest = "other"
	assert.ErrorIs(t, s.UpdateUser(ctx, stale), store.ErrVersionConflict)

	got, err := s.GetUser(ctx, "carol")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Conversations[0].Title)
	assert.Equal(t, "digest", got.TokenDigest, "stale write must not land")
	assert.Equal(t, first.Version, got.Version)
}

func testUpdateMissing(t *testing.T, s store.Store) {
	err := s.UpdateUser(context.Background(), SampleUser("ghost", 0))
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testInvalidUsername(t *testing.T, s store.Store) {
	ctx := context.Background()
	assert.ErrorIs(t, s.CreateUser(ctx, SampleUser("../evil", 0)), store.ErrInvalidKey)
	_, err := s.GetUser(ctx, "a/b")
	assert.ErrorIs(t, err, store.ErrInvalidKey)
}

func testMemory(t *testing.T, s store.Store) {
	ctx := context.Background()

	empty, err := s.ListMemory(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, empty)

	for i := 0; i < 5; i++ {
		require.NoError(t, s.AppendMemory(ctx, models.MemoryEntry{
			At:             epoch.Add(time.Duration(i) * time.Second),
			Username:       "alice",
			ConversationID: "c_1",
			UserText:       fmt.Sprintf("q%d", i),
			AssistantText:  fmt.Sprintf("a%d", i),
		}))
	}

	all, err := s.ListMemory(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.Equal(t, "q0", all[0].UserText)
	assert.Equal(t, "a4", all[4].AssistantText)

	last, err := s.ListMemory(ctx, 2)
	require.NoError(t, err)
	require.Len(t, last, 2)
	assert.Equal(t, "q3", last[0].UserText)
	assert.Equal(t, "q4", last[1].UserText)
	assert.True(t, last[1].At.Equal(epoch.Add(4*time.Second)))
}
