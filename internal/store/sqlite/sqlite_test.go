package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"lumen-backend/internal/store"
	"lumen-backend/internal/store/storetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "db", "lumen.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store { return newTestStore(t) })
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lumen.db")
	ctx := context.Background()

	s, err := New(path)
	require.NoError(t, err)
	require.NoError(t, s.CreateUser(ctx, storetest.SampleUser("alice", 2)))
	require.NoError(t, s.Close())

	reopened, err := New(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	got, err := reopened.GetUser(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, got.Conversations, 2)
	assert.Equal(t, int64(1), got.Version)
	require.NoError(t, reopened.Ping(ctx))
}
