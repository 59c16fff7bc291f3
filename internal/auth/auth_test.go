package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPasswordHashRoundTrip(t *testing.T) {
	hash, err := HashPassword("pw1")
	require.NoError(t, err)
	assert.NotEqual(t, "pw1", hash)

	assert.True(t, CheckPasswordHash("pw1", hash))
	assert.False(t, CheckPasswordHash("pw2", hash))
	assert.False(t, CheckPasswordHash("pw1", "not-a-bcrypt-hash"))
}

func TestUsernameContext(t *testing.T) {
	_, ok := UsernameFromContext(context.Background())
	assert.False(t, ok)

	ctx := WithUsername(context.Background(), "alice")
	got, ok := UsernameFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, "alice", got)
}
