package services

import (
	"context"
	"strings"
	"testing"

	"lumen-backend/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoginCreatesAccountThenRotatesToken(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	first, err := f.auth.Login(ctx, "alice", "secret")
	require.NoError(t, err)
	assert.True(t, first.Created)
	assert.Equal(t, "Account created!", first.Reply())
	assert.Len(t, first.Token, 64)

	_, err = f.auth.Validate(ctx, "alice", first.Token)
	require.NoError(t, err)

	second, err := f.auth.Login(ctx, "alice", "secret")
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.Equal(t, "Welcome, alice!", second.Reply())
	assert.NotEqual(t, first.Token, second.Token)

	_, err = f.auth.Validate(ctx, "alice", first.Token)
	assert.ErrorIs(t, err, ErrForbidden, "only the latest token is active")

	user, err := f.auth.Validate(ctx, "alice", second.Token)
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)
	assert.NotEqual(t, "secret", user.PasswordHash)
	assert.NotEqual(t, second.Token, user.TokenDigest)
}

func TestLoginWrongPasswordKeepsToken(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	token := f.signup(t, "alice")

	_, err := f.auth.Login(ctx, "alice", "wrong")
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = f.auth.Validate(ctx, "alice", token)
	assert.NoError(t, err)
}

func TestLoginValidation(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	tests := []struct {
		name     string
		username string
		password string
	}{
		{"EmptyUsername", "", "secret"},
		{"BlankUsername", "   ", "secret"},
		{"EmptyPassword", "alice", ""},
		{"PathInUsername", "../alice", "secret"},
		{"SlashInUsername", "a/b", "secret"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.auth.Login(ctx, tt.username, tt.password)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestValidate(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	token := f.signup(t, "alice")

	_, err := f.auth.Validate(ctx, "bob", token)
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = f.auth.Validate(ctx, "../etc", token)
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = f.auth.Validate(ctx, "alice", "")
	assert.ErrorIs(t, err, ErrForbidden)

	tampered := []byte(token)
	tampered[0] ^= 1
	_, err = f.auth.Validate(ctx, "alice", string(tampered))
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestLoginPaddedUsernameValidatesImmediately(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	res, err := f.auth.Login(ctx, " alice ", "pw1")
	require.NoError(t, err)
	assert.Equal(t, "alice", res.Username)

	user, err := f.auth.Validate(ctx, " alice ", res.Token)
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)

	_, err = f.auth.Validate(ctx, "alice", res.Token)
	require.NoError(t, err)

	again, err := f.auth.Login(ctx, "alice\t", "pw1")
	require.NoError(t, err)
	assert.False(t, again.Created, "padded and plain names share one account")
	assert.Equal(t, "Welcome, alice!", again.Reply())
}

func TestLoginPasswordTooLong(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()

	_, err := f.auth.Login(ctx, "bob", strings.Repeat("p", 73))
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.auth.Validate(ctx, "bob", "anything")
	assert.ErrorIs(t, err, store.ErrNotFound, "no account is created")

	res, err := f.auth.Login(ctx, "bob", strings.Repeat("p", 72))
	require.NoError(t, err)
	assert.True(t, res.Created)
}
