package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"lumen-backend/internal/auth"
	"lumen-backend/internal/crypto"
	"lumen-backend/internal/logging"
	"lumen-backend/internal/models"
	"lumen-backend/internal/store"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

// LoginResult is the outcome of a successful login.
type LoginResult struct {
	Username string // normalized account key
	Token    string
	Created  bool // true when the login created the account
}

// Reply is the greeting shown to the user.
func (r *LoginResult) Reply() string {
	if r.Created {
		return "Account created!"
	}
	return fmt.Sprintf("Welcome, %s!", r.Username)
}

// AuthService issues session tokens and validates them.
type AuthService struct {
	store  store.Store
	locks  *KeyedLock
	now    func() time.Time
	logger zerolog.Logger
}

func NewAuthService(s store.Store, locks *KeyedLock) *AuthService {
	return &AuthService{
		store:  s,
		locks:  locks,
		now:    time.Now,
		logger: logging.Component("auth"),
	}
}

// Login creates the account on first use and otherwise checks the password.
// Every successful login rotates the single active token; a failed one leaves it
// untouched.
func (s *AuthService) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	username = store.NormalizeUsername(username)
	if username == "" || password == "" {
		return nil, fmt.Errorf("%w: username and password cannot be empty", ErrValidation)
	}
	if len(password) > auth.MaxPasswordBytes {
		return nil, fmt.Errorf("%w: password cannot be longer than %d bytes", ErrValidation, auth.MaxPasswordBytes)
	}
	if !store.ValidUsername(username) {
		return nil, fmt.Errorf("%w: username may only contain letters, digits, '.', '_' and '-'", ErrValidation)
	}

	unlock := s.locks.Lock(username)
	defer unlock()

	user, err := s.store.GetUser(ctx, username)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		s.logger.Error().Err(err).Str("username", username).Msg("error retrieving user during login")
		return nil, fmt.Errorf("failed to retrieve user: %w", err)
	}
	if user != nil && !auth.CheckPasswordHash(password, user.PasswordHash) {
		return nil, ErrUnauthorized
	}

	token, err := crypto.NewSessionToken()
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()

	if user == nil {
		return s.signup(ctx, username, password, token, now)
	}

	user.TokenDigest = crypto.DigestToken(token)
	user.UpdatedAt = now
	if err := s.store.UpdateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to rotate token: %w", err)
	}
	s.logger.Info().Str("username", username).Msg("user logged in")
	return &LoginResult{Username: username, Token: token}, nil
}

func (s *AuthService) signup(ctx context.Context, username, password, token string, now time.Time) (*LoginResult, error) {
	hash, err := auth.HashPassword(password)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return nil, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		return nil, err
	}
	user := &models.User{
		Username:      username,
		PasswordHash:  hash,
		TokenDigest:   crypto.DigestToken(token),
		Conversations: []models.Conversation{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			// Another process created the account between our read and write.
			return nil, fmt.Errorf("account %s: %w", username, store.ErrVersionConflict)
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	s.logger.Info().Str("username", username).Msg("account created")
	return &LoginResult{Username: username, Token: token, Created: true}, nil
}

// Validate returns the user when token is the active one. It never writes.
// The returned user's Username is the normalized key.
func (s *AuthService) Validate(ctx context.Context, username, token string) (*models.User, error) {
	username = store.NormalizeUsername(username)
	if !store.ValidUsername(username) {
		return nil, store.ErrNotFound
	}
	user, err := s.store.GetUser(ctx, username)
	if err != nil {
		return nil, err
	}
	if !crypto.TokenMatches(token, user.TokenDigest) {
		return nil, ErrForbidden
	}
	return user, nil
}
