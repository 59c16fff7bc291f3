package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"lumen-backend/internal/logging"
	"lumen-backend/internal/models"
	"lumen-backend/internal/store"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// HintAfter is the idle time after which a reply gets a reminder of the last topic.
const HintAfter = time.Hour

// ConversationService handles conversation business logic for an authenticated user.
type ConversationService struct {
	store      store.Store
	dispatcher *Dispatcher
	locks      *KeyedLock
	now        func() time.Time
	logger     zerolog.Logger
}

func NewConversationService(s store.Store, dispatcher *Dispatcher, locks *KeyedLock) *ConversationService {
	return &ConversationService{
		store:      s,
		dispatcher: dispatcher,
		locks:      locks,
		now:        time.Now,
		logger:     logging.Component("conversations"),
	}
}

// List returns the user's conversations, newest first.
func (s *ConversationService) List(ctx context.Context, username string) ([]models.ConversationSummary, error) {
	user, err := s.store.GetUser(ctx, username)
	if err != nil {
		return nil, err
	}
	out := make([]models.ConversationSummary, 0, len(user.Conversations))
	for i := range user.Conversations {
		c := &user.Conversations[i]
		out = append(out, models.ConversationSummary{ID: c.ID, Title: c.Title, Preview: c.Preview()})
	}
	return out, nil
}

// Get returns the full message log of one conversation.
func (s *ConversationService) Get(ctx context.Context, username, id string) ([]models.Message, error) {
	user, err := s.store.GetUser(ctx, username)
	if err != nil {
		return nil, err
	}
	conv := user.FindConversation(id)
	if conv == nil {
		return nil, ErrConversationNotFound
	}
	if conv.Messages == nil {
		return []models.Message{}, nil
	}
	return conv.Messages, nil
}

// Exists returns ErrConversationNotFound unless the user owns conversation id.
func (s *ConversationService) Exists(ctx context.Context, username, id string) error {
	_, err := s.Get(ctx, username, id)
	return err
}

// Create inserts an empty conversation at the front of the list and returns its id.
func (s *ConversationService) Create(ctx context.Context, username string) (string, error) {
	id, err := newConversationID()
	if err != nil {
		return "", err
	}
	err = s.mutate(ctx, username, func(u *models.User) error {
		conv := models.Conversation{
			ID:         id,
			Title:      models.DefaultConversationTitle,
			Messages:   []models.Message{},
			LastAccess: s.now().UTC(),
		}
		u.Conversations = append([]models.Conversation{conv}, u.Conversations...)
		return nil
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// Rename replaces a conversation's title.
func (s *ConversationService) Rename(ctx context.Context, username, id, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return fmt.Errorf("%w: title cannot be empty", ErrValidation)
	}
	return s.mutate(ctx, username, func(u *models.User) error {
		conv := u.FindConversation(id)
		if conv == nil {
			return ErrConversationNotFound
		}
		conv.Title = title
		return nil
	})
}

// AppendExchange records the user's message, obtains the assistant reply and
// records it. Nothing is persisted when the reply or the first-exchange title fails.
func (s *ConversationService) AppendExchange(ctx context.Context, username, id, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: message cannot be empty", ErrValidation)
	}

	var reply string
	err := s.mutate(ctx, username, func(u *models.User) error {
		conv := u.FindConversation(id)
		if conv == nil {
			return ErrConversationNotFound
		}
		history := conv.Messages
		now := s.now().UTC()

		var hint string
		if now.Sub(conv.LastAccess) > HintAfter {
			var last string
			if len(history) > 0 {
				last = history[len(history)-1].Text
			}
			hint = "Last topic: " + last
		}

		var err error
		reply, err = s.dispatcher.Reply(ctx, history, hint, text)
		if err != nil {
			return err
		}

		conv.Messages = append(conv.Messages,
			models.Message{Role: models.RoleUser, Text: text},
			models.Message{Role: models.RoleAssistant, Text: reply},
		)
		conv.LastAccess = now

		if len(conv.Messages) == 2 && conv.Title == models.DefaultConversationTitle {
			title, err := s.dispatcher.Title(ctx, reply)
			if err != nil {
				return err
			}
			if title != "" {
				conv.Title = title
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	entry := models.MemoryEntry{
		At:             s.now().UTC(),
		Username:       username,
		ConversationID: id,
		UserText:       text,
		AssistantText:  reply,
	}
	if err := s.store.AppendMemory(ctx, entry); err != nil {
		s.logger.Warn().Err(err).Str("username", username).Msg("failed to append memory log")
	}
	return reply, nil
}

// AppendImageExchange records an uploaded image and the assistant's reply to it.
// LastAccess and the title are left alone.
func (s *ConversationService) AppendImageExchange(ctx context.Context, username, id, path string) (string, error) {
	var reply string
	err := s.mutate(ctx, username, func(u *models.User) error {
		conv := u.FindConversation(id)
		if conv == nil {
			return ErrConversationNotFound
		}

		var err error
		reply, err = s.dispatcher.DescribeImage(ctx, path)
		if err != nil {
			return err
		}
		conv.Messages = append(conv.Messages,
			models.Message{Role: models.RoleUser, Text: fmt.Sprintf("[image:%s]", filepath.Base(path))},
			models.Message{Role: models.RoleAssistant, Text: reply},
		)
		return nil
	})
	if err != nil {
		return "", err
	}
	return reply, nil
}

// mutate loads the user under the per-user lock, applies fn and persists the result.
func (s *ConversationService) mutate(ctx context.Context, username string, fn func(u *models.User) error) error {
	unlock := s.locks.Lock(username)
	defer unlock()

	user, err := s.store.GetUser(ctx, username)
	if err != nil {
		return err
	}
	if err := fn(user); err != nil {
		return err
	}
	user.UpdatedAt = s.now().UTC()
	if err := s.store.UpdateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrVersionConflict) {
			s.logger.Warn().Str("username", username).Msg("concurrent update detected, change rejected")
		}
		return fmt.Errorf("failed to save user %s: %w", username, err)
	}
	return nil
}

func newConversationID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate conversation id: %w", err)
	}
	return "c_" + id.String(), nil
}
