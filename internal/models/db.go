package models

import (
	"time"
)

// DefaultConversationTitle is the title every conversation starts with until the
// first assistant reply produces a generated one.
const DefaultConversationTitle = "New conversation"

// User is the persisted per-user record. It is read and written as a whole.
type User struct {
	Username      string         `json:"username" db:"username"`
	PasswordHash  string         `json:"password_hash" db:"password_hash"`
	TokenDigest   string         `json:"token_digest" db:"token_digest"` // SHA-256 of the single active session token
	Conversations []Conversation `json:"conversations" db:"conversations"`
	Version       int64          `json:"version" db:"version"` // Bumped by every successful UpdateUser
	CreatedAt     time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at" db:"updated_at"`
}

// FindConversation returns a pointer into u.Conversations, or nil.
func (u *User) FindConversation(id string) *Conversation {
	for i := range u.Conversations {
		if u.Conversations[i].ID == id {
			return &u.Conversations[i]
		}
	}
	return nil
}

// Conversation is a named, ordered message thread owned by one user.
type Conversation struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Messages   []Message `json:"messages"`
	LastAccess time.Time `json:"last_access"`
}

// Preview is the text of the last message, or "" for an empty conversation.
func (c *Conversation) Preview() string {
	if len(c.Messages) == 0 {
		return ""
	}
	return c.Messages[len(c.Messages)-1].Text
}

// MemoryEntry is one row of the shared memory log, written after every text exchange.
type MemoryEntry struct {
	At             time.Time `json:"at" db:"at"`
	Username       string    `json:"username" db:"username"`
	ConversationID string    `json:"conversation_id" db:"conversation_id"`
	UserText       string    `json:"user_text" db:"user_text"`
	AssistantText  string    `json:"assistant_text" db:"assistant_text"`
}
