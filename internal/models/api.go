package models

// --- Request Structs ---

// SessionRequest carries the credentials every conversation endpoint needs.
type SessionRequest struct {
	Username string `json:"username"`
	Token    string `json:"token"`
}

// LoginRequest defines the expected body for the login endpoint.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// ConversationRequest addresses a single conversation.
type ConversationRequest struct {
	SessionRequest
	ChatID string `json:"chat_id"`
}

// RenameConversationRequest defines the body for renaming a conversation.
type RenameConversationRequest struct {
	SessionRequest
	ChatID   string `json:"chat_id"`
	NewTitle string `json:"newTitle"`
}

// ChatRequest defines the body for sending a text message.
type ChatRequest struct {
	SessionRequest
	ChatID  string `json:"chat_id"`
	Message string `json:"message"`
}

// --- Response Structs ---

// LoginResponse is returned on successful login or account creation.
type LoginResponse struct {
	Reply string `json:"reply"`
	Token string `json:"token"`
}

// OKResponse is the generic acknowledgement body.
type OKResponse struct {
	OK bool `json:"ok"`
}

// ConversationSummary is one entry of the conversation list.
type ConversationSummary struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Preview string `json:"preview"`
}

// NewConversationResponse returns the id of a freshly created conversation.
type NewConversationResponse struct {
	ChatID string `json:"chat_id"`
}

// ReplyResponse carries the assistant reply for chat and image requests.
type ReplyResponse struct {
	Reply string `json:"reply"`
}

// ErrorResponse defines the standard structure for API errors.
type ErrorResponse struct {
	Error string `json:"error"`
}
