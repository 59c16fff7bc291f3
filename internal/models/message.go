package models

// Role identifies who produced a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message represents a single entry in a conversation log. Messages are never
// modified once appended.
type Message struct {
	Role Role   `json:"role"` // "user" or "assistant"
	Text string `json:"text"`
}
