package chat

import "time"

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one entry in the conversation timeline. The timeline is
// append-only: messages are never edited or removed.
type Message struct {
	ID             string         `json:"id"`
	Role           string         `json:"role"`
	Content        string         `json:"content"`
	Timestamp      time.Time      `json:"timestamp"`
	Intent         string         `json:"intent,omitempty"`
	Entities       map[string]any `json:"entities,omitempty"`
	ActionRequired bool           `json:"action_required,omitempty"`
	IsError        bool           `json:"is_error,omitempty"`
}
