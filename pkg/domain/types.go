package domain

import "time"

// SessionRecord holds a conversation's metadata. It is persisted as a single
// JSON document per session and always written as a whole (no partial field
// updates reach storage).
type SessionRecord struct {
	SessionKey string         `json:"session_key"`
	UserID     string         `json:"user_id"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	Metadata   map[string]any `json:"metadata"`
}

// ChatMessage is one turn in a conversation. Messages within a session form an
// append-only log whose storage order equals chronological order.
type ChatMessage struct {
	ID        string         `json:"message_id"`
	Role      Role           `json:"role"`
	Content   string         `json:"content"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// ActionRecord is one logged action taken by the agent (tool call, file
// operation). Same append-only semantics as ChatMessage, separate log.
type ActionRecord struct {
	ID        string         `json:"action_id"`
	Type      string         `json:"action_type"`
	Data      map[string]any `json:"action_data"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Action types recorded by the gateway.
const (
	ActionFileOperation = "file_operation"
	ActionModelCall     = "model_call"
)
