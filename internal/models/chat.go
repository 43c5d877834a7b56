package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type ChatSession struct {
	ID            string     `gorm:"primaryKey" json:"id"`
	UserID        *uuid.UUID `gorm:"type:uuid;index" json:"userId,omitempty"`
	AnonymousKey  string     `gorm:"index" json:"-"`
	Title         string     `json:"title"`
	LastMessageAt time.Time  `json:"lastMessageAt"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
	Messages      []Message  `gorm:"foreignKey:SessionID" json:"messages,omitempty"`
}

// Message is one entry in a session's append log. Parts holds the
// JSON-encoded ordered content parts (see MessagePart); the full list for a
// session is rewritten after each completed turn.
type Message struct {
	ID           string    `gorm:"primaryKey" json:"id"`
	SessionID    string    `gorm:"index" json:"sessionId"`
	Seq          int       `gorm:"index" json:"seq"`
	Role         string    `json:"role"` // user, assistant or tool
	Parts        []byte    `json:"-"`    // JSON-encoded []MessagePart
	ProcessingMS int64     `json:"processingMs,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

const (
	PartText       = "text"
	PartToolCall   = "tool-call"
	PartToolResult = "tool-result"
)

type MessagePart struct {
	Type       string          `json:"type"`
	Text       string          `json:"text,omitempty"`
	ToolCallID string          `json:"toolCallId,omitempty"`
	ToolName   string          `json:"toolName,omitempty"`
	Args       json.RawMessage `json:"args,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
}
