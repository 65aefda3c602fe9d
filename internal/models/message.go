package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// Sender identifies who produced a message.
type Sender string

const (
	SenderUser Sender = "user"
	SenderAI   Sender = "ai"
)

// Message represents one chat turn. An ai-sender message always carries
// InReplyTo pointing at the user-sender message that triggered it; a
// user-sender message never does. Messages are immutable after creation
// except for metadata enrichment on the ai reply.
type Message struct {
	ID         string         `json:"id"` // ULID, time-ordered
	ChatroomID uuid.UUID      `json:"chatroom_id"`
	Content    string         `json:"content"`
	Sender     Sender         `json:"sender"`
	InReplyTo  string         `json:"in_reply_to,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// NewMessageID generates a time-ordered message ID.
func NewMessageID() string {
	return ulid.Make().String()
}
