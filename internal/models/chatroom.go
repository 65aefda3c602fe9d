package models

import (
	"time"

	"github.com/google/uuid"
)

// Chatroom is a per-user conversation container.
type Chatroom struct {
	ID          uuid.UUID `json:"id"`
	UserID      uuid.UUID `json:"user_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ChatroomSummary is the cached listing shape: what GET /chatroom
// returns and what the cache coordinator serializes.
type ChatroomSummary struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Summary projects a chatroom into its listing shape.
func (c *Chatroom) Summary() ChatroomSummary {
	return ChatroomSummary{
		ID:          c.ID,
		Name:        c.Name,
		Description: c.Description,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}
