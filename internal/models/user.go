package models

import (
	"time"

	"github.com/google/uuid"
)

// User represents a registered account. Credential issuance and
// verification live outside this service; the user row exists so
// chatrooms and quota accounting have something to hang off.
type User struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// Subscription records a user's billing tier. Webhook handling that
// mutates it is an external collaborator; this service only reads it.
type Subscription struct {
	UserID    uuid.UUID `json:"user_id"`
	Tier      string    `json:"tier"` // "basic" or "pro"
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updated_at"`
}
