package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Gouthamsurepally/gemini-backend-clone/internal/models"
)

// DataStore defines the interface for persistent storage of users,
// chatrooms and messages. PostgresStore, SQLiteStore and MemoryStore
// implement this interface. Lookups return (nil, nil) when the row does
// not exist or is not visible to the caller; orchestration maps that to
// its own not-found error.
type DataStore interface {
	// Connection management
	Close()
	Ping(ctx context.Context) error

	// User operations
	CreateUser(ctx context.Context, email string) (*models.User, error)
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	// GetUserTier returns the subscription tier, or "" when the user
	// has no subscription row.
	GetUserTier(ctx context.Context, userID uuid.UUID) (string, error)
	SetSubscription(ctx context.Context, userID uuid.UUID, tier, status string) error

	// Chatroom operations. All lookups are scoped to the owning user
	// and exclude soft-deleted rows.
	CreateChatroom(ctx context.Context, userID uuid.UUID, name, description string) (*models.Chatroom, error)
	GetChatroom(ctx context.Context, id, userID uuid.UUID) (*models.Chatroom, error)
	ListChatrooms(ctx context.Context, userID uuid.UUID) ([]models.Chatroom, error)
	UpdateChatroom(ctx context.Context, id, userID uuid.UUID, name, description *string) (*models.Chatroom, error)
	SoftDeleteChatroom(ctx context.Context, id, userID uuid.UUID) (bool, error)
	// TouchChatroom bumps updated_at so recency ordering reflects new
	// message arrival.
	TouchChatroom(ctx context.Context, id uuid.UUID) error

	// Message operations
	CreateMessage(ctx context.Context, msg *models.Message) error
	GetMessage(ctx context.Context, id string) (*models.Message, error)
	// ListMessages returns a chatroom's messages in creation order. A
	// non-positive limit returns all of them.
	ListMessages(ctx context.Context, chatroomID uuid.UUID, limit int) ([]models.Message, error)
	// CountUserMessagesBetween counts user-sender messages created in
	// [from, to) across all of the user's chatrooms. Quota accounting
	// depends on this being fresh, so it is never cached.
	CountUserMessagesBetween(ctx context.Context, userID uuid.UUID, from, to time.Time) (int, error)
}

// validateMessage enforces the sender/reply invariant shared by all
// store implementations: an ai message always replies to something, a
// user message never does. The same-chatroom constraint on InReplyTo is
// checked against stored rows by each implementation.
func validateMessage(msg *models.Message) error {
	switch msg.Sender {
	case models.SenderUser:
		if msg.InReplyTo != "" {
			return fmt.Errorf("user message must not carry in_reply_to")
		}
	case models.SenderAI:
		if msg.InReplyTo == "" {
			return fmt.Errorf("ai message must carry in_reply_to")
		}
	default:
		return fmt.Errorf("unknown sender %q", msg.Sender)
	}
	if msg.Content == "" {
		return fmt.Errorf("message content is required")
	}
	return nil
}
