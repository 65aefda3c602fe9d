package store

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Gouthamsurepally/gemini-backend-clone/internal/models"
)

// MemoryStore is an in-process DataStore used by tests. It honors the
// same referential rules as the SQL stores so pipeline tests exercise
// real invariants rather than a permissive stub.
type MemoryStore struct {
	mu        sync.RWMutex
	users     map[uuid.UUID]models.User
	tiers     map[uuid.UUID]string
	chatrooms map[uuid.UUID]models.Chatroom
	messages  map[string]models.Message
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:     make(map[uuid.UUID]models.User),
		tiers:     make(map[uuid.UUID]string),
		chatrooms: make(map[uuid.UUID]models.Chatroom),
		messages:  make(map[string]models.Message),
	}
}

// Close is a no-op.
func (s *MemoryStore) Close() {}

// Ping always succeeds.
func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

// CreateUser creates a new user record.
func (s *MemoryStore) CreateUser(ctx context.Context, email string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user := models.User{ID: uuid.New(), Email: email, CreatedAt: time.Now().UTC()}
	s.users[user.ID] = user
	return &user, nil
}

// GetUser retrieves a user by ID.
func (s *MemoryStore) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	return &user, nil
}

// GetUserTier retrieves the subscription tier for a user.
func (s *MemoryStore) GetUserTier(ctx context.Context, userID uuid.UUID) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tiers[userID], nil
}

// SetSubscription upserts a user's subscription tier.
func (s *MemoryStore) SetSubscription(ctx context.Context, userID uuid.UUID, tier, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tiers[userID] = tier
	return nil
}

// CreateChatroom creates a new chatroom for a user.
func (s *MemoryStore) CreateChatroom(ctx context.Context, userID uuid.UUID, name, description string) (*models.Chatroom, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	room := models.Chatroom{
		ID:          uuid.New(),
		UserID:      userID,
		Name:        name,
		Description: description,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.chatrooms[room.ID] = room
	return &room, nil
}

// GetChatroom retrieves an active chatroom owned by the user.
func (s *MemoryStore) GetChatroom(ctx context.Context, id, userID uuid.UUID) (*models.Chatroom, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	room, ok := s.chatrooms[id]
	if !ok || !room.IsActive || room.UserID != userID {
		return nil, nil
	}
	return &room, nil
}

// ListChatrooms retrieves a user's active chatrooms, most recently
// updated first.
func (s *MemoryStore) ListChatrooms(ctx context.Context, userID uuid.UUID) ([]models.Chatroom, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rooms []models.Chatroom
	for _, room := range s.chatrooms {
		if room.UserID == userID && room.IsActive {
			rooms = append(rooms, room)
		}
	}
	sort.Slice(rooms, func(i, j int) bool {
		return rooms[i].UpdatedAt.After(rooms[j].UpdatedAt)
	})
	return rooms, nil
}

// UpdateChatroom applies a partial update to an active chatroom owned
// by the user.
func (s *MemoryStore) UpdateChatroom(ctx context.Context, id, userID uuid.UUID, name, description *string) (*models.Chatroom, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.chatrooms[id]
	if !ok || !room.IsActive || room.UserID != userID {
		return nil, nil
	}
	if name != nil {
		room.Name = *name
	}
	if description != nil {
		room.Description = *description
	}
	room.UpdatedAt = time.Now().UTC()
	s.chatrooms[id] = room
	return &room, nil
}

// SoftDeleteChatroom marks a chatroom inactive.
func (s *MemoryStore) SoftDeleteChatroom(ctx context.Context, id, userID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.chatrooms[id]
	if !ok || !room.IsActive || room.UserID != userID {
		return false, nil
	}
	room.IsActive = false
	room.UpdatedAt = time.Now().UTC()
	s.chatrooms[id] = room
	return true, nil
}

// TouchChatroom bumps a chatroom's updated_at timestamp.
func (s *MemoryStore) TouchChatroom(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.chatrooms[id]
	if !ok {
		return nil
	}
	room.UpdatedAt = time.Now().UTC()
	s.chatrooms[id] = room
	return nil
}

// CreateMessage persists a message with the same referential checks as
// the SQL stores.
func (s *MemoryStore) CreateMessage(ctx context.Context, msg *models.Message) error {
	if err := validateMessage(msg); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.chatrooms[msg.ChatroomID]; !ok {
		return errors.New("chatroom does not exist")
	}
	if msg.InReplyTo != "" {
		parent, ok := s.messages[msg.InReplyTo]
		if !ok {
			return errors.New("in_reply_to references unknown message")
		}
		if parent.ChatroomID != msg.ChatroomID {
			return errors.New("in_reply_to references a message in another chatroom")
		}
	}

	if msg.ID == "" {
		msg.ID = models.NewMessageID()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	s.messages[msg.ID] = *msg
	return nil
}

// GetMessage retrieves a message by ID.
func (s *MemoryStore) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msg, ok := s.messages[id]
	if !ok {
		return nil, nil
	}
	return &msg, nil
}

// ListMessages retrieves a chatroom's messages in creation order.
func (s *MemoryStore) ListMessages(ctx context.Context, chatroomID uuid.UUID, limit int) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var msgs []models.Message
	for _, msg := range s.messages {
		if msg.ChatroomID == chatroomID {
			msgs = append(msgs, msg)
		}
	}
	sort.Slice(msgs, func(i, j int) bool {
		if msgs[i].CreatedAt.Equal(msgs[j].CreatedAt) {
			return msgs[i].ID < msgs[j].ID
		}
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
	})
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[:limit]
	}
	return msgs, nil
}

// CountUserMessagesBetween counts user-sender messages in [from, to)
// across all of the user's chatrooms.
func (s *MemoryStore) CountUserMessagesBetween(ctx context.Context, userID uuid.UUID, from, to time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, msg := range s.messages {
		if msg.Sender != models.SenderUser {
			continue
		}
		room, ok := s.chatrooms[msg.ChatroomID]
		if !ok || room.UserID != userID {
			continue
		}
		if !msg.CreatedAt.Before(from) && msg.CreatedAt.Before(to) {
			count++
		}
	}
	return count, nil
}
