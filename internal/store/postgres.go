package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Gouthamsurepally/gemini-backend-clone/internal/models"
)

// PostgresStore handles PostgreSQL database operations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// CreateUser creates a new user record.
func (s *PostgresStore) CreateUser(ctx context.Context, email string) (*models.User, error) {
	user := &models.User{}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO users (email)
		VALUES ($1)
		RETURNING id, email, created_at
	`, email).Scan(&user.ID, &user.Email, &user.CreatedAt)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// GetUser retrieves a user by ID.
func (s *PostgresStore) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user := &models.User{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, email, created_at FROM users WHERE id = $1
	`, id).Scan(&user.ID, &user.Email, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return user, nil
}

// GetUserTier retrieves the subscription tier for a user, or "" when no
// subscription row exists.
func (s *PostgresStore) GetUserTier(ctx context.Context, userID uuid.UUID) (string, error) {
	var tier string
	err := s.pool.QueryRow(ctx, `
		SELECT tier FROM subscriptions WHERE user_id = $1
	`, userID).Scan(&tier)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return tier, nil
}

// SetSubscription upserts a user's subscription tier.
func (s *PostgresStore) SetSubscription(ctx context.Context, userID uuid.UUID, tier, status string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO subscriptions (user_id, tier, status, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (user_id)
		DO UPDATE SET tier = EXCLUDED.tier, status = EXCLUDED.status, updated_at = now()
	`, userID, tier, status)
	return err
}

// CreateChatroom creates a new chatroom for a user.
func (s *PostgresStore) CreateChatroom(ctx context.Context, userID uuid.UUID, name, description string) (*models.Chatroom, error) {
	room := &models.Chatroom{}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO chatrooms (user_id, name, description)
		VALUES ($1, $2, $3)
		RETURNING id, user_id, name, description, is_active, created_at, updated_at
	`, userID, name, description).Scan(
		&room.ID,
		&room.UserID,
		&room.Name,
		&room.Description,
		&room.IsActive,
		&room.CreatedAt,
		&room.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return room, nil
}

// GetChatroom retrieves an active chatroom owned by the user.
func (s *PostgresStore) GetChatroom(ctx context.Context, id, userID uuid.UUID) (*models.Chatroom, error) {
	room := &models.Chatroom{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, user_id, name, description, is_active, created_at, updated_at
		FROM chatrooms
		WHERE id = $1 AND user_id = $2 AND is_active
	`, id, userID).Scan(
		&room.ID,
		&room.UserID,
		&room.Name,
		&room.Description,
		&room.IsActive,
		&room.CreatedAt,
		&room.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return room, nil
}

// ListChatrooms retrieves a user's active chatrooms, most recently
// updated first.
func (s *PostgresStore) ListChatrooms(ctx context.Context, userID uuid.UUID) ([]models.Chatroom, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, name, description, is_active, created_at, updated_at
		FROM chatrooms
		WHERE user_id = $1 AND is_active
		ORDER BY updated_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []models.Chatroom
	for rows.Next() {
		var room models.Chatroom
		if err := rows.Scan(
			&room.ID,
			&room.UserID,
			&room.Name,
			&room.Description,
			&room.IsActive,
			&room.CreatedAt,
			&room.UpdatedAt,
		); err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	return rooms, rows.Err()
}

// UpdateChatroom applies a partial update to an active chatroom owned
// by the user. Returns (nil, nil) when the room is missing.
func (s *PostgresStore) UpdateChatroom(ctx context.Context, id, userID uuid.UUID, name, description *string) (*models.Chatroom, error) {
	room := &models.Chatroom{}
	err := s.pool.QueryRow(ctx, `
		UPDATE chatrooms
		SET name = COALESCE($3, name),
		    description = COALESCE($4, description),
		    updated_at = now()
		WHERE id = $1 AND user_id = $2 AND is_active
		RETURNING id, user_id, name, description, is_active, created_at, updated_at
	`, id, userID, name, description).Scan(
		&room.ID,
		&room.UserID,
		&room.Name,
		&room.Description,
		&room.IsActive,
		&room.CreatedAt,
		&room.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return room, nil
}

// SoftDeleteChatroom marks a chatroom inactive. Returns false when the
// room is missing or already deleted.
func (s *PostgresStore) SoftDeleteChatroom(ctx context.Context, id, userID uuid.UUID) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE chatrooms SET is_active = false, updated_at = now()
		WHERE id = $1 AND user_id = $2 AND is_active
	`, id, userID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// TouchChatroom bumps a chatroom's updated_at timestamp.
func (s *PostgresStore) TouchChatroom(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE chatrooms SET updated_at = now() WHERE id = $1
	`, id)
	return err
}

// CreateMessage persists a message. The chatroom must exist; an ai
// message's in_reply_to must reference a message in the same chatroom.
func (s *PostgresStore) CreateMessage(ctx context.Context, msg *models.Message) error {
	if err := validateMessage(msg); err != nil {
		return err
	}
	if msg.ID == "" {
		msg.ID = models.NewMessageID()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	if msg.InReplyTo != "" {
		var sameRoom bool
		err := s.pool.QueryRow(ctx, `
			SELECT chatroom_id = $2 FROM messages WHERE id = $1
		`, msg.InReplyTo, msg.ChatroomID).Scan(&sameRoom)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return errors.New("in_reply_to references unknown message")
			}
			return err
		}
		if !sameRoom {
			return errors.New("in_reply_to references a message in another chatroom")
		}
	}

	var inReplyTo *string
	if msg.InReplyTo != "" {
		inReplyTo = &msg.InReplyTo
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO messages (id, chatroom_id, content, sender, in_reply_to, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, msg.ID, msg.ChatroomID, msg.Content, string(msg.Sender), inReplyTo, msg.Metadata, msg.CreatedAt)
	return err
}

// GetMessage retrieves a message by ID.
func (s *PostgresStore) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	msg := &models.Message{}
	var inReplyTo *string
	err := s.pool.QueryRow(ctx, `
		SELECT id, chatroom_id, content, sender, in_reply_to, metadata, created_at
		FROM messages WHERE id = $1
	`, id).Scan(
		&msg.ID,
		&msg.ChatroomID,
		&msg.Content,
		&msg.Sender,
		&inReplyTo,
		&msg.Metadata,
		&msg.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if inReplyTo != nil {
		msg.InReplyTo = *inReplyTo
	}
	return msg, nil
}

// ListMessages retrieves a chatroom's messages in creation order.
func (s *PostgresStore) ListMessages(ctx context.Context, chatroomID uuid.UUID, limit int) ([]models.Message, error) {
	// LIMIT NULL is no limit; a non-positive limit returns everything.
	var limitArg any
	if limit > 0 {
		limitArg = limit
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, chatroom_id, content, sender, in_reply_to, metadata, created_at
		FROM messages
		WHERE chatroom_id = $1
		ORDER BY created_at ASC, id ASC
		LIMIT $2
	`, chatroomID, limitArg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []models.Message
	for rows.Next() {
		var msg models.Message
		var inReplyTo *string
		if err := rows.Scan(
			&msg.ID,
			&msg.ChatroomID,
			&msg.Content,
			&msg.Sender,
			&inReplyTo,
			&msg.Metadata,
			&msg.CreatedAt,
		); err != nil {
			return nil, err
		}
		if inReplyTo != nil {
			msg.InReplyTo = *inReplyTo
		}
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}

// CountUserMessagesBetween counts user-sender messages in [from, to)
// across all of the user's chatrooms.
func (s *PostgresStore) CountUserMessagesBetween(ctx context.Context, userID uuid.UUID, from, to time.Time) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM messages m
		JOIN chatrooms c ON c.id = m.chatroom_id
		WHERE c.user_id = $1
		  AND m.sender = 'user'
		  AND m.created_at >= $2
		  AND m.created_at < $3
	`, userID, from, to).Scan(&count)
	return count, err
}
