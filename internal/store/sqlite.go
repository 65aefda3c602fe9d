package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/Gouthamsurepally/gemini-backend-clone/internal/models"
)

// SQLiteStore handles SQLite database operations. It is the development
// fallback when DATABASE_URL is not configured.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/chat.db"
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/chat.db"
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}

	// Initialize schema
	if err := store.initSchema(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email TEXT UNIQUE NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS subscriptions (
		user_id TEXT PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
		tier TEXT NOT NULL DEFAULT 'basic',
		status TEXT NOT NULL DEFAULT 'active',
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS chatrooms (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		is_active INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		chatroom_id TEXT NOT NULL REFERENCES chatrooms(id) ON DELETE CASCADE,
		content TEXT NOT NULL,
		sender TEXT NOT NULL CHECK (sender IN ('user', 'ai')),
		in_reply_to TEXT REFERENCES messages(id),
		metadata TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_chatrooms_user_active ON chatrooms(user_id, is_active, updated_at);
	CREATE INDEX IF NOT EXISTS idx_messages_chatroom ON messages(chatroom_id, created_at);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateUser creates a new user record.
func (s *SQLiteStore) CreateUser(ctx context.Context, email string) (*models.User, error) {
	user := &models.User{
		ID:        uuid.New(),
		Email:     email,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, created_at) VALUES (?, ?, ?)
	`, user.ID.String(), user.Email, user.CreatedAt)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// GetUser retrieves a user by ID.
func (s *SQLiteStore) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user := &models.User{}
	var rawID string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, created_at FROM users WHERE id = ?
	`, id.String()).Scan(&rawID, &user.Email, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	user.ID, err = uuid.Parse(rawID)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// GetUserTier retrieves the subscription tier for a user, or "" when no
// subscription row exists.
func (s *SQLiteStore) GetUserTier(ctx context.Context, userID uuid.UUID) (string, error) {
	var tier string
	err := s.db.QueryRowContext(ctx, `
		SELECT tier FROM subscriptions WHERE user_id = ?
	`, userID.String()).Scan(&tier)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return tier, nil
}

// SetSubscription upserts a user's subscription tier.
func (s *SQLiteStore) SetSubscription(ctx context.Context, userID uuid.UUID, tier, status string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO subscriptions (user_id, tier, status, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (user_id)
		DO UPDATE SET tier = excluded.tier, status = excluded.status, updated_at = CURRENT_TIMESTAMP
	`, userID.String(), tier, status)
	return err
}

// CreateChatroom creates a new chatroom for a user.
func (s *SQLiteStore) CreateChatroom(ctx context.Context, userID uuid.UUID, name, description string) (*models.Chatroom, error) {
	now := time.Now().UTC()
	room := &models.Chatroom{
		ID:          uuid.New(),
		UserID:      userID,
		Name:        name,
		Description: description,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chatrooms (id, user_id, name, description, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, 1, ?, ?)
	`, room.ID.String(), userID.String(), name, description, now, now)
	if err != nil {
		return nil, err
	}
	return room, nil
}

// scanChatroom scans a chatroom row from either a *sql.Row or *sql.Rows.
func scanChatroom(scan func(dest ...any) error) (*models.Chatroom, error) {
	room := &models.Chatroom{}
	var rawID, rawUserID string
	if err := scan(
		&rawID,
		&rawUserID,
		&room.Name,
		&room.Description,
		&room.IsActive,
		&room.CreatedAt,
		&room.UpdatedAt,
	); err != nil {
		return nil, err
	}
	var err error
	if room.ID, err = uuid.Parse(rawID); err != nil {
		return nil, err
	}
	if room.UserID, err = uuid.Parse(rawUserID); err != nil {
		return nil, err
	}
	return room, nil
}

// GetChatroom retrieves an active chatroom owned by the user.
func (s *SQLiteStore) GetChatroom(ctx context.Context, id, userID uuid.UUID) (*models.Chatroom, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, name, description, is_active, created_at, updated_at
		FROM chatrooms
		WHERE id = ? AND user_id = ? AND is_active = 1
	`, id.String(), userID.String())

	room, err := scanChatroom(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return room, nil
}

// ListChatrooms retrieves a user's active chatrooms, most recently
// updated first.
func (s *SQLiteStore) ListChatrooms(ctx context.Context, userID uuid.UUID) ([]models.Chatroom, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, name, description, is_active, created_at, updated_at
		FROM chatrooms
		WHERE user_id = ? AND is_active = 1
		ORDER BY updated_at DESC
	`, userID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []models.Chatroom
	for rows.Next() {
		room, err := scanChatroom(rows.Scan)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, *room)
	}
	return rooms, rows.Err()
}

// UpdateChatroom applies a partial update to an active chatroom owned
// by the user. Returns (nil, nil) when the room is missing.
func (s *SQLiteStore) UpdateChatroom(ctx context.Context, id, userID uuid.UUID, name, description *string) (*models.Chatroom, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE chatrooms
		SET name = COALESCE(?, name),
		    description = COALESCE(?, description),
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND user_id = ? AND is_active = 1
	`, name, description, id.String(), userID.String())
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, nil
	}
	return s.GetChatroom(ctx, id, userID)
}

// SoftDeleteChatroom marks a chatroom inactive. Returns false when the
// room is missing or already deleted.
func (s *SQLiteStore) SoftDeleteChatroom(ctx context.Context, id, userID uuid.UUID) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE chatrooms SET is_active = 0, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND user_id = ? AND is_active = 1
	`, id.String(), userID.String())
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// TouchChatroom bumps a chatroom's updated_at timestamp.
func (s *SQLiteStore) TouchChatroom(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE chatrooms SET updated_at = CURRENT_TIMESTAMP WHERE id = ?
	`, id.String())
	return err
}

// CreateMessage persists a message. The chatroom must exist; an ai
// message's in_reply_to must reference a message in the same chatroom.
func (s *SQLiteStore) CreateMessage(ctx context.Context, msg *models.Message) error {
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
		var roomID string
		err := s.db.QueryRowContext(ctx, `
			SELECT chatroom_id FROM messages WHERE id = ?
		`, msg.InReplyTo).Scan(&roomID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return errors.New("in_reply_to references unknown message")
			}
			return err
		}
		if roomID != msg.ChatroomID.String() {
			return errors.New("in_reply_to references a message in another chatroom")
		}
	}

	var metadata any
	if msg.Metadata != nil {
		raw, err := json.Marshal(msg.Metadata)
		if err != nil {
			return err
		}
		metadata = string(raw)
	}

	var inReplyTo any
	if msg.InReplyTo != "" {
		inReplyTo = msg.InReplyTo
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, chatroom_id, content, sender, in_reply_to, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, msg.ID, msg.ChatroomID.String(), msg.Content, string(msg.Sender), inReplyTo, metadata, msg.CreatedAt)
	return err
}

// scanMessage scans a message row.
func scanMessage(scan func(dest ...any) error) (*models.Message, error) {
	msg := &models.Message{}
	var rawRoomID string
	var inReplyTo, metadata sql.NullString
	if err := scan(
		&msg.ID,
		&rawRoomID,
		&msg.Content,
		&msg.Sender,
		&inReplyTo,
		&metadata,
		&msg.CreatedAt,
	); err != nil {
		return nil, err
	}
	var err error
	if msg.ChatroomID, err = uuid.Parse(rawRoomID); err != nil {
		return nil, err
	}
	if inReplyTo.Valid {
		msg.InReplyTo = inReplyTo.String
	}
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &msg.Metadata); err != nil {
			return nil, err
		}
	}
	return msg, nil
}

// GetMessage retrieves a message by ID.
func (s *SQLiteStore) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, chatroom_id, content, sender, in_reply_to, metadata, created_at
		FROM messages WHERE id = ?
	`, id)

	msg, err := scanMessage(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return msg, nil
}

// ListMessages retrieves a chatroom's messages in creation order.
func (s *SQLiteStore) ListMessages(ctx context.Context, chatroomID uuid.UUID, limit int) ([]models.Message, error) {
	if limit <= 0 {
		limit = -1 // SQLite treats a negative LIMIT as no limit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, chatroom_id, content, sender, in_reply_to, metadata, created_at
		FROM messages
		WHERE chatroom_id = ?
		ORDER BY created_at ASC, id ASC
		LIMIT ?
	`, chatroomID.String(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []models.Message
	for rows.Next() {
		msg, err := scanMessage(rows.Scan)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, *msg)
	}
	return msgs, rows.Err()
}

// CountUserMessagesBetween counts user-sender messages in [from, to)
// across all of the user's chatrooms.
func (s *SQLiteStore) CountUserMessagesBetween(ctx context.Context, userID uuid.UUID, from, to time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM messages m
		JOIN chatrooms c ON c.id = m.chatroom_id
		WHERE c.user_id = ?
		  AND m.sender = 'user'
		  AND m.created_at >= ?
		  AND m.created_at < ?
	`, userID.String(), from, to).Scan(&count)
	return count, err
}
