package store

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// schema is the PostgreSQL schema. Statements are idempotent so startup
// can run them unconditionally; SQLite builds its own schema in
// initSchema.
const schema = `
CREATE EXTENSION IF NOT EXISTS "pgcrypto";

CREATE TABLE IF NOT EXISTS users (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	email TEXT UNIQUE NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS subscriptions (
	user_id UUID PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
	tier TEXT NOT NULL DEFAULT 'basic',
	status TEXT NOT NULL DEFAULT 'active',
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS chatrooms (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	is_active BOOLEAN NOT NULL DEFAULT true,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS messages (
	id TEXT PRIMARY KEY,
	chatroom_id UUID NOT NULL REFERENCES chatrooms(id) ON DELETE CASCADE,
	content TEXT NOT NULL,
	sender TEXT NOT NULL CHECK (sender IN ('user', 'ai')),
	in_reply_to TEXT REFERENCES messages(id),
	metadata JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_chatrooms_user_active ON chatrooms(user_id, is_active, updated_at);
CREATE INDEX IF NOT EXISTS idx_messages_chatroom ON messages(chatroom_id, created_at);
CREATE INDEX IF NOT EXISTS idx_messages_sender_created ON messages(sender, created_at);
`

// RunMigrations applies the schema to the PostgreSQL database.
func RunMigrations(ctx context.Context, databaseURL string) error {
	conn, err := pgx.Connect(ctx, databaseURL)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)

	_, err = conn.Exec(ctx, schema)
	return err
}
