package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
)

// schema is applied idempotently at startup. Uniqueness of phone,
// username and the (chat_id, user_id) pair is enforced here; the Go
// layer only translates the violations into the error taxonomy.
const schema = `
CREATE TABLE IF NOT EXISTS users (
	id BIGSERIAL PRIMARY KEY,
	phone TEXT UNIQUE NOT NULL,
	username TEXT UNIQUE NOT NULL,
	name TEXT NOT NULL DEFAULT '',
	avatar TEXT,
	verified BOOLEAN NOT NULL DEFAULT FALSE,
	enot_coins BIGINT NOT NULL DEFAULT 0,
	balance_rub BIGINT NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS chats (
	id BIGSERIAL PRIMARY KEY,
	name TEXT,
	is_group BOOLEAN NOT NULL DEFAULT FALSE,
	avatar TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS chat_members (
	chat_id BIGINT NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
	user_id BIGINT NOT NULL REFERENCES users(id),
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (chat_id, user_id)
);

CREATE TABLE IF NOT EXISTS messages (
	id BIGSERIAL PRIMARY KEY,
	chat_id BIGINT NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
	sender_id BIGINT NOT NULL REFERENCES users(id),
	text TEXT,
	file_url TEXT,
	file_type TEXT,
	created_at TIMESTAMPTZ NOT NULL
);

-- Backs LatestMessage and the timeline ordering key (created_at, id).
CREATE INDEX IF NOT EXISTS idx_messages_chat_created ON messages (chat_id, created_at, id);
CREATE INDEX IF NOT EXISTS idx_chat_members_user ON chat_members (user_id);
`

// RunMigrations applies the schema to the PostgreSQL database.
func RunMigrations(databaseURL string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	conn, err := pgx.Connect(ctx, databaseURL)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)

	_, err = conn.Exec(ctx, schema)
	return err
}
