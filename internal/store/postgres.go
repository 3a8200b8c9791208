package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pr-poehali-dev/speakly-messenger-2/internal/models"
)

// PostgreSQL error codes surfaced as part of the error taxonomy.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
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

// mapPgError translates driver constraint errors into the store taxonomy.
// The driver detail never travels with the sentinel, so it cannot leak to
// API clients.
func mapPgError(err error, conflictMsg, notFoundMsg string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return fmt.Errorf("%w: %s", ErrConflict, conflictMsg)
		case pgForeignKeyViolation:
			return fmt.Errorf("%w: %s", ErrNotFound, notFoundMsg)
		}
	}
	return err
}

const userColumns = "id, phone, username, name, avatar, verified, enot_coins, balance_rub, created_at"

func scanUser(row pgx.Row) (*models.User, error) {
	u := &models.User{}
	err := row.Scan(
		&u.ID,
		&u.Phone,
		&u.Username,
		&u.Name,
		&u.Avatar,
		&u.Verified,
		&u.EnotCoins,
		&u.BalanceRub,
		&u.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return u, nil
}

// CreateUser creates a new user record. Phone and username are unique;
// a concurrent registration with either value loses with ErrConflict.
func (s *PostgresStore) CreateUser(ctx context.Context, phone, name, username string) (*models.User, error) {
	user, err := scanUser(s.pool.QueryRow(ctx, `
		INSERT INTO users (phone, name, username)
		VALUES ($1, $2, $3)
		RETURNING `+userColumns+`
	`, phone, name, username))
	if err != nil {
		return nil, mapPgError(err, "phone or username already registered", "referenced entity missing")
	}
	return user, nil
}

// GetUserByPhone retrieves a user by exact phone match.
func (s *PostgresStore) GetUserByPhone(ctx context.Context, phone string) (*models.User, error) {
	user, err := scanUser(s.pool.QueryRow(ctx, `
		SELECT `+userColumns+` FROM users WHERE phone = $1
	`, phone))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: user", ErrNotFound)
		}
		return nil, err
	}
	return user, nil
}

// GetUserByID retrieves a user by ID.
func (s *PostgresStore) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	user, err := scanUser(s.pool.QueryRow(ctx, `
		SELECT `+userColumns+` FROM users WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: user", ErrNotFound)
		}
		return nil, err
	}
	return user, nil
}

// SearchUsers matches the query case-insensitively as a substring of
// username or display name, in stable id order.
func (s *PostgresStore) SearchUsers(ctx context.Context, query string, limit int) ([]models.User, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE username ILIKE $1 ESCAPE '\' OR name ILIKE $1 ESCAPE '\'
		ORDER BY id
		LIMIT $2
	`, likePattern(query), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var u models.User
		err := rows.Scan(
			&u.ID,
			&u.Phone,
			&u.Username,
			&u.Name,
			&u.Avatar,
			&u.Verified,
			&u.EnotCoins,
			&u.BalanceRub,
			&u.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// CountUsers returns the total number of registered users.
func (s *PostgresStore) CountUsers(ctx context.Context) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&n)
	return n, err
}

// CreateChat creates a chat and all its memberships in one transaction.
// Either everything is visible afterwards or nothing is.
func (s *PostgresStore) CreateChat(ctx context.Context, name *string, isGroup bool, memberIDs []int64) (*models.Chat, error) {
	if len(memberIDs) < 2 {
		return nil, fmt.Errorf("%w: a chat needs at least two members", ErrInvalidInput)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	chat := &models.Chat{}
	err = tx.QueryRow(ctx, `
		INSERT INTO chats (name, is_group)
		VALUES ($1, $2)
		RETURNING id, name, is_group, avatar, created_at
	`, name, isGroup).Scan(
		&chat.ID,
		&chat.Name,
		&chat.IsGroup,
		&chat.Avatar,
		&chat.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	for _, userID := range memberIDs {
		_, err := tx.Exec(ctx, `
			INSERT INTO chat_members (chat_id, user_id) VALUES ($1, $2)
		`, chat.ID, userID)
		if err != nil {
			return nil, mapPgError(err, "user is already a member", "member user not found")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return chat, nil
}

// GetChat retrieves a chat by ID.
func (s *PostgresStore) GetChat(ctx context.Context, id int64) (*models.Chat, error) {
	chat := &models.Chat{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, is_group, avatar, created_at FROM chats WHERE id = $1
	`, id).Scan(
		&chat.ID,
		&chat.Name,
		&chat.IsGroup,
		&chat.Avatar,
		&chat.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: chat", ErrNotFound)
		}
		return nil, err
	}
	return chat, nil
}

// AddMember adds a user to a chat. The membership pair is unique.
func (s *PostgresStore) AddMember(ctx context.Context, chatID, userID int64) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO chat_members (chat_id, user_id) VALUES ($1, $2)
	`, chatID, userID)
	if err != nil {
		return mapPgError(err, "user is already a member", "chat or user not found")
	}
	return nil
}

// IsMember reports whether the user belongs to the chat. This is the
// authority the visibility gate in the handlers calls.
func (s *PostgresStore) IsMember(ctx context.Context, chatID, userID int64) (bool, error) {
	var member bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM chat_members WHERE chat_id = $1 AND user_id = $2
		)
	`, chatID, userID).Scan(&member)
	return member, err
}

// ChatsForUser retrieves all chats the user belongs to, in no particular
// order; the directory sorts its own view.
func (s *PostgresStore) ChatsForUser(ctx context.Context, userID int64) ([]models.Chat, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT c.id, c.name, c.is_group, c.avatar, c.created_at
		FROM chats c
		JOIN chat_members cm ON cm.chat_id = c.id
		WHERE cm.user_id = $1
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chats []models.Chat
	for rows.Next() {
		var c models.Chat
		if err := rows.Scan(&c.ID, &c.Name, &c.IsGroup, &c.Avatar, &c.CreatedAt); err != nil {
			return nil, err
		}
		chats = append(chats, c)
	}
	return chats, rows.Err()
}

// CountChats returns the total number of chats.
func (s *PostgresStore) CountChats(ctx context.Context) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM chats`).Scan(&n)
	return n, err
}

// AppendMessage appends a message to a chat's timeline. The timestamp is
// pinned to the chat's current maximum so it never decreases in id order;
// equal timestamps are ordered by id, which follows insertion order.
func (s *PostgresStore) AppendMessage(ctx context.Context, chatID, senderID int64, text, fileURL, fileType *string) (*models.Message, error) {
	if !validMessagePayload(text, fileURL) {
		return nil, fmt.Errorf("%w: message needs text or a file", ErrInvalidInput)
	}

	msg := &models.Message{
		ChatID:   chatID,
		SenderID: senderID,
		Text:     text,
		FileURL:  fileURL,
		FileType: fileType,
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO messages (chat_id, sender_id, text, file_url, file_type, created_at)
		VALUES ($1, $2, $3, $4, $5, GREATEST(
			clock_timestamp(),
			COALESCE((SELECT max(created_at) FROM messages WHERE chat_id = $1), clock_timestamp())
		))
		RETURNING id, created_at
	`, chatID, senderID, text, fileURL, fileType).Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		return nil, mapPgError(err, "duplicate message", "chat or sender not found")
	}
	return msg, nil
}

const messageColumns = "m.id, m.chat_id, m.sender_id, m.text, m.file_url, m.file_type, m.created_at"

// ListMessages returns the full timeline of a chat, oldest first, with
// the sender's display name joined in.
func (s *PostgresStore) ListMessages(ctx context.Context, chatID int64) ([]models.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+messageColumns+`, u.name
		FROM messages m
		JOIN users u ON u.id = m.sender_id
		WHERE m.chat_id = $1
		ORDER BY m.created_at, m.id
	`, chatID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var m models.Message
		err := rows.Scan(
			&m.ID,
			&m.ChatID,
			&m.SenderID,
			&m.Text,
			&m.FileURL,
			&m.FileType,
			&m.CreatedAt,
			&m.SenderName,
		)
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// LatestMessage returns the most recent message of a chat, or nil when
// the chat has no messages yet. One indexed lookup via
// (chat_id, created_at, id).
func (s *PostgresStore) LatestMessage(ctx context.Context, chatID int64) (*models.Message, error) {
	m := &models.Message{}
	err := s.pool.QueryRow(ctx, `
		SELECT `+messageColumns+`
		FROM messages m
		WHERE m.chat_id = $1
		ORDER BY m.created_at DESC, m.id DESC
		LIMIT 1
	`, chatID).Scan(
		&m.ID,
		&m.ChatID,
		&m.SenderID,
		&m.Text,
		&m.FileURL,
		&m.FileType,
		&m.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return m, nil
}

// CountMessages returns the total number of messages across all chats.
func (s *PostgresStore) CountMessages(ctx context.Context) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM messages`).Scan(&n)
	return n, err
}

// LastActivity returns the most recent message across all chats, or nil
// when nothing has been sent yet.
func (s *PostgresStore) LastActivity(ctx context.Context) (*models.Message, error) {
	m := &models.Message{}
	err := s.pool.QueryRow(ctx, `
		SELECT `+messageColumns+`
		FROM messages m
		ORDER BY m.created_at DESC, m.id DESC
		LIMIT 1
	`).Scan(
		&m.ID,
		&m.ChatID,
		&m.SenderID,
		&m.Text,
		&m.FileURL,
		&m.FileType,
		&m.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return m, nil
}
