package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/pr-poehali-dev/speakly-messenger-2/internal/models"
)

// SQLiteStore handles SQLite database operations. It is the development
// fallback when DATABASE_URL is unset and the backend used in tests.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/speakly.db"
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/speakly.db"
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

	// One connection: SQLite serializes writers anyway, and a second
	// connection would surface SQLITE_BUSY instead of queueing.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}

	if err := store.initSchema(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		phone TEXT UNIQUE NOT NULL,
		username TEXT UNIQUE NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		avatar TEXT,
		verified INTEGER NOT NULL DEFAULT 0,
		enot_coins INTEGER NOT NULL DEFAULT 0,
		balance_rub INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS chats (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT,
		is_group INTEGER NOT NULL DEFAULT 0,
		avatar TEXT,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS chat_members (
		chat_id INTEGER NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
		user_id INTEGER NOT NULL REFERENCES users(id),
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (chat_id, user_id)
	);

	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		chat_id INTEGER NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
		sender_id INTEGER NOT NULL REFERENCES users(id),
		text TEXT,
		file_url TEXT,
		file_type TEXT,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_messages_chat_created ON messages(chat_id, created_at, id);
	CREATE INDEX IF NOT EXISTS idx_chat_members_user ON chat_members(user_id);
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

// mapSQLiteError translates driver constraint errors into the store
// taxonomy, mirroring mapPgError for the PostgreSQL store.
func mapSQLiteError(err error, conflictMsg, notFoundMsg string) error {
	var se sqlite3.Error
	if errors.As(err, &se) {
		switch se.ExtendedCode {
		case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
			return fmt.Errorf("%w: %s", ErrConflict, conflictMsg)
		case sqlite3.ErrConstraintForeignKey:
			return fmt.Errorf("%w: %s", ErrNotFound, notFoundMsg)
		}
	}
	return err
}

// CreateUser creates a new user record.
func (s *SQLiteStore) CreateUser(ctx context.Context, phone, name, username string) (*models.User, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO users (phone, name, username, created_at)
		VALUES (?, ?, ?, ?)
	`, phone, name, username, time.Now().UTC())
	if err != nil {
		return nil, mapSQLiteError(err, "phone or username already registered", "referenced entity missing")
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return s.GetUserByID(ctx, id)
}

func (s *SQLiteStore) scanUserRow(row *sql.Row) (*models.User, error) {
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
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: user", ErrNotFound)
		}
		return nil, err
	}
	return u, nil
}

// GetUserByPhone retrieves a user by exact phone match.
func (s *SQLiteStore) GetUserByPhone(ctx context.Context, phone string) (*models.User, error) {
	return s.scanUserRow(s.db.QueryRowContext(ctx, `
		SELECT id, phone, username, name, avatar, verified, enot_coins, balance_rub, created_at
		FROM users WHERE phone = ?
	`, phone))
}

// GetUserByID retrieves a user by ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	return s.scanUserRow(s.db.QueryRowContext(ctx, `
		SELECT id, phone, username, name, avatar, verified, enot_coins, balance_rub, created_at
		FROM users WHERE id = ?
	`, id))
}

// SearchUsers matches the query case-insensitively as a substring of
// username or display name. SQLite's LIKE is case-insensitive for ASCII.
func (s *SQLiteStore) SearchUsers(ctx context.Context, query string, limit int) ([]models.User, error) {
	pattern := likePattern(query)
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, phone, username, name, avatar, verified, enot_coins, balance_rub, created_at
		FROM users
		WHERE username LIKE ? ESCAPE '\' OR name LIKE ? ESCAPE '\'
		ORDER BY id
		LIMIT ?
	`, pattern, pattern, limit)
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
func (s *SQLiteStore) CountUsers(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n)
	return n, err
}

// CreateChat creates a chat and all its memberships in one transaction.
func (s *SQLiteStore) CreateChat(ctx context.Context, name *string, isGroup bool, memberIDs []int64) (*models.Chat, error) {
	if len(memberIDs) < 2 {
		return nil, fmt.Errorf("%w: a chat needs at least two members", ErrInvalidInput)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx, `
		INSERT INTO chats (name, is_group, created_at) VALUES (?, ?, ?)
	`, name, isGroup, now)
	if err != nil {
		return nil, err
	}
	chatID, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}

	for _, userID := range memberIDs {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO chat_members (chat_id, user_id, created_at) VALUES (?, ?, ?)
		`, chatID, userID, now)
		if err != nil {
			return nil, mapSQLiteError(err, "user is already a member", "member user not found")
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return &models.Chat{ID: chatID, Name: name, IsGroup: isGroup, CreatedAt: now}, nil
}

// GetChat retrieves a chat by ID.
func (s *SQLiteStore) GetChat(ctx context.Context, id int64) (*models.Chat, error) {
	chat := &models.Chat{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, is_group, avatar, created_at FROM chats WHERE id = ?
	`, id).Scan(
		&chat.ID,
		&chat.Name,
		&chat.IsGroup,
		&chat.Avatar,
		&chat.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: chat", ErrNotFound)
		}
		return nil, err
	}
	return chat, nil
}

// AddMember adds a user to a chat.
func (s *SQLiteStore) AddMember(ctx context.Context, chatID, userID int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chat_members (chat_id, user_id, created_at) VALUES (?, ?, ?)
	`, chatID, userID, time.Now().UTC())
	if err != nil {
		return mapSQLiteError(err, "user is already a member", "chat or user not found")
	}
	return nil
}

// IsMember reports whether the user belongs to the chat.
func (s *SQLiteStore) IsMember(ctx context.Context, chatID, userID int64) (bool, error) {
	var member bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM chat_members WHERE chat_id = ? AND user_id = ?
		)
	`, chatID, userID).Scan(&member)
	return member, err
}

// ChatsForUser retrieves all chats the user belongs to.
func (s *SQLiteStore) ChatsForUser(ctx context.Context, userID int64) ([]models.Chat, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.name, c.is_group, c.avatar, c.created_at
		FROM chats c
		JOIN chat_members cm ON cm.chat_id = c.id
		WHERE cm.user_id = ?
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
func (s *SQLiteStore) CountChats(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chats`).Scan(&n)
	return n, err
}

// AppendMessage appends a message to a chat's timeline. The timestamp is
// computed inside the write transaction: never before the chat's current
// maximum, so per-chat order follows insertion order with id as the tie
// break.
func (s *SQLiteStore) AppendMessage(ctx context.Context, chatID, senderID int64, text, fileURL, fileType *string) (*models.Message, error) {
	if !validMessagePayload(text, fileURL) {
		return nil, fmt.Errorf("%w: message needs text or a file", ErrInvalidInput)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	ts := time.Now().UTC()
	var latest time.Time
	err = tx.QueryRowContext(ctx, `
		SELECT created_at FROM messages
		WHERE chat_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, chatID).Scan(&latest)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if latest.After(ts) {
		ts = latest
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO messages (chat_id, sender_id, text, file_url, file_type, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, chatID, senderID, text, fileURL, fileType, ts)
	if err != nil {
		return nil, mapSQLiteError(err, "duplicate message", "chat or sender not found")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return &models.Message{
		ID:        id,
		ChatID:    chatID,
		SenderID:  senderID,
		Text:      text,
		FileURL:   fileURL,
		FileType:  fileType,
		CreatedAt: ts,
	}, nil
}

// ListMessages returns the full timeline of a chat, oldest first.
func (s *SQLiteStore) ListMessages(ctx context.Context, chatID int64) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id, m.chat_id, m.sender_id, m.text, m.file_url, m.file_type, m.created_at, u.name
		FROM messages m
		JOIN users u ON u.id = m.sender_id
		WHERE m.chat_id = ?
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

func (s *SQLiteStore) scanMessageRow(row *sql.Row) (*models.Message, error) {
	m := &models.Message{}
	err := row.Scan(
		&m.ID,
		&m.ChatID,
		&m.SenderID,
		&m.Text,
		&m.FileURL,
		&m.FileType,
		&m.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return m, nil
}

// LatestMessage returns the most recent message of a chat, or nil.
func (s *SQLiteStore) LatestMessage(ctx context.Context, chatID int64) (*models.Message, error) {
	return s.scanMessageRow(s.db.QueryRowContext(ctx, `
		SELECT id, chat_id, sender_id, text, file_url, file_type, created_at
		FROM messages
		WHERE chat_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, chatID))
}

// CountMessages returns the total number of messages across all chats.
func (s *SQLiteStore) CountMessages(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&n)
	return n, err
}

// LastActivity returns the most recent message across all chats, or nil.
func (s *SQLiteStore) LastActivity(ctx context.Context) (*models.Message, error) {
	return s.scanMessageRow(s.db.QueryRowContext(ctx, `
		SELECT id, chat_id, sender_id, text, file_url, file_type, created_at
		FROM messages
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`))
}
