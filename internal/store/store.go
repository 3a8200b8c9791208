package store

import (
	"context"
	"errors"
	"strings"

	"github.com/pr-poehali-dev/speakly-messenger-2/internal/models"
)

// Sentinel errors returned by DataStore implementations. Handlers map
// these to HTTP status codes; anything else is an internal error.
var (
	// ErrNotFound means a referenced user, chat or membership is absent.
	ErrNotFound = errors.New("not found")
	// ErrConflict means a uniqueness constraint was violated (phone,
	// username, or membership pair).
	ErrConflict = errors.New("conflict")
	// ErrInvalidInput means a malformed or incomplete payload.
	ErrInvalidInput = errors.New("invalid input")
)

// DataStore defines the interface for persistent storage of users, chats,
// memberships and messages. Both PostgresStore and SQLiteStore implement
// this interface. All multi-step operations (chat + memberships) are a
// single transaction: partial completion is never observable.
type DataStore interface {
	// Connection management
	Close()
	Ping(ctx context.Context) error

	// Identity operations
	CreateUser(ctx context.Context, phone, name, username string) (*models.User, error)
	GetUserByPhone(ctx context.Context, phone string) (*models.User, error)
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	SearchUsers(ctx context.Context, query string, limit int) ([]models.User, error)
	CountUsers(ctx context.Context) (int64, error)

	// Membership operations
	CreateChat(ctx context.Context, name *string, isGroup bool, memberIDs []int64) (*models.Chat, error)
	GetChat(ctx context.Context, id int64) (*models.Chat, error)
	AddMember(ctx context.Context, chatID, userID int64) error
	IsMember(ctx context.Context, chatID, userID int64) (bool, error)
	ChatsForUser(ctx context.Context, userID int64) ([]models.Chat, error)
	CountChats(ctx context.Context) (int64, error)

	// Timeline operations
	AppendMessage(ctx context.Context, chatID, senderID int64, text, fileURL, fileType *string) (*models.Message, error)
	ListMessages(ctx context.Context, chatID int64) ([]models.Message, error)
	LatestMessage(ctx context.Context, chatID int64) (*models.Message, error)
	CountMessages(ctx context.Context) (int64, error)
	LastActivity(ctx context.Context) (*models.Message, error)
}

// hasContent reports whether a nullable string field carries a value.
func hasContent(s *string) bool {
	return s != nil && strings.TrimSpace(*s) != ""
}

// validMessagePayload enforces the append contract: at least one of text
// or file URL must be present (a captioned attachment carries both).
func validMessagePayload(text, fileURL *string) bool {
	return hasContent(text) || hasContent(fileURL)
}

// likePattern escapes LIKE metacharacters in a search query and wraps it
// for substring matching. Both stores use backslash as the escape char.
func likePattern(query string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(query) + "%"
}
