// Package chat holds the domain rules of the Speakly data layer that are
// independent of any particular storage engine: default username
// derivation and the chat-directory view. The directory is a pure
// function over the membership and timeline sources, so a materialized
// variant can replace it without changing its contract.
package chat

import (
	"context"
	"sort"
	"time"

	"github.com/pr-poehali-dev/speakly-messenger-2/internal/models"
)

// DirectorySource is the slice of the data store the directory reads.
type DirectorySource interface {
	ChatsForUser(ctx context.Context, userID int64) ([]models.Chat, error)
	LatestMessage(ctx context.Context, chatID int64) (*models.Message, error)
}

// LatestCache is an optional accelerator for per-chat latest messages.
// A nil message with a nil error is a miss; misses and errors both fall
// through to the DirectorySource, and the directory repopulates the
// entry after a fallback read. Appends invalidate entries rather than
// overwrite them, so a cache hit is never older than the store.
type LatestCache interface {
	GetLatest(ctx context.Context, chatID int64) (*models.Message, error)
	SetLatest(ctx context.Context, msg *models.Message) error
}

// Summary is the condensed per-chat view shown in a chat list. LastAt is
// nil for chats with no messages yet.
type Summary struct {
	ChatID   int64
	Name     *string
	IsGroup  bool
	Avatar   *string
	LastText string
	LastAt   *time.Time
}

// Summarize builds the chat list for a user: one summary per chat the
// user belongs to, most recently active first. Chats without messages
// sort after all chats with messages; within either group ties break by
// ascending chat id so the output is deterministic.
func Summarize(ctx context.Context, src DirectorySource, cache LatestCache, userID int64) ([]Summary, error) {
	chats, err := src.ChatsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	summaries := make([]Summary, 0, len(chats))
	for _, c := range chats {
		var latest *models.Message
		if cache != nil {
			if m, err := cache.GetLatest(ctx, c.ID); err == nil {
				latest = m
			}
		}
		if latest == nil {
			latest, err = src.LatestMessage(ctx, c.ID)
			if err != nil {
				return nil, err
			}
			if cache != nil && latest != nil {
				// Best effort; a failed write just means another
				// fallback read next time.
				cache.SetLatest(ctx, latest)
			}
		}

		s := Summary{
			ChatID:  c.ID,
			Name:    c.Name,
			IsGroup: c.IsGroup,
			Avatar:  c.Avatar,
		}
		if latest != nil {
			if latest.Text != nil {
				s.LastText = *latest.Text
			}
			t := latest.CreatedAt
			s.LastAt = &t
		}
		summaries = append(summaries, s)
	}

	sortSummaries(summaries)
	return summaries, nil
}

func sortSummaries(s []Summary) {
	sort.Slice(s, func(i, j int) bool {
		a, b := s[i], s[j]
		switch {
		case a.LastAt == nil && b.LastAt == nil:
			return a.ChatID < b.ChatID
		case a.LastAt == nil:
			return false
		case b.LastAt == nil:
			return true
		case !a.LastAt.Equal(*b.LastAt):
			return a.LastAt.After(*b.LastAt)
		default:
			return a.ChatID < b.ChatID
		}
	})
}
