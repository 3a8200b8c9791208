package models

import "time"

// Chat represents a conversation container. Direct chats have no name of
// their own; clients render the other member's name instead.
type Chat struct {
	ID        int64     `json:"id"`
	Name      *string   `json:"name"`
	IsGroup   bool      `json:"is_group"`
	Avatar    *string   `json:"avatar,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Membership grants a user visibility into a chat's timeline.
// The (chat, user) pair is unique.
type Membership struct {
	ChatID    int64     `json:"chat_id"`
	UserID    int64     `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}
