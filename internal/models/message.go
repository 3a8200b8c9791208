package models

import "time"

// Message is one entry of a chat's append-only timeline. Text is nil for
// bare attachments; FileURL/FileType are nil for plain text. CreatedAt is
// assigned by the store at append time and never decreases within a chat
// in insertion order.
type Message struct {
	ID       int64   `json:"id"`
	ChatID   int64   `json:"chat_id"`
	SenderID int64   `json:"sender_id"`
	Text     *string `json:"text"`
	FileURL  *string `json:"file_url,omitempty"`
	FileType *string `json:"file_type,omitempty"`

	CreatedAt time.Time `json:"created_at"`

	// SenderName is joined in by timeline reads; it is not a column of
	// the messages table.
	SenderName string `json:"-"`
}
