package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/pr-poehali-dev/speakly-messenger-2/internal/metrics"
)

// MessageView represents a message in the timeline response.
type MessageView struct {
	ID       int64   `json:"id"`
	Text     *string `json:"text"`
	FileURL  *string `json:"fileUrl"`
	FileType *string `json:"fileType"`
	Time     string  `json:"time"`
	IsMine   bool    `json:"isMine"`
	Sender   string  `json:"sender"`
}

// SendMessageRequest represents the send message request body. At least
// one of text and file_url must be present; a captioned attachment
// carries both.
type SendMessageRequest struct {
	ChatID   int64   `json:"chat_id"`
	SenderID int64   `json:"sender_id"`
	Text     *string `json:"text"`
	FileURL  *string `json:"file_url"`
	FileType *string `json:"file_type"`
}

// SendMessageResponse represents the send message response.
type SendMessageResponse struct {
	ID   int64  `json:"id"`
	Time string `json:"time"`
}

// GetMessages returns a chat's full timeline, oldest first. Only members
// may see it; for anyone else the chat does not exist.
func (h *Handler) GetMessages(w http.ResponseWriter, r *http.Request) {
	chatID, ok := parseID(r.URL.Query().Get("chat_id"))
	if !ok {
		h.Error(w, http.StatusBadRequest, "chat_id is required")
		return
	}
	userID, ok := parseID(r.URL.Query().Get("user_id"))
	if !ok {
		h.Error(w, http.StatusBadRequest, "user_id is required")
		return
	}

	member, err := h.db.IsMember(r.Context(), chatID, userID)
	if err != nil {
		h.StoreError(w, err)
		return
	}
	if !member {
		h.Error(w, http.StatusNotFound, "chat not found")
		return
	}

	messages, err := h.db.ListMessages(r.Context(), chatID)
	if err != nil {
		h.StoreError(w, err)
		return
	}

	views := make([]MessageView, 0, len(messages))
	for _, m := range messages {
		views = append(views, MessageView{
			ID:       m.ID,
			Text:     m.Text,
			FileURL:  m.FileURL,
			FileType: m.FileType,
			Time:     formatClock(m.CreatedAt),
			IsMine:   m.SenderID == userID,
			Sender:   m.SenderName,
		})
	}

	h.JSON(w, http.StatusOK, views)
}

// SendMessage appends a message to a chat's timeline. The sender must be
// a member of the chat.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if req.ChatID <= 0 || req.SenderID <= 0 {
		h.Error(w, http.StatusBadRequest, "chat_id and sender_id are required")
		return
	}

	member, err := h.db.IsMember(r.Context(), req.ChatID, req.SenderID)
	if err != nil {
		h.StoreError(w, err)
		return
	}
	if !member {
		h.Error(w, http.StatusNotFound, "chat not found")
		return
	}

	msg, err := h.db.AppendMessage(r.Context(), req.ChatID, req.SenderID, req.Text, req.FileURL, req.FileType)
	if err != nil {
		h.StoreError(w, err)
		return
	}

	// Drop the chat's directory cache entry; the next read repopulates
	// it from SQL. Writing msg here instead could let a racing append
	// pin an older message as latest. The durable store stays
	// authoritative if this fails.
	if h.cache != nil {
		if err := h.cache.InvalidateLatest(r.Context(), msg.ChatID); err != nil {
			h.logger.Warn().Err(err).Int64("chat_id", msg.ChatID).Msg("latest cache invalidation failed")
		}
	}

	metrics.MessagesSent.WithLabelValues(messageKind(msg.Text, msg.FileURL)).Inc()

	h.JSON(w, http.StatusCreated, SendMessageResponse{
		ID:   msg.ID,
		Time: formatClock(msg.CreatedAt),
	})
}

func messageKind(text, fileURL *string) string {
	switch {
	case text != nil && fileURL != nil:
		return "captioned"
	case fileURL != nil:
		return "file"
	default:
		return "text"
	}
}
