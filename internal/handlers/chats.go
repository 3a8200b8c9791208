package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/pr-poehali-dev/speakly-messenger-2/internal/chat"
	"github.com/pr-poehali-dev/speakly-messenger-2/internal/metrics"
)

// ChatSummary represents one row of the chat list.
type ChatSummary struct {
	ID          int64   `json:"id"`
	Name        *string `json:"name"`
	IsGroup     bool    `json:"isGroup"`
	Avatar      *string `json:"avatar"`
	LastMessage string  `json:"lastMessage"`
	Time        string  `json:"time"`
	Unread      int     `json:"unread"` // always 0; tracking is out of scope
}

// CreateChatRequest represents the chat creation request body.
type CreateChatRequest struct {
	UserID       int64   `json:"user_id"`
	TargetUserID int64   `json:"target_user_id"`
	IsGroup      bool    `json:"is_group"`
	Name         *string `json:"name"`
	// MemberIDs lets group chats start with more than two members.
	MemberIDs []int64 `json:"member_ids,omitempty"`
}

// CreateChatResponse represents the chat creation response.
type CreateChatResponse struct {
	ChatID int64 `json:"chat_id"`
}

// AddMemberRequest represents the add member request body.
type AddMemberRequest struct {
	ChatID int64 `json:"chat_id"`
	UserID int64 `json:"user_id"`
}

// ListChats returns the caller's chat list: one summary per chat,
// most recently active first, chats without messages last.
func (h *Handler) ListChats(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseID(r.URL.Query().Get("user_id"))
	if !ok {
		h.Error(w, http.StatusBadRequest, "user_id is required")
		return
	}

	// Resolve identity before deriving the view.
	if _, err := h.db.GetUserByID(r.Context(), userID); err != nil {
		h.StoreError(w, err)
		return
	}

	var cache chat.LatestCache
	if h.cache != nil {
		cache = h.cache
	}
	summaries, err := chat.Summarize(r.Context(), h.db, cache, userID)
	if err != nil {
		h.StoreError(w, err)
		return
	}

	out := make([]ChatSummary, 0, len(summaries))
	for _, s := range summaries {
		row := ChatSummary{
			ID:          s.ChatID,
			Name:        s.Name,
			IsGroup:     s.IsGroup,
			Avatar:      s.Avatar,
			LastMessage: s.LastText,
		}
		if s.LastAt != nil {
			row.Time = formatClock(*s.LastAt)
		}
		out = append(out, row)
	}

	h.JSON(w, http.StatusOK, out)
}

// CreateChat creates a chat together with all its memberships in one
// atomic unit; a chat without its members is never observable.
func (h *Handler) CreateChat(w http.ResponseWriter, r *http.Request) {
	var req CreateChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if req.UserID <= 0 {
		h.Error(w, http.StatusBadRequest, "user_id is required")
		return
	}

	members := []int64{req.UserID}
	if req.TargetUserID > 0 {
		members = append(members, req.TargetUserID)
	}
	if req.IsGroup {
		members = append(members, req.MemberIDs...)
	}

	created, err := h.db.CreateChat(r.Context(), req.Name, req.IsGroup, members)
	if err != nil {
		h.StoreError(w, err)
		return
	}

	kind := "direct"
	if created.IsGroup {
		kind = "group"
	}
	metrics.ChatsCreated.WithLabelValues(kind).Inc()

	h.JSON(w, http.StatusCreated, CreateChatResponse{ChatID: created.ID})
}

// AddMember adds a user to an existing chat. The pair is unique: adding
// a member twice is a conflict.
func (h *Handler) AddMember(w http.ResponseWriter, r *http.Request) {
	var req AddMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if req.ChatID <= 0 || req.UserID <= 0 {
		h.Error(w, http.StatusBadRequest, "chat_id and user_id are required")
		return
	}

	if _, err := h.db.GetChat(r.Context(), req.ChatID); err != nil {
		h.StoreError(w, err)
		return
	}
	if _, err := h.db.GetUserByID(r.Context(), req.UserID); err != nil {
		h.StoreError(w, err)
		return
	}

	if err := h.db.AddMember(r.Context(), req.ChatID, req.UserID); err != nil {
		h.StoreError(w, err)
		return
	}

	h.JSON(w, http.StatusCreated, AddMemberRequest{ChatID: req.ChatID, UserID: req.UserID})
}
