package handlers

import (
	"net/http"
	"strconv"
	"time"
)

// StatsResponse represents the response from the stats endpoint.
type StatsResponse struct {
	TotalUsers    int64  `json:"total_users"`
	TotalChats    int64  `json:"total_chats"`
	TotalMessages int64  `json:"total_messages"`
	LastActivity  string `json:"last_activity"`
}

// Stats returns platform-wide totals for dashboards.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	totalUsers, err := h.db.CountUsers(ctx)
	if err != nil {
		h.StoreError(w, err)
		return
	}

	totalChats, err := h.db.CountChats(ctx)
	if err != nil {
		h.StoreError(w, err)
		return
	}

	totalMessages, err := h.db.CountMessages(ctx)
	if err != nil {
		h.StoreError(w, err)
		return
	}

	lastActivity := "no activity yet"
	latest, err := h.db.LastActivity(ctx)
	if err != nil {
		h.StoreError(w, err)
		return
	}
	if latest != nil {
		lastActivity = formatTimeAgo(latest.CreatedAt)
	}

	h.JSON(w, http.StatusOK, StatsResponse{
		TotalUsers:    totalUsers,
		TotalChats:    totalChats,
		TotalMessages: totalMessages,
		LastActivity:  lastActivity,
	})
}

// formatTimeAgo formats a time as a human-readable "X ago" string.
func formatTimeAgo(t time.Time) string {
	diff := time.Since(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		mins := int(diff.Minutes())
		if mins == 1 {
			return "1 minute ago"
		}
		return strconv.Itoa(mins) + " minutes ago"
	case diff < 24*time.Hour:
		hours := int(diff.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return strconv.Itoa(hours) + " hours ago"
	default:
		days := int(diff.Hours() / 24)
		if days == 1 {
			return "1 day ago"
		}
		return strconv.Itoa(days) + " days ago"
	}
}
