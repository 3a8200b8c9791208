package handlers

import (
	"net/http"
	"strings"

	"github.com/pr-poehali-dev/speakly-messenger-2/internal/metrics"
)

// searchLimit caps contact search results per query.
const searchLimit = 20

// UserSummary represents a user in search results.
type UserSummary struct {
	ID       int64   `json:"id"`
	Username string  `json:"username"`
	Name     string  `json:"name"`
	Avatar   *string `json:"avatar"`
}

// SearchUsers handles contact discovery: case-insensitive substring match
// on username or display name, at most 20 rows in stable id order. An
// empty query returns no results rather than an arbitrary first page.
func (h *Handler) SearchUsers(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("query"))

	metrics.SearchQueries.Inc()

	results := make([]UserSummary, 0, searchLimit)
	if query == "" {
		h.JSON(w, http.StatusOK, results)
		return
	}

	users, err := h.db.SearchUsers(r.Context(), query, searchLimit)
	if err != nil {
		h.StoreError(w, err)
		return
	}

	for _, u := range users {
		results = append(results, UserSummary{
			ID:       u.ID,
			Username: u.Username,
			Name:     u.Name,
			Avatar:   u.Avatar,
		})
	}

	h.JSON(w, http.StatusOK, results)
}
