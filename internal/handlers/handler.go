package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pr-poehali-dev/speakly-messenger-2/internal/blob"
	"github.com/pr-poehali-dev/speakly-messenger-2/internal/chat"
	"github.com/pr-poehali-dev/speakly-messenger-2/internal/store"
)

// MessageCache is the optional latest-message cache shared with the chat
// directory. Appends invalidate a chat's entry; the directory repopulates
// it on the next read.
type MessageCache interface {
	chat.LatestCache
	InvalidateLatest(ctx context.Context, chatID int64) error
	Ping(ctx context.Context) error
}

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	db     store.DataStore
	cache  MessageCache
	blobs  blob.Store
	logger zerolog.Logger

	// instanceID identifies this process in health responses and logs.
	instanceID string
}

// NewHandler creates a new Handler with the given stores. cache and
// blobs may be nil; the affected endpoints degrade or 404 accordingly.
func NewHandler(db store.DataStore, cache MessageCache, blobs blob.Store, logger zerolog.Logger) *Handler {
	return &Handler{
		db:         db,
		cache:      cache,
		blobs:      blobs,
		logger:     logger,
		instanceID: uuid.NewString(),
	}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}

// StoreError maps a store error onto the wire: NotFound 404, Conflict
// 409, InvalidInput 400, anything else 500 with a generic message. Raw
// store errors are logged, never sent to clients.
func (h *Handler) StoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		h.Error(w, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrConflict):
		h.Error(w, http.StatusConflict, err.Error())
	case errors.Is(err, store.ErrInvalidInput):
		h.Error(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error().Err(err).Msg("store error")
		h.Error(w, http.StatusInternalServerError, "internal error")
	}
}

// parseID parses a positive numeric identifier from a query parameter or
// body field rendered as a string.
func parseID(s string) (int64, bool) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// formatClock renders a timestamp as the wire contract's "HH:MM", in UTC.
func formatClock(t time.Time) string {
	return t.UTC().Format("15:04")
}

// sanitizeName trims and limits a display name to 100 characters,
// removing control characters.
func sanitizeName(name string) string {
	name = strings.TrimSpace(name)

	// Remove control characters
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)

	// Limit to 100 runes; a byte slice could cut a multibyte rune in
	// half and persist invalid UTF-8.
	if utf8.RuneCountInString(name) > 100 {
		name = string([]rune(name)[:100])
	}

	return name
}
