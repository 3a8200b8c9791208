package handlers

import (
	"encoding/json"
	"net/http"
	"regexp"
	"strings"

	"github.com/pr-poehali-dev/speakly-messenger-2/internal/chat"
	"github.com/pr-poehali-dev/speakly-messenger-2/internal/metrics"
	"github.com/pr-poehali-dev/speakly-messenger-2/internal/models"
)

// usernameRegex validates explicit usernames: letters, digits and
// underscores, 3-32 chars. Derived defaults ("user" + phone suffix)
// satisfy it by construction.
var usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_]{3,32}$`)

// RegisterRequest represents the registration request body.
type RegisterRequest struct {
	Phone    string `json:"phone"`
	Name     string `json:"name"`
	Username string `json:"username,omitempty"`
}

// LoginRequest represents the login request body.
type LoginRequest struct {
	Phone string `json:"phone"`
}

// UserProfile is the wire shape of an account. Avatar, verified and the
// balances appear only after login; registration returns the short form.
type UserProfile struct {
	ID         int64   `json:"id"`
	Username   string  `json:"username"`
	Name       string  `json:"name"`
	Phone      string  `json:"phone"`
	Avatar     *string `json:"avatar,omitempty"`
	Verified   *bool   `json:"verified,omitempty"`
	EnotCoins  *int64  `json:"enotCoins,omitempty"`
	BalanceRub *int64  `json:"balanceRub,omitempty"`
}

func shortProfile(u *models.User) UserProfile {
	return UserProfile{
		ID:       u.ID,
		Username: u.Username,
		Name:     u.Name,
		Phone:    u.Phone,
	}
}

func fullProfile(u *models.User) UserProfile {
	p := shortProfile(u)
	p.Avatar = u.Avatar
	p.Verified = &u.Verified
	p.EnotCoins = &u.EnotCoins
	p.BalanceRub = &u.BalanceRub
	return p
}

// Register handles user registration. A missing username defaults to
// "user" plus the trailing digits of the phone; if either phone or
// username (derived ones included) is taken, the registration fails with
// a conflict.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	req.Phone = strings.TrimSpace(req.Phone)
	if req.Phone == "" {
		h.Error(w, http.StatusBadRequest, "phone is required")
		return
	}

	name := sanitizeName(req.Name)
	if name == "" {
		h.Error(w, http.StatusBadRequest, "name is required")
		return
	}

	username := strings.TrimSpace(req.Username)
	if username == "" {
		username = chat.DeriveUsername(req.Phone)
	} else if !usernameRegex.MatchString(username) {
		h.Error(w, http.StatusBadRequest, "username must be 3-32 characters, letters, digits and underscores only")
		return
	}

	user, err := h.db.CreateUser(r.Context(), req.Phone, name, username)
	if err != nil {
		h.StoreError(w, err)
		return
	}

	metrics.UsersRegistered.Inc()
	h.JSON(w, http.StatusCreated, shortProfile(user))
}

// Login resolves an account by exact phone match and returns the full
// profile.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	req.Phone = strings.TrimSpace(req.Phone)
	if req.Phone == "" {
		h.Error(w, http.StatusBadRequest, "phone is required")
		return
	}

	user, err := h.db.GetUserByPhone(r.Context(), req.Phone)
	if err != nil {
		h.StoreError(w, err)
		return
	}

	h.JSON(w, http.StatusOK, fullProfile(user))
}
