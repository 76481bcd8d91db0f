package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"unicode"

	"github.com/rs/zerolog"

	"github.com/BRIKIAchraf/studyhub/internal/api/middleware"
	"github.com/BRIKIAchraf/studyhub/internal/chat"
	"github.com/BRIKIAchraf/studyhub/internal/store"
)

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	store  store.DataStore
	redis  *store.RedisStore
	chat   *chat.Service
	logger zerolog.Logger
}

// NewHandler creates a new Handler. redis may be nil when no Redis is
// configured; the leaderboard then falls back to the SQL store.
func NewHandler(st store.DataStore, redis *store.RedisStore, chatSvc *chat.Service, logger zerolog.Logger) *Handler {
	return &Handler{store: st, redis: redis, chat: chatSvc, logger: logger}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}

// currentUser pulls the authenticated user out of the request context. The
// auth middleware guarantees it is present on protected routes.
func (h *Handler) currentUser(w http.ResponseWriter, r *http.Request) (*middleware.AuthUser, bool) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return nil, false
	}
	return user, true
}

func userInfo(u *middleware.AuthUser) chat.UserInfo {
	return chat.UserInfo{ID: u.ID, Name: u.Name, Role: u.Role}
}

// sanitizeTitle trims and limits a title to 200 characters, removing control
// characters.
func sanitizeTitle(title string) string {
	title = strings.TrimSpace(title)

	title = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, title)

	if len(title) > 200 {
		title = title[:200]
	}

	return title
}
