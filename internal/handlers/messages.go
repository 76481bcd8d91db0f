package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/BRIKIAchraf/studyhub/internal/access"
	"github.com/BRIKIAchraf/studyhub/internal/chat"
	"github.com/BRIKIAchraf/studyhub/internal/models"
)

// ListMessages handles GET /api/courses/{id}/messages. The access gate runs
// inside the chat service; history comes back in creation order.
func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	courseID, ok := h.courseIDParam(w, r)
	if !ok {
		return
	}

	messages, err := h.chat.History(r.Context(), userInfo(user), courseID)
	if err != nil {
		switch {
		case errors.Is(err, access.ErrCourseNotFound):
			h.Error(w, http.StatusNotFound, "course not found")
		case errors.Is(err, chat.ErrDenied):
			h.Error(w, http.StatusForbidden, "not permitted for this course")
		default:
			h.logger.Error().Err(err).Msg("list messages failed")
			h.Error(w, http.StatusInternalServerError, "failed to list messages")
		}
		return
	}
	if messages == nil {
		messages = []models.Message{}
	}

	h.JSON(w, http.StatusOK, map[string]any{"messages": messages})
}

// UnreadCountResponse is the payload for the unread-count endpoint.
type UnreadCountResponse struct {
	CourseID string `json:"course_id"`
	Count    int64  `json:"count"`
}

// UnreadCount handles GET /api/courses/{id}/unread-count. Clients track
// their own read cursor; the server reports the room's message count.
func (h *Handler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	courseID, ok := h.courseIDParam(w, r)
	if !ok {
		return
	}

	// Same visibility rule as history.
	if err := h.chat.CanView(r.Context(), userInfo(user), courseID); err != nil {
		switch {
		case errors.Is(err, access.ErrCourseNotFound):
			h.Error(w, http.StatusNotFound, "course not found")
		case errors.Is(err, chat.ErrDenied):
			h.Error(w, http.StatusForbidden, "not permitted for this course")
		default:
			h.logger.Error().Err(err).Msg("unread count failed")
			h.Error(w, http.StatusInternalServerError, "failed to count messages")
		}
		return
	}

	count, err := h.store.CountMessages(r.Context(), courseID)
	if err != nil {
		h.logger.Error().Err(err).Msg("count messages failed")
		h.Error(w, http.StatusInternalServerError, "failed to count messages")
		return
	}

	h.JSON(w, http.StatusOK, UnreadCountResponse{CourseID: courseID.String(), Count: count})
}

// PinMessageRequest is the payload for the pin endpoint.
type PinMessageRequest struct {
	Pinned bool `json:"pinned"`
}

// PinMessage handles PUT /api/courses/{id}/messages/{messageID}/pin. Owner
// only; the room learns about the change over the live channel.
func (h *Handler) PinMessage(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	courseID, ok := h.courseIDParam(w, r)
	if !ok {
		return
	}

	messageID := chi.URLParam(r, "messageID")
	if messageID == "" {
		h.Error(w, http.StatusBadRequest, "invalid message ID")
		return
	}

	var req PinMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := h.chat.Pin(r.Context(), userInfo(user), courseID, messageID, req.Pinned); err != nil {
		switch {
		case errors.Is(err, chat.ErrMessageNotFound):
			h.Error(w, http.StatusNotFound, "message not found")
		case errors.Is(err, chat.ErrDenied):
			h.Error(w, http.StatusForbidden, "only the course owner can pin messages")
		default:
			h.logger.Error().Err(err).Msg("pin message failed")
			h.Error(w, http.StatusInternalServerError, "failed to pin message")
		}
		return
	}

	h.JSON(w, http.StatusOK, map[string]any{"message_id": messageID, "is_pinned": req.Pinned})
}
