package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/BRIKIAchraf/studyhub/internal/chat"
	"github.com/BRIKIAchraf/studyhub/internal/metrics"
	"github.com/BRIKIAchraf/studyhub/internal/models"
	"github.com/BRIKIAchraf/studyhub/internal/store"
)

// RecordSessionRequest is the payload for recording a study session.
type RecordSessionRequest struct {
	DurationMinutes int    `json:"duration_minutes"`
	Notes           string `json:"notes"`
	Kind            string `json:"kind"` // "stopwatch" or "timer"
}

// RecordSessionResponse returns the stored session plus the reward applied
// to the caller's account.
type RecordSessionResponse struct {
	Session *models.StudySession `json:"session"`
	Streak  int                  `json:"streak"`
	Points  int64                `json:"points_earned"`
}

// RecordSession handles POST /api/courses/{id}/sessions. The session row
// and the streak/points update commit in one transaction.
func (h *Handler) RecordSession(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	courseID, ok := h.courseIDParam(w, r)
	if !ok {
		return
	}

	if err := h.chat.CanView(r.Context(), userInfo(user), courseID); err != nil {
		switch {
		case errors.Is(err, chat.ErrDenied):
			h.Error(w, http.StatusForbidden, "not permitted for this course")
		default:
			h.Error(w, http.StatusNotFound, "course not found")
		}
		return
	}

	var req RecordSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.DurationMinutes < 0 {
		h.Error(w, http.StatusBadRequest, "duration_minutes must not be negative")
		return
	}
	if req.Kind == "" {
		req.Kind = "stopwatch"
	}

	session := &models.StudySession{
		CourseID:        courseID,
		UserID:          user.ID,
		DurationMinutes: req.DurationMinutes,
		Notes:           req.Notes,
		Kind:            req.Kind,
	}
	reward, err := h.store.RecordStudySession(r.Context(), session)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.Error(w, http.StatusNotFound, "user not found")
			return
		}
		h.logger.Error().Err(err).Msg("record study session failed")
		h.Error(w, http.StatusInternalServerError, "failed to record session")
		return
	}

	metrics.StudySessionsRecorded.Inc()
	metrics.StreakLength.Observe(float64(reward.Streak))

	// The leaderboard is a cache; failing to update it must not fail the
	// session write.
	if h.redis != nil {
		account, err := h.store.GetUser(r.Context(), user.ID)
		if err == nil && account != nil {
			if err := h.redis.SetLeaderboardScore(r.Context(), user.ID, account.Points); err != nil {
				h.logger.Warn().Err(err).Msg("leaderboard update failed")
			}
		}
	}

	h.JSON(w, http.StatusCreated, RecordSessionResponse{
		Session: session,
		Streak:  reward.Streak,
		Points:  reward.Points,
	})
}
