package handlers

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
)

const defaultLeaderboardSize = 10

// LeaderboardEntry is one ranked row of the points leaderboard.
type LeaderboardEntry struct {
	Rank   int       `json:"rank"`
	UserID uuid.UUID `json:"user_id"`
	Name   string    `json:"name"`
	Points int64     `json:"points"`
	Streak int       `json:"streak"`
}

// Leaderboard handles GET /api/leaderboard. Rankings come from the Redis
// sorted set when available, with names resolved from the user store; the
// SQL store serves as fallback so the endpoint works without Redis.
func (h *Handler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	limit := defaultLeaderboardSize
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 100 {
			h.Error(w, http.StatusBadRequest, "limit must be between 1 and 100")
			return
		}
		limit = n
	}

	if h.redis != nil {
		if entries, err := h.leaderboardFromRedis(r, limit); err == nil {
			resp := map[string]any{"leaderboard": entries}
			if rank, err := h.redis.LeaderboardRank(r.Context(), user.ID); err == nil && rank > 0 {
				resp["your_rank"] = rank
			}
			h.JSON(w, http.StatusOK, resp)
			return
		} else {
			h.logger.Warn().Err(err).Msg("redis leaderboard unavailable, using store")
		}
	}

	users, err := h.store.ListTopUsers(r.Context(), limit)
	if err != nil {
		h.logger.Error().Err(err).Msg("list top users failed")
		h.Error(w, http.StatusInternalServerError, "failed to load leaderboard")
		return
	}

	entries := make([]LeaderboardEntry, 0, len(users))
	for i, u := range users {
		entries = append(entries, LeaderboardEntry{
			Rank:   i + 1,
			UserID: u.ID,
			Name:   u.Name,
			Points: u.Points,
			Streak: u.Streak,
		})
	}
	h.JSON(w, http.StatusOK, map[string]any{"leaderboard": entries})
}

func (h *Handler) leaderboardFromRedis(r *http.Request, limit int) ([]LeaderboardEntry, error) {
	top, err := h.redis.TopLeaderboard(r.Context(), limit)
	if err != nil {
		return nil, err
	}

	entries := make([]LeaderboardEntry, 0, len(top))
	for i, row := range top {
		entry := LeaderboardEntry{Rank: i + 1, UserID: row.UserID, Points: row.Points}
		if user, err := h.store.GetUser(r.Context(), row.UserID); err == nil && user != nil {
			entry.Name = user.Name
			entry.Streak = user.Streak
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
