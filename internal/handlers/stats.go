package handlers

import (
	"net/http"

	"github.com/BRIKIAchraf/studyhub/internal/models"
)

// AdminStats handles GET /api/admin/stats. Admin only.
func (h *Handler) AdminStats(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	if user.Role != models.RoleAdmin {
		h.Error(w, http.StatusForbidden, "admin only")
		return
	}

	stats, err := h.store.Stats(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("load stats failed")
		h.Error(w, http.StatusInternalServerError, "failed to load stats")
		return
	}

	h.JSON(w, http.StatusOK, stats)
}
