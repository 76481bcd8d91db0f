package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/BRIKIAchraf/studyhub/internal/models"
)

// CreateCourseRequest is the payload for creating a course.
type CreateCourseRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	ExamDate    string `json:"exam_date"` // RFC 3339, optional
}

// CreateCourse handles POST /api/courses. Only professors and admins create
// courses; the caller becomes the owner.
func (h *Handler) CreateCourse(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	if user.Role != models.RoleProfessor && user.Role != models.RoleAdmin {
		h.Error(w, http.StatusForbidden, "only professors can create courses")
		return
	}

	var req CreateCourseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	title := sanitizeTitle(req.Title)
	if title == "" {
		h.Error(w, http.StatusBadRequest, "title is required")
		return
	}

	course := &models.Course{
		Title:       title,
		Description: req.Description,
		ProfessorID: user.ID,
	}
	if req.ExamDate != "" {
		examDate, err := time.Parse(time.RFC3339, req.ExamDate)
		if err != nil {
			h.Error(w, http.StatusBadRequest, "exam_date must be RFC 3339")
			return
		}
		course.ExamDate = &examDate
	}

	if err := h.store.CreateCourse(r.Context(), course); err != nil {
		h.logger.Error().Err(err).Msg("create course failed")
		h.Error(w, http.StatusInternalServerError, "failed to create course")
		return
	}

	h.JSON(w, http.StatusCreated, course)
}

// ListCourses handles GET /api/courses: the courses the caller owns plus the
// ones they hold an approved enrollment in.
func (h *Handler) ListCourses(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	courses, err := h.store.ListCoursesForUser(r.Context(), user.ID)
	if err != nil {
		h.logger.Error().Err(err).Msg("list courses failed")
		h.Error(w, http.StatusInternalServerError, "failed to list courses")
		return
	}
	if courses == nil {
		courses = []models.Course{}
	}

	h.JSON(w, http.StatusOK, map[string]any{"courses": courses})
}

// courseIDParam parses the {id} route parameter.
func (h *Handler) courseIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid course ID")
		return uuid.Nil, false
	}
	return id, true
}
