package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/BRIKIAchraf/studyhub/internal/models"
)

// RequestEnrollment handles POST /api/courses/{id}/enroll. The request
// starts pending; repeating it returns the existing record instead of
// duplicating it.
func (h *Handler) RequestEnrollment(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	courseID, ok := h.courseIDParam(w, r)
	if !ok {
		return
	}

	course, err := h.store.GetCourse(r.Context(), courseID)
	if err != nil {
		h.logger.Error().Err(err).Msg("load course failed")
		h.Error(w, http.StatusInternalServerError, "failed to load course")
		return
	}
	if course == nil {
		h.Error(w, http.StatusNotFound, "course not found")
		return
	}
	if course.ProfessorID == user.ID {
		h.Error(w, http.StatusBadRequest, "course owner cannot enroll")
		return
	}

	existing, err := h.store.GetEnrollment(r.Context(), courseID, user.ID)
	if err != nil {
		h.logger.Error().Err(err).Msg("load enrollment failed")
		h.Error(w, http.StatusInternalServerError, "failed to load enrollment")
		return
	}
	if existing != nil {
		h.JSON(w, http.StatusOK, existing)
		return
	}

	enr := &models.Enrollment{
		CourseID:  courseID,
		StudentID: user.ID,
		Status:    models.EnrollmentPending,
	}
	if err := h.store.CreateEnrollment(r.Context(), enr); err != nil {
		h.logger.Error().Err(err).Msg("create enrollment failed")
		h.Error(w, http.StatusInternalServerError, "failed to create enrollment")
		return
	}

	h.JSON(w, http.StatusCreated, enr)
}

// ListEnrollments handles GET /api/courses/{id}/enrollments. Owner only,
// used to review pending requests.
func (h *Handler) ListEnrollments(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}
	courseID, ok := h.courseIDParam(w, r)
	if !ok {
		return
	}

	course, err := h.store.GetCourse(r.Context(), courseID)
	if err != nil {
		h.logger.Error().Err(err).Msg("load course failed")
		h.Error(w, http.StatusInternalServerError, "failed to load course")
		return
	}
	if course == nil {
		h.Error(w, http.StatusNotFound, "course not found")
		return
	}
	if !h.ownsCourse(user.ID, user.Role, course) {
		h.Error(w, http.StatusForbidden, "only the course owner can review enrollments")
		return
	}

	enrollments, err := h.store.ListEnrollments(r.Context(), courseID)
	if err != nil {
		h.logger.Error().Err(err).Msg("list enrollments failed")
		h.Error(w, http.StatusInternalServerError, "failed to list enrollments")
		return
	}
	if enrollments == nil {
		enrollments = []models.Enrollment{}
	}

	h.JSON(w, http.StatusOK, map[string]any{"enrollments": enrollments})
}

// DecideEnrollmentRequest is the payload for approving or rejecting.
type DecideEnrollmentRequest struct {
	Status models.EnrollmentStatus `json:"status"`
}

// DecideEnrollment handles PUT /api/enrollments/{id}. Only the owning
// professor (or an admin) may decide, and only to approved or rejected.
func (h *Handler) DecideEnrollment(w http.ResponseWriter, r *http.Request) {
	user, ok := h.currentUser(w, r)
	if !ok {
		return
	}

	enrID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid enrollment ID")
		return
	}

	var req DecideEnrollmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Status != models.EnrollmentApproved && req.Status != models.EnrollmentRejected {
		h.Error(w, http.StatusBadRequest, "status must be approved or rejected")
		return
	}

	enr, err := h.store.GetEnrollmentByID(r.Context(), enrID)
	if err != nil {
		h.logger.Error().Err(err).Msg("load enrollment failed")
		h.Error(w, http.StatusInternalServerError, "failed to load enrollment")
		return
	}
	if enr == nil {
		h.Error(w, http.StatusNotFound, "enrollment not found")
		return
	}

	course, err := h.store.GetCourse(r.Context(), enr.CourseID)
	if err != nil || course == nil {
		h.logger.Error().Err(err).Msg("load course failed")
		h.Error(w, http.StatusInternalServerError, "failed to load course")
		return
	}
	if !h.ownsCourse(user.ID, user.Role, course) {
		h.Error(w, http.StatusForbidden, "only the course owner can decide enrollments")
		return
	}

	if err := h.store.SetEnrollmentStatus(r.Context(), enrID, req.Status); err != nil {
		h.logger.Error().Err(err).Msg("set enrollment status failed")
		h.Error(w, http.StatusInternalServerError, "failed to update enrollment")
		return
	}

	enr.Status = req.Status
	h.JSON(w, http.StatusOK, enr)
}

func (h *Handler) ownsCourse(userID uuid.UUID, role models.Role, course *models.Course) bool {
	return role == models.RoleAdmin || course.ProfessorID == userID
}
