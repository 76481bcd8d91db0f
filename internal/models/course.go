package models

import (
	"time"

	"github.com/google/uuid"
)

// Course represents a course owned by a professor. Course content is managed
// by its own CRUD surface; chat only needs the identity and the owner.
type Course struct {
	ID          uuid.UUID  `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	ProfessorID uuid.UUID  `json:"professor_id"`
	ExamDate    *time.Time `json:"exam_date,omitempty"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
}

// EnrollmentStatus is the lifecycle of an enrollment request.
type EnrollmentStatus string

const (
	EnrollmentPending  EnrollmentStatus = "pending"
	EnrollmentApproved EnrollmentStatus = "approved"
	EnrollmentRejected EnrollmentStatus = "rejected"
)

// Enrollment links a student to a course. Only approved enrollments grant
// room membership.
type Enrollment struct {
	ID          uuid.UUID        `json:"id"`
	CourseID    uuid.UUID        `json:"course_id"`
	StudentID   uuid.UUID        `json:"student_id"`
	Status      EnrollmentStatus `json:"status"`
	RequestedAt time.Time        `json:"requested_at"`
}
