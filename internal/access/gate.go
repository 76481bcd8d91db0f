// Package access implements the authorization predicate that gates every
// course-scoped operation: room join, history reads and pin/react mutations.
package access

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/BRIKIAchraf/studyhub/internal/models"
)

// Decision is the outcome of an authorization check.
type Decision int

const (
	// Denied means the viewer may not see the course at all.
	Denied Decision = iota
	// Member means the viewer holds an approved enrollment.
	Member
	// Owner means the viewer is the course's professor, or an admin.
	Owner
)

// String implements fmt.Stringer for log output.
func (d Decision) String() string {
	switch d {
	case Owner:
		return "owner"
	case Member:
		return "member"
	default:
		return "denied"
	}
}

// ErrCourseNotFound is returned (with Denied) when the course id is unknown.
var ErrCourseNotFound = errors.New("course not found")

// CourseDirectory is the slice of the store the gate consults. Both the
// SQLite and Postgres stores satisfy it. Implementations return nil, nil
// when a record does not exist.
type CourseDirectory interface {
	GetCourse(ctx context.Context, id uuid.UUID) (*models.Course, error)
	GetEnrollment(ctx context.Context, courseID, studentID uuid.UUID) (*models.Enrollment, error)
}

// Viewer identifies who is asking. Role comes from the verified token, not
// from the request payload.
type Viewer struct {
	ID   uuid.UUID
	Role models.Role
}

// Gate evaluates course visibility. It is stateless and safe for concurrent
// use; callers must not hold room or message locks while calling Authorize.
type Gate struct {
	dir CourseDirectory
}

// NewGate creates a Gate over the given directory.
func NewGate(dir CourseDirectory) *Gate {
	return &Gate{dir: dir}
}

// Authorize resolves the viewer's standing for a course. Any directory error
// surfaces as Denied with a non-nil error, never as a silent allow.
func (g *Gate) Authorize(ctx context.Context, viewer Viewer, courseID uuid.UUID) (Decision, error) {
	course, err := g.dir.GetCourse(ctx, courseID)
	if err != nil {
		return Denied, fmt.Errorf("access: load course: %w", err)
	}
	if course == nil {
		return Denied, ErrCourseNotFound
	}

	if viewer.Role == models.RoleAdmin {
		return Owner, nil
	}
	if course.ProfessorID == viewer.ID {
		return Owner, nil
	}

	enr, err := g.dir.GetEnrollment(ctx, courseID, viewer.ID)
	if err != nil {
		return Denied, fmt.Errorf("access: load enrollment: %w", err)
	}
	if enr != nil && enr.Status == models.EnrollmentApproved {
		return Member, nil
	}
	return Denied, nil
}
