package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/BRIKIAchraf/studyhub/internal/models"
)

// ErrNotFound is returned by mutations that target a missing row. Reads
// return nil, nil for missing records instead.
var ErrNotFound = errors.New("record not found")

// DataStore defines the persistent storage operations the service needs.
// Both PostgresStore and SQLiteStore implement this interface.
type DataStore interface {
	// Connection management
	Close()
	Ping(ctx context.Context) error

	// User operations. Accounts are created by the external identity
	// service; CreateUser exists for provisioning and tests.
	CreateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	ListTopUsers(ctx context.Context, limit int) ([]models.User, error)

	// Course operations
	CreateCourse(ctx context.Context, course *models.Course) error
	GetCourse(ctx context.Context, id uuid.UUID) (*models.Course, error)
	ListCoursesForUser(ctx context.Context, userID uuid.UUID) ([]models.Course, error)

	// Enrollment operations
	CreateEnrollment(ctx context.Context, enr *models.Enrollment) error
	GetEnrollment(ctx context.Context, courseID, studentID uuid.UUID) (*models.Enrollment, error)
	GetEnrollmentByID(ctx context.Context, id uuid.UUID) (*models.Enrollment, error)
	SetEnrollmentStatus(ctx context.Context, id uuid.UUID, status models.EnrollmentStatus) error
	ListEnrollments(ctx context.Context, courseID uuid.UUID) ([]models.Enrollment, error)

	// Message operations. AppendMessage assigns the message its ULID and
	// timestamp and rejects writes for unknown courses.
	AppendMessage(ctx context.Context, msg *models.Message) error
	ListMessages(ctx context.Context, courseID uuid.UUID) ([]models.Message, error)
	GetMessage(ctx context.Context, id string) (*models.Message, error)
	SetMessagePinned(ctx context.Context, id string, pinned bool) error
	IncrementReaction(ctx context.Context, id string, symbol string) (map[string]int, error)
	CountMessages(ctx context.Context, courseID uuid.UUID) (int64, error)

	// RecordStudySession persists the session and applies the streak and
	// points reward in a single transaction: both succeed or neither does.
	RecordStudySession(ctx context.Context, sess *models.StudySession) (*models.StudyReward, error)

	// Stats aggregates platform totals for the admin surface.
	Stats(ctx context.Context) (*models.AdminStats, error)
}
