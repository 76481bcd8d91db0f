package models

import (
	"time"

	"github.com/google/uuid"
)

// StudySession is one recorded study period for a course.
type StudySession struct {
	ID              uuid.UUID `json:"id"`
	CourseID        uuid.UUID `json:"course_id"`
	UserID          uuid.UUID `json:"user_id"`
	RecordedAt      time.Time `json:"recorded_at"`
	DurationMinutes int       `json:"duration_minutes"`
	Notes           string    `json:"notes,omitempty"`
	Kind            string    `json:"kind"` // "stopwatch" or "timer"
}

// StudyReward is the outcome of recording a session: the user's new streak and
// the flat points awarded for this session.
type StudyReward struct {
	Streak int   `json:"streak"`
	Points int64 `json:"points_earned"`
}
