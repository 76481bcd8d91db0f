package models

import (
	"time"

	"github.com/google/uuid"
)

// Role classifies a user for authorization checks.
type Role string

const (
	RoleStudent   Role = "student"
	RoleProfessor Role = "professor"
	RoleAdmin     Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleProfessor, RoleAdmin:
		return true
	}
	return false
}

// User represents an account in the user store. Credentials live elsewhere;
// this service only reads identity/role and mutates the gamification fields.
type User struct {
	ID            uuid.UUID  `json:"id"`
	Name          string     `json:"name"`
	Email         string     `json:"email,omitempty"`
	Role          Role       `json:"role"`
	Points        int64      `json:"points"`
	Streak        int        `json:"streak"`
	LastStudyDate *time.Time `json:"last_study_date,omitempty"`
}
