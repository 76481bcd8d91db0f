package models

import (
	"time"

	"github.com/google/uuid"
)

// Message is one chat message in a course room. Everything except IsPinned and
// Reactions is immutable after creation; sender name and role are snapshots
// taken at send time and do not follow later profile changes.
type Message struct {
	ID         string         `json:"id"` // ULID, sortable by creation order
	CourseID   uuid.UUID      `json:"course_id"`
	SenderID   uuid.UUID      `json:"sender_id"`
	SenderName string         `json:"sender_name"`
	SenderRole Role           `json:"sender_role"`
	Content    string         `json:"content"`
	Kind       string         `json:"kind"` // "text" or an attachment kind
	CreatedAt  time.Time      `json:"created_at"`
	IsPinned   bool           `json:"is_pinned"`
	Reactions  map[string]int `json:"reactions"`
}
