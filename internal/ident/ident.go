package ident

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// NewUUIDv7 generates a time-ordered UUID v7, used for courses, enrollments
// and study sessions.
func NewUUIDv7() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewMessageID generates a ULID for a message created at t. The monotonic
// entropy source guarantees IDs are strictly increasing even for messages
// that share a millisecond timestamp, which is what keeps history ordering
// total under concurrent sends.
func NewMessageID(t time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}
