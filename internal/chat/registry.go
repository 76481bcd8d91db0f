package chat

import (
	"sync"

	"github.com/google/uuid"
)

// Session is a live client connection the registry can deliver events to.
// The WebSocket layer provides the real implementation; tests use fakes.
type Session interface {
	ID() string
	Send(ev Event) error
}

// Registry tracks which sessions are currently in which course room. The
// state is process-local and ephemeral: after a restart every room is empty
// and clients simply re-join.
//
// The registry does not check authorization. Callers must run the access
// gate before Join.
type Registry struct {
	mu    sync.RWMutex
	rooms map[uuid.UUID]map[string]Session
}

// NewRegistry creates an empty room registry.
func NewRegistry() *Registry {
	return &Registry{rooms: make(map[uuid.UUID]map[string]Session)}
}

// Join adds a session to a course room. Joining a room twice is a no-op.
func (r *Registry) Join(courseID uuid.UUID, sess Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[courseID]
	if !ok {
		room = make(map[string]Session)
		r.rooms[courseID] = room
	}
	room[sess.ID()] = sess
}

// Leave removes a session from a room. Leaving a room the session is not in
// is a no-op. Empty rooms are deleted so the map does not grow unbounded.
func (r *Registry) Leave(courseID uuid.UUID, sess Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(courseID, sess.ID())
}

// LeaveAll removes a session from every room, returning the course ids it
// was in. Used on disconnect, which is an implicit leave.
func (r *Registry) LeaveAll(sess Session) []uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()

	var left []uuid.UUID
	for courseID, room := range r.rooms {
		if _, ok := room[sess.ID()]; ok {
			left = append(left, courseID)
			r.leaveLocked(courseID, sess.ID())
		}
	}
	return left
}

func (r *Registry) leaveLocked(courseID uuid.UUID, sessionID string) {
	room, ok := r.rooms[courseID]
	if !ok {
		return
	}
	delete(room, sessionID)
	if len(room) == 0 {
		delete(r.rooms, courseID)
	}
}

// Contains reports whether the session has joined the room.
func (r *Registry) Contains(courseID uuid.UUID, sessionID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.rooms[courseID][sessionID]
	return ok
}

// RoomSize returns the number of sessions currently in a room.
func (r *Registry) RoomSize(courseID uuid.UUID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[courseID])
}

// Broadcast delivers an event to every session in the room, including the
// one that triggered it. Membership is snapshotted at emission time, and
// delivery happens outside the lock so a slow client cannot stall joins.
func (r *Registry) Broadcast(courseID uuid.UUID, ev Event) {
	r.deliver(courseID, "", ev)
}

// BroadcastExcept delivers an event to every session in the room except the
// named one. Used for typing notifications, which exclude the sender.
func (r *Registry) BroadcastExcept(courseID uuid.UUID, exceptID string, ev Event) {
	r.deliver(courseID, exceptID, ev)
}

func (r *Registry) deliver(courseID uuid.UUID, exceptID string, ev Event) {
	r.mu.RLock()
	room := r.rooms[courseID]
	targets := make([]Session, 0, len(room))
	for id, sess := range room {
		if id == exceptID {
			continue
		}
		targets = append(targets, sess)
	}
	r.mu.RUnlock()

	for _, sess := range targets {
		// Delivery is best-effort; a dead connection cleans itself up
		// through its own disconnect path.
		_ = sess.Send(ev)
	}
}
