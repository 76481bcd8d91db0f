package chat

import (
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
)

var errSendFailed = errors.New("send failed")

// fakeSession records every event delivered to it.
type fakeSession struct {
	id string

	mu      sync.Mutex
	events  []Event
	sendErr error
}

func newFakeSession(id string) *fakeSession {
	return &fakeSession{id: id}
}

func (s *fakeSession) ID() string { return s.id }

func (s *fakeSession) Send(ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return s.sendErr
	}
	s.events = append(s.events, ev)
	return nil
}

func (s *fakeSession) received() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

func TestRegistryJoinIsIdempotent(t *testing.T) {
	reg := NewRegistry()
	course := uuid.New()
	sess := newFakeSession("s1")

	reg.Join(course, sess)
	reg.Join(course, sess)

	if got := reg.RoomSize(course); got != 1 {
		t.Fatalf("expected room size 1 after double join, got %d", got)
	}
	if !reg.Contains(course, "s1") {
		t.Fatal("expected session to be in room")
	}
}

func TestRegistryLeaveUnknownIsNoop(t *testing.T) {
	reg := NewRegistry()
	course := uuid.New()
	sess := newFakeSession("s1")

	reg.Leave(course, sess)

	if got := reg.RoomSize(course); got != 0 {
		t.Fatalf("expected empty room, got %d", got)
	}
}

func TestRegistryBroadcastIncludesSender(t *testing.T) {
	reg := NewRegistry()
	course := uuid.New()
	a := newFakeSession("a")
	b := newFakeSession("b")
	reg.Join(course, a)
	reg.Join(course, b)

	reg.Broadcast(course, Event{Name: EventReceiveMessage})

	if len(a.received()) != 1 || len(b.received()) != 1 {
		t.Fatalf("expected both sessions to receive the event, got a=%d b=%d",
			len(a.received()), len(b.received()))
	}
}

func TestRegistryBroadcastExceptSkipsSender(t *testing.T) {
	reg := NewRegistry()
	course := uuid.New()
	a := newFakeSession("a")
	b := newFakeSession("b")
	reg.Join(course, a)
	reg.Join(course, b)

	reg.BroadcastExcept(course, "a", Event{Name: EventUserTyping})

	if len(a.received()) != 0 {
		t.Fatalf("sender should not receive its own typing event, got %d", len(a.received()))
	}
	if len(b.received()) != 1 {
		t.Fatalf("expected other session to receive event, got %d", len(b.received()))
	}
}

func TestRegistryNoDeliveryBeforeJoin(t *testing.T) {
	reg := NewRegistry()
	course := uuid.New()
	joined := newFakeSession("joined")
	outsider := newFakeSession("outsider")
	reg.Join(course, joined)

	reg.Broadcast(course, Event{Name: EventReceiveMessage})

	if len(outsider.received()) != 0 {
		t.Fatal("session that never joined must not receive room events")
	}
}

func TestRegistryLeaveAllReturnsRooms(t *testing.T) {
	reg := NewRegistry()
	c1 := uuid.New()
	c2 := uuid.New()
	sess := newFakeSession("s1")
	reg.Join(c1, sess)
	reg.Join(c2, sess)

	left := reg.LeaveAll(sess)

	if len(left) != 2 {
		t.Fatalf("expected 2 rooms left, got %d", len(left))
	}
	if reg.Contains(c1, "s1") || reg.Contains(c2, "s1") {
		t.Fatal("session should be removed from all rooms")
	}

	// After a restart-equivalent, nothing lingers.
	if reg.RoomSize(c1) != 0 || reg.RoomSize(c2) != 0 {
		t.Fatal("empty rooms should be compacted away")
	}
}

func TestRegistryFailedSendDoesNotBlockOthers(t *testing.T) {
	reg := NewRegistry()
	course := uuid.New()
	broken := newFakeSession("broken")
	broken.sendErr = errSendFailed
	healthy := newFakeSession("healthy")
	reg.Join(course, broken)
	reg.Join(course, healthy)

	reg.Broadcast(course, Event{Name: EventReceiveMessage})

	if len(healthy.received()) != 1 {
		t.Fatal("healthy session should still receive the event")
	}
}
