package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/BRIKIAchraf/studyhub/internal/access"
	"github.com/BRIKIAchraf/studyhub/internal/models"
	"github.com/BRIKIAchraf/studyhub/internal/store"
)

// serviceStore fakes the slice of the data store the chat service touches.
// The embedded interface panics for anything a test did not mean to call.
type serviceStore struct {
	store.DataStore

	courses     map[uuid.UUID]*models.Course
	enrollments map[string]*models.Enrollment
	messages    map[string]*models.Message
	appendSeq   int
	appendErr   error
}

func newServiceStore() *serviceStore {
	return &serviceStore{
		courses:     make(map[uuid.UUID]*models.Course),
		enrollments: make(map[string]*models.Enrollment),
		messages:    make(map[string]*models.Message),
	}
}

func enrKey(courseID, studentID uuid.UUID) string {
	return courseID.String() + "/" + studentID.String()
}

func (s *serviceStore) GetCourse(_ context.Context, id uuid.UUID) (*models.Course, error) {
	return s.courses[id], nil
}

func (s *serviceStore) GetEnrollment(_ context.Context, courseID, studentID uuid.UUID) (*models.Enrollment, error) {
	return s.enrollments[enrKey(courseID, studentID)], nil
}

func (s *serviceStore) AppendMessage(_ context.Context, msg *models.Message) error {
	if s.appendErr != nil {
		return s.appendErr
	}
	s.appendSeq++
	msg.ID = fmt.Sprintf("%08d", s.appendSeq)
	msg.CreatedAt = time.Now().UTC()
	if msg.Reactions == nil {
		msg.Reactions = make(map[string]int)
	}
	s.messages[msg.ID] = msg
	return nil
}

func (s *serviceStore) GetMessage(_ context.Context, id string) (*models.Message, error) {
	return s.messages[id], nil
}

func (s *serviceStore) SetMessagePinned(_ context.Context, id string, pinned bool) error {
	msg, ok := s.messages[id]
	if !ok {
		return store.ErrNotFound
	}
	msg.IsPinned = pinned
	return nil
}

func (s *serviceStore) IncrementReaction(_ context.Context, id, symbol string) (map[string]int, error) {
	msg, ok := s.messages[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if msg.Reactions == nil {
		msg.Reactions = make(map[string]int)
	}
	msg.Reactions[symbol]++
	out := make(map[string]int, len(msg.Reactions))
	for k, v := range msg.Reactions {
		out[k] = v
	}
	return out, nil
}

func (s *serviceStore) ListMessages(_ context.Context, courseID uuid.UUID) ([]models.Message, error) {
	var out []models.Message
	for _, msg := range s.messages {
		if msg.CourseID == courseID {
			out = append(out, *msg)
		}
	}
	return out, nil
}

type serviceFixture struct {
	svc       *Service
	store     *serviceStore
	courseID  uuid.UUID
	professor UserInfo
	student   UserInfo
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()

	st := newServiceStore()
	profID := uuid.New()
	studentID := uuid.New()
	courseID := uuid.New()

	st.courses[courseID] = &models.Course{ID: courseID, Title: "Distributed Systems", ProfessorID: profID}
	st.enrollments[enrKey(courseID, studentID)] = &models.Enrollment{
		ID:       uuid.New(),
		CourseID: courseID,
		Status:   models.EnrollmentApproved,
	}

	svc := NewService(st, access.NewGate(st), zerolog.Nop())
	return &serviceFixture{
		svc:       svc,
		store:     st,
		courseID:  courseID,
		professor: UserInfo{ID: profID, Name: "Prof. Chen", Role: models.RoleProfessor},
		student:   UserInfo{ID: studentID, Name: "Amina", Role: models.RoleStudent},
	}
}

func (f *serviceFixture) joinStudent(t *testing.T, sess Session) {
	t.Helper()
	if err := f.svc.Join(context.Background(), f.student, f.courseID, sess); err != nil {
		t.Fatalf("join: %v", err)
	}
}

func TestJoinDeniedWithoutEnrollment(t *testing.T) {
	f := newServiceFixture(t)
	stranger := UserInfo{ID: uuid.New(), Name: "Eve", Role: models.RoleStudent}

	err := f.svc.Join(context.Background(), stranger, f.courseID, newFakeSession("s1"))
	if !errors.Is(err, ErrDenied) {
		t.Fatalf("expected ErrDenied, got %v", err)
	}
	if f.svc.Registry().RoomSize(f.courseID) != 0 {
		t.Fatal("denied session must not enter the room")
	}
}

func TestJoinUnknownCourse(t *testing.T) {
	f := newServiceFixture(t)

	err := f.svc.Join(context.Background(), f.student, uuid.New(), newFakeSession("s1"))
	if !errors.Is(err, access.ErrCourseNotFound) {
		t.Fatalf("expected ErrCourseNotFound, got %v", err)
	}
}

func TestSendRequiresJoin(t *testing.T) {
	f := newServiceFixture(t)
	sess := newFakeSession("s1")

	_, err := f.svc.Send(context.Background(), f.student, sess, f.courseID, "hello", "text")
	if !errors.Is(err, ErrNotJoined) {
		t.Fatalf("expected ErrNotJoined, got %v", err)
	}
}

func TestSendEchoesStoredMessageToAll(t *testing.T) {
	f := newServiceFixture(t)
	sender := newFakeSession("sender")
	peer := newFakeSession("peer")
	f.joinStudent(t, sender)
	if err := f.svc.Join(context.Background(), f.professor, f.courseID, peer); err != nil {
		t.Fatal(err)
	}

	msg, err := f.svc.Send(context.Background(), f.student, sender, f.courseID, "hello room", "text")
	if err != nil {
		t.Fatal(err)
	}
	if msg.ID == "" {
		t.Fatal("expected message to carry its assigned id")
	}
	if msg.SenderName != "Amina" || msg.SenderRole != models.RoleStudent {
		t.Fatalf("sender snapshot not applied: %+v", msg)
	}

	for _, sess := range []*fakeSession{sender, peer} {
		events := sess.received()
		if len(events) != 1 {
			t.Fatalf("session %s: expected 1 event, got %d", sess.ID(), len(events))
		}
		if events[0].Name != EventReceiveMessage {
			t.Fatalf("expected %s, got %s", EventReceiveMessage, events[0].Name)
		}
		got, ok := events[0].Data.(*models.Message)
		if !ok {
			t.Fatalf("unexpected payload type %T", events[0].Data)
		}
		if got.ID != msg.ID {
			t.Fatal("broadcast must carry the stored record")
		}
	}
}

func TestSendValidation(t *testing.T) {
	f := newServiceFixture(t)
	sess := newFakeSession("s1")
	f.joinStudent(t, sess)

	if _, err := f.svc.Send(context.Background(), f.student, sess, f.courseID, "", "text"); !errors.Is(err, ErrEmptyContent) {
		t.Fatalf("expected ErrEmptyContent, got %v", err)
	}
	long := strings.Repeat("x", maxContentBytes+1)
	if _, err := f.svc.Send(context.Background(), f.student, sess, f.courseID, long, "text"); !errors.Is(err, ErrContentTooLong) {
		t.Fatalf("expected ErrContentTooLong, got %v", err)
	}
	if len(sess.received()) != 0 {
		t.Fatal("rejected messages must not be broadcast")
	}
}

func TestSendPersistFailureSuppressesBroadcast(t *testing.T) {
	f := newServiceFixture(t)
	sess := newFakeSession("s1")
	f.joinStudent(t, sess)
	f.store.appendErr = errors.New("disk full")

	if _, err := f.svc.Send(context.Background(), f.student, sess, f.courseID, "hello", "text"); err == nil {
		t.Fatal("expected error from failed append")
	}
	if len(sess.received()) != 0 {
		t.Fatal("nothing may be broadcast when persistence fails")
	}
}

func TestTypingExcludesSenderAndRequiresJoin(t *testing.T) {
	f := newServiceFixture(t)
	sender := newFakeSession("sender")
	peer := newFakeSession("peer")
	f.joinStudent(t, sender)
	if err := f.svc.Join(context.Background(), f.professor, f.courseID, peer); err != nil {
		t.Fatal(err)
	}

	payload := TypingPayload{CourseID: f.courseID, UserID: f.student.ID, UserName: "Amina", IsTyping: true}
	f.svc.Typing(sender, payload)

	if len(sender.received()) != 0 {
		t.Fatal("typing must not echo to the sender")
	}
	if len(peer.received()) != 1 || peer.received()[0].Name != EventUserTyping {
		t.Fatalf("peer should see one user_typing event, got %v", peer.received())
	}

	// An outsider's typing notification goes nowhere.
	outsider := newFakeSession("outsider")
	f.svc.Typing(outsider, payload)
	if len(peer.received()) != 1 {
		t.Fatal("typing from an unjoined session must be dropped")
	}
}

func TestReactBroadcastsMergedMap(t *testing.T) {
	f := newServiceFixture(t)
	sess := newFakeSession("s1")
	f.joinStudent(t, sess)

	msg, err := f.svc.Send(context.Background(), f.student, sess, f.courseID, "react to me", "text")
	if err != nil {
		t.Fatal(err)
	}

	merged, err := f.svc.React(context.Background(), sess, f.courseID, msg.ID, "fire")
	if err != nil {
		t.Fatal(err)
	}
	if merged["fire"] != 1 {
		t.Fatalf("unexpected merged map: %v", merged)
	}

	events := sess.received()
	last := events[len(events)-1]
	if last.Name != EventMessageReaction {
		t.Fatalf("expected %s, got %s", EventMessageReaction, last.Name)
	}
	payload, ok := last.Data.(ReactionPayload)
	if !ok {
		t.Fatalf("unexpected payload type %T", last.Data)
	}
	if payload.MessageID != msg.ID || payload.Reactions["fire"] != 1 {
		t.Fatalf("unexpected reaction payload: %+v", payload)
	}
}

func TestReactWrongCourse(t *testing.T) {
	f := newServiceFixture(t)
	sess := newFakeSession("s1")
	f.joinStudent(t, sess)

	msg, err := f.svc.Send(context.Background(), f.student, sess, f.courseID, "hi", "text")
	if err != nil {
		t.Fatal(err)
	}

	// A second room the session joins, but the message lives elsewhere.
	otherCourse := uuid.New()
	f.store.courses[otherCourse] = &models.Course{ID: otherCourse, Title: "Other", ProfessorID: f.professor.ID}
	f.store.enrollments[enrKey(otherCourse, f.student.ID)] = &models.Enrollment{
		ID: uuid.New(), CourseID: otherCourse, Status: models.EnrollmentApproved,
	}
	if err := f.svc.Join(context.Background(), f.student, otherCourse, sess); err != nil {
		t.Fatal(err)
	}

	if _, err := f.svc.React(context.Background(), sess, otherCourse, msg.ID, "fire"); !errors.Is(err, ErrMessageNotFound) {
		t.Fatalf("expected ErrMessageNotFound for cross-course reaction, got %v", err)
	}
}

func TestPinRequiresOwner(t *testing.T) {
	f := newServiceFixture(t)
	sess := newFakeSession("s1")
	f.joinStudent(t, sess)

	msg, err := f.svc.Send(context.Background(), f.student, sess, f.courseID, "pin me", "text")
	if err != nil {
		t.Fatal(err)
	}

	if err := f.svc.Pin(context.Background(), f.student, f.courseID, msg.ID, true); !errors.Is(err, ErrDenied) {
		t.Fatalf("member must not pin, got %v", err)
	}
	if err := f.svc.Pin(context.Background(), f.professor, f.courseID, msg.ID, true); err != nil {
		t.Fatalf("owner pin failed: %v", err)
	}
	if !f.store.messages[msg.ID].IsPinned {
		t.Fatal("pin flag not persisted")
	}

	events := sess.received()
	last := events[len(events)-1]
	if last.Name != EventMessagePinned {
		t.Fatalf("expected %s broadcast, got %s", EventMessagePinned, last.Name)
	}

	// Repeating the pin converges on the same state.
	if err := f.svc.Pin(context.Background(), f.professor, f.courseID, msg.ID, true); err != nil {
		t.Fatalf("repeated pin should succeed: %v", err)
	}
	if !f.store.messages[msg.ID].IsPinned {
		t.Fatal("pin flag lost after repeat")
	}
}

func TestPinUnknownMessage(t *testing.T) {
	f := newServiceFixture(t)

	if err := f.svc.Pin(context.Background(), f.professor, f.courseID, "no-such-id", true); !errors.Is(err, ErrMessageNotFound) {
		t.Fatalf("expected ErrMessageNotFound, got %v", err)
	}
}

func TestPinWrongCourse(t *testing.T) {
	f := newServiceFixture(t)
	sess := newFakeSession("s1")
	f.joinStudent(t, sess)

	msg, err := f.svc.Send(context.Background(), f.student, sess, f.courseID, "pin me", "text")
	if err != nil {
		t.Fatal(err)
	}

	otherCourse := uuid.New()
	f.store.courses[otherCourse] = &models.Course{ID: otherCourse, Title: "Other", ProfessorID: f.professor.ID}

	err = f.svc.Pin(context.Background(), f.professor, otherCourse, msg.ID, true)
	if !errors.Is(err, ErrMessageNotFound) {
		t.Fatalf("expected ErrMessageNotFound for mismatched course, got %v", err)
	}
	if f.store.messages[msg.ID].IsPinned {
		t.Fatal("mismatched pin must not change state")
	}
}

func TestHistoryGated(t *testing.T) {
	f := newServiceFixture(t)
	sess := newFakeSession("s1")
	f.joinStudent(t, sess)
	if _, err := f.svc.Send(context.Background(), f.student, sess, f.courseID, "hello", "text"); err != nil {
		t.Fatal(err)
	}

	msgs, err := f.svc.History(context.Background(), f.student, f.courseID)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}

	stranger := UserInfo{ID: uuid.New(), Role: models.RoleStudent}
	if _, err := f.svc.History(context.Background(), stranger, f.courseID); !errors.Is(err, ErrDenied) {
		t.Fatalf("expected ErrDenied for stranger, got %v", err)
	}
}

func TestLeaveIsIdempotent(t *testing.T) {
	f := newServiceFixture(t)
	sess := newFakeSession("s1")
	f.joinStudent(t, sess)

	f.svc.Leave(f.courseID, sess)
	f.svc.Leave(f.courseID, sess)

	if f.svc.Registry().Contains(f.courseID, sess.ID()) {
		t.Fatal("session should have left the room")
	}
}

func TestDisconnectLeavesAllRooms(t *testing.T) {
	f := newServiceFixture(t)
	sess := newFakeSession("s1")
	f.joinStudent(t, sess)

	f.svc.Disconnect(sess)

	if f.svc.Registry().Contains(f.courseID, sess.ID()) {
		t.Fatal("disconnected session must leave its rooms")
	}
	if _, err := f.svc.Send(context.Background(), f.student, sess, f.courseID, "hello", "text"); !errors.Is(err, ErrNotJoined) {
		t.Fatalf("expected ErrNotJoined after disconnect, got %v", err)
	}
}
