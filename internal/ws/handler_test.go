package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/BRIKIAchraf/studyhub/internal/access"
	"github.com/BRIKIAchraf/studyhub/internal/api/middleware"
	"github.com/BRIKIAchraf/studyhub/internal/chat"
	"github.com/BRIKIAchraf/studyhub/internal/models"
	"github.com/BRIKIAchraf/studyhub/internal/store"
)

const testSecret = "ws-test-secret"

type wsFixture struct {
	srv      *httptest.Server
	store    *store.SQLiteStore
	courseID uuid.UUID
	prof     *models.User
	student  *models.User
}

func newWSFixture(t *testing.T) *wsFixture {
	t.Helper()
	ctx := context.Background()

	st, err := store.NewSQLiteStore(ctx, filepath.Join(t.TempDir(), "ws.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(st.Close)

	prof := &models.User{Name: "Prof. Okafor", Role: models.RoleProfessor}
	if err := st.CreateUser(ctx, prof); err != nil {
		t.Fatal(err)
	}
	student := &models.User{Name: "Lena", Role: models.RoleStudent}
	if err := st.CreateUser(ctx, student); err != nil {
		t.Fatal(err)
	}
	course := &models.Course{Title: "Compilers", ProfessorID: prof.ID}
	if err := st.CreateCourse(ctx, course); err != nil {
		t.Fatal(err)
	}
	enr := &models.Enrollment{CourseID: course.ID, StudentID: student.ID, Status: models.EnrollmentApproved}
	if err := st.CreateEnrollment(ctx, enr); err != nil {
		t.Fatal(err)
	}

	svc := chat.NewService(st, access.NewGate(st), zerolog.Nop())
	auth := middleware.NewAuthMiddleware(testSecret)
	handler := NewHandler(auth, svc, zerolog.Nop())

	srv := httptest.NewServer(http.HandlerFunc(handler.ServeWS))
	t.Cleanup(srv.Close)

	return &wsFixture{srv: srv, store: st, courseID: course.ID, prof: prof, student: student}
}

func signToken(t *testing.T, user *models.User) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  user.ID.String(),
		"name": user.Name,
		"role": string(user.Role),
		"exp":  time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatal(err)
	}
	return signed
}

func (f *wsFixture) dial(t *testing.T, user *models.User) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/?token=" + signToken(t, user)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func writeEvent(t *testing.T, conn *websocket.Conn, name string, data any) {
	t.Helper()
	if err := conn.WriteJSON(chat.Event{Name: name, Data: data}); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

// readEvent reads the next envelope with a deadline so a missing broadcast
// fails the test instead of hanging it.
func readEvent(t *testing.T, conn *websocket.Conn) (string, json.RawMessage) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var ev struct {
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
	}
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read event: %v", err)
	}
	return ev.Event, ev.Data
}

func TestServeWSRejectsMissingToken(t *testing.T) {
	f := newWSFixture(t)

	url := "ws" + strings.TrimPrefix(f.srv.URL, "http")
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("expected handshake to fail without a token")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", resp)
	}
}

func TestServeWSRejectsBadToken(t *testing.T) {
	f := newWSFixture(t)

	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/?token=not-a-token"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("expected handshake to fail with a bad token")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", resp)
	}
}

func TestJoinAndSendRoundTrip(t *testing.T) {
	f := newWSFixture(t)
	student := f.dial(t, f.student)
	prof := f.dial(t, f.prof)

	writeEvent(t, student, chat.EventJoinRoom, joinPayload{CourseID: f.courseID})
	writeEvent(t, prof, chat.EventJoinRoom, joinPayload{CourseID: f.courseID})

	// Joins carry no ack; serialize on a message round trip instead. Give
	// the server a moment to process both joins.
	time.Sleep(100 * time.Millisecond)

	writeEvent(t, student, chat.EventSendMessage, sendPayload{
		CourseID: f.courseID,
		Content:  "anyone solved exercise 3?",
	})

	for _, conn := range []*websocket.Conn{student, prof} {
		name, data := readEvent(t, conn)
		if name != chat.EventReceiveMessage {
			t.Fatalf("expected %s, got %s", chat.EventReceiveMessage, name)
		}
		var msg models.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatal(err)
		}
		if msg.ID == "" {
			t.Fatal("broadcast message must carry its stored id")
		}
		if msg.Content != "anyone solved exercise 3?" {
			t.Fatalf("unexpected content %q", msg.Content)
		}
		if msg.SenderName != "Lena" || msg.SenderRole != models.RoleStudent {
			t.Fatalf("sender snapshot missing: %+v", msg)
		}
	}

	// The message is durable, not just broadcast.
	msgs, err := f.store.ListMessages(context.Background(), f.courseID)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected 1 persisted message, got %d", len(msgs))
	}
}

func TestJoinDeniedForStranger(t *testing.T) {
	f := newWSFixture(t)

	stranger := &models.User{Name: "Eve", Role: models.RoleStudent}
	if err := f.store.CreateUser(context.Background(), stranger); err != nil {
		t.Fatal(err)
	}
	conn := f.dial(t, stranger)

	writeEvent(t, conn, chat.EventJoinRoom, joinPayload{CourseID: f.courseID})

	name, data := readEvent(t, conn)
	if name != chat.EventError {
		t.Fatalf("expected error event, got %s", name)
	}
	var payload chat.ErrorPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		t.Fatal(err)
	}
	if payload.Message != "not permitted for this course" {
		t.Fatalf("unexpected error message %q", payload.Message)
	}
}

func TestSendBeforeJoinFails(t *testing.T) {
	f := newWSFixture(t)
	conn := f.dial(t, f.student)

	writeEvent(t, conn, chat.EventSendMessage, sendPayload{CourseID: f.courseID, Content: "hello"})

	name, _ := readEvent(t, conn)
	if name != chat.EventError {
		t.Fatalf("expected error event before join, got %s", name)
	}
}

func TestTypingReachesOnlyPeers(t *testing.T) {
	f := newWSFixture(t)
	student := f.dial(t, f.student)
	prof := f.dial(t, f.prof)

	writeEvent(t, student, chat.EventJoinRoom, joinPayload{CourseID: f.courseID})
	writeEvent(t, prof, chat.EventJoinRoom, joinPayload{CourseID: f.courseID})
	time.Sleep(100 * time.Millisecond)

	writeEvent(t, student, chat.EventTyping, chat.TypingPayload{CourseID: f.courseID, IsTyping: true})

	name, data := readEvent(t, prof)
	if name != chat.EventUserTyping {
		t.Fatalf("expected %s, got %s", chat.EventUserTyping, name)
	}
	var payload chat.TypingPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		t.Fatal(err)
	}
	if payload.UserID != f.student.ID || payload.UserName != "Lena" {
		t.Fatalf("typing identity must come from the token, got %+v", payload)
	}
	if !payload.IsTyping {
		t.Fatal("is_typing flag lost")
	}

	// The sender gets nothing back; the next frame it sees is a real message.
	writeEvent(t, prof, chat.EventSendMessage, sendPayload{CourseID: f.courseID, Content: "lecture starts now"})
	name, _ = readEvent(t, student)
	if name != chat.EventReceiveMessage {
		t.Fatalf("sender must not receive its own typing event, got %s", name)
	}
}

func TestReactRoundTrip(t *testing.T) {
	f := newWSFixture(t)
	conn := f.dial(t, f.student)

	writeEvent(t, conn, chat.EventJoinRoom, joinPayload{CourseID: f.courseID})
	time.Sleep(100 * time.Millisecond)

	writeEvent(t, conn, chat.EventSendMessage, sendPayload{CourseID: f.courseID, Content: "react to this"})
	name, data := readEvent(t, conn)
	if name != chat.EventReceiveMessage {
		t.Fatalf("expected message echo, got %s", name)
	}
	var msg models.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatal(err)
	}

	writeEvent(t, conn, chat.EventReactMessage, reactPayload{
		CourseID:  f.courseID,
		MessageID: msg.ID,
		Symbol:    "fire",
	})

	name, data = readEvent(t, conn)
	if name != chat.EventMessageReaction {
		t.Fatalf("expected %s, got %s", chat.EventMessageReaction, name)
	}
	var payload chat.ReactionPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		t.Fatal(err)
	}
	if payload.MessageID != msg.ID || payload.Reactions["fire"] != 1 {
		t.Fatalf("unexpected reaction payload %+v", payload)
	}
}

func TestUnknownEventGetsError(t *testing.T) {
	f := newWSFixture(t)
	conn := f.dial(t, f.student)

	writeEvent(t, conn, "self_destruct", nil)

	name, _ := readEvent(t, conn)
	if name != chat.EventError {
		t.Fatalf("expected error event, got %s", name)
	}
}
