package store

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/BRIKIAchraf/studyhub/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(s.Close)
	return s
}

func seedCourse(t *testing.T, s *SQLiteStore) (*models.User, *models.Course) {
	t.Helper()
	ctx := context.Background()

	prof := &models.User{Name: "Prof. Rossi", Role: models.RoleProfessor}
	if err := s.CreateUser(ctx, prof); err != nil {
		t.Fatal(err)
	}
	course := &models.Course{Title: "Operating Systems", ProfessorID: prof.ID}
	if err := s.CreateCourse(ctx, course); err != nil {
		t.Fatal(err)
	}
	return prof, course
}

func TestAppendAssignsUniqueOrderedIDs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	prof, course := seedCourse(t, s)

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		msg := &models.Message{
			CourseID:   course.ID,
			SenderID:   prof.ID,
			SenderName: prof.Name,
			SenderRole: prof.Role,
			Content:    "hello",
		}
		if err := s.AppendMessage(ctx, msg); err != nil {
			t.Fatal(err)
		}
		if msg.ID == "" {
			t.Fatal("append did not assign an id")
		}
		if seen[msg.ID] {
			t.Fatalf("duplicate message id %q", msg.ID)
		}
		seen[msg.ID] = true
	}

	msgs, err := s.ListMessages(ctx, course.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 50 {
		t.Fatalf("expected 50 messages, got %d", len(msgs))
	}
	for i := 1; i < len(msgs); i++ {
		prev, cur := msgs[i-1], msgs[i]
		if cur.CreatedAt.Before(prev.CreatedAt) {
			t.Fatalf("history not in timestamp order at index %d", i)
		}
		if cur.CreatedAt.Equal(prev.CreatedAt) && cur.ID <= prev.ID {
			t.Fatalf("tie not broken by id ascending at index %d", i)
		}
	}
}

func TestAppendUnknownCourseFails(t *testing.T) {
	s := newTestStore(t)
	prof, _ := seedCourse(t, s)

	msg := &models.Message{
		CourseID:   uuid.New(),
		SenderID:   prof.ID,
		SenderName: prof.Name,
		SenderRole: prof.Role,
		Content:    "orphan",
	}
	if err := s.AppendMessage(context.Background(), msg); err == nil {
		t.Fatal("expected foreign key error for unknown course")
	}
}

func TestSetMessagePinnedIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	prof, course := seedCourse(t, s)

	msg := &models.Message{CourseID: course.ID, SenderID: prof.ID, SenderName: prof.Name, SenderRole: prof.Role, Content: "pin me"}
	if err := s.AppendMessage(ctx, msg); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 2; i++ {
		if err := s.SetMessagePinned(ctx, msg.ID, true); err != nil {
			t.Fatal(err)
		}
	}
	got, err := s.GetMessage(ctx, msg.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.IsPinned {
		t.Fatal("message should be pinned")
	}

	if err := s.SetMessagePinned(ctx, msg.ID, false); err != nil {
		t.Fatal(err)
	}
	got, _ = s.GetMessage(ctx, msg.ID)
	if got.IsPinned {
		t.Fatal("message should be unpinned")
	}

	if err := s.SetMessagePinned(ctx, "01ARZ3NDEKTSV4RRFFQ69G5FAV", true); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown message, got %v", err)
	}
}

func TestIncrementReaction(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	prof, course := seedCourse(t, s)

	msg := &models.Message{CourseID: course.ID, SenderID: prof.ID, SenderName: prof.Name, SenderRole: prof.Role, Content: "react"}
	if err := s.AppendMessage(ctx, msg); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		if _, err := s.IncrementReaction(ctx, msg.ID, "👍"); err != nil {
			t.Fatal(err)
		}
	}
	reactions, err := s.IncrementReaction(ctx, msg.ID, "🎉")
	if err != nil {
		t.Fatal(err)
	}
	if reactions["👍"] != 3 || reactions["🎉"] != 1 {
		t.Fatalf("unexpected reaction map: %v", reactions)
	}

	got, err := s.GetMessage(ctx, msg.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Reactions["👍"] != 3 || got.Reactions["🎉"] != 1 {
		t.Fatalf("persisted reaction map mismatch: %v", got.Reactions)
	}

	if _, err := s.IncrementReaction(ctx, "01ARZ3NDEKTSV4RRFFQ69G5FAV", "👍"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRecordStudySessionAppliesReward(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	prof, course := seedCourse(t, s)

	student := &models.User{Name: "Marta", Role: models.RoleStudent}
	if err := s.CreateUser(ctx, student); err != nil {
		t.Fatal(err)
	}

	reward, err := s.RecordStudySession(ctx, &models.StudySession{
		CourseID:        course.ID,
		UserID:          student.ID,
		DurationMinutes: 25,
	})
	if err != nil {
		t.Fatal(err)
	}
	if reward.Streak != 1 {
		t.Fatalf("first session should yield streak 1, got %d", reward.Streak)
	}
	if reward.Points != 10 {
		t.Fatalf("expected flat 10 points, got %d", reward.Points)
	}

	// Same-day repeat: streak unchanged, points still awarded.
	reward, err = s.RecordStudySession(ctx, &models.StudySession{
		CourseID:        course.ID,
		UserID:          student.ID,
		DurationMinutes: 50,
	})
	if err != nil {
		t.Fatal(err)
	}
	if reward.Streak != 1 {
		t.Fatalf("same-day repeat should keep streak 1, got %d", reward.Streak)
	}

	user, err := s.GetUser(ctx, student.ID)
	if err != nil {
		t.Fatal(err)
	}
	if user.Points != 20 {
		t.Fatalf("expected 20 points after two sessions, got %d", user.Points)
	}
	if user.Streak != 1 {
		t.Fatalf("expected streak 1, got %d", user.Streak)
	}
	if user.LastStudyDate == nil {
		t.Fatal("last study date not set")
	}

	// Yesterday's study continues into today.
	yesterday := time.Now().UTC().AddDate(0, 0, -1)
	if _, err := s.RecordStudySession(ctx, &models.StudySession{
		CourseID:        course.ID,
		UserID:          prof.ID,
		RecordedAt:      yesterday,
		DurationMinutes: 30,
	}); err != nil {
		t.Fatal(err)
	}
	reward, err = s.RecordStudySession(ctx, &models.StudySession{
		CourseID:        course.ID,
		UserID:          prof.ID,
		DurationMinutes: 30,
	})
	if err != nil {
		t.Fatal(err)
	}
	if reward.Streak != 2 {
		t.Fatalf("consecutive day should yield streak 2, got %d", reward.Streak)
	}
}

func TestRecordStudySessionAtomic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, course := seedCourse(t, s)

	// Unknown user: neither session nor reward must persist.
	_, err := s.RecordStudySession(ctx, &models.StudySession{
		CourseID:        course.ID,
		UserID:          uuid.New(),
		DurationMinutes: 25,
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalSessions != 0 {
		t.Fatalf("rejected session must not persist, found %d", stats.TotalSessions)
	}
}

func TestRecordStudySessionConcurrentSameUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, course := seedCourse(t, s)

	student := &models.User{Name: "Luca", Role: models.RoleStudent}
	if err := s.CreateUser(ctx, student); err != nil {
		t.Fatal(err)
	}

	const n = 10
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.RecordStudySession(ctx, &models.StudySession{
				CourseID:        course.ID,
				UserID:          student.ID,
				DurationMinutes: 5,
			})
			if err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	user, err := s.GetUser(ctx, student.ID)
	if err != nil {
		t.Fatal(err)
	}
	if user.Points != n*10 {
		t.Fatalf("expected %d points, got %d (lost update)", n*10, user.Points)
	}
}

func TestEnrollmentLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, course := seedCourse(t, s)

	student := &models.User{Name: "Sara", Role: models.RoleStudent}
	if err := s.CreateUser(ctx, student); err != nil {
		t.Fatal(err)
	}

	enr := &models.Enrollment{CourseID: course.ID, StudentID: student.ID}
	if err := s.CreateEnrollment(ctx, enr); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetEnrollment(ctx, course.ID, student.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.Status != models.EnrollmentPending {
		t.Fatalf("expected pending enrollment, got %+v", got)
	}

	if err := s.SetEnrollmentStatus(ctx, enr.ID, models.EnrollmentApproved); err != nil {
		t.Fatal(err)
	}
	got, _ = s.GetEnrollment(ctx, course.ID, student.ID)
	if got.Status != models.EnrollmentApproved {
		t.Fatalf("expected approved, got %s", got.Status)
	}

	courses, err := s.ListCoursesForUser(ctx, student.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(courses) != 1 || courses[0].ID != course.ID {
		t.Fatalf("approved student should see the course, got %v", courses)
	}
}
