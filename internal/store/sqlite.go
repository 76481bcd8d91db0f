package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/BRIKIAchraf/studyhub/internal/gamify"
	"github.com/BRIKIAchraf/studyhub/internal/ident"
	"github.com/BRIKIAchraf/studyhub/internal/models"
)

// SQLiteStore handles SQLite database operations. It is the default backend
// for development and single-node deployments.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/studyhub.db"
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/studyhub.db"
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	// _txlock=immediate makes write transactions take the write lock at
	// BEGIN, so two concurrent RecordStudySession calls for the same user
	// serialize instead of both reading the old streak.
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_txlock=immediate&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}

	// Initialize schema
	if err := store.initSchema(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT UNIQUE,
		role TEXT NOT NULL DEFAULT 'student',
		points INTEGER DEFAULT 0,
		streak INTEGER DEFAULT 0,
		last_study_date DATETIME
	);

	CREATE TABLE IF NOT EXISTS courses (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT DEFAULT '',
		professor_id TEXT NOT NULL,
		exam_date DATETIME,
		status TEXT DEFAULT 'active',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (professor_id) REFERENCES users (id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS enrollments (
		id TEXT PRIMARY KEY,
		course_id TEXT NOT NULL,
		student_id TEXT NOT NULL,
		status TEXT DEFAULT 'pending',
		requested_at DATETIME NOT NULL,
		UNIQUE (course_id, student_id),
		FOREIGN KEY (course_id) REFERENCES courses (id) ON DELETE CASCADE,
		FOREIGN KEY (student_id) REFERENCES users (id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		course_id TEXT NOT NULL,
		sender_id TEXT NOT NULL,
		sender_name TEXT NOT NULL,
		sender_role TEXT NOT NULL,
		content TEXT NOT NULL,
		kind TEXT DEFAULT 'text',
		created_at DATETIME NOT NULL,
		is_pinned INTEGER DEFAULT 0,
		reactions TEXT DEFAULT '{}',
		FOREIGN KEY (course_id) REFERENCES courses (id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS study_sessions (
		id TEXT PRIMARY KEY,
		course_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		recorded_at DATETIME NOT NULL,
		duration_minutes INTEGER NOT NULL,
		notes TEXT DEFAULT '',
		kind TEXT DEFAULT 'stopwatch',
		FOREIGN KEY (course_id) REFERENCES courses (id) ON DELETE CASCADE,
		FOREIGN KEY (user_id) REFERENCES users (id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_messages_course_order ON messages(course_id, created_at, id);
	CREATE INDEX IF NOT EXISTS idx_enrollments_course ON enrollments(course_id);
	CREATE INDEX IF NOT EXISTS idx_sessions_user ON study_sessions(user_id);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateUser inserts a user record.
func (s *SQLiteStore) CreateUser(ctx context.Context, user *models.User) error {
	if user.ID == uuid.Nil {
		user.ID = ident.NewUUIDv7()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, name, email, role, points, streak, last_study_date)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, user.ID.String(), user.Name, nullString(user.Email), string(user.Role),
		user.Points, user.Streak, user.LastStudyDate)
	return err
}

// GetUser retrieves a user by ID.
func (s *SQLiteStore) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user := &models.User{}
	var idStr, roleStr string
	var email *string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, email, role, points, streak, last_study_date
		FROM users WHERE id = ?
	`, id.String()).Scan(
		&idStr,
		&user.Name,
		&email,
		&roleStr,
		&user.Points,
		&user.Streak,
		&user.LastStudyDate,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	user.ID = uuid.MustParse(idStr)
	user.Role = models.Role(roleStr)
	if email != nil {
		user.Email = *email
	}
	return user, nil
}

// ListTopUsers retrieves users ordered by points descending.
func (s *SQLiteStore) ListTopUsers(ctx context.Context, limit int) ([]models.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, role, points, streak
		FROM users
		ORDER BY points DESC, name ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var user models.User
		var idStr, roleStr string
		if err := rows.Scan(&idStr, &user.Name, &roleStr, &user.Points, &user.Streak); err != nil {
			return nil, err
		}
		user.ID = uuid.MustParse(idStr)
		user.Role = models.Role(roleStr)
		users = append(users, user)
	}
	return users, rows.Err()
}

// CreateCourse inserts a course record.
func (s *SQLiteStore) CreateCourse(ctx context.Context, course *models.Course) error {
	if course.ID == uuid.Nil {
		course.ID = ident.NewUUIDv7()
	}
	if course.CreatedAt.IsZero() {
		course.CreatedAt = time.Now().UTC()
	}
	if course.Status == "" {
		course.Status = "active"
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO courses (id, title, description, professor_id, exam_date, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, course.ID.String(), course.Title, course.Description, course.ProfessorID.String(),
		course.ExamDate, course.Status, course.CreatedAt)
	return err
}

// GetCourse retrieves a course by ID.
func (s *SQLiteStore) GetCourse(ctx context.Context, id uuid.UUID) (*models.Course, error) {
	course := &models.Course{}
	var idStr, profStr string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, description, professor_id, exam_date, status, created_at
		FROM courses WHERE id = ?
	`, id.String()).Scan(
		&idStr,
		&course.Title,
		&course.Description,
		&profStr,
		&course.ExamDate,
		&course.Status,
		&course.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	course.ID = uuid.MustParse(idStr)
	course.ProfessorID = uuid.MustParse(profStr)
	return course, nil
}

// ListCoursesForUser retrieves courses the user owns or is approved in.
func (s *SQLiteStore) ListCoursesForUser(ctx context.Context, userID uuid.UUID) ([]models.Course, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT c.id, c.title, c.description, c.professor_id, c.exam_date, c.status, c.created_at
		FROM courses c
		LEFT JOIN enrollments e
			ON e.course_id = c.id AND e.student_id = ? AND e.status = 'approved'
		WHERE c.professor_id = ? OR e.id IS NOT NULL
		ORDER BY c.created_at
	`, userID.String(), userID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var courses []models.Course
	for rows.Next() {
		var course models.Course
		var idStr, profStr string
		err := rows.Scan(
			&idStr,
			&course.Title,
			&course.Description,
			&profStr,
			&course.ExamDate,
			&course.Status,
			&course.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		course.ID = uuid.MustParse(idStr)
		course.ProfessorID = uuid.MustParse(profStr)
		courses = append(courses, course)
	}
	return courses, rows.Err()
}

// CreateEnrollment inserts an enrollment request.
func (s *SQLiteStore) CreateEnrollment(ctx context.Context, enr *models.Enrollment) error {
	if enr.ID == uuid.Nil {
		enr.ID = ident.NewUUIDv7()
	}
	if enr.Status == "" {
		enr.Status = models.EnrollmentPending
	}
	if enr.RequestedAt.IsZero() {
		enr.RequestedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO enrollments (id, course_id, student_id, status, requested_at)
		VALUES (?, ?, ?, ?, ?)
	`, enr.ID.String(), enr.CourseID.String(), enr.StudentID.String(), string(enr.Status), enr.RequestedAt)
	return err
}

// GetEnrollment retrieves the enrollment for a (course, student) pair.
func (s *SQLiteStore) GetEnrollment(ctx context.Context, courseID, studentID uuid.UUID) (*models.Enrollment, error) {
	return s.scanEnrollment(s.db.QueryRowContext(ctx, `
		SELECT id, course_id, student_id, status, requested_at
		FROM enrollments WHERE course_id = ? AND student_id = ?
	`, courseID.String(), studentID.String()))
}

// GetEnrollmentByID retrieves an enrollment by ID.
func (s *SQLiteStore) GetEnrollmentByID(ctx context.Context, id uuid.UUID) (*models.Enrollment, error) {
	return s.scanEnrollment(s.db.QueryRowContext(ctx, `
		SELECT id, course_id, student_id, status, requested_at
		FROM enrollments WHERE id = ?
	`, id.String()))
}

func (s *SQLiteStore) scanEnrollment(row *sql.Row) (*models.Enrollment, error) {
	enr := &models.Enrollment{}
	var idStr, courseStr, studentStr, statusStr string
	err := row.Scan(&idStr, &courseStr, &studentStr, &statusStr, &enr.RequestedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	enr.ID = uuid.MustParse(idStr)
	enr.CourseID = uuid.MustParse(courseStr)
	enr.StudentID = uuid.MustParse(studentStr)
	enr.Status = models.EnrollmentStatus(statusStr)
	return enr, nil
}

// SetEnrollmentStatus updates the status of an enrollment.
func (s *SQLiteStore) SetEnrollmentStatus(ctx context.Context, id uuid.UUID, status models.EnrollmentStatus) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE enrollments SET status = ? WHERE id = ?
	`, string(status), id.String())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListEnrollments retrieves all enrollments for a course.
func (s *SQLiteStore) ListEnrollments(ctx context.Context, courseID uuid.UUID) ([]models.Enrollment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, course_id, student_id, status, requested_at
		FROM enrollments WHERE course_id = ?
		ORDER BY requested_at
	`, courseID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var enrollments []models.Enrollment
	for rows.Next() {
		var enr models.Enrollment
		var idStr, courseStr, studentStr, statusStr string
		if err := rows.Scan(&idStr, &courseStr, &studentStr, &statusStr, &enr.RequestedAt); err != nil {
			return nil, err
		}
		enr.ID = uuid.MustParse(idStr)
		enr.CourseID = uuid.MustParse(courseStr)
		enr.StudentID = uuid.MustParse(studentStr)
		enr.Status = models.EnrollmentStatus(statusStr)
		enrollments = append(enrollments, enr)
	}
	return enrollments, rows.Err()
}

// AppendMessage assigns the message an ID and timestamp and persists it.
// The foreign key on course_id rejects writes for unknown courses.
func (s *SQLiteStore) AppendMessage(ctx context.Context, msg *models.Message) error {
	now := time.Now().UTC()
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = now
	}
	if msg.ID == "" {
		msg.ID = ident.NewMessageID(msg.CreatedAt)
	}
	if msg.Kind == "" {
		msg.Kind = "text"
	}
	if msg.Reactions == nil {
		msg.Reactions = map[string]int{}
	}

	reactions, err := json.Marshal(msg.Reactions)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO messages (id, course_id, sender_id, sender_name, sender_role, content, kind, created_at, is_pinned, reactions)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, msg.ID, msg.CourseID.String(), msg.SenderID.String(), msg.SenderName, string(msg.SenderRole),
		msg.Content, msg.Kind, msg.CreatedAt, boolToInt(msg.IsPinned), string(reactions))
	return err
}

// ListMessages retrieves all messages for a course in ascending creation
// order, timestamp first and ULID as the tie break.
func (s *SQLiteStore) ListMessages(ctx context.Context, courseID uuid.UUID) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, course_id, sender_id, sender_name, sender_role, content, kind, created_at, is_pinned, reactions
		FROM messages
		WHERE course_id = ?
		ORDER BY created_at ASC, id ASC
	`, courseID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		msg, err := scanMessage(rows.Scan)
		if err != nil {
			return nil, err
		}
		messages = append(messages, *msg)
	}
	return messages, rows.Err()
}

// GetMessage retrieves a message by ID.
func (s *SQLiteStore) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	msg, err := scanMessage(s.db.QueryRowContext(ctx, `
		SELECT id, course_id, sender_id, sender_name, sender_role, content, kind, created_at, is_pinned, reactions
		FROM messages WHERE id = ?
	`, id).Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return msg, nil
}

// scanMessage reads one message row via the given scan function.
func scanMessage(scan func(dest ...any) error) (*models.Message, error) {
	msg := &models.Message{}
	var courseStr, senderStr, roleStr, reactionsJSON string
	var pinned int
	err := scan(
		&msg.ID,
		&courseStr,
		&senderStr,
		&msg.SenderName,
		&roleStr,
		&msg.Content,
		&msg.Kind,
		&msg.CreatedAt,
		&pinned,
		&reactionsJSON,
	)
	if err != nil {
		return nil, err
	}
	msg.CourseID = uuid.MustParse(courseStr)
	msg.SenderID = uuid.MustParse(senderStr)
	msg.SenderRole = models.Role(roleStr)
	msg.IsPinned = pinned == 1
	msg.Reactions = map[string]int{}
	if reactionsJSON != "" {
		if err := json.Unmarshal([]byte(reactionsJSON), &msg.Reactions); err != nil {
			return nil, err
		}
	}
	return msg, nil
}

// SetMessagePinned updates the pin flag. Idempotent.
func (s *SQLiteStore) SetMessagePinned(ctx context.Context, id string, pinned bool) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE messages SET is_pinned = ? WHERE id = ?
	`, boolToInt(pinned), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// IncrementReaction bumps the count for symbol on a message and returns the
// updated map. The read-modify-write runs in one transaction; the chat layer
// additionally serializes calls per message ID.
func (s *SQLiteStore) IncrementReaction(ctx context.Context, id string, symbol string) (map[string]int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var reactionsJSON string
	err = tx.QueryRowContext(ctx, `SELECT reactions FROM messages WHERE id = ?`, id).Scan(&reactionsJSON)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	reactions := map[string]int{}
	if reactionsJSON != "" {
		if err := json.Unmarshal([]byte(reactionsJSON), &reactions); err != nil {
			return nil, err
		}
	}
	reactions[symbol]++

	updated, err := json.Marshal(reactions)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE messages SET reactions = ? WHERE id = ?`, string(updated), id); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return reactions, nil
}

// CountMessages returns the number of messages in a course.
func (s *SQLiteStore) CountMessages(ctx context.Context, courseID uuid.UUID) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM messages WHERE course_id = ?
	`, courseID.String()).Scan(&count)
	return count, err
}

// RecordStudySession persists the session and the user's streak/points update
// in one transaction. The immediate write lock serializes concurrent calls
// for the same user, so streak and points never see a lost update.
func (s *SQLiteStore) RecordStudySession(ctx context.Context, sess *models.StudySession) (*models.StudyReward, error) {
	if sess.ID == uuid.Nil {
		sess.ID = ident.NewUUIDv7()
	}
	if sess.RecordedAt.IsZero() {
		sess.RecordedAt = time.Now().UTC()
	}
	if sess.Kind == "" {
		sess.Kind = "stopwatch"
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var streak int
	var lastStudy *time.Time
	err = tx.QueryRowContext(ctx, `
		SELECT streak, last_study_date FROM users WHERE id = ?
	`, sess.UserID.String()).Scan(&streak, &lastStudy)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO study_sessions (id, course_id, user_id, recorded_at, duration_minutes, notes, kind)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, sess.ID.String(), sess.CourseID.String(), sess.UserID.String(),
		sess.RecordedAt, sess.DurationMinutes, sess.Notes, sess.Kind)
	if err != nil {
		return nil, err
	}

	newStreak := gamify.NextStreak(lastStudy, sess.RecordedAt, streak)
	_, err = tx.ExecContext(ctx, `
		UPDATE users
		SET points = points + ?, streak = ?, last_study_date = ?
		WHERE id = ?
	`, gamify.PointsPerSession, newStreak, sess.RecordedAt, sess.UserID.String())
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &models.StudyReward{Streak: newStreak, Points: gamify.PointsPerSession}, nil
}

// Stats aggregates platform totals.
func (s *SQLiteStore) Stats(ctx context.Context) (*models.AdminStats, error) {
	stats := &models.AdminStats{}
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM users),
			(SELECT COUNT(*) FROM courses),
			(SELECT COUNT(*) FROM messages),
			(SELECT COUNT(*) FROM study_sessions),
			(SELECT COALESCE(SUM(duration_minutes), 0) FROM study_sessions)
	`).Scan(
		&stats.TotalUsers,
		&stats.TotalCourses,
		&stats.TotalMessages,
		&stats.TotalSessions,
		&stats.TotalMinutesSpent,
	)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
