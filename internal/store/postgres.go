package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/BRIKIAchraf/studyhub/internal/gamify"
	"github.com/BRIKIAchraf/studyhub/internal/ident"
	"github.com/BRIKIAchraf/studyhub/internal/models"
)

// PostgresStore handles PostgreSQL database operations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}

	store := &PostgresStore{pool: pool}
	if err := store.initSchema(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *PostgresStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT UNIQUE,
		role TEXT NOT NULL DEFAULT 'student',
		points BIGINT DEFAULT 0,
		streak INT DEFAULT 0,
		last_study_date TIMESTAMPTZ
	);

	CREATE TABLE IF NOT EXISTS courses (
		id UUID PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT DEFAULT '',
		professor_id UUID NOT NULL REFERENCES users (id) ON DELETE CASCADE,
		exam_date TIMESTAMPTZ,
		status TEXT DEFAULT 'active',
		created_at TIMESTAMPTZ DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS enrollments (
		id UUID PRIMARY KEY,
		course_id UUID NOT NULL REFERENCES courses (id) ON DELETE CASCADE,
		student_id UUID NOT NULL REFERENCES users (id) ON DELETE CASCADE,
		status TEXT DEFAULT 'pending',
		requested_at TIMESTAMPTZ NOT NULL,
		UNIQUE (course_id, student_id)
	);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		course_id UUID NOT NULL REFERENCES courses (id) ON DELETE CASCADE,
		sender_id UUID NOT NULL,
		sender_name TEXT NOT NULL,
		sender_role TEXT NOT NULL,
		content TEXT NOT NULL,
		kind TEXT DEFAULT 'text',
		created_at TIMESTAMPTZ NOT NULL,
		is_pinned BOOLEAN DEFAULT FALSE,
		reactions JSONB DEFAULT '{}'::jsonb
	);

	CREATE TABLE IF NOT EXISTS study_sessions (
		id UUID PRIMARY KEY,
		course_id UUID NOT NULL REFERENCES courses (id) ON DELETE CASCADE,
		user_id UUID NOT NULL REFERENCES users (id) ON DELETE CASCADE,
		recorded_at TIMESTAMPTZ NOT NULL,
		duration_minutes INT NOT NULL,
		notes TEXT DEFAULT '',
		kind TEXT DEFAULT 'stopwatch'
	);

	CREATE INDEX IF NOT EXISTS idx_messages_course_order ON messages(course_id, created_at, id);
	CREATE INDEX IF NOT EXISTS idx_enrollments_course ON enrollments(course_id);
	CREATE INDEX IF NOT EXISTS idx_sessions_user ON study_sessions(user_id);
	`
	_, err := s.pool.Exec(ctx, schema)
	return err
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// CreateUser inserts a user record.
func (s *PostgresStore) CreateUser(ctx context.Context, user *models.User) error {
	if user.ID == uuid.Nil {
		user.ID = ident.NewUUIDv7()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, name, email, role, points, streak, last_study_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, user.ID, user.Name, nullString(user.Email), string(user.Role),
		user.Points, user.Streak, user.LastStudyDate)
	return err
}

// GetUser retrieves a user by ID.
func (s *PostgresStore) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user := &models.User{}
	var email *string
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, email, role, points, streak, last_study_date
		FROM users WHERE id = $1
	`, id).Scan(
		&user.ID,
		&user.Name,
		&email,
		&user.Role,
		&user.Points,
		&user.Streak,
		&user.LastStudyDate,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if email != nil {
		user.Email = *email
	}
	return user, nil
}

// ListTopUsers retrieves users ordered by points descending.
func (s *PostgresStore) ListTopUsers(ctx context.Context, limit int) ([]models.User, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, role, points, streak
		FROM users
		ORDER BY points DESC, name ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var user models.User
		if err := rows.Scan(&user.ID, &user.Name, &user.Role, &user.Points, &user.Streak); err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// CreateCourse inserts a course record.
func (s *PostgresStore) CreateCourse(ctx context.Context, course *models.Course) error {
	if course.ID == uuid.Nil {
		course.ID = ident.NewUUIDv7()
	}
	if course.CreatedAt.IsZero() {
		course.CreatedAt = time.Now().UTC()
	}
	if course.Status == "" {
		course.Status = "active"
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO courses (id, title, description, professor_id, exam_date, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, course.ID, course.Title, course.Description, course.ProfessorID,
		course.ExamDate, course.Status, course.CreatedAt)
	return err
}

// GetCourse retrieves a course by ID.
func (s *PostgresStore) GetCourse(ctx context.Context, id uuid.UUID) (*models.Course, error) {
	course := &models.Course{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, title, description, professor_id, exam_date, status, created_at
		FROM courses WHERE id = $1
	`, id).Scan(
		&course.ID,
		&course.Title,
		&course.Description,
		&course.ProfessorID,
		&course.ExamDate,
		&course.Status,
		&course.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return course, nil
}

// ListCoursesForUser retrieves courses the user owns or is approved in.
func (s *PostgresStore) ListCoursesForUser(ctx context.Context, userID uuid.UUID) ([]models.Course, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT c.id, c.title, c.description, c.professor_id, c.exam_date, c.status, c.created_at
		FROM courses c
		LEFT JOIN enrollments e
			ON e.course_id = c.id AND e.student_id = $1 AND e.status = 'approved'
		WHERE c.professor_id = $1 OR e.id IS NOT NULL
		ORDER BY c.created_at
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var courses []models.Course
	for rows.Next() {
		var course models.Course
		err := rows.Scan(
			&course.ID,
			&course.Title,
			&course.Description,
			&course.ProfessorID,
			&course.ExamDate,
			&course.Status,
			&course.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		courses = append(courses, course)
	}
	return courses, rows.Err()
}

// CreateEnrollment inserts an enrollment request.
func (s *PostgresStore) CreateEnrollment(ctx context.Context, enr *models.Enrollment) error {
	if enr.ID == uuid.Nil {
		enr.ID = ident.NewUUIDv7()
	}
	if enr.Status == "" {
		enr.Status = models.EnrollmentPending
	}
	if enr.RequestedAt.IsZero() {
		enr.RequestedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO enrollments (id, course_id, student_id, status, requested_at)
		VALUES ($1, $2, $3, $4, $5)
	`, enr.ID, enr.CourseID, enr.StudentID, string(enr.Status), enr.RequestedAt)
	return err
}

// GetEnrollment retrieves the enrollment for a (course, student) pair.
func (s *PostgresStore) GetEnrollment(ctx context.Context, courseID, studentID uuid.UUID) (*models.Enrollment, error) {
	return s.scanEnrollment(s.pool.QueryRow(ctx, `
		SELECT id, course_id, student_id, status, requested_at
		FROM enrollments WHERE course_id = $1 AND student_id = $2
	`, courseID, studentID))
}

// GetEnrollmentByID retrieves an enrollment by ID.
func (s *PostgresStore) GetEnrollmentByID(ctx context.Context, id uuid.UUID) (*models.Enrollment, error) {
	return s.scanEnrollment(s.pool.QueryRow(ctx, `
		SELECT id, course_id, student_id, status, requested_at
		FROM enrollments WHERE id = $1
	`, id))
}

func (s *PostgresStore) scanEnrollment(row pgx.Row) (*models.Enrollment, error) {
	enr := &models.Enrollment{}
	err := row.Scan(&enr.ID, &enr.CourseID, &enr.StudentID, &enr.Status, &enr.RequestedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return enr, nil
}

// SetEnrollmentStatus updates the status of an enrollment.
func (s *PostgresStore) SetEnrollmentStatus(ctx context.Context, id uuid.UUID, status models.EnrollmentStatus) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE enrollments SET status = $1 WHERE id = $2
	`, string(status), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListEnrollments retrieves all enrollments for a course.
func (s *PostgresStore) ListEnrollments(ctx context.Context, courseID uuid.UUID) ([]models.Enrollment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, course_id, student_id, status, requested_at
		FROM enrollments WHERE course_id = $1
		ORDER BY requested_at
	`, courseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var enrollments []models.Enrollment
	for rows.Next() {
		var enr models.Enrollment
		if err := rows.Scan(&enr.ID, &enr.CourseID, &enr.StudentID, &enr.Status, &enr.RequestedAt); err != nil {
			return nil, err
		}
		enrollments = append(enrollments, enr)
	}
	return enrollments, rows.Err()
}

// AppendMessage assigns the message an ID and timestamp and persists it.
func (s *PostgresStore) AppendMessage(ctx context.Context, msg *models.Message) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
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

	_, err := s.pool.Exec(ctx, `
		INSERT INTO messages (id, course_id, sender_id, sender_name, sender_role, content, kind, created_at, is_pinned, reactions)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, msg.ID, msg.CourseID, msg.SenderID, msg.SenderName, string(msg.SenderRole),
		msg.Content, msg.Kind, msg.CreatedAt, msg.IsPinned, msg.Reactions)
	return err
}

// ListMessages retrieves all messages for a course in ascending creation order.
func (s *PostgresStore) ListMessages(ctx context.Context, courseID uuid.UUID) ([]models.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, course_id, sender_id, sender_name, sender_role, content, kind, created_at, is_pinned, reactions
		FROM messages
		WHERE course_id = $1
		ORDER BY created_at ASC, id ASC
	`, courseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var msg models.Message
		err := rows.Scan(
			&msg.ID,
			&msg.CourseID,
			&msg.SenderID,
			&msg.SenderName,
			&msg.SenderRole,
			&msg.Content,
			&msg.Kind,
			&msg.CreatedAt,
			&msg.IsPinned,
			&msg.Reactions,
		)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// GetMessage retrieves a message by ID.
func (s *PostgresStore) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	msg := &models.Message{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, course_id, sender_id, sender_name, sender_role, content, kind, created_at, is_pinned, reactions
		FROM messages WHERE id = $1
	`, id).Scan(
		&msg.ID,
		&msg.CourseID,
		&msg.SenderID,
		&msg.SenderName,
		&msg.SenderRole,
		&msg.Content,
		&msg.Kind,
		&msg.CreatedAt,
		&msg.IsPinned,
		&msg.Reactions,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return msg, nil
}

// SetMessagePinned updates the pin flag. Idempotent.
func (s *PostgresStore) SetMessagePinned(ctx context.Context, id string, pinned bool) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE messages SET is_pinned = $1 WHERE id = $2
	`, pinned, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// IncrementReaction bumps the count for symbol on a message and returns the
// updated map. The row lock keeps concurrent increments from interleaving.
func (s *PostgresStore) IncrementReaction(ctx context.Context, id string, symbol string) (map[string]int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	reactions := map[string]int{}
	err = tx.QueryRow(ctx, `
		SELECT reactions FROM messages WHERE id = $1 FOR UPDATE
	`, id).Scan(&reactions)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	reactions[symbol]++

	if _, err := tx.Exec(ctx, `UPDATE messages SET reactions = $1 WHERE id = $2`, reactions, id); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return reactions, nil
}

// CountMessages returns the number of messages in a course.
func (s *PostgresStore) CountMessages(ctx context.Context, courseID uuid.UUID) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM messages WHERE course_id = $1
	`, courseID).Scan(&count)
	return count, err
}

// RecordStudySession persists the session and the user's streak/points update
// in one transaction. SELECT FOR UPDATE serializes concurrent submissions for
// the same user.
func (s *PostgresStore) RecordStudySession(ctx context.Context, sess *models.StudySession) (*models.StudyReward, error) {
	if sess.ID == uuid.Nil {
		sess.ID = ident.NewUUIDv7()
	}
	if sess.RecordedAt.IsZero() {
		sess.RecordedAt = time.Now().UTC()
	}
	if sess.Kind == "" {
		sess.Kind = "stopwatch"
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var streak int
	var lastStudy *time.Time
	err = tx.QueryRow(ctx, `
		SELECT streak, last_study_date FROM users WHERE id = $1 FOR UPDATE
	`, sess.UserID).Scan(&streak, &lastStudy)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO study_sessions (id, course_id, user_id, recorded_at, duration_minutes, notes, kind)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, sess.ID, sess.CourseID, sess.UserID, sess.RecordedAt, sess.DurationMinutes, sess.Notes, sess.Kind)
	if err != nil {
		return nil, err
	}

	newStreak := gamify.NextStreak(lastStudy, sess.RecordedAt, streak)
	_, err = tx.Exec(ctx, `
		UPDATE users
		SET points = points + $1, streak = $2, last_study_date = $3
		WHERE id = $4
	`, gamify.PointsPerSession, newStreak, sess.RecordedAt, sess.UserID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &models.StudyReward{Streak: newStreak, Points: gamify.PointsPerSession}, nil
}

// Stats aggregates platform totals.
func (s *PostgresStore) Stats(ctx context.Context) (*models.AdminStats, error) {
	stats := &models.AdminStats{}
	err := s.pool.QueryRow(ctx, `
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
