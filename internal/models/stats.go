package models

// AdminStats aggregates platform totals for the admin dashboard.
type AdminStats struct {
	TotalUsers        int64 `json:"total_users"`
	TotalCourses      int64 `json:"total_courses"`
	TotalMessages     int64 `json:"total_messages"`
	TotalSessions     int64 `json:"total_sessions"`
	TotalMinutesSpent int64 `json:"total_minutes_spent"`
}
