package chat

import "errors"

var (
	// ErrDenied means the access gate refused the viewer for this course.
	ErrDenied = errors.New("not permitted for this course")

	// ErrNotJoined means the session tried a room operation before joining.
	ErrNotJoined = errors.New("session has not joined this room")

	// ErrEmptyContent rejects messages with no body.
	ErrEmptyContent = errors.New("message content is required")

	// ErrContentTooLong rejects oversized message bodies.
	ErrContentTooLong = errors.New("message content too long")

	// ErrMessageNotFound means the target message id is unknown, or belongs
	// to a different course than the caller claimed.
	ErrMessageNotFound = errors.New("message not found")
)
