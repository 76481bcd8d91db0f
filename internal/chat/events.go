package chat

import (
	"github.com/google/uuid"

	"github.com/BRIKIAchraf/studyhub/internal/models"
)

// Event is the JSON envelope exchanged over the room channel.
type Event struct {
	Name string `json:"event"`
	Data any    `json:"data"`
}

// Client-to-server event names.
const (
	EventJoinRoom     = "join_room"
	EventSendMessage  = "send_message"
	EventTyping       = "typing"
	EventReactMessage = "react_message"
)

// Server-to-client event names.
const (
	EventReceiveMessage  = "receive_message"
	EventUserTyping      = "user_typing"
	EventMessageReaction = "message_reaction"
	EventMessagePinned   = "message_pinned"
	EventError           = "error"
)

// TypingPayload is broadcast as user_typing to everyone but the sender.
// Latest-wins per user; no ordering relative to messages is promised.
type TypingPayload struct {
	CourseID uuid.UUID `json:"course_id"`
	UserID   uuid.UUID `json:"user_id"`
	UserName string    `json:"user_name"`
	IsTyping bool      `json:"is_typing"`
}

// ReactionPayload carries the full merged reaction map after an update.
type ReactionPayload struct {
	MessageID string         `json:"message_id"`
	CourseID  uuid.UUID      `json:"course_id"`
	Reactions map[string]int `json:"reactions"`
}

// PinnedPayload announces a pin state change.
type PinnedPayload struct {
	MessageID string `json:"message_id"`
	IsPinned  bool   `json:"is_pinned"`
}

// ErrorPayload goes only to the session whose request failed.
type ErrorPayload struct {
	Message string `json:"message"`
}

func messageEvent(msg *models.Message) Event {
	return Event{Name: EventReceiveMessage, Data: msg}
}
