// Package chat implements the course room subsystem: the live session
// registry, message append/broadcast, reactions, pinning and typing
// presence. Persistence lives in the store; this package owns the room
// semantics and the broadcast paths.
package chat

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/BRIKIAchraf/studyhub/internal/access"
	"github.com/BRIKIAchraf/studyhub/internal/metrics"
	"github.com/BRIKIAchraf/studyhub/internal/models"
	"github.com/BRIKIAchraf/studyhub/internal/store"
)

// maxContentBytes caps a message body.
const maxContentBytes = 4096

// UserInfo identifies the acting user. Name and role are taken from the
// verified token and snapshotted onto messages at send time.
type UserInfo struct {
	ID   uuid.UUID
	Name string
	Role models.Role
}

func (u UserInfo) viewer() access.Viewer {
	return access.Viewer{ID: u.ID, Role: u.Role}
}

// Service coordinates room membership, the message log, reactions and
// typing presence for course rooms.
type Service struct {
	store     store.DataStore
	registry  *Registry
	reactions *ReactionAggregator
	gate      *access.Gate
	logger    zerolog.Logger
}

// NewService wires the chat service. The gate consults the same store the
// messages live in.
func NewService(st store.DataStore, gate *access.Gate, logger zerolog.Logger) *Service {
	return &Service{
		store:     st,
		registry:  NewRegistry(),
		reactions: NewReactionAggregator(st),
		gate:      gate,
		logger:    logger.With().Str("component", "chat").Logger(),
	}
}

// Registry exposes the room registry for the transport layer.
func (s *Service) Registry() *Registry {
	return s.registry
}

// Join admits a session to a course room after an access gate check. The
// gate runs before any registry lock is taken.
func (s *Service) Join(ctx context.Context, user UserInfo, courseID uuid.UUID, sess Session) error {
	if err := s.CanView(ctx, user, courseID); err != nil {
		metrics.RoomJoins.WithLabelValues("denied").Inc()
		return err
	}

	s.registry.Join(courseID, sess)
	metrics.RoomJoins.WithLabelValues("joined").Inc()
	s.logger.Debug().
		Stringer("course", courseID).
		Stringer("user", user.ID).
		Msg("session joined room")
	return nil
}

// Leave removes a session from a room. Idempotent.
func (s *Service) Leave(courseID uuid.UUID, sess Session) {
	s.registry.Leave(courseID, sess)
}

// Disconnect removes a session from every room it joined; a dropped
// connection is an implicit leave.
func (s *Service) Disconnect(sess Session) {
	left := s.registry.LeaveAll(sess)
	if len(left) > 0 {
		s.logger.Debug().Str("session", sess.ID()).Int("rooms", len(left)).Msg("session disconnected")
	}
}

// Send validates, persists and broadcasts a message. The stored message is
// echoed back to the sender through the same broadcast as everyone else, so
// every client renders the identical record. Nothing is broadcast when the
// write fails.
func (s *Service) Send(ctx context.Context, user UserInfo, sess Session, courseID uuid.UUID, content, kind string) (*models.Message, error) {
	if !s.registry.Contains(courseID, sess.ID()) {
		return nil, ErrNotJoined
	}
	if content == "" {
		return nil, ErrEmptyContent
	}
	if len(content) > maxContentBytes {
		return nil, ErrContentTooLong
	}

	msg := &models.Message{
		CourseID:   courseID,
		SenderID:   user.ID,
		SenderName: user.Name,
		SenderRole: user.Role,
		Content:    content,
		Kind:       kind,
	}
	if err := s.store.AppendMessage(ctx, msg); err != nil {
		s.logger.Error().Err(err).Stringer("course", courseID).Msg("message append failed")
		return nil, fmt.Errorf("append message: %w", err)
	}

	metrics.MessagesSent.Inc()
	s.registry.Broadcast(courseID, messageEvent(msg))
	return msg, nil
}

// Typing relays a typing notification to everyone in the room except the
// sender. Best-effort: a session that has not joined is ignored, and no
// error is ever surfaced.
func (s *Service) Typing(sess Session, payload TypingPayload) {
	if !s.registry.Contains(payload.CourseID, sess.ID()) {
		return
	}
	metrics.TypingEvents.Inc()
	s.registry.BroadcastExcept(payload.CourseID, sess.ID(), Event{Name: EventUserTyping, Data: payload})
}

// React applies a reaction to a message in a room the session has joined
// and broadcasts the merged map. Increments to the same message are
// serialized so none is lost.
func (s *Service) React(ctx context.Context, sess Session, courseID uuid.UUID, messageID, symbol string) (map[string]int, error) {
	if !s.registry.Contains(courseID, sess.ID()) {
		return nil, ErrNotJoined
	}
	if symbol == "" {
		return nil, ErrEmptyContent
	}

	msg, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return nil, fmt.Errorf("load message: %w", err)
	}
	if msg == nil || msg.CourseID != courseID {
		return nil, ErrMessageNotFound
	}

	reactions, err := s.reactions.React(ctx, messageID, symbol)
	if err != nil {
		return nil, fmt.Errorf("apply reaction: %w", err)
	}

	metrics.ReactionsApplied.Inc()
	s.registry.Broadcast(courseID, Event{Name: EventMessageReaction, Data: ReactionPayload{
		MessageID: messageID,
		CourseID:  courseID,
		Reactions: reactions,
	}})
	return reactions, nil
}

// CanView resolves whether the user may read a course's room at all. It
// returns nil for owners and members, ErrCourseNotFound for unknown courses
// and ErrDenied otherwise.
func (s *Service) CanView(ctx context.Context, user UserInfo, courseID uuid.UUID) error {
	decision, err := s.gate.Authorize(ctx, user.viewer(), courseID)
	if decision != access.Denied {
		return nil
	}
	if err != nil {
		if errors.Is(err, access.ErrCourseNotFound) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrDenied, err)
	}
	return ErrDenied
}

// History returns a course's messages in ascending creation order. Requires
// the viewer to pass the access gate as owner or member.
func (s *Service) History(ctx context.Context, user UserInfo, courseID uuid.UUID) ([]models.Message, error) {
	if err := s.CanView(ctx, user, courseID); err != nil {
		return nil, err
	}
	return s.store.ListMessages(ctx, courseID)
}

// Pin sets a message's pin flag. Only the course owner (or an admin) may
// pin; the change is broadcast to the room. A message id that does not
// belong to courseID is treated as unknown. Idempotent: repeating a pin
// re-broadcasts the same convergent state.
func (s *Service) Pin(ctx context.Context, user UserInfo, courseID uuid.UUID, messageID string, pinned bool) error {
	msg, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return fmt.Errorf("load message: %w", err)
	}
	if msg == nil || msg.CourseID != courseID {
		return ErrMessageNotFound
	}

	decision, err := s.gate.Authorize(ctx, user.viewer(), msg.CourseID)
	if err != nil && !errors.Is(err, access.ErrCourseNotFound) {
		return fmt.Errorf("%w: %v", ErrDenied, err)
	}
	if decision != access.Owner {
		return ErrDenied
	}

	if err := s.store.SetMessagePinned(ctx, messageID, pinned); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrMessageNotFound
		}
		return fmt.Errorf("set pinned: %w", err)
	}

	metrics.PinToggles.Inc()
	s.registry.Broadcast(msg.CourseID, Event{Name: EventMessagePinned, Data: PinnedPayload{
		MessageID: messageID,
		IsPinned:  pinned,
	}})
	return nil
}
