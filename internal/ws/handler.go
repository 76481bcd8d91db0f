package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/BRIKIAchraf/studyhub/internal/access"
	"github.com/BRIKIAchraf/studyhub/internal/api/middleware"
	"github.com/BRIKIAchraf/studyhub/internal/chat"
	"github.com/BRIKIAchraf/studyhub/internal/metrics"
)

const requestTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	HandshakeTimeout: 10 * time.Second,
	ReadBufferSize:   4096,
	WriteBufferSize:  4096,
	CheckOrigin: func(r *http.Request) bool {
		// Cross-origin policy is enforced by the CORS layer in front; the
		// upgrade itself is gated on the token.
		return true
	},
}

// Handler upgrades authenticated clients and runs the room protocol.
type Handler struct {
	auth   *middleware.AuthMiddleware
	chat   *chat.Service
	logger zerolog.Logger
}

// NewHandler creates a WebSocket handler.
func NewHandler(auth *middleware.AuthMiddleware, chatSvc *chat.Service, logger zerolog.Logger) *Handler {
	return &Handler{
		auth:   auth,
		chat:   chatSvc,
		logger: logger.With().Str("component", "ws").Logger(),
	}
}

// joinPayload is the client's join_room request.
type joinPayload struct {
	CourseID uuid.UUID `json:"course_id"`
}

// sendPayload is the client's send_message request.
type sendPayload struct {
	CourseID uuid.UUID `json:"course_id"`
	Content  string    `json:"content"`
	Kind     string    `json:"kind"`
}

// reactPayload is the client's react_message request.
type reactPayload struct {
	CourseID  uuid.UUID `json:"course_id"`
	MessageID string    `json:"message_id"`
	Symbol    string    `json:"symbol"`
}

// inboundEvent defers payload decoding until the event name is known.
type inboundEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// ServeWS authenticates the request, upgrades it, and runs the read loop
// until the client disconnects. Browsers cannot set headers on the upgrade
// request, so the token also travels in the query string.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	}
	if token == "" {
		http.Error(w, `{"error":"missing token"}`, http.StatusUnauthorized)
		return
	}

	authUser, err := h.auth.VerifyToken(token)
	if err != nil {
		http.Error(w, `{"error":"invalid or expired token"}`, http.StatusUnauthorized)
		return
	}
	user := chat.UserInfo{ID: authUser.ID, Name: authUser.Name, Role: authUser.Role}

	sock, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		h.logger.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	conn := newConn(sock)
	metrics.WebSocketConnections.Inc()
	h.logger.Info().
		Stringer("user", user.ID).
		Str("session", conn.ID()).
		Msg("websocket connected")

	defer func() {
		h.chat.Disconnect(conn)
		conn.close()
		sock.Close()
		metrics.WebSocketConnections.Dec()
		h.logger.Info().
			Stringer("user", user.ID).
			Str("session", conn.ID()).
			Msg("websocket disconnected")
	}()

	sock.SetReadLimit(maxFrameSize)
	sock.SetReadDeadline(time.Now().Add(pongWait))
	sock.SetPongHandler(func(string) error {
		sock.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := sock.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug().Err(err).Str("session", conn.ID()).Msg("read error")
			}
			return
		}

		var ev inboundEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			h.sendError(conn, "malformed event")
			continue
		}
		h.dispatch(r.Context(), conn, user, ev)
	}
}

// dispatch routes one inbound event. Failures are reported only to the
// session that sent the event; the room never sees them.
func (h *Handler) dispatch(ctx context.Context, conn *Conn, user chat.UserInfo, ev inboundEvent) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	switch ev.Event {
	case chat.EventJoinRoom:
		var p joinPayload
		if err := json.Unmarshal(ev.Data, &p); err != nil || p.CourseID == uuid.Nil {
			h.sendError(conn, "join_room requires course_id")
			return
		}
		if err := h.chat.Join(ctx, user, p.CourseID, conn); err != nil {
			h.sendError(conn, joinErrorMessage(err))
		}

	case chat.EventSendMessage:
		var p sendPayload
		if err := json.Unmarshal(ev.Data, &p); err != nil || p.CourseID == uuid.Nil {
			h.sendError(conn, "send_message requires course_id and content")
			return
		}
		if _, err := h.chat.Send(ctx, user, conn, p.CourseID, p.Content, p.Kind); err != nil {
			h.sendError(conn, sendErrorMessage(err))
		}

	case chat.EventTyping:
		var p chat.TypingPayload
		if err := json.Unmarshal(ev.Data, &p); err != nil || p.CourseID == uuid.Nil {
			return
		}
		// Identity comes from the token, never from the payload.
		p.UserID = user.ID
		p.UserName = user.Name
		h.chat.Typing(conn, p)

	case chat.EventReactMessage:
		var p reactPayload
		if err := json.Unmarshal(ev.Data, &p); err != nil || p.CourseID == uuid.Nil || p.MessageID == "" {
			h.sendError(conn, "react_message requires course_id, message_id and symbol")
			return
		}
		if _, err := h.chat.React(ctx, conn, p.CourseID, p.MessageID, p.Symbol); err != nil {
			h.sendError(conn, sendErrorMessage(err))
		}

	default:
		h.sendError(conn, "unknown event "+ev.Event)
	}
}

func (h *Handler) sendError(conn *Conn, message string) {
	_ = conn.Send(chat.Event{Name: chat.EventError, Data: chat.ErrorPayload{Message: message}})
}

func joinErrorMessage(err error) string {
	switch {
	case errors.Is(err, access.ErrCourseNotFound):
		return "course not found"
	case errors.Is(err, chat.ErrDenied):
		return "not permitted for this course"
	default:
		return "join failed"
	}
}

func sendErrorMessage(err error) string {
	switch {
	case errors.Is(err, chat.ErrNotJoined):
		return "join the room first"
	case errors.Is(err, chat.ErrEmptyContent):
		return "content is required"
	case errors.Is(err, chat.ErrContentTooLong):
		return "content too long"
	case errors.Is(err, chat.ErrMessageNotFound):
		return "message not found"
	case errors.Is(err, chat.ErrDenied):
		return "not permitted for this course"
	default:
		return "request failed"
	}
}
