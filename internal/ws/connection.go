// Package ws carries the course room protocol over WebSocket. Each
// connection is one authenticated session; events are JSON envelopes with
// an event name and a data payload.
package ws

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/BRIKIAchraf/studyhub/internal/chat"
)

const (
	// writeWait is how long a single frame write may take.
	writeWait = 5 * time.Second
	// pongWait is how long we wait for a pong before declaring the peer dead.
	pongWait = 60 * time.Second
	// pingPeriod must be shorter than pongWait.
	pingPeriod = 45 * time.Second
	// maxFrameSize caps inbound frames.
	maxFrameSize = 8192
	// sendBuffer absorbs broadcast bursts without blocking the room.
	sendBuffer = 64
)

// ErrConnectionClosed is returned by Send after the connection shut down.
var ErrConnectionClosed = errors.New("connection closed")

// ErrSlowConsumer is returned when the outbound buffer is full. The caller
// treats it as a dead connection.
var ErrSlowConsumer = errors.New("outbound buffer full")

// Conn wraps a WebSocket connection with a single writer goroutine, since
// gorilla connections do not allow concurrent writes. It implements
// chat.Session.
type Conn struct {
	id   string
	sock *websocket.Conn

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newConn(sock *websocket.Conn) *Conn {
	c := &Conn{
		id:   uuid.NewString(),
		sock: sock,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}
	go c.writePump()
	return c
}

// ID returns the session identifier, unique per connection.
func (c *Conn) ID() string { return c.id }

// Send queues an event for delivery. It never blocks: a full buffer means
// the client is not keeping up and the connection is torn down.
func (c *Conn) Send(ev chat.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	select {
	case <-c.done:
		return ErrConnectionClosed
	default:
	}

	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return ErrConnectionClosed
	default:
		c.close()
		return ErrSlowConsumer
	}
}

// writePump is the only goroutine that writes frames. It also keeps the
// connection alive with periodic pings.
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.sock.Close()
	}()

	for {
		select {
		case data := <-c.send:
			c.sock.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.sock.WriteMessage(websocket.TextMessage, data); err != nil {
				c.close()
				return
			}
		case <-ticker.C:
			c.sock.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.sock.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		case <-c.done:
			c.sock.SetWriteDeadline(time.Now().Add(writeWait))
			c.sock.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (c *Conn) close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}
