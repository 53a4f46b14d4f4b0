package relay

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/roomdrop/roomdrop/internal/signaling"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. SDP blobs fit comfortably.
	maxMessageSize = 64 * 1024

	sendBufferSize = 64
)

// Session is one websocket connection to the relay.
type Session struct {
	ID string

	hub    *Hub
	conn   *websocket.Conn
	logger *slog.Logger

	// send is drained by WritePump. It is never closed; done signals shutdown.
	send      chan *signaling.Message
	done      chan struct{}
	closeOnce sync.Once
}

// NewSession wraps an upgraded connection.
func NewSession(hub *Hub, conn *websocket.Conn, logger *slog.Logger) *Session {
	s := newSession(hub)
	s.conn = conn
	s.logger = logger.With("session", s.ID)
	return s
}

func newSession(hub *Hub) *Session {
	return &Session{
		ID:     uuid.NewString(),
		hub:    hub,
		logger: slog.Default(),
		send:   make(chan *signaling.Message, sendBufferSize),
		done:   make(chan struct{}),
	}
}

// Enqueue queues msg for delivery without blocking. It reports false when
// the session is closed or its buffer is full.
func (s *Session) Enqueue(msg *signaling.Message) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.send <- msg:
		return true
	default:
		return false
	}
}

// Close stops the write pump. Safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// ReadPump pumps messages from the websocket connection to the hub.
//
// The application runs ReadPump in a per-connection goroutine. It is the only
// reader of the connection, and its exit is the single cleanup path for the
// session's room membership.
func (s *Session) ReadPump() {
	defer func() {
		s.unregister()
		s.conn.Close()
	}()

	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Warn("websocket read failed", "error", err)
			}
			return
		}

		msg, err := signaling.Parse(data)
		if err != nil {
			s.logger.Warn("dropping malformed message", "error", err, "bytes", len(data))
			continue
		}

		select {
		case s.hub.Inbound <- Envelope{From: s, Message: msg}:
		case <-s.hub.Done():
			return
		}
	}
}

// WritePump pumps messages from the hub to the websocket connection.
//
// A goroutine running WritePump is started for each connection. It is the
// only writer to the connection.
func (s *Session) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case msg := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteJSON(msg); err != nil {
				s.logger.Warn("websocket write failed", "error", err)
				return
			}

		case <-s.done:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			s.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Session) unregister() {
	select {
	case s.hub.Unregister <- s:
	case <-s.hub.Done():
		s.Close()
	}
}
