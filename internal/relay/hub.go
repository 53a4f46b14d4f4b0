package relay

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/roomdrop/roomdrop/internal/signaling"
)

// Envelope is an inbound message tagged with the session it came from.
type Envelope struct {
	From    *Session
	Message *signaling.Message
}

// Stats is the relay snapshot served on /stats.
type Stats struct {
	Rooms    int   `json:"rooms"`
	Sessions int   `json:"sessions"`
	Relayed  int64 `json:"relayed"`
	Dropped  int64 `json:"dropped"`
}

// Hub routes signaling traffic between sessions that share a room.
// Room state lives in the Registry; the hub only decides who receives what.
type Hub struct {
	registry *Registry
	logger   *slog.Logger

	// Inbound carries messages read by session ReadPumps.
	Inbound chan Envelope

	// Unregister carries sessions whose connection has gone away.
	Unregister chan *Session

	done chan struct{}

	relayed atomic.Int64
	dropped atomic.Int64
}

// NewHub creates a hub over the given registry.
func NewHub(registry *Registry, logger *slog.Logger) *Hub {
	return &Hub{
		registry:   registry,
		logger:     logger,
		Inbound:    make(chan Envelope, 256),
		Unregister: make(chan *Session, 64),
		done:       make(chan struct{}),
	}
}

// Registry exposes the underlying room registry.
func (h *Hub) Registry() *Registry {
	return h.registry
}

// Run is the hub's processing loop. Messages from all sessions are handled
// one at a time in arrival order.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			return
		case env := <-h.Inbound:
			h.Handle(env.From, env.Message)
		case s := <-h.Unregister:
			h.Leave(s)
		}
	}
}

// Done is closed once Run returns.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// Handle dispatches one inbound message.
func (h *Hub) Handle(from *Session, msg *signaling.Message) {
	switch {
	case msg.Type == signaling.TypeJoin:
		h.Join(from, msg.Room)
	case msg.ServerOnly():
		h.logger.Warn("dropping server-only message from client",
			"session", from.ID, "type", msg.Type)
	default:
		h.Relay(from, msg)
	}
}

// Join places the session in a room and announces the new member count to
// every member, the joiner included. A refused join gets an error message.
func (h *Hub) Join(s *Session, code string) {
	joined, left, err := h.registry.Join(s, code)
	if err != nil {
		h.logger.Info("join refused", "session", s.ID, "room", code, "error", err)
		h.sendError(s, err.Error())
		return
	}

	if left != nil {
		h.logger.Debug("session moved rooms", "session", s.ID, "from", left.Room, "to", joined.Room)
		h.announce(*left)
	}

	h.logger.Info("session joined room", "session", s.ID, "room", joined.Room, "members", joined.Count)
	h.announce(joined)
}

// Relay forwards msg to every other member of the sender's room. Messages
// from a session that has not joined are dropped.
func (h *Hub) Relay(from *Session, msg *signaling.Message) int {
	room, others, ok := h.registry.Others(from)
	if !ok {
		h.logger.Debug("dropping message from session outside any room",
			"session", from.ID, "type", msg.Type)
		h.dropped.Add(1)
		return 0
	}

	out := &signaling.Message{Type: msg.Type, Payload: msg.Payload}
	delivered := 0
	for _, peer := range others {
		if peer.Enqueue(out) {
			delivered++
			continue
		}
		h.dropped.Add(1)
		h.logger.Warn("peer send buffer full, dropping message",
			"room", room, "session", peer.ID, "type", msg.Type)
	}
	h.relayed.Add(int64(delivered))
	h.logger.Debug("relayed message", "room", room, "type", msg.Type, "from", from.ID, "delivered", delivered)
	return delivered
}

// Leave removes the session from its room and tells the remaining members.
func (h *Hub) Leave(s *Session) {
	remaining, ok := h.registry.Leave(s)
	s.Close()
	if !ok {
		return
	}
	if remaining.Count == 0 {
		h.logger.Info("room deleted", "room", remaining.Room)
		return
	}
	h.logger.Info("session left room", "session", s.ID, "room", remaining.Room, "members", remaining.Count)
	h.announce(remaining)
}

// Stats returns a snapshot of the relay counters.
func (h *Hub) Stats() Stats {
	rooms, sessions := h.registry.Stats()
	return Stats{
		Rooms:    rooms,
		Sessions: sessions,
		Relayed:  h.relayed.Load(),
		Dropped:  h.dropped.Load(),
	}
}

func (h *Hub) announce(m Membership) {
	msg, err := signaling.NewMessage(signaling.TypeMembers, signaling.MembersPayload{Count: m.Count})
	if err != nil {
		h.logger.Error("failed to encode members message", "error", err)
		return
	}
	for _, s := range m.Members {
		if !s.Enqueue(msg) {
			h.dropped.Add(1)
			h.logger.Warn("peer send buffer full, dropping members update", "room", m.Room, "session", s.ID)
		}
	}
}

func (h *Hub) sendError(s *Session, reason string) {
	msg, err := signaling.NewMessage(signaling.TypeError, signaling.ErrorPayload{Error: reason})
	if err != nil {
		return
	}
	s.Enqueue(msg)
}
