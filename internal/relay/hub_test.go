package relay

import (
	"encoding/json"
	"testing"

	"github.com/roomdrop/roomdrop/internal/logging"
	"github.com/roomdrop/roomdrop/internal/signaling"
)

func newTestHub() *Hub {
	return NewHub(NewRegistry(0, 0), logging.Discard())
}

func drain(s *Session) []*signaling.Message {
	var out []*signaling.Message
	for {
		select {
		case m := <-s.send:
			out = append(out, m)
		default:
			return out
		}
	}
}

func memberCounts(t *testing.T, msgs []*signaling.Message) []int {
	t.Helper()
	var counts []int
	for _, m := range msgs {
		if m.Type != signaling.TypeMembers {
			continue
		}
		var p signaling.MembersPayload
		if err := m.DecodePayload(&p); err != nil {
			t.Fatalf("decode members: %v", err)
		}
		counts = append(counts, p.Count)
	}
	return counts
}

func TestHubJoinBroadcastsMembers(t *testing.T) {
	h := newTestHub()
	a, b := newSession(h), newSession(h)

	h.Join(a, "ABC123")
	if got := memberCounts(t, drain(a)); len(got) != 1 || got[0] != 1 {
		t.Fatalf("expected members=1 for a, got %v", got)
	}

	h.Join(b, "ABC123")
	if got := memberCounts(t, drain(a)); len(got) != 1 || got[0] != 2 {
		t.Fatalf("expected members=2 for a, got %v", got)
	}
	if got := memberCounts(t, drain(b)); len(got) != 1 || got[0] != 2 {
		t.Fatalf("expected members=2 for b, got %v", got)
	}
}

func TestHubRelayExcludesSender(t *testing.T) {
	h := newTestHub()
	a, b, c := newSession(h), newSession(h), newSession(h)
	h.Join(a, "ROOM01")
	h.Join(b, "ROOM01")
	h.Join(c, "ROOM01")
	drain(a)
	drain(b)
	drain(c)

	payload := json.RawMessage(`{"type":"offer","sdp":"v=0"}`)
	if n := h.Relay(a, &signaling.Message{Type: signaling.TypeOffer, Payload: payload}); n != 2 {
		t.Fatalf("expected delivery to 2 peers, got %d", n)
	}
	if got := drain(a); len(got) != 0 {
		t.Fatalf("sender must not receive its own message, got %d", len(got))
	}
	for _, s := range []*Session{b, c} {
		got := drain(s)
		if len(got) != 1 {
			t.Fatalf("expected one relayed message, got %d", len(got))
		}
		if got[0].Type != signaling.TypeOffer || string(got[0].Payload) != string(payload) {
			t.Fatalf("payload not relayed verbatim: %+v", got[0])
		}
		if got[0].Room != "" {
			t.Fatalf("relayed message must not carry a room, got %q", got[0].Room)
		}
	}
}

func TestHubRelayFromOutsideRoomIsDropped(t *testing.T) {
	h := newTestHub()
	a, b := newSession(h), newSession(h)
	h.Join(b, "ROOM01")
	drain(b)

	if n := h.Relay(a, &signaling.Message{Type: signaling.TypeICE}); n != 0 {
		t.Fatalf("expected no delivery, got %d", n)
	}
	if got := drain(b); len(got) != 0 {
		t.Fatalf("room members must not receive traffic from outsiders")
	}
	if h.Stats().Dropped != 1 {
		t.Fatalf("expected dropped counter to be 1, got %d", h.Stats().Dropped)
	}
}

func TestHubHandleDropsServerOnlyTypes(t *testing.T) {
	h := newTestHub()
	a, b := newSession(h), newSession(h)
	h.Join(a, "ROOM01")
	h.Join(b, "ROOM01")
	drain(a)
	drain(b)

	spoof, _ := signaling.NewMessage(signaling.TypeMembers, signaling.MembersPayload{Count: 99})
	h.Handle(a, spoof)
	if got := drain(b); len(got) != 0 {
		t.Fatalf("members message from a client must not be relayed")
	}
}

func TestHubLeaveNotifiesRemaining(t *testing.T) {
	h := newTestHub()
	a, b := newSession(h), newSession(h)
	h.Join(a, "ROOM01")
	h.Join(b, "ROOM01")
	drain(a)
	drain(b)

	h.Leave(a)
	if got := memberCounts(t, drain(b)); len(got) != 1 || got[0] != 1 {
		t.Fatalf("expected members=1 after leave, got %v", got)
	}
	if a.Enqueue(&signaling.Message{Type: signaling.TypeICE}) {
		t.Fatalf("closed session must refuse messages")
	}

	h.Leave(b)
	if h.Registry().Exists("ROOM01") {
		t.Fatalf("room must be deleted when empty")
	}
}

func TestHubRefusedJoinSendsError(t *testing.T) {
	h := NewHub(NewRegistry(0, 1), logging.Discard())
	a, b := newSession(h), newSession(h)
	h.Join(a, "ROOM01")
	h.Join(b, "ROOM01")

	got := drain(b)
	if len(got) != 1 || got[0].Type != signaling.TypeError {
		t.Fatalf("expected a single error message, got %+v", got)
	}
	var p signaling.ErrorPayload
	if err := got[0].DecodePayload(&p); err != nil || p.Error == "" {
		t.Fatalf("expected error reason, got %+v err=%v", p, err)
	}
}

func TestEnqueueDoesNotBlockWhenFull(t *testing.T) {
	s := newSession(nil)
	msg := &signaling.Message{Type: signaling.TypeICE}
	for i := 0; i < sendBufferSize; i++ {
		if !s.Enqueue(msg) {
			t.Fatalf("enqueue %d failed before buffer was full", i)
		}
	}
	if s.Enqueue(msg) {
		t.Fatalf("expected enqueue to fail on a full buffer")
	}
}
