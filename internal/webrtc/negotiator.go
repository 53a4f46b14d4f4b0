package webrtc

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/pion/webrtc/v4"

	"github.com/roomdrop/roomdrop/internal/signaling"
)

// ChannelLabel is the label of the single file data channel.
const ChannelLabel = "file"

// maxPendingCandidates bounds the ICE queue kept before a remote
// description exists.
const maxPendingCandidates = 256

// Phase mirrors the signaling state of the current connection.
type Phase string

const (
	PhaseIdle            Phase = "idle"
	PhaseHaveLocalOffer  Phase = "have-local-offer"
	PhaseHaveRemoteOffer Phase = "have-remote-offer"
	PhaseStable          Phase = "stable"
)

// Role records which side created the offer for the current connection.
type Role string

const (
	RoleUnassigned Role = ""
	RoleInitiator  Role = "initiator"
	RoleResponder  Role = "responder"
)

// Signaler relays negotiation messages to the other peer.
type Signaler interface {
	Signal(msgType string, payload any) error
}

// Hooks receive connection callbacks and carry the connection they came
// from so stale callbacks can be told apart. OnLocalChannel runs on the
// goroutine that called HandleMembers; the others run on pion goroutines.
// pion delivers no message on a remote channel until OnDataChannel returns.
type Hooks struct {
	OnLocalChannel    func(pc PeerConnection, dc DataChannel)
	OnDataChannel     func(pc PeerConnection, dc DataChannel)
	OnConnectionState func(pc PeerConnection, state webrtc.PeerConnectionState)
}

// Negotiator turns room membership and relayed offers, answers and
// candidates into one connected peer connection. It is not safe for
// concurrent use; a single event loop owns it.
type Negotiator struct {
	host     bool
	newPeer  func() (PeerConnection, error)
	signaler Signaler
	hooks    Hooks
	logger   *slog.Logger

	pc      PeerConnection
	role    Role
	pending []webrtc.ICECandidateInit
}

// NewNegotiator creates a negotiator. host is true for the room creator,
// which is the side that initiates and wins glare.
func NewNegotiator(host bool, newPeer func() (PeerConnection, error), signaler Signaler, hooks Hooks, logger *slog.Logger) *Negotiator {
	return &Negotiator{
		host:     host,
		newPeer:  newPeer,
		signaler: signaler,
		hooks:    hooks,
		logger:   logger,
	}
}

// Phase reports the negotiation phase of the current connection.
func (n *Negotiator) Phase() Phase {
	if n.pc == nil {
		return PhaseIdle
	}
	switch n.pc.SignalingState() {
	case webrtc.SignalingStateHaveLocalOffer:
		return PhaseHaveLocalOffer
	case webrtc.SignalingStateHaveRemoteOffer:
		return PhaseHaveRemoteOffer
	case webrtc.SignalingStateStable:
		if n.pc.LocalDescription() == nil && n.pc.RemoteDescription() == nil {
			return PhaseIdle
		}
		return PhaseStable
	}
	return PhaseIdle
}

// Role reports the role taken for the current connection.
func (n *Negotiator) Role() Role { return n.role }

// Owns reports whether pc is the current connection.
func (n *Negotiator) Owns(pc PeerConnection) bool {
	return pc != nil && pc == n.pc
}

// Pending returns the number of queued remote candidates.
func (n *Negotiator) Pending() int { return len(n.pending) }

// HandleMembers reacts to a room membership update. The host starts
// negotiating once the room holds two members; a connection is torn down
// when the room drops below two.
func (n *Negotiator) HandleMembers(count int) error {
	if count < 2 {
		if n.pc != nil {
			n.logger.Info("peer left room, closing connection")
			n.Close()
		}
		return nil
	}
	if count == 2 && n.host && n.pc == nil {
		return n.initiate()
	}
	return nil
}

func (n *Negotiator) initiate() error {
	if err := n.build(RoleInitiator); err != nil {
		return err
	}

	ordered := true
	dc, err := n.pc.CreateDataChannel(ChannelLabel, &webrtc.DataChannelInit{Ordered: &ordered})
	if err != nil {
		return fmt.Errorf("create data channel: %w", err)
	}
	if n.hooks.OnLocalChannel != nil {
		n.hooks.OnLocalChannel(n.pc, dc)
	}

	offer, err := n.pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	if err := n.pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("set local offer: %w", err)
	}

	n.logger.Debug("sending offer")
	return n.signaler.Signal(signaling.TypeOffer, offer)
}

// HandleOffer installs a remote offer and answers it. On glare the host
// keeps its own offer and ignores this one; the other side rolls back.
func (n *Negotiator) HandleOffer(desc webrtc.SessionDescription) error {
	if n.pc == nil {
		if err := n.build(RoleResponder); err != nil {
			return err
		}
	}

	if n.pc.SignalingState() != webrtc.SignalingStateStable {
		if n.host {
			n.logger.Info("glare: keeping local offer, ignoring remote offer")
			return nil
		}
		n.logger.Info("glare: rolling back local offer")
		if err := n.rollback(); err != nil {
			return err
		}
	}
	n.role = RoleResponder

	if err := n.pc.SetRemoteDescription(desc); err != nil {
		return fmt.Errorf("set remote offer: %w", err)
	}
	n.flush()

	answer, err := n.pc.CreateAnswer(nil)
	if err != nil {
		return fmt.Errorf("create answer: %w", err)
	}
	if err := n.pc.SetLocalDescription(answer); err != nil {
		return fmt.Errorf("set local answer: %w", err)
	}

	n.logger.Debug("sending answer")
	return n.signaler.Signal(signaling.TypeAnswer, answer)
}

// rollback discards the local offer. If the connection refuses, it is
// replaced by a fresh responder connection.
func (n *Negotiator) rollback() error {
	err := n.pc.SetLocalDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeRollback})
	if err == nil {
		return nil
	}
	n.logger.Warn("rollback failed, rebuilding connection", "error", err)
	pending := n.pending
	n.Close()
	n.pending = pending
	return n.build(RoleResponder)
}

// HandleAnswer installs a remote answer. Answers are only meaningful while
// a local offer is outstanding; anything else is logged and discarded.
func (n *Negotiator) HandleAnswer(desc webrtc.SessionDescription) error {
	if phase := n.Phase(); phase != PhaseHaveLocalOffer {
		n.logger.Warn("discarding unexpected answer", "phase", phase)
		return nil
	}
	if err := n.pc.SetRemoteDescription(desc); err != nil {
		return fmt.Errorf("set remote answer: %w", err)
	}
	n.flush()
	return nil
}

// HandleCandidate applies a remote candidate, or queues it until a remote
// description is installed.
func (n *Negotiator) HandleCandidate(c webrtc.ICECandidateInit) error {
	if n.pc == nil || n.pc.RemoteDescription() == nil {
		if len(n.pending) >= maxPendingCandidates {
			n.logger.Warn("candidate queue full, dropping candidate", "queued", len(n.pending))
			return nil
		}
		n.pending = append(n.pending, c)
		return nil
	}
	if err := n.pc.AddICECandidate(c); err != nil {
		return fmt.Errorf("add candidate: %w", err)
	}
	return nil
}

// flush applies queued candidates in the order they arrived.
func (n *Negotiator) flush() {
	if len(n.pending) == 0 {
		return
	}
	n.logger.Debug("applying queued candidates", "count", len(n.pending))
	for _, c := range n.pending {
		if err := n.pc.AddICECandidate(c); err != nil {
			n.logger.Warn("failed to apply queued candidate", "error", err)
		}
	}
	n.pending = nil
}

// Close tears down the current connection. A later negotiation starts
// from a fresh one.
func (n *Negotiator) Close() {
	if n.pc != nil {
		if err := n.pc.Close(); err != nil && !errors.Is(err, webrtc.ErrConnectionClosed) {
			n.logger.Debug("closing peer connection", "error", err)
		}
	}
	n.pc = nil
	n.role = RoleUnassigned
	n.pending = nil
}

func (n *Negotiator) build(role Role) error {
	pc, err := n.newPeer()
	if err != nil {
		return fmt.Errorf("create peer connection: %w", err)
	}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		if err := n.signaler.Signal(signaling.TypeICE, c.ToJSON()); err != nil {
			n.logger.Warn("failed to send local candidate", "error", err)
		}
	})
	pc.OnDataChannel(func(dc DataChannel) {
		if n.hooks.OnDataChannel != nil {
			n.hooks.OnDataChannel(pc, dc)
		}
	})
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		if n.hooks.OnConnectionState != nil {
			n.hooks.OnConnectionState(pc, state)
		}
	})

	n.pc = pc
	n.role = role
	n.logger.Debug("peer connection created", "role", role)
	return nil
}
