package p2p

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	pion "github.com/pion/webrtc/v4"

	"github.com/roomdrop/roomdrop/internal/config"
	"github.com/roomdrop/roomdrop/internal/signaling"
	"github.com/roomdrop/roomdrop/internal/transfer"
	"github.com/roomdrop/roomdrop/internal/utils"
	"github.com/roomdrop/roomdrop/internal/webrtc"
)

const (
	inboxSize  = 256
	eventsSize = 256
)

var (
	ErrNotConnected  = errors.New("not connected to a peer")
	ErrAlreadyInRoom = errors.New("already in a room")
	ErrStopped       = errors.New("peer stopped")
	ErrSignalingLost = errors.New("signaling connection lost")
	ErrConnection    = errors.New("peer connection failed")
)

// SignalClient is the relay connection as the peer uses it.
// *signaling.Client satisfies it.
type SignalClient interface {
	webrtc.Signaler
	Join(room string) error
	Incoming() <-chan *signaling.Message
	Close()
}

// Inbox message types. Everything the loop reacts to arrives as one of these.
type (
	signalMsg struct{ msg *signaling.Message }
	signalEnd struct{}
	dataChan  struct {
		pc webrtc.PeerConnection
		ch *webrtc.Channel
	}
	connState struct {
		pc    webrtc.PeerConnection
		state pion.PeerConnectionState
	}
	command struct {
		fn    func() error
		reply chan error
	}
	chunkSent struct {
		stream *transfer.Stream
		n      int
	}
	streamDone struct {
		stream *transfer.Stream
		err    error
	}
)

// Option configures a Peer.
type Option func(*Peer)

// WithPeerConnectionFactory replaces the pion peer connection constructor.
func WithPeerConnectionFactory(f func() (webrtc.PeerConnection, error)) Option {
	return func(p *Peer) { p.newPeer = f }
}

// Peer is the client core. Run owns all negotiation and transfer state;
// the exported methods hand work to it and wait for the result.
type Peer struct {
	client  SignalClient
	cfg     *config.Config
	logger  *slog.Logger
	newPeer func() (webrtc.PeerConnection, error)

	inbox    chan any
	events   chan Event
	done     chan struct{}
	stop     chan struct{}
	stopOnce sync.Once

	// Owned by Run.
	room         string
	negotiator   *webrtc.Negotiator
	channel      *webrtc.Channel
	connected    bool
	sender       *transfer.Sender
	receiver     *transfer.Receiver
	stream       *transfer.Stream
	cancelStream context.CancelFunc
	runCtx       context.Context
}

// New creates a peer on an already connected signaling client.
func New(client SignalClient, cfg *config.Config, logger *slog.Logger, opts ...Option) *Peer {
	p := &Peer{
		client: client,
		cfg:    cfg,
		logger: logger.With("component", "p2p"),
		inbox:  make(chan any, inboxSize),
		events: make(chan Event, eventsSize),
		done:   make(chan struct{}),
		stop:   make(chan struct{}),
	}
	p.newPeer = func() (webrtc.PeerConnection, error) {
		return webrtc.NewPeerConnection(cfg)
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Events returns the event stream. It is closed when Run returns.
func (p *Peer) Events() <-chan Event { return p.events }

// Run processes inputs until ctx is cancelled or the peer is closed.
func (p *Peer) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	p.runCtx = ctx

	go p.forwardSignals(ctx)

	defer func() {
		cancel()
		p.teardown()
		close(p.done)
		close(p.events)
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.stop:
			return nil
		case m := <-p.inbox:
			p.handle(m)
		}
	}
}

// Close stops Run, tearing down the connection and the relay session.
func (p *Peer) Close() {
	p.stopOnce.Do(func() { close(p.stop) })
}

func (p *Peer) forwardSignals(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-p.client.Incoming():
			if !ok {
				p.post(signalEnd{})
				return
			}
			p.post(signalMsg{msg})
		}
	}
}

// post delivers m to the loop. It is safe from any goroutine and gives up
// once the loop has stopped.
func (p *Peer) post(m any) {
	select {
	case p.inbox <- m:
	case <-p.done:
	}
}

func (p *Peer) do(ctx context.Context, fn func() error) error {
	reply := make(chan error, 1)
	select {
	case p.inbox <- command{fn: fn, reply: reply}:
	case <-p.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-p.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CreateRoom generates a room code, joins it as host and returns the code.
func (p *Peer) CreateRoom(ctx context.Context) (string, error) {
	code, err := utils.NewRoomCode()
	if err != nil {
		return "", fmt.Errorf("generate room code: %w", err)
	}
	if err := p.do(ctx, func() error { return p.join(code, true) }); err != nil {
		return "", err
	}
	return code, nil
}

// JoinRoom joins an existing room as the non-host side.
func (p *Peer) JoinRoom(ctx context.Context, code string) error {
	return p.do(ctx, func() error { return p.join(code, false) })
}

// SendFile offers f to the connected peer. Bytes move only after the peer
// accepts.
func (p *Peer) SendFile(ctx context.Context, f transfer.File) error {
	return p.do(ctx, func() error {
		if p.sender == nil || !p.connected {
			return ErrNotConnected
		}
		if err := p.sender.Offer(f); err != nil {
			return err
		}
		p.emit(Event{Kind: EventStatus, Session: p.sender.Session()})
		return nil
	})
}

// AcceptFile accepts the pending inbound offer.
func (p *Peer) AcceptFile(ctx context.Context) error {
	return p.do(ctx, func() error {
		if p.receiver == nil {
			return ErrNotConnected
		}
		if err := p.receiver.Accept(); err != nil {
			return err
		}
		p.emit(Event{Kind: EventStatus, Session: p.receiver.Session()})
		return nil
	})
}

// RejectFile declines the pending inbound offer.
func (p *Peer) RejectFile(ctx context.Context) error {
	return p.do(ctx, func() error {
		if p.receiver == nil {
			return ErrNotConnected
		}
		if err := p.receiver.Reject(); err != nil {
			return err
		}
		p.emit(Event{Kind: EventStatus, Session: p.receiver.Session()})
		return nil
	})
}

func (p *Peer) join(code string, host bool) error {
	if p.room != "" {
		return ErrAlreadyInRoom
	}
	p.room = code
	p.logger = p.logger.With("room", code)

	hooks := webrtc.Hooks{
		OnLocalChannel: func(pc webrtc.PeerConnection, dc webrtc.DataChannel) {
			p.attachChannel(pc, p.wrapChannel(dc))
		},
		// Callbacks are registered before returning to pion, so no message
		// on the channel can slip past; dataChan reaches the inbox ahead
		// of the channel's first event.
		OnDataChannel: func(pc webrtc.PeerConnection, dc webrtc.DataChannel) {
			p.post(dataChan{pc: pc, ch: p.wrapChannel(dc)})
		},
		OnConnectionState: func(pc webrtc.PeerConnection, state pion.PeerConnectionState) {
			p.post(connState{pc: pc, state: state})
		},
	}
	p.negotiator = webrtc.NewNegotiator(host, p.newPeer, p.client, hooks, p.logger.With("component", "negotiator"))

	if err := p.client.Join(code); err != nil {
		p.room = ""
		p.negotiator = nil
		return fmt.Errorf("join room: %w", err)
	}
	p.logger.Info("joined room", "host", host)
	return nil
}

func (p *Peer) handle(m any) {
	switch m := m.(type) {
	case command:
		m.reply <- m.fn()
	case signalMsg:
		p.handleSignal(m.msg)
	case signalEnd:
		p.logger.Warn("signaling connection closed")
		p.emit(Event{Kind: EventError, Err: ErrSignalingLost})
	case dataChan:
		p.attachChannel(m.pc, m.ch)
	case webrtc.ChannelEvent:
		p.handleChannel(m)
	case connState:
		p.handleConnState(m.pc, m.state)
	case chunkSent:
		if m.stream == p.stream {
			p.emitProgress(p.sender.Advance(m.n))
		}
	case streamDone:
		if m.stream != p.stream {
			return
		}
		p.stream = nil
		p.cancelStream = nil
		session := p.sender.Finish(m.err)
		if m.err != nil {
			p.logger.Warn("send failed", "file", session.Filename, "error", m.err)
		} else {
			p.logger.Info("file sent", "file", session.Filename, "bytes", session.Transferred)
		}
		p.emit(Event{Kind: EventStatus, Session: session})
	default:
		p.logger.Error("unknown inbox message", "type", fmt.Sprintf("%T", m))
	}
}

func (p *Peer) handleSignal(msg *signaling.Message) {
	if msg.Type == signaling.TypeError {
		var e signaling.ErrorPayload
		if err := msg.DecodePayload(&e); err != nil {
			e.Error = "unknown relay error"
		}
		p.logger.Warn("relay error", "error", e.Error)
		p.emit(Event{Kind: EventError, Err: fmt.Errorf("relay: %s", e.Error)})
		return
	}
	if p.negotiator == nil {
		p.logger.Debug("ignoring signal outside a room", "type", msg.Type)
		return
	}

	var err error
	switch msg.Type {
	case signaling.TypeMembers:
		var m signaling.MembersPayload
		if err = msg.DecodePayload(&m); err != nil {
			break
		}
		p.emit(Event{Kind: EventMembers, Count: m.Count})
		if m.Count < 2 && p.connected {
			// Chunks sent before the peer left may still be queued behind
			// this message; the channel close ends the session instead.
			p.logger.Info("peer left the room, waiting for the data channel to close")
			break
		}
		if m.Count < 2 && p.channel != nil {
			p.dropChannel(transfer.ErrPeerDisconnected)
		}
		err = p.negotiator.HandleMembers(m.Count)

	case signaling.TypeOffer, signaling.TypeAnswer:
		var desc pion.SessionDescription
		if err = msg.DecodePayload(&desc); err != nil {
			break
		}
		if msg.Type == signaling.TypeOffer {
			err = p.negotiator.HandleOffer(desc)
		} else {
			err = p.negotiator.HandleAnswer(desc)
		}

	case signaling.TypeICE:
		var c pion.ICECandidateInit
		if err = msg.DecodePayload(&c); err != nil {
			break
		}
		err = p.negotiator.HandleCandidate(c)

	default:
		p.logger.Debug("ignoring signal", "type", msg.Type)
	}

	if err != nil {
		p.logger.Warn("signal handling failed", "type", msg.Type, "error", err)
	}
}

// wrapChannel registers the channel callbacks. Events posted before the
// channel is attached are dropped by handleChannel.
func (p *Peer) wrapChannel(dc webrtc.DataChannel) *webrtc.Channel {
	return webrtc.NewChannel(dc, func(e webrtc.ChannelEvent) { p.post(e) })
}

func (p *Peer) attachChannel(pc webrtc.PeerConnection, ch *webrtc.Channel) {
	if p.negotiator == nil || !p.negotiator.Owns(pc) {
		p.logger.Debug("closing data channel from a stale connection")
		ch.Close()
		return
	}
	if ch.Label() != webrtc.ChannelLabel {
		p.logger.Warn("ignoring unexpected data channel", "label", ch.Label())
		return
	}
	if p.channel != nil {
		p.channel.Close()
	}

	p.channel = ch
	p.sender = transfer.NewSender(ch)
	p.receiver = transfer.NewReceiver(ch, p.cfg.MaxFileSize)
	p.logger.Debug("data channel attached", "label", ch.Label())
}

func (p *Peer) handleChannel(e webrtc.ChannelEvent) {
	if e.Channel != p.channel {
		return
	}

	switch e.Kind {
	case webrtc.ChannelOpen:
		p.connected = true
		p.logger.Info("data channel open")
		p.emit(Event{Kind: EventConnected})
	case webrtc.ChannelClosed:
		p.logger.Info("data channel closed")
		p.dropChannel(transfer.ErrPeerDisconnected)
		if p.negotiator != nil {
			p.negotiator.Close()
		}
	case webrtc.ChannelError:
		p.logger.Warn("data channel error", "error", e.Err)
	case webrtc.ChannelControl:
		p.handleControl(e.Data)
	case webrtc.ChannelBinary:
		session, err := p.receiver.HandleChunk(e.Data)
		switch {
		case errors.Is(err, transfer.ErrNoHeader):
			p.logger.Warn("dropping chunk received without a header", "bytes", len(e.Data))
		case err != nil:
			p.logger.Warn("receive failed", "error", err)
			p.emit(Event{Kind: EventStatus, Session: session})
		default:
			p.emitProgress(session)
		}
	}
}

func (p *Peer) handleControl(data []byte) {
	ctl, err := transfer.DecodeControl(data)
	if err != nil {
		p.logger.Warn("ignoring control message", "error", err)
		return
	}

	switch ctl.Kind {
	case transfer.KindOffer:
		session, err := p.receiver.HandleOffer(ctl)
		switch {
		case errors.Is(err, transfer.ErrTransferActive):
			p.logger.Warn("rejected offer during active transfer", "file", ctl.Filename)
		case err != nil:
			p.logger.Warn("rejected offer", "file", ctl.Filename, "size", ctl.Size, "error", err)
			p.emit(Event{Kind: EventStatus, Session: session, Err: err})
		default:
			p.emit(Event{Kind: EventOffer, Session: session})
		}

	case transfer.KindAccept:
		stream, err := p.sender.HandleAccept()
		if err != nil {
			p.logger.Warn("ignoring accept", "error", err)
			return
		}
		p.startStream(stream)
		p.emit(Event{Kind: EventStatus, Session: p.sender.Session()})

	case transfer.KindReject:
		if err := p.sender.HandleReject(); err != nil {
			p.logger.Warn("ignoring reject", "error", err)
			return
		}
		p.emit(Event{Kind: EventStatus, Session: p.sender.Session()})

	case transfer.KindHeader:
		session, err := p.receiver.HandleHeader(ctl)
		if err != nil {
			p.logger.Warn("ignoring header", "error", err)
			if session.Status == transfer.StatusFailed {
				p.emit(Event{Kind: EventStatus, Session: session})
			}
			return
		}
		p.emit(Event{Kind: EventStatus, Session: session})

	case transfer.KindDone:
		file, session, err := p.receiver.HandleDone()
		if err != nil {
			p.logger.Warn("completion failed", "error", err)
			if session.Status == transfer.StatusFailed {
				p.emit(Event{Kind: EventStatus, Session: session})
			}
			return
		}
		p.logger.Info("file received", "file", file.Name, "bytes", len(file.Data))
		p.emit(Event{Kind: EventFile, Session: session, File: file})
	}
}

func (p *Peer) startStream(stream *transfer.Stream) {
	ctx, cancel := context.WithCancel(p.runCtx)
	p.stream = stream
	p.cancelStream = cancel

	go func() {
		err := stream.Run(ctx, func(n int) {
			p.post(chunkSent{stream: stream, n: n})
		})
		p.post(streamDone{stream: stream, err: err})
	}()
}

func (p *Peer) handleConnState(pc webrtc.PeerConnection, state pion.PeerConnectionState) {
	if p.negotiator == nil || !p.negotiator.Owns(pc) {
		return
	}
	p.logger.Debug("peer connection state", "state", state.String())

	if state == pion.PeerConnectionStateFailed {
		p.dropChannel(ErrConnection)
		p.negotiator.Close()
	}
}

// dropChannel forgets the data channel and fails whatever was in flight.
func (p *Peer) dropChannel(reason error) {
	if p.cancelStream != nil {
		p.cancelStream()
		p.cancelStream = nil
	}
	p.stream = nil

	if p.sender != nil {
		if before := p.sender.Session(); before.Status.Active() {
			p.emit(Event{Kind: EventStatus, Session: p.sender.Fail(reason)})
		}
	}
	if p.receiver != nil {
		if before := p.receiver.Session(); before.Status.Active() {
			p.emit(Event{Kind: EventStatus, Session: p.receiver.Fail(reason)})
		}
	}

	if p.channel != nil {
		p.channel.Close()
		p.channel = nil
	}
	wasConnected := p.connected
	p.connected = false
	if wasConnected {
		p.emit(Event{Kind: EventDisconnected, Err: reason})
	}
}

func (p *Peer) teardown() {
	p.dropChannel(ErrStopped)
	if p.negotiator != nil {
		p.negotiator.Close()
	}
	p.client.Close()
}

// emit delivers an event, blocking until the consumer makes room or the
// loop is stopping.
func (p *Peer) emit(e Event) {
	select {
	case p.events <- e:
	case <-p.runCtx.Done():
	}
}

// emitProgress drops progress updates the consumer has no room for; a
// later update supersedes them.
func (p *Peer) emitProgress(s transfer.Session) {
	select {
	case p.events <- Event{Kind: EventProgress, Session: s}:
	default:
	}
}
