package webrtc

import (
	"errors"
	"sync"

	"github.com/pion/webrtc/v4"
)

type fakeDataChannel struct {
	mu       sync.Mutex
	label    string
	state    webrtc.DataChannelState
	buffered uint64
	sent     [][]byte
	texts    []string

	onOpen    func()
	onClose   func()
	onError   func(error)
	onMessage func(webrtc.DataChannelMessage)
	onLow     func()
	threshold uint64
}

func newFakeDataChannel(label string) *fakeDataChannel {
	return &fakeDataChannel{label: label, state: webrtc.DataChannelStateConnecting}
}

func (d *fakeDataChannel) Label() string { return d.label }
func (d *fakeDataChannel) ReadyState() webrtc.DataChannelState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}
func (d *fakeDataChannel) OnOpen(f func())                             { d.onOpen = f }
func (d *fakeDataChannel) OnClose(f func())                            { d.onClose = f }
func (d *fakeDataChannel) OnError(f func(error))                       { d.onError = f }
func (d *fakeDataChannel) OnMessage(f func(webrtc.DataChannelMessage)) { d.onMessage = f }
func (d *fakeDataChannel) OnBufferedAmountLow(f func())                { d.onLow = f }
func (d *fakeDataChannel) SetBufferedAmountLowThreshold(v uint64)      { d.threshold = v }

func (d *fakeDataChannel) Send(b []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, b)
	return nil
}

func (d *fakeDataChannel) SendText(s string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.texts = append(d.texts, s)
	return nil
}

func (d *fakeDataChannel) BufferedAmount() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.buffered
}

func (d *fakeDataChannel) setBuffered(v uint64) {
	d.mu.Lock()
	d.buffered = v
	d.mu.Unlock()
}

func (d *fakeDataChannel) open() {
	d.mu.Lock()
	d.state = webrtc.DataChannelStateOpen
	d.mu.Unlock()
	if d.onOpen != nil {
		d.onOpen()
	}
}

func (d *fakeDataChannel) Close() error {
	d.mu.Lock()
	d.state = webrtc.DataChannelStateClosed
	d.mu.Unlock()
	if d.onClose != nil {
		d.onClose()
	}
	return nil
}

var errRollbackUnsupported = errors.New("rollback unsupported")

// fakePeer models just enough of the JSEP signaling state machine.
type fakePeer struct {
	state  webrtc.SignalingState
	local  *webrtc.SessionDescription
	remote *webrtc.SessionDescription
	added  []webrtc.ICECandidateInit
	closed bool

	rollbackErr error
	channels    []*fakeDataChannel

	onCandidate func(*webrtc.ICECandidate)
	onChannel   func(DataChannel)
	onState     func(webrtc.PeerConnectionState)
}

func newFakePeer() *fakePeer {
	return &fakePeer{state: webrtc.SignalingStateStable}
}

func (p *fakePeer) CreateDataChannel(label string, _ *webrtc.DataChannelInit) (DataChannel, error) {
	dc := newFakeDataChannel(label)
	p.channels = append(p.channels, dc)
	return dc, nil
}

func (p *fakePeer) OnDataChannel(f func(DataChannel))                          { p.onChannel = f }
func (p *fakePeer) OnICECandidate(f func(*webrtc.ICECandidate))                { p.onCandidate = f }
func (p *fakePeer) OnConnectionStateChange(f func(webrtc.PeerConnectionState)) { p.onState = f }

func (p *fakePeer) CreateOffer(*webrtc.OfferOptions) (webrtc.SessionDescription, error) {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "local-offer"}, nil
}

func (p *fakePeer) CreateAnswer(*webrtc.AnswerOptions) (webrtc.SessionDescription, error) {
	if p.state != webrtc.SignalingStateHaveRemoteOffer {
		return webrtc.SessionDescription{}, errors.New("no remote offer")
	}
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "local-answer"}, nil
}

func (p *fakePeer) SetLocalDescription(d webrtc.SessionDescription) error {
	switch d.Type {
	case webrtc.SDPTypeOffer:
		if p.state != webrtc.SignalingStateStable {
			return errors.New("offer in wrong state")
		}
		p.state = webrtc.SignalingStateHaveLocalOffer
	case webrtc.SDPTypeAnswer:
		if p.state != webrtc.SignalingStateHaveRemoteOffer {
			return errors.New("answer in wrong state")
		}
		p.state = webrtc.SignalingStateStable
	case webrtc.SDPTypeRollback:
		if p.rollbackErr != nil {
			return p.rollbackErr
		}
		p.state = webrtc.SignalingStateStable
		p.local = nil
		return nil
	}
	p.local = &d
	return nil
}

func (p *fakePeer) SetRemoteDescription(d webrtc.SessionDescription) error {
	switch d.Type {
	case webrtc.SDPTypeOffer:
		if p.state != webrtc.SignalingStateStable {
			return errors.New("remote offer in wrong state")
		}
		p.state = webrtc.SignalingStateHaveRemoteOffer
	case webrtc.SDPTypeAnswer:
		if p.state != webrtc.SignalingStateHaveLocalOffer {
			return errors.New("remote answer in wrong state")
		}
		p.state = webrtc.SignalingStateStable
	}
	p.remote = &d
	return nil
}

func (p *fakePeer) LocalDescription() *webrtc.SessionDescription  { return p.local }
func (p *fakePeer) RemoteDescription() *webrtc.SessionDescription { return p.remote }
func (p *fakePeer) SignalingState() webrtc.SignalingState         { return p.state }

func (p *fakePeer) AddICECandidate(c webrtc.ICECandidateInit) error {
	if p.remote == nil {
		return errors.New("no remote description")
	}
	p.added = append(p.added, c)
	return nil
}

func (p *fakePeer) Close() error {
	p.closed = true
	p.state = webrtc.SignalingStateClosed
	return nil
}

type sentSignal struct {
	Type    string
	Payload any
}

type fakeSignaler struct {
	mu   sync.Mutex
	sent []sentSignal
}

func (s *fakeSignaler) Signal(msgType string, payload any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sentSignal{Type: msgType, Payload: payload})
	return nil
}

func (s *fakeSignaler) types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.sent))
	for i, m := range s.sent {
		out[i] = m.Type
	}
	return out
}

func webrtcText(s string) webrtc.DataChannelMessage {
	return webrtc.DataChannelMessage{IsString: true, Data: []byte(s)}
}

func webrtcBinary(b []byte) webrtc.DataChannelMessage {
	return webrtc.DataChannelMessage{Data: b}
}
