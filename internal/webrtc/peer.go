package webrtc

import (
	"github.com/pion/webrtc/v4"

	"github.com/roomdrop/roomdrop/internal/config"
	"github.com/roomdrop/roomdrop/internal/utils"
)

// DataChannel is the subset of *webrtc.DataChannel used by the transport.
type DataChannel interface {
	Label() string
	ReadyState() webrtc.DataChannelState
	OnOpen(func())
	OnClose(func())
	OnError(func(error))
	OnMessage(func(webrtc.DataChannelMessage))
	Send([]byte) error
	SendText(string) error
	BufferedAmount() uint64
	SetBufferedAmountLowThreshold(uint64)
	OnBufferedAmountLow(func())
	Close() error
}

// PeerConnection is the subset of *webrtc.PeerConnection the negotiator
// drives. Tests substitute a scripted fake.
type PeerConnection interface {
	CreateDataChannel(label string, init *webrtc.DataChannelInit) (DataChannel, error)
	OnDataChannel(func(DataChannel))
	OnICECandidate(func(*webrtc.ICECandidate))
	OnConnectionStateChange(func(webrtc.PeerConnectionState))
	CreateOffer(*webrtc.OfferOptions) (webrtc.SessionDescription, error)
	CreateAnswer(*webrtc.AnswerOptions) (webrtc.SessionDescription, error)
	SetLocalDescription(webrtc.SessionDescription) error
	SetRemoteDescription(webrtc.SessionDescription) error
	LocalDescription() *webrtc.SessionDescription
	RemoteDescription() *webrtc.SessionDescription
	AddICECandidate(webrtc.ICECandidateInit) error
	SignalingState() webrtc.SignalingState
	Close() error
}

// pionPeer adapts *webrtc.PeerConnection to PeerConnection.
type pionPeer struct {
	*webrtc.PeerConnection
}

func (p pionPeer) CreateDataChannel(label string, init *webrtc.DataChannelInit) (DataChannel, error) {
	dc, err := p.PeerConnection.CreateDataChannel(label, init)
	if err != nil {
		return nil, err
	}
	return dc, nil
}

func (p pionPeer) OnDataChannel(f func(DataChannel)) {
	p.PeerConnection.OnDataChannel(func(dc *webrtc.DataChannel) {
		f(dc)
	})
}

// NewPeerConnection builds a pion peer connection from the client config.
func NewPeerConnection(cfg *config.Config) (PeerConnection, error) {
	var iceServers []webrtc.ICEServer
	if stun := cfg.GetSTUNServers(); stun != nil {
		iceServers = append(iceServers, webrtc.ICEServer{URLs: stun})
	}

	turnServers := cfg.GetTURNServers()
	if turnServers != nil {
		username, password := cfg.GetTURNCredentials()
		iceServers = append(iceServers, webrtc.ICEServer{
			URLs:       turnServers,
			Username:   username,
			Credential: password,
		})
	}

	// ForceRelay uses only TURN servers; otherwise try direct first and
	// fall back to TURN.
	policy := webrtc.ICETransportPolicyAll
	if turnServers != nil && (cfg.ForceRelay || utils.ShouldForceRelay()) {
		policy = webrtc.ICETransportPolicyRelay
	}

	var se webrtc.SettingEngine
	if cfg.LoopbackCandidates {
		se.SetIncludeLoopbackCandidate(true)
	}
	api := webrtc.NewAPI(webrtc.WithSettingEngine(se))

	pc, err := api.NewPeerConnection(webrtc.Configuration{
		ICEServers:         iceServers,
		ICETransportPolicy: policy,
	})
	if err != nil {
		return nil, err
	}
	return pionPeer{pc}, nil
}
