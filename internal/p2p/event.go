package p2p

import (
	"github.com/roomdrop/roomdrop/internal/transfer"
)

// EventKind identifies an Event.
type EventKind int

const (
	// EventMembers carries the room member count.
	EventMembers EventKind = iota
	// EventConnected fires when the data channel opens.
	EventConnected
	// EventDisconnected fires when the data channel or peer connection is lost.
	EventDisconnected
	// EventOffer carries an inbound offer awaiting AcceptFile or RejectFile.
	EventOffer
	// EventProgress carries a session whose progress advanced.
	EventProgress
	// EventStatus carries a session whose status changed.
	EventStatus
	// EventFile carries a completed inbound file.
	EventFile
	// EventError reports a non-fatal problem, such as a relay error message
	// or loss of the signaling connection.
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventMembers:
		return "members"
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventOffer:
		return "offer"
	case EventProgress:
		return "progress"
	case EventStatus:
		return "status"
	case EventFile:
		return "file"
	case EventError:
		return "error"
	}
	return "unknown"
}

// Event is what the client core reports to its caller.
type Event struct {
	Kind    EventKind
	Count   int
	Session transfer.Session
	File    *transfer.ReceivedFile
	Err     error
}
