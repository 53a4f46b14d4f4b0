package transfer

// Direction tells which side of a transfer a session describes.
type Direction string

const (
	DirectionSend    Direction = "send"
	DirectionReceive Direction = "receive"
)

// Status is the lifecycle state of a transfer session.
type Status string

const (
	StatusIdle         Status = "idle"
	StatusOffered      Status = "offered"
	StatusAccepted     Status = "accepted"
	StatusRejected     Status = "rejected"
	StatusTransferring Status = "transferring"
	StatusCompleted    Status = "completed"
	StatusFailed       Status = "failed"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusRejected || s == StatusCompleted || s == StatusFailed
}

// Active reports whether the session holds the direction's single slot.
func (s Status) Active() bool {
	return s == StatusOffered || s == StatusAccepted || s == StatusTransferring
}

// Session is a snapshot of one transfer.
type Session struct {
	Direction   Direction
	Filename    string
	Size        int64
	Transferred int64
	Status      Status
	Progress    int
	Err         error
}

// advance records n more bytes and raises progress, never lowering it.
func (s *Session) advance(n int64) {
	s.Transferred += n
	if p := Percent(s.Transferred, s.Size); p > s.Progress {
		s.Progress = p
	}
}

func (s *Session) complete() {
	s.Status = StatusCompleted
	s.Progress = 100
	s.Err = nil
}

func (s *Session) fail(err error) {
	s.Status = StatusFailed
	s.Err = err
}
