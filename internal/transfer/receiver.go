package transfer

import (
	"bytes"
	"os"
	"path/filepath"

	"github.com/roomdrop/roomdrop/internal/utils"
)

// ReceivedFile is a completed inbound file held in memory.
type ReceivedFile struct {
	Name string
	Data []byte
}

// Receiver drives the inbound side: surface an offer, answer it, then
// reassemble the chunks that follow the header. It is owned by a single
// goroutine.
type Receiver struct {
	conn    Conn
	maxSize int64

	session Session
	buf     bytes.Buffer
}

// NewReceiver creates an idle receiver. Offers larger than maxSize are
// refused; zero means no limit.
func NewReceiver(conn Conn, maxSize int64) *Receiver {
	return &Receiver{
		conn:    conn,
		maxSize: maxSize,
		session: Session{Direction: DirectionReceive, Status: StatusIdle},
	}
}

// Session returns a snapshot of the inbound session.
func (r *Receiver) Session() Session { return r.session }

// HandleOffer records an incoming offer and leaves the verdict to the user.
// An offer that arrives mid-transfer or exceeds the size limit is refused
// on the spot.
func (r *Receiver) HandleOffer(c Control) (Session, error) {
	if r.session.Status.Active() {
		if err := sendControl(r.conn, Control{Kind: KindReject}); err != nil {
			return r.session, NewFileError("reject", c.Filename, err)
		}
		return r.session, NewFileError("offer", c.Filename, ErrTransferActive)
	}

	r.buf.Reset()
	r.session = Session{
		Direction: DirectionReceive,
		Filename:  c.Filename,
		Size:      c.Size,
		Status:    StatusOffered,
	}

	if r.maxSize > 0 && c.Size > r.maxSize {
		if err := sendControl(r.conn, Control{Kind: KindReject}); err != nil {
			return r.session, NewFileError("reject", c.Filename, err)
		}
		r.session.Status = StatusRejected
		r.session.Err = ErrFileTooLarge
		return r.session, NewFileError("offer", c.Filename, ErrFileTooLarge)
	}
	return r.session, nil
}

// Accept tells the sender to start streaming.
func (r *Receiver) Accept() error {
	if r.session.Status != StatusOffered {
		return WrapError("accept", ErrUnexpectedControl, string(r.session.Status))
	}
	if err := sendControl(r.conn, Control{Kind: KindAccept}); err != nil {
		return NewFileError("accept", r.session.Filename, err)
	}
	r.session.Status = StatusAccepted
	return nil
}

// Reject declines the pending offer and forgets it.
func (r *Receiver) Reject() error {
	if r.session.Status != StatusOffered {
		return WrapError("reject", ErrUnexpectedControl, string(r.session.Status))
	}
	if err := sendControl(r.conn, Control{Kind: KindReject}); err != nil {
		return NewFileError("reject", r.session.Filename, err)
	}
	r.session.Status = StatusRejected
	return nil
}

// HandleHeader starts reassembly. The header's name and size are the
// declared ones from here on.
func (r *Receiver) HandleHeader(c Control) (Session, error) {
	if r.session.Status != StatusAccepted {
		return r.session, WrapError("header", ErrUnexpectedControl, string(r.session.Status))
	}
	if r.maxSize > 0 && c.Size > r.maxSize {
		r.session.fail(ErrFileTooLarge)
		return r.session, NewFileError("header", c.Filename, ErrFileTooLarge)
	}

	r.buf.Reset()
	r.buf.Grow(int(min(c.Size, 64<<20)))
	r.session.Filename = c.Filename
	r.session.Size = c.Size
	r.session.Transferred = 0
	r.session.Progress = 0
	r.session.Status = StatusTransferring
	return r.session, nil
}

// HandleChunk appends one binary frame.
func (r *Receiver) HandleChunk(data []byte) (Session, error) {
	if r.session.Status != StatusTransferring {
		return r.session, ErrNoHeader
	}
	if r.session.Transferred+int64(len(data)) > r.session.Size {
		r.buf.Reset()
		r.session.fail(ErrOverflow)
		return r.session, NewFileError("receive", r.session.Filename, ErrOverflow)
	}

	r.buf.Write(data)
	r.session.advance(int64(len(data)))
	return r.session, nil
}

// HandleDone finishes reassembly and hands over the file.
func (r *Receiver) HandleDone() (*ReceivedFile, Session, error) {
	if r.session.Status != StatusTransferring {
		return nil, r.session, WrapError("done", ErrUnexpectedControl, string(r.session.Status))
	}
	if r.session.Transferred != r.session.Size {
		r.buf.Reset()
		r.session.fail(ErrSizeMismatch)
		return nil, r.session, NewFileError("receive", r.session.Filename, ErrSizeMismatch)
	}

	data := make([]byte, r.buf.Len())
	copy(data, r.buf.Bytes())
	r.buf.Reset()

	r.session.complete()
	return &ReceivedFile{Name: r.session.Filename, Data: data}, r.session, nil
}

// Fail marks an active transfer failed and drops buffered data.
func (r *Receiver) Fail(err error) Session {
	if r.session.Status.Active() {
		r.buf.Reset()
		r.session.fail(err)
	}
	return r.session
}

// SaveFile writes f into dir under a name that does not clobber an
// existing file and returns the path written.
func SaveFile(dir string, f *ReceivedFile) (string, error) {
	name := filepath.Base(filepath.Clean("/" + f.Name))
	if name == "/" || name == "." || name == "" {
		return "", NewFileError("save", f.Name, ErrInvalidFile)
	}
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", NewFileError("create directory", dir, err)
		}
	}

	path := utils.GetUniqueFilename(filepath.Join(dir, name))
	if err := os.WriteFile(path, f.Data, 0o644); err != nil {
		return "", NewFileError("write", path, err)
	}
	return path, nil
}
