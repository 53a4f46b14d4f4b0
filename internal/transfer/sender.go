package transfer

import (
	"context"
	"errors"
	"io"
)

// Conn is the data channel as seen by the transfer protocol.
type Conn interface {
	Open() bool
	SendControl(data []byte) error
	SendBinary(data []byte) error
	WaitWritable(ctx context.Context) error
	WaitDrained(ctx context.Context) error
}

// File is an outbound file. Content must hold at least Size bytes.
type File struct {
	Name    string
	Size    int64
	Content io.ReaderAt
}

func sendControl(conn Conn, c Control) error {
	data, err := EncodeControl(c)
	if err != nil {
		return err
	}
	return conn.SendControl(data)
}

// Sender drives the outbound side: offer, wait for a verdict, stream.
// It is owned by a single goroutine.
type Sender struct {
	conn    Conn
	file    *File
	session Session
}

// NewSender creates an idle sender on conn.
func NewSender(conn Conn) *Sender {
	return &Sender{
		conn:    conn,
		session: Session{Direction: DirectionSend, Status: StatusIdle},
	}
}

// Session returns a snapshot of the outbound session.
func (s *Sender) Session() Session { return s.session }

// Offer announces f to the peer. No file data moves until the peer accepts.
func (s *Sender) Offer(f File) error {
	if f.Name == "" || f.Size < 0 || f.Content == nil {
		return NewFileError("offer", f.Name, ErrInvalidFile)
	}
	if s.session.Status.Active() {
		return NewFileError("offer", f.Name, ErrTransferActive)
	}
	if !s.conn.Open() {
		return NewFileError("offer", f.Name, ErrChannelNotOpen)
	}

	if err := sendControl(s.conn, Control{Kind: KindOffer, Filename: f.Name, Size: f.Size}); err != nil {
		return NewFileError("offer", f.Name, err)
	}

	s.file = &f
	s.session = Session{
		Direction: DirectionSend,
		Filename:  f.Name,
		Size:      f.Size,
		Status:    StatusOffered,
	}
	return nil
}

// HandleAccept moves an offered transfer to transferring and returns the
// stream job that moves the bytes.
func (s *Sender) HandleAccept() (*Stream, error) {
	if s.session.Status != StatusOffered || s.file == nil {
		return nil, WrapError("accept", ErrUnexpectedControl, string(s.session.Status))
	}
	s.session.Status = StatusAccepted
	stream := &Stream{conn: s.conn, file: *s.file}
	s.session.Status = StatusTransferring
	return stream, nil
}

// HandleReject drops the pending file.
func (s *Sender) HandleReject() error {
	if s.session.Status != StatusOffered {
		return WrapError("reject", ErrUnexpectedControl, string(s.session.Status))
	}
	s.file = nil
	s.session.Status = StatusRejected
	s.session.Err = ErrTransferDeclined
	return nil
}

// Advance records n bytes handed to the channel.
func (s *Sender) Advance(n int) Session {
	if s.session.Status == StatusTransferring {
		s.session.advance(int64(n))
	}
	return s.session
}

// Finish ends the stream: completed on nil, failed otherwise.
func (s *Sender) Finish(err error) Session {
	if s.session.Status != StatusTransferring {
		return s.session
	}
	s.file = nil
	if err != nil {
		s.session.fail(err)
	} else {
		s.session.complete()
	}
	return s.session
}

// Fail marks an active transfer failed, for example when the channel drops.
func (s *Sender) Fail(err error) Session {
	if s.session.Status.Active() {
		s.file = nil
		s.session.fail(err)
	}
	return s.session
}

// Stream writes one accepted file: header, chunks, completion marker.
type Stream struct {
	conn Conn
	file File
}

// Run sends the file. onChunk is called after every chunk with its length.
// It returns once the completion marker has left the send buffer.
func (st *Stream) Run(ctx context.Context, onChunk func(n int)) error {
	name, size := st.file.Name, st.file.Size

	if err := sendControl(st.conn, Control{Kind: KindHeader, Filename: name, Size: size}); err != nil {
		return NewFileError("send header", name, err)
	}

	var offset int64
	for offset < size {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := st.conn.WaitWritable(ctx); err != nil {
			return NewFileError("send", name, err)
		}

		n := int64(ChunkSize)
		if rest := size - offset; rest < n {
			n = rest
		}
		// Each chunk gets its own buffer; the channel may hold on to it.
		chunk := make([]byte, n)
		read, err := st.file.Content.ReadAt(chunk, offset)
		if int64(read) < n {
			if err == nil || errors.Is(err, io.EOF) {
				err = ErrShortRead
			}
			return NewFileError("read", name, err)
		}

		if err := st.conn.SendBinary(chunk); err != nil {
			return NewFileError("send", name, err)
		}
		offset += n
		if onChunk != nil {
			onChunk(int(n))
		}
	}

	if err := sendControl(st.conn, Control{Kind: KindDone}); err != nil {
		return NewFileError("send done", name, err)
	}
	if err := st.conn.WaitDrained(ctx); err != nil {
		return NewFileError("drain", name, err)
	}
	return nil
}
