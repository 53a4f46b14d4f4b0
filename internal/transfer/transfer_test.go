package transfer

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	mrand "math/rand/v2"
	"os"
	"path/filepath"
	"testing"
)

func randomFile(t *testing.T, name string, size int) (File, []byte) {
	t.Helper()
	data := make([]byte, size)
	if _, err := rand.Read(data); err != nil {
		t.Fatalf("rand: %v", err)
	}
	return File{Name: name, Size: int64(size), Content: bytes.NewReader(data)}, data
}

// deliver feeds frames from the sender's connection into the receiver in
// order, the way the data channel would.
func deliver(t *testing.T, frames []frame, r *Receiver, progress *[]int) *ReceivedFile {
	t.Helper()
	var got *ReceivedFile
	for _, f := range frames {
		if !f.text {
			s, err := r.HandleChunk(f.data)
			if err != nil {
				t.Fatalf("chunk: %v", err)
			}
			*progress = append(*progress, s.Progress)
			continue
		}
		ctl, err := DecodeControl(f.data)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		switch ctl.Kind {
		case KindHeader:
			if _, err := r.HandleHeader(ctl); err != nil {
				t.Fatalf("header: %v", err)
			}
		case KindDone:
			file, s, err := r.HandleDone()
			if err != nil {
				t.Fatalf("done: %v", err)
			}
			*progress = append(*progress, s.Progress)
			got = file
		default:
			t.Fatalf("unexpected control %s during stream", ctl.Kind)
		}
	}
	return got
}

func TestTransferOneMebibyte(t *testing.T) {
	senderConn, receiverConn := newFakeConn(), newFakeConn()
	s := NewSender(senderConn)
	r := NewReceiver(receiverConn, 0)

	file, data := randomFile(t, "report.pdf", 1<<20)
	if err := s.Offer(file); err != nil {
		t.Fatalf("offer: %v", err)
	}
	offers := senderConn.controls()
	if len(offers) != 1 || offers[0].Kind != KindOffer || offers[0].Size != 1<<20 {
		t.Fatalf("unexpected offer frames %+v", offers)
	}

	session, err := r.HandleOffer(offers[0])
	if err != nil || session.Status != StatusOffered || session.Filename != "report.pdf" {
		t.Fatalf("unexpected offer handling %+v err=%v", session, err)
	}
	if err := r.Accept(); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if got := receiverConn.controls(); len(got) != 1 || got[0].Kind != KindAccept {
		t.Fatalf("expected file-accept, got %+v", got)
	}

	stream, err := s.HandleAccept()
	if err != nil {
		t.Fatalf("handle accept: %v", err)
	}
	var senderProgress []int
	err = stream.Run(context.Background(), func(n int) {
		senderProgress = append(senderProgress, s.Advance(n).Progress)
	})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if final := s.Finish(nil); final.Status != StatusCompleted || final.Progress != 100 {
		t.Fatalf("unexpected sender final state %+v", final)
	}

	frames := senderConn.take()
	if senderConn.drainedAt != len(frames) {
		t.Fatalf("stream must wait for the buffer to drain after the done marker, drained at frame %d of %d",
			senderConn.drainedAt, len(frames))
	}
	chunks := 0
	for _, f := range frames {
		if !f.text {
			chunks++
			if len(f.data) != ChunkSize {
				t.Fatalf("expected %d byte chunks, got %d", ChunkSize, len(f.data))
			}
		}
	}
	if chunks != 64 {
		t.Fatalf("expected 64 chunks, got %d", chunks)
	}
	if senderConn.waits != 64 {
		t.Fatalf("expected a writability check per chunk, got %d", senderConn.waits)
	}

	var receiverProgress []int
	got := deliver(t, frames, r, &receiverProgress)
	if got == nil || got.Name != "report.pdf" || !bytes.Equal(got.Data, data) {
		t.Fatalf("received file does not match")
	}
	if r.Session().Status != StatusCompleted {
		t.Fatalf("expected completed receiver, got %s", r.Session().Status)
	}

	for _, progress := range [][]int{senderProgress, receiverProgress} {
		for i := 1; i < len(progress); i++ {
			if progress[i] < progress[i-1] {
				t.Fatalf("progress went backwards: %v", progress)
			}
		}
	}
	if last := receiverProgress[len(receiverProgress)-1]; last != 100 {
		t.Fatalf("expected final progress 100, got %d", last)
	}
	if receiverProgress[len(receiverProgress)-2] != 99 {
		t.Fatalf("progress must stay below 100 until completion")
	}
}

func TestRejectedOfferSendsNoData(t *testing.T) {
	senderConn, receiverConn := newFakeConn(), newFakeConn()
	s := NewSender(senderConn)
	r := NewReceiver(receiverConn, 0)

	file, _ := randomFile(t, "notes.txt", 500)
	if err := s.Offer(file); err != nil {
		t.Fatalf("offer: %v", err)
	}
	offer := senderConn.controls()[0]
	r.HandleOffer(offer)
	if err := r.Reject(); err != nil {
		t.Fatalf("reject: %v", err)
	}
	verdict := receiverConn.controls()
	if len(verdict) != 1 || verdict[0].Kind != KindReject {
		t.Fatalf("expected file-reject, got %+v", verdict)
	}

	if err := s.HandleReject(); err != nil {
		t.Fatalf("handle reject: %v", err)
	}
	if s.Session().Status != StatusRejected || r.Session().Status != StatusRejected {
		t.Fatalf("both sides must end rejected")
	}
	if frames := senderConn.take(); len(frames) != 0 {
		t.Fatalf("no frames may follow a rejection, got %d", len(frames))
	}
	if _, err := s.HandleAccept(); !errors.Is(err, ErrUnexpectedControl) {
		t.Fatalf("accept after reject must fail, got %v", err)
	}
}

func TestZeroByteFile(t *testing.T) {
	senderConn, receiverConn := newFakeConn(), newFakeConn()
	s := NewSender(senderConn)
	r := NewReceiver(receiverConn, 0)

	s.Offer(File{Name: "empty", Size: 0, Content: bytes.NewReader(nil)})
	r.HandleOffer(senderConn.controls()[0])
	r.Accept()
	stream, _ := s.HandleAccept()
	if err := stream.Run(context.Background(), nil); err != nil {
		t.Fatalf("stream: %v", err)
	}

	var progress []int
	got := deliver(t, senderConn.take(), r, &progress)
	if got == nil || len(got.Data) != 0 {
		t.Fatalf("expected an empty file")
	}
	if r.Session().Progress != 100 {
		t.Fatalf("expected 100 at completion, got %d", r.Session().Progress)
	}
}

func TestSenderOfferPreconditions(t *testing.T) {
	conn := newFakeConn()
	s := NewSender(conn)

	if err := s.Offer(File{Size: 1, Content: bytes.NewReader([]byte{1})}); !errors.Is(err, ErrInvalidFile) {
		t.Fatalf("expected ErrInvalidFile, got %v", err)
	}

	conn.open = false
	file, _ := randomFile(t, "a", 10)
	if err := s.Offer(file); !errors.Is(err, ErrChannelNotOpen) {
		t.Fatalf("expected ErrChannelNotOpen, got %v", err)
	}
	if s.Session().Status != StatusIdle {
		t.Fatalf("failed offer must leave the sender idle")
	}

	conn.open = true
	if err := s.Offer(file); err != nil {
		t.Fatalf("offer: %v", err)
	}
	if err := s.Offer(file); !errors.Is(err, ErrTransferActive) {
		t.Fatalf("expected ErrTransferActive, got %v", err)
	}
}

func TestStreamReportsShortRead(t *testing.T) {
	conn := newFakeConn()
	s := NewSender(conn)
	s.Offer(File{Name: "liar", Size: 100, Content: bytes.NewReader(make([]byte, 40))})
	stream, _ := s.HandleAccept()

	err := stream.Run(context.Background(), func(n int) { s.Advance(n) })
	if !errors.Is(err, ErrShortRead) {
		t.Fatalf("expected ErrShortRead, got %v", err)
	}
	if got := s.Finish(err); got.Status != StatusFailed {
		t.Fatalf("expected failed, got %s", got.Status)
	}
}

func TestStreamFailsWhenBufferDoesNotDrain(t *testing.T) {
	conn := newFakeConn()
	conn.drainErr = errors.New("buffer drain timeout")
	s := NewSender(conn)
	file, _ := randomFile(t, "tail.bin", 3*ChunkSize)
	s.Offer(file)
	stream, _ := s.HandleAccept()

	err := stream.Run(context.Background(), func(n int) { s.Advance(n) })
	if !errors.Is(err, conn.drainErr) {
		t.Fatalf("expected the drain error, got %v", err)
	}
	if got := s.Finish(err); got.Status != StatusFailed || got.Progress == 100 {
		t.Fatalf("undrained stream must not complete, got %+v", got)
	}
}

// splitFrames cuts data into frames whose sizes cycle through pattern.
func splitFrames(data []byte, pattern []int) [][]byte {
	var frames [][]byte
	for off, i := 0, 0; off < len(data); i++ {
		n := min(pattern[i%len(pattern)], len(data)-off)
		frames = append(frames, data[off:off+n])
		off += n
	}
	return frames
}

func TestReceiverReassemblesAnyFraming(t *testing.T) {
	_, data := randomFile(t, "odd.bin", 2*ChunkSize+777)

	rng := mrand.New(mrand.NewPCG(7, 11))
	random := make([]int, 64)
	for i := range random {
		random[i] = rng.IntN(ChunkSize * 2)
	}
	random[0] = 1

	cases := []struct {
		name    string
		pattern []int
	}{
		{"single bytes", []int{1}},
		{"seven bytes", []int{7}},
		{"larger than a chunk", []int{ChunkSize + 1}},
		{"empty frames mixed in", []int{0, 5, 0, 1000, 0}},
		{"one frame", []int{len(data)}},
		{"random sizes", random},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := NewReceiver(newFakeConn(), 0)
			ctl := Control{Kind: KindOffer, Filename: "odd.bin", Size: int64(len(data))}
			if _, err := r.HandleOffer(ctl); err != nil {
				t.Fatalf("offer: %v", err)
			}
			if err := r.Accept(); err != nil {
				t.Fatalf("accept: %v", err)
			}
			ctl.Kind = KindHeader
			if _, err := r.HandleHeader(ctl); err != nil {
				t.Fatalf("header: %v", err)
			}

			last := 0
			for i, frame := range splitFrames(data, tc.pattern) {
				s, err := r.HandleChunk(frame)
				if err != nil {
					t.Fatalf("frame %d (%d bytes): %v", i, len(frame), err)
				}
				if s.Progress < last || s.Progress >= 100 {
					t.Fatalf("frame %d: progress %d after %d", i, s.Progress, last)
				}
				last = s.Progress
			}

			file, s, err := r.HandleDone()
			if err != nil {
				t.Fatalf("done: %v", err)
			}
			if !bytes.Equal(file.Data, data) {
				t.Fatalf("reassembled data differs")
			}
			if s.Progress != 100 || s.Status != StatusCompleted {
				t.Fatalf("unexpected final session %+v", s)
			}
		})
	}
}

func TestStreamStopsOnCancel(t *testing.T) {
	conn := newFakeConn()
	s := NewSender(conn)
	file, _ := randomFile(t, "big", 10*ChunkSize)
	s.Offer(file)
	stream, _ := s.HandleAccept()
	conn.take()

	ctx, cancel := context.WithCancel(context.Background())
	sent := 0
	err := stream.Run(ctx, func(int) {
		sent++
		if sent == 2 {
			cancel()
		}
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	for _, f := range conn.take() {
		if f.text {
			if ctl, _ := DecodeControl(f.data); ctl.Kind == KindDone {
				t.Fatalf("cancelled stream must not send done")
			}
		}
	}
}

func TestReceiverProtocolViolations(t *testing.T) {
	conn := newFakeConn()
	r := NewReceiver(conn, 0)

	if _, err := r.HandleChunk([]byte{1, 2, 3}); !errors.Is(err, ErrNoHeader) {
		t.Fatalf("expected ErrNoHeader, got %v", err)
	}
	if _, err := r.HandleHeader(Control{Kind: KindHeader, Filename: "x", Size: 3}); !errors.Is(err, ErrUnexpectedControl) {
		t.Fatalf("header without accepted offer must fail, got %v", err)
	}

	r.HandleOffer(Control{Kind: KindOffer, Filename: "x", Size: 3})
	r.Accept()
	r.HandleHeader(Control{Kind: KindHeader, Filename: "x", Size: 3})
	if _, err := r.HandleChunk([]byte{1, 2, 3, 4}); !errors.Is(err, ErrOverflow) {
		t.Fatalf("expected ErrOverflow, got %v", err)
	}
	if r.Session().Status != StatusFailed {
		t.Fatalf("overflow must fail the transfer")
	}
}

func TestReceiverSizeMismatchOnDone(t *testing.T) {
	r := NewReceiver(newFakeConn(), 0)
	r.HandleOffer(Control{Kind: KindOffer, Filename: "x", Size: 10})
	r.Accept()
	r.HandleHeader(Control{Kind: KindHeader, Filename: "x", Size: 10})
	r.HandleChunk(make([]byte, 4))

	if _, s, err := r.HandleDone(); !errors.Is(err, ErrSizeMismatch) || s.Status != StatusFailed {
		t.Fatalf("expected failed ErrSizeMismatch, got %s %v", s.Status, err)
	}
}

func TestReceiverAutoRejects(t *testing.T) {
	conn := newFakeConn()
	r := NewReceiver(conn, 100)

	s, err := r.HandleOffer(Control{Kind: KindOffer, Filename: "huge", Size: 101})
	if !errors.Is(err, ErrFileTooLarge) || s.Status != StatusRejected {
		t.Fatalf("expected rejected ErrFileTooLarge, got %s %v", s.Status, err)
	}
	if got := conn.controls(); len(got) != 1 || got[0].Kind != KindReject {
		t.Fatalf("expected automatic file-reject, got %+v", got)
	}

	r.HandleOffer(Control{Kind: KindOffer, Filename: "ok", Size: 10})
	if _, err := r.HandleOffer(Control{Kind: KindOffer, Filename: "second", Size: 10}); !errors.Is(err, ErrTransferActive) {
		t.Fatalf("expected ErrTransferActive, got %v", err)
	}
	if r.Session().Filename != "ok" || r.Session().Status != StatusOffered {
		t.Fatalf("second offer must not replace the pending one, got %+v", r.Session())
	}
	if got := conn.controls(); len(got) != 1 || got[0].Kind != KindReject {
		t.Fatalf("expected file-reject for the second offer, got %+v", got)
	}
}

func TestReceiverFailDropsState(t *testing.T) {
	r := NewReceiver(newFakeConn(), 0)
	r.HandleOffer(Control{Kind: KindOffer, Filename: "x", Size: 10})
	r.Accept()
	r.HandleHeader(Control{Kind: KindHeader, Filename: "x", Size: 10})
	r.HandleChunk(make([]byte, 5))

	if s := r.Fail(ErrPeerDisconnected); s.Status != StatusFailed || !errors.Is(s.Err, ErrPeerDisconnected) {
		t.Fatalf("unexpected state after fail %+v", s)
	}
	if _, err := r.HandleChunk([]byte{1}); !errors.Is(err, ErrNoHeader) {
		t.Fatalf("chunks after failure must be refused, got %v", err)
	}

	if _, err := r.HandleOffer(Control{Kind: KindOffer, Filename: "next", Size: 1}); err != nil {
		t.Fatalf("a new offer must be accepted after a terminal state: %v", err)
	}
}

func TestPercent(t *testing.T) {
	tests := []struct {
		done, total int64
		want        int
	}{
		{0, 100, 0},
		{1, 3, 33},
		{2, 3, 66},
		{99, 100, 99},
		{100, 100, 99},
		{0, 0, 0},
	}
	for _, tt := range tests {
		if got := Percent(tt.done, tt.total); got != tt.want {
			t.Fatalf("Percent(%d, %d) = %d, want %d", tt.done, tt.total, got, tt.want)
		}
	}
}

func TestSaveFile(t *testing.T) {
	dir := t.TempDir()
	f := &ReceivedFile{Name: "../../etc/passwd", Data: []byte("data")}

	path, err := SaveFile(dir, f)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if filepath.Dir(path) != dir || filepath.Base(path) != "passwd" {
		t.Fatalf("file must land inside dir, got %s", path)
	}

	second, err := SaveFile(dir, f)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if second == path || filepath.Base(second) != "passwd (1)" {
		t.Fatalf("expected a unique name, got %s", second)
	}
	content, _ := os.ReadFile(second)
	if string(content) != "data" {
		t.Fatalf("unexpected content %q", content)
	}

	if _, err := SaveFile(dir, &ReceivedFile{Name: ""}); !errors.Is(err, ErrInvalidFile) {
		t.Fatalf("expected ErrInvalidFile, got %v", err)
	}
}
