package webrtc

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
)

// Backpressure thresholds for the data channel send buffer.
const (
	HighWaterMark = 2 * 1024 * 1024
	LowWaterMark  = 512 * 1024

	// SendTimeout bounds a single wait for the buffer to drain.
	SendTimeout = 60 * time.Second

	// DrainTimeout bounds the wait for the buffer to empty after the last
	// frame of a transfer.
	DrainTimeout = 30 * time.Second

	drainPollInterval = 50 * time.Millisecond
)

var (
	ErrChannelClosed = errors.New("channel closed")
	ErrBufferTimeout = errors.New("buffer drain timeout")
)

// EventKind identifies a ChannelEvent.
type EventKind int

const (
	ChannelOpen EventKind = iota
	ChannelClosed
	ChannelError
	ChannelControl
	ChannelBinary
)

func (k EventKind) String() string {
	switch k {
	case ChannelOpen:
		return "open"
	case ChannelClosed:
		return "close"
	case ChannelError:
		return "error"
	case ChannelControl:
		return "control"
	case ChannelBinary:
		return "binary"
	}
	return "unknown"
}

// ChannelEvent is a data channel callback turned into a value.
type ChannelEvent struct {
	Channel *Channel
	Kind    EventKind
	Data    []byte
	Err     error
}

// Channel wraps the negotiated data channel. Callbacks are posted as
// ChannelEvents; sends may be made from any goroutine.
type Channel struct {
	dc DataChannel

	high, low    uint64
	timeout      time.Duration
	drainTimeout time.Duration

	writable  chan struct{}
	closed    chan struct{}
	closeOnce sync.Once
}

// NewChannel attaches to dc and posts its events through post.
func NewChannel(dc DataChannel, post func(ChannelEvent)) *Channel {
	c := &Channel{
		dc:           dc,
		high:         HighWaterMark,
		low:          LowWaterMark,
		timeout:      SendTimeout,
		drainTimeout: DrainTimeout,
		writable:     make(chan struct{}, 1),
		closed:       make(chan struct{}),
	}

	dc.SetBufferedAmountLowThreshold(c.low)
	dc.OnBufferedAmountLow(func() {
		select {
		case c.writable <- struct{}{}:
		default:
		}
	})

	dc.OnOpen(func() {
		post(ChannelEvent{Channel: c, Kind: ChannelOpen})
	})
	dc.OnClose(func() {
		c.markClosed()
		post(ChannelEvent{Channel: c, Kind: ChannelClosed})
	})
	dc.OnError(func(err error) {
		post(ChannelEvent{Channel: c, Kind: ChannelError, Err: err})
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		data := make([]byte, len(msg.Data))
		copy(data, msg.Data)
		kind := ChannelBinary
		if msg.IsString {
			kind = ChannelControl
		}
		post(ChannelEvent{Channel: c, Kind: kind, Data: data})
	})

	return c
}

// Label returns the data channel label.
func (c *Channel) Label() string { return c.dc.Label() }

// Open reports whether the channel can carry data.
func (c *Channel) Open() bool {
	return c.dc.ReadyState() == webrtc.DataChannelStateOpen
}

// SendControl sends a control message as a text frame.
func (c *Channel) SendControl(data []byte) error {
	if !c.Open() {
		return ErrChannelClosed
	}
	return c.dc.SendText(string(data))
}

// SendBinary sends a chunk as a binary frame.
func (c *Channel) SendBinary(data []byte) error {
	if !c.Open() {
		return ErrChannelClosed
	}
	return c.dc.Send(data)
}

// WaitWritable blocks while the send buffer is above the high-water mark,
// until it drains below the low-water mark.
func (c *Channel) WaitWritable(ctx context.Context) error {
	if c.dc.BufferedAmount() <= c.high {
		return nil
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	for {
		select {
		case <-c.writable:
			if c.dc.BufferedAmount() <= c.high {
				return nil
			}
		case <-c.closed:
			return ErrChannelClosed
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return ErrBufferTimeout
		}
	}
}

// WaitDrained blocks until the send buffer is empty. A channel that closes
// with nothing left buffered counts as drained.
func (c *Channel) WaitDrained(ctx context.Context) error {
	ticker := time.NewTicker(drainPollInterval)
	defer ticker.Stop()
	timer := time.NewTimer(c.drainTimeout)
	defer timer.Stop()

	for {
		if c.dc.BufferedAmount() == 0 {
			return nil
		}
		select {
		case <-c.closed:
			if c.dc.BufferedAmount() == 0 {
				return nil
			}
			return ErrChannelClosed
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return ErrBufferTimeout
		case <-ticker.C:
		}
	}
}

// Close closes the underlying data channel.
func (c *Channel) Close() error {
	c.markClosed()
	return c.dc.Close()
}

func (c *Channel) markClosed() {
	c.closeOnce.Do(func() { close(c.closed) })
}
