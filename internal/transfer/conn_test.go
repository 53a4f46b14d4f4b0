package transfer

import (
	"context"
	"sync"
)

type frame struct {
	text bool
	data []byte
}

type fakeConn struct {
	mu     sync.Mutex
	open   bool
	frames []frame
	waits  int
	err    error

	// drainedAt is the frame count when WaitDrained was called, -1 if never.
	drainedAt int
	drainErr  error
}

func newFakeConn() *fakeConn { return &fakeConn{open: true, drainedAt: -1} }

func (c *fakeConn) Open() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

func (c *fakeConn) SendControl(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.frames = append(c.frames, frame{text: true, data: data})
	return nil
}

func (c *fakeConn) SendBinary(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.frames = append(c.frames, frame{data: data})
	return nil
}

func (c *fakeConn) WaitWritable(ctx context.Context) error {
	c.mu.Lock()
	c.waits++
	c.mu.Unlock()
	return ctx.Err()
}

func (c *fakeConn) WaitDrained(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.drainedAt = len(c.frames)
	if c.drainErr != nil {
		return c.drainErr
	}
	return ctx.Err()
}

func (c *fakeConn) take() []frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.frames
	c.frames = nil
	return out
}

func (c *fakeConn) controls() []Control {
	var out []Control
	for _, f := range c.take() {
		if !f.text {
			continue
		}
		ctl, err := DecodeControl(f.data)
		if err != nil {
			panic(err)
		}
		out = append(out, ctl)
	}
	return out
}
