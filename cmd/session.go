package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roomdrop/roomdrop/internal/config"
	"github.com/roomdrop/roomdrop/internal/p2p"
	"github.com/roomdrop/roomdrop/internal/signaling"
	"github.com/roomdrop/roomdrop/internal/transfer"
	"github.com/roomdrop/roomdrop/internal/ui"
	"github.com/roomdrop/roomdrop/internal/utils"
)

const (
	connectTimeout = 15 * time.Second

	// peerCloseGrace bounds the wait for the receiver to hang up after the
	// last byte was sent.
	peerCloseGrace = 10 * time.Second
)

// ConnectionContext is a running peer on a live signaling connection.
type ConnectionContext struct {
	Config *config.Config
	Peer   *p2p.Peer

	cancel context.CancelFunc
	done   chan struct{}
}

func LoadConfig(opts config.Options) (*config.Config, error) {
	cfg, err := config.Load(opts)
	if err != nil {
		return nil, transfer.NewError("load config", err)
	}
	return cfg, nil
}

// NewConnectionContext dials the signaling server and starts a peer on it.
func NewConnectionContext(ctx context.Context, cfg *config.Config) (*ConnectionContext, error) {
	stopSpinner := ui.RunConnectionSpinner("Connecting to server...")
	defer stopSpinner()

	client := signaling.NewClient(cfg.ServerURL, slog.Default())
	dialCtx, cancelDial := context.WithTimeout(ctx, connectTimeout)
	defer cancelDial()
	if err := client.Connect(dialCtx); err != nil {
		return nil, transfer.NewError("connect to server", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	c := &ConnectionContext{
		Config: cfg,
		Peer:   p2p.New(client, cfg, slog.Default()),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go func() {
		defer close(c.done)
		if err := c.Peer.Run(runCtx); err != nil && runCtx.Err() == nil {
			slog.Error("peer stopped", "error", err)
		}
	}()
	return c, nil
}

func (c *ConnectionContext) Close() {
	c.Peer.Close()
	c.cancel()
	<-c.done
}

// WaitForPeer blocks until the data channel to the other side is open.
func (c *ConnectionContext) WaitForPeer(ctx context.Context, message string) error {
	stopSpinner := ui.RunWaitingSpinner(message)
	defer stopSpinner()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e, ok := <-c.Peer.Events():
			if !ok {
				return p2p.ErrStopped
			}
			switch e.Kind {
			case p2p.EventConnected:
				return nil
			case p2p.EventError:
				return transfer.NewError("wait for peer", e.Err)
			case p2p.EventMembers:
				slog.Debug("room members", "count", e.Count)
			}
		}
	}
}

// WaitForPeerClose reports whether the other side closed the data channel
// within grace. A receiver closes it once the file is saved.
func (c *ConnectionContext) WaitForPeerClose(ctx context.Context, grace time.Duration) bool {
	stopSpinner := ui.RunWaitingSpinner("Waiting for receiver to finish...")
	defer stopSpinner()

	timer := time.NewTimer(grace)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-timer.C:
			return false
		case e, ok := <-c.Peer.Events():
			if !ok {
				return false
			}
			if e.Kind == p2p.EventDisconnected {
				return true
			}
		}
	}
}

// transferResult is what watchTransfer observed by the time the session ended.
type transferResult struct {
	Session transfer.Session
	File    *transfer.ReceivedFile
	Tracker *transfer.Tracker
}

// watchTransfer follows one session from acceptance to a terminal status,
// driving a progress view. onStart runs once before the view first draws;
// cancel aborts the whole command.
func (c *ConnectionContext) watchTransfer(ctx context.Context, dir transfer.Direction, label string, size int64, onStart, cancel func()) (*transferResult, error) {
	var (
		view    *ui.TransferView
		tracker *transfer.Tracker
		last    int64
	)
	finish := func(err error) {
		if view != nil {
			view.Finish(err)
			view = nil
		}
	}
	startView := func() {
		if view == nil {
			if onStart != nil {
				onStart()
				onStart = nil
			}
			tracker = transfer.NewTracker()
			view = ui.NewTransferView(label, size, cancel)
			view.Start()
		}
	}
	observe := func(s transfer.Session) {
		startView()
		if s.Transferred > last {
			tracker.Record(s.Transferred - last)
			last = s.Transferred
		}
		view.Update(s.Transferred, s.Progress, tracker.Speed())
	}

	for {
		select {
		case <-ctx.Done():
			finish(ctx.Err())
			return nil, ctx.Err()

		case e, ok := <-c.Peer.Events():
			if !ok {
				finish(p2p.ErrStopped)
				return nil, p2p.ErrStopped
			}
			if e.Session.Direction != "" && e.Session.Direction != dir {
				continue
			}

			switch e.Kind {
			case p2p.EventProgress:
				observe(e.Session)

			case p2p.EventFile:
				observe(e.Session)
				finish(nil)
				return &transferResult{Session: e.Session, File: e.File, Tracker: tracker}, nil

			case p2p.EventStatus:
				s := e.Session
				switch s.Status {
				case transfer.StatusAccepted, transfer.StatusTransferring:
					startView()
				case transfer.StatusCompleted:
					if dir == transfer.DirectionReceive {
						// EventFile follows with the data.
						continue
					}
					observe(s)
					finish(nil)
					return &transferResult{Session: s, Tracker: tracker}, nil
				case transfer.StatusRejected:
					finish(transfer.ErrTransferDeclined)
					return &transferResult{Session: s, Tracker: tracker}, nil
				case transfer.StatusFailed:
					finish(s.Err)
					return &transferResult{Session: s, Tracker: tracker}, nil
				}

			case p2p.EventDisconnected:
				finish(transfer.ErrPeerDisconnected)
				return nil, transfer.NewError("transfer", transfer.ErrPeerDisconnected)

			case p2p.EventError:
				slog.Warn("signaling problem during transfer", "error", e.Err)
			}
		}
	}
}

func renderSummary(title string, r *transferResult) {
	status := "✅ Complete"
	switch r.Session.Status {
	case transfer.StatusRejected:
		status = "🚫 Declined"
	case transfer.StatusFailed:
		status = "❌ Failed"
	}

	duration, speed := "-", "-"
	if r.Tracker != nil {
		duration = utils.FormatTimeDuration(r.Tracker.Duration())
		speed = utils.FormatSpeed(r.Tracker.Average())
	}

	fmt.Fprintln(ui.Out)
	ui.RenderTransferSummary(ui.TransferSummary{
		Title:    ui.IconSummary + " " + title,
		Status:   status,
		File:     r.Session.Filename,
		Size:     r.Session.Transferred,
		Duration: duration,
		Speed:    speed,
	})
}
