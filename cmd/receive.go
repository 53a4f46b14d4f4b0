package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roomdrop/roomdrop/internal/p2p"
	"github.com/roomdrop/roomdrop/internal/transfer"
	"github.com/roomdrop/roomdrop/internal/ui"
	"github.com/roomdrop/roomdrop/internal/utils"
)

var (
	flagReceiveDir string
	flagReceiveYes bool
)

var receiveCmd = &cobra.Command{
	Use:     "receive <room-code|url>",
	Aliases: []string{"r"},
	Short:   "Receive a file from a sender",
	Long: `Join a sender's room and receive the file it offers.

Examples:
  roomdrop receive AB12CD
  roomdrop receive https://roomdrop.dev/r/AB12CD
  roomdrop receive AB12CD --dir ~/Downloads --yes`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		code, err := utils.ParseRoomCode(args[0])
		if err != nil {
			return err
		}
		return receiveFile(cmd.Context(), code)
	},
}

func receiveFile(ctx context.Context, code string) error {
	cfg, err := LoadConfig(flagOptions)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	fmt.Fprintln(ui.Out)
	conn, err := NewConnectionContext(ctx, cfg)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.Peer.JoinRoom(ctx, code); err != nil {
		return transfer.NewError("join room", err)
	}
	if err := conn.WaitForPeer(ctx, fmt.Sprintf("Connecting to sender in room %s...", code)); err != nil {
		return err
	}
	ui.PrintSuccess("Sender connected")

	offer, err := waitForOffer(ctx, conn)
	if err != nil {
		return err
	}

	fmt.Fprintln(ui.Out)
	fmt.Fprintln(ui.Out, ui.OfferView(offer.Filename, offer.Size))

	accept := flagReceiveYes
	if !accept {
		if accept, err = ui.Confirm("Accept this file?"); err != nil {
			return err
		}
	}
	if !accept {
		if err := conn.Peer.RejectFile(ctx); err != nil {
			return transfer.NewFileError("reject", offer.Filename, err)
		}
		ui.PrintWarning("File declined")
		return nil
	}
	if err := conn.Peer.AcceptFile(ctx); err != nil {
		return transfer.NewFileError("accept", offer.Filename, err)
	}

	result, err := conn.watchTransfer(ctx, transfer.DirectionReceive, offer.Filename, offer.Size, nil, cancel)
	if err != nil {
		return err
	}
	if result.Session.Status == transfer.StatusFailed {
		renderSummary("Receive Summary", result)
		return transfer.NewFileError("receive", offer.Filename, result.Session.Err)
	}

	path, err := transfer.SaveFile(flagReceiveDir, result.File)
	if err != nil {
		return err
	}
	renderSummary("Receive Summary", result)
	ui.PrintSuccessf("Saved to %s", path)
	return nil
}

// waitForOffer blocks until the sender offers a file.
func waitForOffer(ctx context.Context, conn *ConnectionContext) (transfer.Session, error) {
	stopSpinner := ui.RunWaitingSpinner("Waiting for the sender to offer a file...")
	defer stopSpinner()

	for {
		select {
		case <-ctx.Done():
			return transfer.Session{}, ctx.Err()
		case e, ok := <-conn.Peer.Events():
			if !ok {
				return transfer.Session{}, p2p.ErrStopped
			}
			switch e.Kind {
			case p2p.EventOffer:
				return e.Session, nil
			case p2p.EventStatus:
				if e.Session.Direction == transfer.DirectionReceive && e.Err != nil {
					ui.PrintWarningf("Declined %s: %v", e.Session.Filename, e.Err)
				}
			case p2p.EventDisconnected:
				return transfer.Session{}, transfer.NewError("wait for offer", transfer.ErrPeerDisconnected)
			case p2p.EventError:
				slog.Warn("signaling problem", "error", e.Err)
			}
		}
	}
}

func init() {
	rootCmd.AddCommand(receiveCmd)

	receiveCmd.Flags().StringVarP(&flagReceiveDir, "dir", "d", ".", "Directory to save the received file")
	receiveCmd.Flags().BoolVarP(&flagReceiveYes, "yes", "y", false, "Accept the offer without asking")
}
