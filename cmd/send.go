package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roomdrop/roomdrop/internal/files"
	"github.com/roomdrop/roomdrop/internal/transfer"
	"github.com/roomdrop/roomdrop/internal/ui"
)

var sendCmd = &cobra.Command{
	Use:     "send <file|directory>",
	Aliases: []string{"s"},
	Short:   "Send a file to a receiver",
	Long: `Create a room and send a file to whoever joins it. Directories are sent
as a zip archive.

Examples:
  roomdrop send report.pdf
  roomdrop send ./photos
  roomdrop send --server wss://relay.example.com/ws file.txt
  roomdrop send --relay --turn turn.example.com file.txt`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return sendFile(cmd.Context(), args[0])
	},
}

func sendFile(ctx context.Context, path string) error {
	stopSpinner := ui.RunSpinner("Validating file...")
	info, err := files.ValidateFile(path)
	if err != nil {
		stopSpinner()
		return err
	}
	src, err := files.Open(info)
	stopSpinner()
	if err != nil {
		return err
	}
	defer src.Close()

	fmt.Fprintln(ui.Out)
	ui.RenderFileTable([]ui.FileTableItem{{
		Index: 1,
		Name:  src.Info.Name,
		Size:  src.Info.Size,
		Type:  src.Info.Type,
		IsDir: src.Info.IsDir,
	}})

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

	code, err := conn.Peer.CreateRoom(ctx)
	if err != nil {
		return transfer.NewError("create room", err)
	}
	fmt.Fprintln(ui.Out)
	ui.RenderRoomInfo(code, cfg.GetRoomLink(code))
	fmt.Fprintln(ui.Out)

	if err := conn.WaitForPeer(ctx, "Waiting for receiver to join..."); err != nil {
		return err
	}
	ui.PrintSuccess("Receiver connected")

	file := transfer.File{Name: src.Info.Name, Size: src.Info.Size, Content: src.File}
	if err := conn.Peer.SendFile(ctx, file); err != nil {
		return transfer.NewFileError("offer", file.Name, err)
	}

	stopSpinner = ui.RunWaitingSpinner("Waiting for receiver to accept...")
	result, err := conn.watchTransfer(ctx, transfer.DirectionSend, file.Name, file.Size, stopSpinner, cancel)
	stopSpinner()
	if err != nil {
		return err
	}

	if result.Session.Status == transfer.StatusCompleted && !conn.WaitForPeerClose(ctx, peerCloseGrace) {
		ui.PrintWarning("Receiver confirmation timeout (the file was sent successfully)")
	}

	renderSummary("Transfer Summary", result)
	switch result.Session.Status {
	case transfer.StatusRejected:
		return transfer.NewFileError("send", file.Name, transfer.ErrTransferDeclined)
	case transfer.StatusFailed:
		return transfer.NewFileError("send", file.Name, result.Session.Err)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(sendCmd)
}
