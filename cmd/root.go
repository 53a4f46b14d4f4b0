package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roomdrop/roomdrop/internal/config"
	"github.com/roomdrop/roomdrop/internal/logging"
	"github.com/roomdrop/roomdrop/internal/ui"
	"github.com/roomdrop/roomdrop/internal/version"
)

var (
	flagLogLevel string
	flagOptions  config.Options
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "roomdrop",
	Short: "Peer-to-peer file transfer over WebRTC with short room codes",
	Long: `roomdrop sends a file directly between two devices. The sender creates a
room and shares its code; the receiver joins with the code, sees the offer
and accepts or declines it. File bytes travel over a WebRTC data channel, the
signaling server only relays connection setup messages.`,
	Version: version.Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Init(flagLogLevel, slog.LevelError)
	},
}

// Execute runs the CLI. It is called by main.main().
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		ui.PrintError(err.Error())
		stop()
		os.Exit(1)
	}
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVarP(&flagLogLevel, "log-level", "l", "", "Log level: debug, info, warn or error (env LOG_LEVEL)")
	f.StringVar(&flagOptions.ServerURL, "server", "", "Signaling server URL (env ROOMDROP_SERVER)")
	f.StringVarP(&flagOptions.STUNServer, "stun", "s", "", "Custom STUN server (env STUN_SERVER)")
	f.StringVarP(&flagOptions.TURNServer, "turn", "t", "", "Custom TURN server (env TURN_SERVER)")
	f.StringVar(&flagOptions.TURNUser, "turn-user", "", "TURN username (env TURN_USERNAME)")
	f.StringVar(&flagOptions.TURNPass, "turn-pass", "", "TURN password (env TURN_PASSWORD)")
	f.BoolVarP(&flagOptions.ForceRelay, "relay", "r", false, "Force relay mode")
}
