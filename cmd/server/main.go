package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roomdrop/roomdrop/internal/config"
	"github.com/roomdrop/roomdrop/internal/logging"
	"github.com/roomdrop/roomdrop/internal/relay"
	"github.com/roomdrop/roomdrop/internal/server"
	"github.com/roomdrop/roomdrop/internal/version"
)

const shutdownTimeout = 10 * time.Second

var opts config.ServerOptions

var rootCmd = &cobra.Command{
	Use:     "roomdrop-server",
	Short:   "Room-code signaling relay for roomdrop peers",
	Version: version.Version,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadServer(opts)
		if err != nil {
			return err
		}
		logger := logging.Init(cfg.LogLevel, slog.LevelInfo)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return run(ctx, cfg, logger)
	},
}

func run(ctx context.Context, cfg *config.ServerConfig, logger *slog.Logger) error {
	hub := relay.NewHub(relay.NewRegistry(cfg.MaxRooms, cfg.MaxRoomMembers), logger)
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go hub.Run(hubCtx)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.NewRouter(hub, cfg.AllowedOrigins, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting signaling server", "addr", cfg.Addr, "version", version.Version,
			"max_rooms", cfg.MaxRooms, "max_room_members", cfg.MaxRoomMembers)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen on %s: %w", cfg.Addr, err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down signaling server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func init() {
	rootCmd.Flags().StringVarP(&opts.Addr, "addr", "a", "", "Listen address (env ADDR or PORT)")
	rootCmd.Flags().StringVarP(&opts.LogLevel, "log-level", "l", "", "Log level: debug, info, warn, error (env LOG_LEVEL)")
	rootCmd.Flags().StringVar(&opts.AllowedOrigins, "allowed-origins", "", "Comma separated websocket origins (env ALLOWED_ORIGINS)")
	rootCmd.Flags().IntVar(&opts.MaxRooms, "max-rooms", 0, "Maximum concurrent rooms (env MAX_ROOMS)")
	rootCmd.Flags().IntVar(&opts.MaxRoomMembers, "max-room-members", 0, "Maximum members per room (env MAX_ROOM_MEMBERS)")
}

func main() {
	rootCmd.SilenceUsage = true
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
