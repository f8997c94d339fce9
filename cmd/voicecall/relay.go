package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/1ureka/voicecall/internal/relay"
)

func newRelayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Run the WebSocket signaling relay",
		Args:  cobra.NoArgs,
		RunE:  runRelay,
	}
	cmd.Flags().StringP("listen", "l", ":8080", "Listen address")
	cmd.Flags().Duration("ping-interval", 30*time.Second, "Keepalive interval")
	return cmd
}

func runRelay(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	w := zerolog.ConsoleWriter{Out: os.Stdout}
	l := zerolog.New(w).With().Timestamp().Logger()
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil && lvl != zerolog.NoLevel {
		l = l.Level(lvl)
	}

	srv := relay.New(relay.Options{Logger: l, PingInterval: cfg.PingInterval})
	addr, err := srv.Start(cfg.Listen)
	if err != nil {
		l.Error().Err(err).Msg("Failed to start relay")
		return err
	}
	l.Info().Str("addr", addr).Msg("Relay listening")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	l.Info().Msg("Shutting down relay...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Close(shutdownCtx); err != nil {
		l.Error().Err(err).Msg("Relay forced to shutdown")
		return err
	}
	l.Info().Msg("Relay exited")
	return nil
}
