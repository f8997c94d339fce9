// Package app composes a call session from the configuration and runs it
// in the terminal.
package app

import (
	"context"
	"fmt"

	"github.com/1ureka/voicecall/internal/call"
	"github.com/1ureka/voicecall/internal/config"
	"github.com/1ureka/voicecall/internal/media"
	"github.com/1ureka/voicecall/internal/transport"
	"github.com/1ureka/voicecall/internal/util"
)

// Run joins cfg.Room as cfg.Name and blocks until the call ends or ctx is
// cancelled. Cancelling ctx leaves the call and returns nil; a call that
// ends on its own returns the cause.
func Run(ctx context.Context, cfg config.Config) error {
	if cfg.Relay == "" {
		return fmt.Errorf("%w: no relay URL configured", call.ErrValidation)
	}

	api, err := transport.NewAPI(transport.APIOptions{LoggerFactory: util.PionLoggerFactory{}})
	if err != nil {
		return fmt.Errorf("init WebRTC: %w", err)
	}

	return run(ctx, cfg, call.Options{
		Endpoint:           cfg.Relay,
		NegotiationTimeout: cfg.NegotiationTimeout,
		NewChannel:         call.SignalingChannels(cfg.SignalingOptions()),
		NewPeer:            call.TransportPeers(api, cfg.ICEServersConfig()),
		Audio:              audioSource(cfg),
		Sink:               audioSink(cfg),
	})
}

// run drives one call with fully built options.
func run(ctx context.Context, cfg config.Config, opts call.Options) error {
	con := newConsole()
	opts.Observer = con

	// The session outlives ctx so Leave can report a clean exit.
	sessCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	defer cancel()

	session, err := call.NewSession(sessCtx, opts)
	if err != nil {
		return err
	}
	if err := session.Join(cfg.Room, cfg.Name); err != nil {
		return err
	}
	util.StartStatsReporter(sessCtx)

	select {
	case <-ctx.Done():
		util.LogInfo("leaving the call...")
		session.Leave()
		return nil
	case err := <-con.ended:
		return err
	}
}

func audioSource(cfg config.Config) media.Source {
	if cfg.AudioFile != "" {
		return media.OggFile{Path: cfg.AudioFile}
	}
	return media.Silence{}
}

func audioSink(cfg config.Config) media.Sink {
	if cfg.Record != "" {
		return media.OggRecorder{Path: cfg.Record}
	}
	return media.Discard{}
}
