// Voicecall CLI entry point.
//
// Joins a two-person voice call through a WebSocket relay. Once both sides
// have exchanged their session descriptions the audio flows peer to peer.
//
// It can be launched interactively (missing room, name or relay are asked
// for) or fully from flags, VOICECALL_* environment variables and an
// optional config file. The relay subcommand runs the signaling relay.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/1ureka/voicecall/internal/app"
	"github.com/1ureka/voicecall/internal/config"
	"github.com/1ureka/voicecall/internal/util"
)

var version = "dev"

func main() {
	root := newRootCmd()
	root.AddCommand(newRelayCmd())

	// Do not print usage when a call fails.
	root.SilenceUsage = true

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "voicecall",
		Short:   "P2P voice call over WebRTC",
		Version: version,
		Args:    cobra.NoArgs,
		RunE:    runCall,
	}
	cmd.PersistentFlags().String("config", "", "Config file (toml, yaml or json)")
	cmd.PersistentFlags().String("log-level", config.Default().LogLevel, "trace, debug, info, warn, error")
	addCallFlags(cmd.Flags())
	return cmd
}

// addCallFlags registers one flag per call config key.
func addCallFlags(fs *pflag.FlagSet) {
	def := config.Default()

	fs.StringP("relay", "u", "", "Relay URL or host (e.g. wss://relay.example.com)")
	fs.StringP("room", "r", "", "4-digit room code")
	fs.StringP("name", "n", "", "Display name")

	fs.StringSlice("ice-servers", nil, "STUN/TURN URLs (default: public STUN)")
	fs.String("turn-username", "", "TURN username")
	fs.String("turn-credential", "", "TURN credential")

	fs.String("audio-file", "", "Ogg/Opus file to send (default: silence)")
	fs.String("record", "", "Write the remote audio to this Ogg file")

	fs.Duration("open-timeout", def.OpenTimeout, "Relay connection timeout")
	fs.Duration("negotiation-timeout", def.NegotiationTimeout, "Time allowed to reach the call (0 waits forever)")
	fs.Duration("ping-interval", def.PingInterval, "Relay keepalive interval")
}

func runCall(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		util.LogError("%v", err)
		return err
	}

	pterm.Info.Println(fmt.Sprintf("Voicecall v%s", version))
	pterm.Println()

	if cfg.Relay == "" {
		cfg.Relay = askURL()
	}
	if cfg.Room == "" {
		cfg.Room = askRoom()
	}
	if cfg.Name == "" {
		cfg.Name = askName()
	}

	// Root context, cancelled on Ctrl+C.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, cfg); err != nil {
		util.LogError("call ended: %v", err)
		return err
	}
	util.LogInfo("left the call")
	return nil
}

// loadConfig binds the command's flags and the environment into viper, reads
// the optional config file and applies the log level.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	v := viper.New()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return config.Config{}, err
	}
	v.SetEnvPrefix(config.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if path, _ := cmd.Flags().GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return config.Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg, err := config.Load(v)
	if err != nil {
		return cfg, err
	}
	if err := util.SetLevel(cfg.LogLevel); err != nil {
		return cfg, err
	}
	if path := v.ConfigFileUsed(); path != "" {
		util.LogDebug("using config file %s", path)
	}
	return cfg, nil
}
