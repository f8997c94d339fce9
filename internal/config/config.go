// Package config holds the CLI configuration and its viper binding.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/spf13/viper"

	"github.com/1ureka/voicecall/internal/signaling"
	"github.com/1ureka/voicecall/internal/transport"
)

// EnvPrefix prefixes every environment variable, e.g. VOICECALL_RELAY.
const EnvPrefix = "VOICECALL"

// Config stores every parameter from flags, environment, config file and
// interactive prompts.
type Config struct {
	Relay string `mapstructure:"relay"` // relay URL, normalized by Load
	Room  string `mapstructure:"room"`
	Name  string `mapstructure:"name"`

	ICEServers     []string `mapstructure:"ice-servers"`
	TURNUsername   string   `mapstructure:"turn-username"`
	TURNCredential string   `mapstructure:"turn-credential"`

	AudioFile string `mapstructure:"audio-file"` // Ogg/Opus input; empty sends silence
	Record    string `mapstructure:"record"`     // Ogg output for remote audio; empty discards

	OpenTimeout        time.Duration `mapstructure:"open-timeout"`
	NegotiationTimeout time.Duration `mapstructure:"negotiation-timeout"`
	PingInterval       time.Duration `mapstructure:"ping-interval"`

	LogLevel string `mapstructure:"log-level"`

	Listen string `mapstructure:"listen"` // relay subcommand only
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		OpenTimeout:        10 * time.Second,
		NegotiationTimeout: time.Minute,
		PingInterval:       30 * time.Second,
		LogLevel:           "info",
		Listen:             ":8080",
	}
}

// Load reads v over the defaults and normalizes the relay URL.
func Load(v *viper.Viper) (Config, error) {
	cfg := Default()
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}

	cfg.Room = strings.TrimSpace(cfg.Room)
	cfg.Name = strings.TrimSpace(cfg.Name)

	if cfg.Relay != "" {
		relay, err := NormalizeRelayURL(cfg.Relay)
		if err != nil {
			return cfg, err
		}
		cfg.Relay = relay
	}
	if cfg.OpenTimeout < 0 || cfg.NegotiationTimeout < 0 || cfg.PingInterval < 0 {
		return cfg, fmt.Errorf("config: timeouts must not be negative")
	}
	return cfg, nil
}

// NormalizeRelayURL accepts a bare host, an http(s) URL or a ws(s) URL and
// returns the relay's WebSocket endpoint. Plain http and ws stay
// unencrypted; everything else uses wss.
func NormalizeRelayURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw != "" && !strings.Contains(raw, "://") {
		raw = "wss://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid relay URL: %q", raw)
	}

	scheme := "wss"
	switch u.Scheme {
	case "ws", "http":
		scheme = "ws"
	case "wss", "https":
	default:
		return "", fmt.Errorf("invalid relay URL scheme: %q", u.Scheme)
	}
	return fmt.Sprintf("%s://%s/ws", scheme, u.Host), nil
}

// ICEServersConfig returns the ICE servers for the peer connection: the
// configured URLs, or transport.DefaultSTUNServers when none are set.
// TURN credentials apply to turn: and turns: URLs only.
func (c Config) ICEServersConfig() []webrtc.ICEServer {
	urls := c.ICEServers
	if len(urls) == 0 {
		urls = transport.DefaultSTUNServers
	}

	var stun []string
	var servers []webrtc.ICEServer
	for _, u := range urls {
		u = strings.TrimSpace(u)
		switch {
		case u == "":
		case strings.HasPrefix(u, "turn:") || strings.HasPrefix(u, "turns:"):
			servers = append(servers, webrtc.ICEServer{
				URLs:       []string{u},
				Username:   c.TURNUsername,
				Credential: c.TURNCredential,
			})
		default:
			stun = append(stun, u)
		}
	}
	if len(stun) > 0 {
		servers = append([]webrtc.ICEServer{{URLs: stun}}, servers...)
	}
	return servers
}

// SignalingOptions returns the signaling channel settings.
func (c Config) SignalingOptions() signaling.Options {
	return signaling.Options{
		OpenTimeout:  c.OpenTimeout,
		PingInterval: c.PingInterval,
	}
}
