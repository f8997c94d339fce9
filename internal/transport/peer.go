package transport

import (
	"github.com/pion/interceptor"
	"github.com/pion/logging"
	"github.com/pion/webrtc/v4"
)

// DefaultSTUNServers are used when no ICE servers are configured. No TURN:
// calls rely on direct P2P connectivity.
var DefaultSTUNServers = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
}

// APIOptions configures the pion API shared by every Transport.
type APIOptions struct {
	LoggerFactory logging.LoggerFactory

	// Configure, when set, can adjust the setting engine before the API is
	// built (network stack, ICE timeouts, ...).
	Configure func(se *webrtc.SettingEngine)
}

// NewAPI builds a pion API with the default codecs (Opus among them) and
// the default interceptors (RTCP reports, NACK, TWCC) registered.
func NewAPI(opts APIOptions) (*webrtc.API, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, err
	}

	ir := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, ir); err != nil {
		return nil, err
	}

	se := webrtc.SettingEngine{}
	if opts.LoggerFactory != nil {
		se.LoggerFactory = opts.LoggerFactory
	}
	if opts.Configure != nil {
		opts.Configure(&se)
	}

	return webrtc.NewAPI(
		webrtc.WithMediaEngine(m),
		webrtc.WithInterceptorRegistry(ir),
		webrtc.WithSettingEngine(se),
	), nil
}

// newPeerConnection creates a PeerConnection on api using iceServers, or
// the default STUN servers when none are given.
func newPeerConnection(api *webrtc.API, iceServers []webrtc.ICEServer) (*webrtc.PeerConnection, error) {
	if iceServers == nil {
		iceServers = []webrtc.ICEServer{{URLs: DefaultSTUNServers}}
	}
	return api.NewPeerConnection(webrtc.Configuration{
		ICEServers: iceServers,
	})
}
