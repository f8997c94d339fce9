package call

import (
	"context"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/voicecall/internal/media"
	"github.com/1ureka/voicecall/internal/protocol"
	"github.com/1ureka/voicecall/internal/signaling"
	"github.com/1ureka/voicecall/internal/transport"
)

// Channel is the signaling connection a Session drives.
// *signaling.Channel satisfies it.
type Channel interface {
	Open(ctx context.Context, endpoint string) error
	Send(msg protocol.Message) error
	Close() error
}

// ChannelFactory creates an unopened Channel reporting to h.
type ChannelFactory func(h signaling.Handler) Channel

// Peer is the peer connection capability a Session drives.
// *transport.Transport satisfies it.
type Peer interface {
	CreateOffer() (webrtc.SessionDescription, error)
	CreateAnswer() (webrtc.SessionDescription, error)
	SetLocalDescription(sdp webrtc.SessionDescription) error
	SetRemoteDescription(sdp webrtc.SessionDescription) error
	LocalDescription() *webrtc.SessionDescription
	RemoteDescription() *webrtc.SessionDescription
	SignalingState() webrtc.SignalingState
	AddICECandidate(candidate webrtc.ICECandidateInit) error
	AddTrack(track webrtc.TrackLocal) error
	Close() error
}

// PeerEvents receives a Peer's events. It has the same shape as
// transport.Handler.
type PeerEvents interface {
	OnICECandidate(c *webrtc.ICECandidateInit)
	OnTrack(track media.RemoteTrack)
	OnConnectionStateChange(state webrtc.PeerConnectionState)
}

// PeerFactory creates a new Peer reporting to ev.
type PeerFactory func(ev PeerEvents) (Peer, error)

var (
	_ Channel    = (*signaling.Channel)(nil)
	_ Peer       = (*transport.Transport)(nil)
	_ PeerEvents = transport.Handler(nil)
)

// SignalingChannels returns a ChannelFactory producing WebSocket channels.
func SignalingChannels(opts signaling.Options) ChannelFactory {
	return func(h signaling.Handler) Channel {
		return signaling.New(h, opts)
	}
}

// TransportPeers returns a PeerFactory producing pion peer connections on
// api. A nil iceServers uses transport.DefaultSTUNServers.
func TransportPeers(api *webrtc.API, iceServers []webrtc.ICEServer) PeerFactory {
	return func(ev PeerEvents) (Peer, error) {
		t, err := transport.New(api, iceServers, ev)
		if err != nil {
			return nil, err
		}
		return t, nil
	}
}

// Observer receives a Session's events, on the session's goroutine and in
// order. Implementations must return quickly and must not call Join or
// Leave synchronously.
type Observer interface {
	StateChanged(state State)
	// StatusChanged reports true once an offer/answer exchange starts and
	// false when the call is torn down.
	StatusChanged(connected bool)
	ParticipantsChanged(list []string)
	CallConnected()
	// CallEnded reports a teardown: nil after Leave, the cause otherwise.
	CallEnded(err error)
}

// NopObserver ignores every event.
type NopObserver struct{}

func (NopObserver) StateChanged(State)           {}
func (NopObserver) StatusChanged(bool)           {}
func (NopObserver) ParticipantsChanged([]string) {}
func (NopObserver) CallConnected()               {}
func (NopObserver) CallEnded(error)              {}
