// Package transport wraps a pion PeerConnection behind the narrow contract
// the call session drives: descriptions, candidates, one outbound audio
// track and the events it emits.
package transport

import (
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/voicecall/internal/media"
	"github.com/1ureka/voicecall/internal/util"
)

// Handler receives the PeerConnection's events. Calls come from pion's
// goroutines; implementations must not block for long.
type Handler interface {
	// OnICECandidate is called for every gathered local candidate, and
	// once with nil when gathering is complete.
	OnICECandidate(c *webrtc.ICECandidateInit)
	// OnTrack is called when remote audio becomes available.
	OnTrack(track media.RemoteTrack)
	// OnConnectionStateChange reports every PeerConnection state change.
	OnConnectionStateChange(state webrtc.PeerConnectionState)
}

// Transport wraps a single PeerConnection used for one call.
//
// Its lifecycle is owned by the caller: PeerConnection state changes are
// reported but never trigger Close on their own.
type Transport struct {
	pc *webrtc.PeerConnection

	mu     sync.Mutex
	closed bool
}

// New creates a Transport backed by a new PeerConnection on api and wires
// its callbacks to h.
func New(api *webrtc.API, iceServers []webrtc.ICEServer, h Handler) (*Transport, error) {
	pc, err := newPeerConnection(api, iceServers)
	if err != nil {
		return nil, err
	}

	t := &Transport{pc: pc}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			h.OnICECandidate(nil)
			return
		}
		init := c.ToJSON()
		h.OnICECandidate(&init)
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		if track.Kind() != webrtc.RTPCodecTypeAudio {
			util.LogDebug("ignoring remote %s track %s", track.Kind(), track.ID())
			return
		}
		util.LogDebug("remote audio track %s (%s)", track.ID(), track.Codec().MimeType)
		h.OnTrack(track)
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		util.LogDebug("PeerConnection state: %s", state.String())
		h.OnConnectionStateChange(state)
	})

	return t, nil
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

// Close shuts down the PeerConnection. Calling it more than once is a no-op.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	return t.pc.Close()
}

// ---------------------------------------------------------------------------
// Signaling
// ---------------------------------------------------------------------------

// CreateOffer generates an SDP offer.
func (t *Transport) CreateOffer() (webrtc.SessionDescription, error) {
	return t.pc.CreateOffer(nil)
}

// CreateAnswer generates an SDP answer.
func (t *Transport) CreateAnswer() (webrtc.SessionDescription, error) {
	return t.pc.CreateAnswer(nil)
}

// SetLocalDescription applies the local SDP. A rollback description
// discards an outstanding local offer.
func (t *Transport) SetLocalDescription(sdp webrtc.SessionDescription) error {
	return t.pc.SetLocalDescription(sdp)
}

// SetRemoteDescription applies the remote SDP.
func (t *Transport) SetRemoteDescription(sdp webrtc.SessionDescription) error {
	return t.pc.SetRemoteDescription(sdp)
}

// LocalDescription returns the applied local description including the
// candidates gathered so far, or nil.
func (t *Transport) LocalDescription() *webrtc.SessionDescription {
	return t.pc.LocalDescription()
}

// RemoteDescription returns the applied remote description, or nil.
func (t *Transport) RemoteDescription() *webrtc.SessionDescription {
	return t.pc.RemoteDescription()
}

// SignalingState returns the offer/answer state of the PeerConnection.
func (t *Transport) SignalingState() webrtc.SignalingState {
	return t.pc.SignalingState()
}

// AddICECandidate adds a remote ICE candidate received through signaling.
func (t *Transport) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	return t.pc.AddICECandidate(candidate)
}

// ---------------------------------------------------------------------------
// Media
// ---------------------------------------------------------------------------

// AddTrack attaches an outbound track. RTCP for the track is drained in the
// background so interceptors keep running; the drain ends with the
// PeerConnection.
func (t *Transport) AddTrack(track webrtc.TrackLocal) error {
	sender, err := t.pc.AddTrack(track)
	if err != nil {
		return err
	}

	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				util.LogTrace("RTCP drain for %s ended: %v", track.ID(), err)
				return
			}
		}
	}()
	return nil
}
