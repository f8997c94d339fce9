package call

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"

	"github.com/1ureka/voicecall/internal/media"
	"github.com/1ureka/voicecall/internal/protocol"
	"github.com/1ureka/voicecall/internal/signaling"
)

// Compile-time interface checks.
var (
	_ Channel           = (*fakeChannel)(nil)
	_ Peer              = (*fakePeer)(nil)
	_ media.Source      = (*fakeSource)(nil)
	_ media.LocalAudio  = (*fakeAudio)(nil)
	_ media.RemoteTrack = fakeTrack{}
	_ media.Sink        = (*playedSink)(nil)
	_ Observer          = (*recorder)(nil)
	_ signaling.Handler = channelEvents{}
	_ PeerEvents        = peerEvents{}
)

const testEndpoint = "ws://relay.test/ws"

// ---------------------------------------------------------------------------
// fakeChannel
// ---------------------------------------------------------------------------

type fakeChannel struct {
	h signaling.Handler

	mu       sync.Mutex
	endpoint string
	openErr  error
	closeErr error
	sent     []protocol.Message
	closes   int
}

func (c *fakeChannel) Open(_ context.Context, endpoint string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.endpoint = endpoint
	return c.openErr
}

func (c *fakeChannel) Send(msg protocol.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closes > 0 {
		return signaling.ErrNotOpen
	}
	c.sent = append(c.sent, msg)
	return nil
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closes++
	return c.closeErr
}

func (c *fakeChannel) messages() []protocol.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.sent)
}

func (c *fakeChannel) last() protocol.Message {
	msgs := c.messages()
	if len(msgs) == 0 {
		return nil
	}
	return msgs[len(msgs)-1]
}

func (c *fakeChannel) closeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}

// ---------------------------------------------------------------------------
// fakePeer: a signaling-state machine without any networking
// ---------------------------------------------------------------------------

type fakePeer struct {
	ev PeerEvents

	mu           sync.Mutex
	state        webrtc.SignalingState
	local        *webrtc.SessionDescription
	remote       *webrtc.SessionDescription
	offers       int
	tracks       []webrtc.TrackLocal
	candidates   []webrtc.ICECandidateInit
	ops          []string
	closed       bool
	closeErr     error
	candidateErr error
	rollbackErr  error
}

func newFakePeer(ev PeerEvents) *fakePeer {
	return &fakePeer{ev: ev, state: webrtc.SignalingStateStable}
}

func (p *fakePeer) CreateOffer() (webrtc.SessionDescription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.offers++
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: fmt.Sprintf("v=0 local-offer-%d", p.offers)}, nil
}

func (p *fakePeer) CreateAnswer() (webrtc.SessionDescription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != webrtc.SignalingStateHaveRemoteOffer {
		return webrtc.SessionDescription{}, errors.New("no remote offer")
	}
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0 local-answer"}, nil
}

func (p *fakePeer) SetLocalDescription(d webrtc.SessionDescription) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ops = append(p.ops, "local:"+d.Type.String())

	switch {
	case d.Type == webrtc.SDPTypeOffer && p.state == webrtc.SignalingStateStable:
		p.state = webrtc.SignalingStateHaveLocalOffer
		p.local = &d
	case d.Type == webrtc.SDPTypeAnswer && p.state == webrtc.SignalingStateHaveRemoteOffer:
		p.state = webrtc.SignalingStateStable
		p.local = &d
	case d.Type == webrtc.SDPTypeRollback && p.state == webrtc.SignalingStateHaveLocalOffer:
		if p.rollbackErr != nil {
			return p.rollbackErr
		}
		p.state = webrtc.SignalingStateStable
		p.local = nil
	default:
		return fmt.Errorf("set local %s in state %s", d.Type, p.state)
	}
	return nil
}

func (p *fakePeer) SetRemoteDescription(d webrtc.SessionDescription) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ops = append(p.ops, "remote:"+d.Type.String())

	switch {
	case d.Type == webrtc.SDPTypeOffer && p.state == webrtc.SignalingStateStable:
		p.state = webrtc.SignalingStateHaveRemoteOffer
	case d.Type == webrtc.SDPTypeAnswer && p.state == webrtc.SignalingStateHaveLocalOffer:
		p.state = webrtc.SignalingStateStable
	default:
		return fmt.Errorf("set remote %s in state %s", d.Type, p.state)
	}
	p.remote = &d
	return nil
}

func (p *fakePeer) LocalDescription() *webrtc.SessionDescription {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.local
}

func (p *fakePeer) RemoteDescription() *webrtc.SessionDescription {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.remote
}

func (p *fakePeer) SignalingState() webrtc.SignalingState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *fakePeer) AddICECandidate(c webrtc.ICECandidateInit) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.remote == nil {
		return errors.New("remote description not set")
	}
	if p.candidateErr != nil {
		return p.candidateErr
	}
	p.candidates = append(p.candidates, c)
	return nil
}

func (p *fakePeer) AddTrack(track webrtc.TrackLocal) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tracks = append(p.tracks, track)
	return nil
}

func (p *fakePeer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return p.closeErr
}

func (p *fakePeer) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *fakePeer) appliedCandidates() []webrtc.ICECandidateInit {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.candidates)
}

func (p *fakePeer) operations() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.ops)
}

// ---------------------------------------------------------------------------
// fakeSource / fakeAudio
// ---------------------------------------------------------------------------

type fakeSource struct {
	err     error
	block   bool
	stopErr error

	mu       sync.Mutex
	acquired []*fakeAudio
}

func (f *fakeSource) Acquire(ctx context.Context) (media.LocalAudio, error) {
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}

	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
		"audio", "test")
	if err != nil {
		return nil, err
	}

	a := &fakeAudio{track: track, stopErr: f.stopErr}
	f.mu.Lock()
	f.acquired = append(f.acquired, a)
	f.mu.Unlock()
	return a, nil
}

func (f *fakeSource) audio(i int) *fakeAudio {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i >= len(f.acquired) {
		return nil
	}
	return f.acquired[i]
}

type fakeAudio struct {
	track   webrtc.TrackLocal
	stopErr error

	mu    sync.Mutex
	stops int
}

func (a *fakeAudio) Track() webrtc.TrackLocal { return a.track }

func (a *fakeAudio) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stops++
	return a.stopErr
}

func (a *fakeAudio) stopCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stops
}

// fakeTrack is a remote track that ends immediately.
type fakeTrack struct{}

func (fakeTrack) ID() string { return "remote-audio" }

func (fakeTrack) ReadRTP() (*rtp.Packet, interceptor.Attributes, error) {
	return nil, nil, io.EOF
}

func (fakeTrack) Codec() webrtc.RTPCodecParameters {
	return webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
	}
}

// namedTrack is a fakeTrack with its own ID.
type namedTrack struct {
	fakeTrack
	id string
}

func (n namedTrack) ID() string { return n.id }

// playedSink records the tracks handed to it.
type playedSink struct {
	mu     sync.Mutex
	played []string
}

func (p *playedSink) Play(_ context.Context, track media.RemoteTrack) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.played = append(p.played, track.ID())
	return nil
}

func (p *playedSink) tracks() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.played)
}

// ---------------------------------------------------------------------------
// recorder: an Observer that keeps everything
// ---------------------------------------------------------------------------

type recorder struct {
	mu        sync.Mutex
	states    []State
	statuses  []bool
	rosters   [][]string
	connected int
	ended     []error

	endedCh chan error
}

func newRecorder() *recorder {
	return &recorder{endedCh: make(chan error, 16)}
}

func (r *recorder) StateChanged(s State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *recorder) StatusChanged(connected bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, connected)
}

func (r *recorder) ParticipantsChanged(list []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rosters = append(r.rosters, list)
}

func (r *recorder) CallConnected() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connected++
}

func (r *recorder) CallEnded(err error) {
	r.mu.Lock()
	r.ended = append(r.ended, err)
	r.mu.Unlock()
	r.endedCh <- err
}

func (r *recorder) endings() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.ended)
}

func (r *recorder) stateLog() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.states)
}

func (r *recorder) statusLog() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.statuses)
}

func (r *recorder) waitEnded(t *testing.T) error {
	t.Helper()
	select {
	case err := <-r.endedCh:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for CallEnded")
		return nil
	}
}

// ---------------------------------------------------------------------------
// harness
// ---------------------------------------------------------------------------

type harness struct {
	t     *testing.T
	s     *Session
	obs   *recorder
	audio *fakeSource

	// Applied to every new fake before the session sees it.
	channelSetup func(*fakeChannel)
	peerSetup    func(*fakePeer)
	peerErr      error

	mu       sync.Mutex
	channels []*fakeChannel
	peers    []*fakePeer
	cancel   context.CancelFunc
}

func newHarness(t *testing.T, configure func(h *harness, opts *Options)) *harness {
	t.Helper()

	h := &harness{t: t, obs: newRecorder(), audio: &fakeSource{}}
	opts := Options{
		Endpoint: testEndpoint,
		NewChannel: func(sh signaling.Handler) Channel {
			c := &fakeChannel{h: sh}
			if h.channelSetup != nil {
				h.channelSetup(c)
			}
			h.mu.Lock()
			h.channels = append(h.channels, c)
			h.mu.Unlock()
			return c
		},
		NewPeer: func(ev PeerEvents) (Peer, error) {
			if h.peerErr != nil {
				return nil, h.peerErr
			}
			p := newFakePeer(ev)
			if h.peerSetup != nil {
				h.peerSetup(p)
			}
			h.mu.Lock()
			h.peers = append(h.peers, p)
			h.mu.Unlock()
			return p, nil
		},
		Audio:    h.audio,
		Observer: h.obs,
	}
	if configure != nil {
		configure(h, &opts)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s, err := NewSession(ctx, opts)
	if err != nil {
		cancel()
		t.Fatalf("NewSession: %v", err)
	}
	h.s = s
	h.cancel = cancel
	t.Cleanup(func() {
		cancel()
		<-s.Done()
	})
	return h
}

func (h *harness) channel(i int) *fakeChannel {
	h.t.Helper()
	h.mu.Lock()
	defer h.mu.Unlock()
	if i >= len(h.channels) {
		h.t.Fatalf("channel %d was never created (have %d)", i, len(h.channels))
	}
	return h.channels[i]
}

func (h *harness) peer(i int) *fakePeer {
	h.t.Helper()
	h.mu.Lock()
	defer h.mu.Unlock()
	if i >= len(h.peers) {
		h.t.Fatalf("peer %d was never created (have %d)", i, len(h.peers))
	}
	return h.peers[i]
}

func (h *harness) counts() (channels, peers int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.channels), len(h.peers)
}

// negotiate joins as Alice and opens the channel, leaving the session
// negotiating with its own offer outstanding.
func (h *harness) negotiate() (*fakeChannel, *fakePeer) {
	h.t.Helper()
	return h.negotiateAs("Alice")
}

func (h *harness) negotiateAs(name string) (*fakeChannel, *fakePeer) {
	h.t.Helper()
	if err := h.s.Join("1234", name); err != nil {
		h.t.Fatalf("Join: %v", err)
	}
	ch := h.channel(0)
	ch.h.OnOpen()
	h.s.flush()

	if got := h.s.State(); got != StateNegotiating {
		h.t.Fatalf("state after open = %s, want negotiating", got)
	}
	return ch, h.peer(0)
}

// deliver hands msg to the session as if the relay sent it.
func (h *harness) deliver(ch *fakeChannel, msg protocol.Message) {
	ch.h.OnMessage(msg)
	h.s.flush()
}

func (h *harness) expectState(want State) {
	h.t.Helper()
	if got := h.s.State(); got != want {
		h.t.Fatalf("state = %s, want %s", got, want)
	}
}
