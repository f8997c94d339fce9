// Package call implements the call session: the state machine that joins a
// room through the signaling relay and negotiates one peer connection with
// the other participant.
package call

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"

	"github.com/1ureka/voicecall/internal/media"
	"github.com/1ureka/voicecall/internal/protocol"
	"github.com/1ureka/voicecall/internal/signaling"
	"github.com/1ureka/voicecall/internal/util"
)

// Options configures a Session.
type Options struct {
	// Endpoint is the relay's WebSocket URL.
	Endpoint string

	// NegotiationTimeout bounds the time from Join until remote audio
	// arrives. Zero means no limit.
	NegotiationTimeout time.Duration

	NewChannel ChannelFactory // default: SignalingChannels(signaling.Options{})
	NewPeer    PeerFactory    // required
	Audio      media.Source   // default: media.Silence
	Sink       media.Sink     // default: media.Discard
	Observer   Observer       // default: NopObserver
}

// errLeft is the cancellation cause recorded by Leave.
var errLeft = errors.New("left the call")

// attempt holds everything one Join acquires. It is owned by the session
// loop and dropped on teardown.
type attempt struct {
	gen  uint64
	id   string
	room string
	name string

	ctx    context.Context
	cancel context.CancelCauseFunc
	timer  *time.Timer

	channel    Channel
	channelErr error

	peer     Peer
	peerSeq  uint64
	offerSDP string // our offer as sent
	audio    media.LocalAudio
	pending  []webrtc.ICECandidateInit
	gotTrack bool
}

// Session is one participant's call. It is created idle, Join moves it
// through connecting, joined and negotiating to active, and Leave or a
// failure returns it to idle. A Session can be joined again after that.
//
// All state changes happen on one goroutine that handles queued commands,
// channel events and peer events one at a time, in arrival order.
type Session struct {
	opts Options
	ctx  context.Context
	q    *queue
	done chan struct{}

	mu            sync.RWMutex
	state         State
	roster        []string
	cancelAttempt context.CancelCauseFunc

	// Owned by the loop goroutine.
	gen uint64
	cur *attempt
}

// NewSession creates an idle session. Its goroutine runs until ctx is
// cancelled, tearing down any call in progress.
func NewSession(ctx context.Context, opts Options) (*Session, error) {
	if opts.Endpoint == "" {
		return nil, errors.New("call: relay endpoint is required")
	}
	if opts.NewPeer == nil {
		return nil, errors.New("call: peer factory is required")
	}
	if opts.NewChannel == nil {
		opts.NewChannel = SignalingChannels(signaling.Options{})
	}
	if opts.Audio == nil {
		opts.Audio = media.Silence{}
	}
	if opts.Sink == nil {
		opts.Sink = media.Discard{}
	}
	if opts.Observer == nil {
		opts.Observer = NopObserver{}
	}

	s := &Session{
		opts:  opts,
		ctx:   ctx,
		q:     newQueue(),
		done:  make(chan struct{}),
		state: StateIdle,
	}
	go s.loop()
	return s, nil
}

// ---------------------------------------------------------------------------
// Commands
// ---------------------------------------------------------------------------

// Join validates room and name and starts connecting. It returns once the
// session is connecting; the rest of the call is reported to the Observer.
// Invalid input fails with ErrValidation and touches nothing; joining a
// session that is not idle fails with ErrInvalidState.
func (s *Session) Join(room, name string) error {
	if err := ValidateRoomCode(room); err != nil {
		return err
	}
	if err := ValidateName(name); err != nil {
		return err
	}

	reply := make(chan error, 1)
	if !s.post(joinCmd{room: room, name: strings.TrimSpace(name), reply: reply}) {
		return fmt.Errorf("%w: session is shut down", ErrInvalidState)
	}
	select {
	case err := <-reply:
		return err
	case <-s.done:
		return fmt.Errorf("%w: session is shut down", ErrInvalidState)
	}
}

// Leave ends the call, if any, and waits until the session is idle again.
// It is safe in any state and never fails. A pending audio acquisition is
// cancelled first so Leave does not wait on it.
//
// Leave must not be called from an Observer callback.
func (s *Session) Leave() {
	s.mu.RLock()
	cancel := s.cancelAttempt
	s.mu.RUnlock()
	if cancel != nil {
		cancel(errLeft)
	}

	reply := make(chan struct{})
	if !s.post(leaveCmd{reply: reply}) {
		return
	}
	select {
	case <-reply:
	case <-s.done:
	}
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Participants returns the last roster received from the relay.
func (s *Session) Participants() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.roster)
}

// Done is closed when the session's goroutine has exited.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// flush waits until every event queued before the call has been handled.
func (s *Session) flush() {
	reply := make(chan struct{})
	if !s.post(barrier{reply: reply}) {
		return
	}
	select {
	case <-reply:
	case <-s.done:
	}
}

// post queues ev unless the session has shut down.
func (s *Session) post(ev event) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	s.q.push(ev)
	return true
}

// ---------------------------------------------------------------------------
// Event loop
// ---------------------------------------------------------------------------

func (s *Session) loop() {
	defer close(s.done)

	for {
		select {
		case <-s.ctx.Done():
			if s.cur != nil {
				s.teardown(nil)
			}
			return
		case <-s.q.ready():
			for _, ev := range s.q.drain() {
				s.handle(ev)
			}
		}
	}
}

func (s *Session) handle(ev event) {
	if gen, peer := ev.origin(); gen != 0 {
		a := s.cur
		if a == nil || a.gen != gen || (peer != 0 && peer != a.peerSeq) {
			util.LogTrace("dropping stale %T (attempt %d, peer %d)", ev, gen, peer)
			return
		}
	}

	switch ev := ev.(type) {
	case joinCmd:
		ev.reply <- s.join(ev.room, ev.name)
	case leaveCmd:
		if s.cur != nil {
			s.teardown(nil)
		}
		close(ev.reply)
	case barrier:
		close(ev.reply)

	case channelOpened:
		s.onChannelOpen()
	case channelMessage:
		s.onMessage(ev.msg)
	case channelError:
		s.onChannelError(ev.err)
	case channelClosed:
		s.teardown(s.closeCause())

	case localCandidate:
		s.sendLocalCandidate(ev.init)
	case remoteTrack:
		s.onRemoteTrack(ev.track)
	case peerState:
		s.onPeerState(ev.state)

	case negotiationTimeout:
		s.onTimeout()
	}
}

// ---------------------------------------------------------------------------
// Handlers
// ---------------------------------------------------------------------------

func (s *Session) join(room, name string) error {
	if s.cur != nil {
		return fmt.Errorf("%w: session is %s", ErrInvalidState, s.State())
	}

	s.gen++
	ctx, cancel := context.WithCancelCause(s.ctx)
	a := &attempt{
		gen:    s.gen,
		id:     uuid.NewString()[:8],
		room:   room,
		name:   name,
		ctx:    ctx,
		cancel: cancel,
	}
	s.cur = a

	s.mu.Lock()
	s.cancelAttempt = cancel
	s.mu.Unlock()

	util.LogInfo("[%s] joining room %s as %q via %s", a.id, room, name, s.opts.Endpoint)
	a.channel = s.opts.NewChannel(channelEvents{s: s, gen: a.gen})
	s.setState(StateConnecting)

	if d := s.opts.NegotiationTimeout; d > 0 {
		gen := a.gen
		a.timer = time.AfterFunc(d, func() { s.post(negotiationTimeout{stamp{gen: gen}}) })
	}

	if err := a.channel.Open(ctx, s.opts.Endpoint); err != nil {
		err = fmt.Errorf("%w: %w", ErrConnection, err)
		s.teardown(err)
		return err
	}
	return nil
}

// onChannelOpen sends join and starts negotiating right away.
func (s *Session) onChannelOpen() {
	a := s.cur
	if s.State() != StateConnecting {
		util.LogWarning("[%s] unexpected channel open in state %s", a.id, s.State())
		return
	}

	util.LogDebug("[%s] signaling channel open", a.id)
	if err := a.channel.Send(protocol.Join{Name: a.name, Room: a.room}); err != nil {
		s.teardown(err)
		return
	}
	s.setState(StateJoined)

	s.startNegotiation()
}

// onMessage dispatches one inbound signaling message on its type.
func (s *Session) onMessage(msg protocol.Message) {
	a := s.cur

	switch m := msg.(type) {
	case protocol.Participants:
		if !s.State().inCall() {
			util.LogDebug("[%s] participants in state %s ignored", a.id, s.State())
			return
		}
		util.LogInfo("[%s] participants: %s", a.id, strings.Join(m.List, ", "))
		s.setRoster(m.List)
	case protocol.Offer:
		s.acceptOffer(m.SDP)
	case protocol.Answer:
		s.acceptAnswer(m.SDP)
	case protocol.Candidate:
		if m.Candidate.EndOfCandidates() {
			util.LogDebug("[%s] remote ICE gathering complete", a.id)
			return
		}
		s.addRemoteCandidate(m.Candidate.ToPion())
	default:
		util.LogWarning("[%s] ignoring unexpected %s message", a.id, msg.Type())
	}
}

func (s *Session) onChannelError(err error) {
	a := s.cur
	util.LogWarning("[%s] signaling: %v", a.id, err)
	if a.channelErr == nil {
		a.channelErr = err
	}
}

// closeCause is the teardown cause for a channel closed by the relay or
// by a transport failure.
func (s *Session) closeCause() error {
	if err := s.cur.channelErr; err != nil {
		return err
	}
	return fmt.Errorf("%w: relay closed the connection", ErrConnection)
}

// onRemoteTrack plays the first remote track through the sink. Later
// tracks are drained so they never share the sink's output.
func (s *Session) onRemoteTrack(track media.RemoteTrack) {
	a := s.cur

	var sink media.Sink = media.Discard{}
	if !a.gotTrack {
		util.LogSuccess("[%s] receiving remote audio (%s)", a.id, track.Codec().MimeType)
		sink = s.opts.Sink
	} else {
		util.LogDebug("[%s] extra remote track %s drained", a.id, track.ID())
	}
	go func() {
		if err := sink.Play(a.ctx, track); err != nil {
			util.LogError("[%s] remote audio: %v", a.id, err)
		}
	}()

	if a.gotTrack {
		return
	}
	a.gotTrack = true
	if a.timer != nil {
		a.timer.Stop()
	}
	s.setState(StateActive)
	s.opts.Observer.CallConnected()
}

func (s *Session) onPeerState(state webrtc.PeerConnectionState) {
	a := s.cur

	switch state {
	case webrtc.PeerConnectionStateConnected:
		util.LogSuccess("[%s] peer connection established", a.id)
	case webrtc.PeerConnectionStateDisconnected:
		util.LogWarning("[%s] peer connection interrupted, waiting for ICE to recover", a.id)
	case webrtc.PeerConnectionStateFailed:
		s.teardown(fmt.Errorf("%w: peer connection failed", ErrConnection))
	default:
		util.LogDebug("[%s] peer connection %s", a.id, state)
	}
}

func (s *Session) onTimeout() {
	if s.State() == StateActive {
		return
	}
	s.teardown(fmt.Errorf("%w: no audio within %s", ErrTimeout, s.opts.NegotiationTimeout))
}

// ---------------------------------------------------------------------------
// Snapshot state
// ---------------------------------------------------------------------------

func (s *Session) setState(state State) {
	s.mu.Lock()
	prev := s.state
	s.state = state
	s.mu.Unlock()

	if prev != state {
		util.LogDebug("call state: %s → %s", prev, state)
	}
	s.opts.Observer.StateChanged(state)
}

func (s *Session) setRoster(list []string) {
	roster := slices.Clone(list)
	if roster == nil {
		roster = []string{}
	}

	s.mu.Lock()
	s.roster = roster
	s.mu.Unlock()

	s.opts.Observer.ParticipantsChanged(slices.Clone(roster))
}
