package call

import (
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/voicecall/internal/media"
	"github.com/1ureka/voicecall/internal/protocol"
)

// event is one item of the session's inbound queue. Events raised by a
// channel or peer connection carry the generation of the join attempt
// that created it (and, for peer events, the peer connection's serial);
// commands carry zeros.
type event interface {
	origin() (gen, peer uint64)
}

// stamp tags an event with its join attempt and, for peer events, with the
// peer connection that raised it.
type stamp struct {
	gen  uint64
	peer uint64
}

func (s stamp) origin() (gen, peer uint64) { return s.gen, s.peer }

type command struct{}

func (command) origin() (gen, peer uint64) { return 0, 0 }

type (
	joinCmd struct {
		command
		room, name string
		reply      chan error
	}
	leaveCmd struct {
		command
		reply chan struct{}
	}
	// barrier lets callers wait until everything queued before it is handled.
	barrier struct {
		command
		reply chan struct{}
	}

	channelOpened struct{ stamp }
	channelMessage struct {
		stamp
		msg protocol.Message
	}
	channelError struct {
		stamp
		err error
	}
	channelClosed struct{ stamp }

	localCandidate struct {
		stamp
		init *webrtc.ICECandidateInit
	}
	remoteTrack struct {
		stamp
		track media.RemoteTrack
	}
	peerState struct {
		stamp
		state webrtc.PeerConnectionState
	}

	negotiationTimeout struct{ stamp }
)

// queue is the session's unbounded FIFO. push never blocks, so channel and
// pion callbacks cannot stall on a busy session loop.
type queue struct {
	mu     sync.Mutex
	items  []event
	signal chan struct{}
}

func newQueue() *queue {
	return &queue{signal: make(chan struct{}, 1)}
}

func (q *queue) push(ev event) {
	q.mu.Lock()
	q.items = append(q.items, ev)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// drain removes and returns everything queued so far, oldest first.
func (q *queue) drain() []event {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}

// ready is signalled after a push.
func (q *queue) ready() <-chan struct{} { return q.signal }

// ---------------------------------------------------------------------------
// Adapters: turn callbacks into queued events
// ---------------------------------------------------------------------------

// channelEvents implements signaling.Handler for one join attempt.
type channelEvents struct {
	s   *Session
	gen uint64
}

func (e channelEvents) OnOpen() { e.s.post(channelOpened{stamp{gen: e.gen}}) }

func (e channelEvents) OnMessage(msg protocol.Message) {
	e.s.post(channelMessage{stamp{gen: e.gen}, msg})
}

func (e channelEvents) OnError(err error) { e.s.post(channelError{stamp{gen: e.gen}, err}) }

func (e channelEvents) OnClose() { e.s.post(channelClosed{stamp{gen: e.gen}}) }

// peerEvents implements PeerEvents for one peer connection of one attempt.
type peerEvents struct {
	s    *Session
	gen  uint64
	peer uint64
}

func (e peerEvents) stamp() stamp { return stamp{gen: e.gen, peer: e.peer} }

func (e peerEvents) OnICECandidate(c *webrtc.ICECandidateInit) {
	e.s.post(localCandidate{e.stamp(), c})
}

func (e peerEvents) OnTrack(track media.RemoteTrack) {
	e.s.post(remoteTrack{e.stamp(), track})
}

func (e peerEvents) OnConnectionStateChange(state webrtc.PeerConnectionState) {
	e.s.post(peerState{e.stamp(), state})
}
