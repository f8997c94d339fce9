package app

import (
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"

	"github.com/1ureka/voicecall/internal/call"
	"github.com/1ureka/voicecall/internal/media"
	"github.com/1ureka/voicecall/internal/protocol"
	"github.com/1ureka/voicecall/internal/signaling"
)

// crossingRelay is a two-member relay that holds every member's first
// offer until both have offered, then delivers them crossed. Everything
// else is forwarded as it arrives.
type crossingRelay struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	members []*crossingConn
	names   []string
	offers  map[*crossingConn][]byte
	crossed bool
}

type crossingConn struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func (c *crossingConn) write(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.WriteMessage(websocket.TextMessage, data)
}

func newCrossingRelay(t *testing.T) string {
	t.Helper()
	r := &crossingRelay{offers: make(map[*crossingConn][]byte)}
	srv := httptest.NewServer(http.HandlerFunc(r.serve))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func (r *crossingRelay) serve(w http.ResponseWriter, req *http.Request) {
	ws, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		return
	}
	defer ws.Close()

	c := &crossingConn{ws: ws}
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		msg, err := protocol.Decode(data)
		if err != nil {
			continue
		}
		r.handle(c, msg, data)
	}
}

func (r *crossingRelay) handle(from *crossingConn, msg protocol.Message, data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch m := msg.(type) {
	case protocol.Join:
		r.members = append(r.members, from)
		r.names = append(r.names, m.Name)
		roster, _ := protocol.Encode(protocol.Participants{List: slices.Clone(r.names)})
		for _, c := range r.members {
			c.write(roster)
		}
	case protocol.Offer:
		if !r.crossed {
			r.offers[from] = data
			if len(r.members) == 2 && len(r.offers) == 2 {
				r.crossed = true
				a, b := r.members[0], r.members[1]
				a.write(r.offers[b])
				b.write(r.offers[a])
			}
			return
		}
		r.forward(from, data)
	default:
		r.forward(from, data)
	}
}

func (r *crossingRelay) forward(from *crossingConn, data []byte) {
	for _, c := range r.members {
		if c != from {
			c.write(data)
		}
	}
}

// TestCrossedOffersConnect has both clients offer before either sees the
// other's offer. The call must still settle on one answer and carry audio.
func TestCrossedOffersConnect(t *testing.T) {
	if testing.Short() {
		t.Skip("end-to-end call in short mode")
	}

	endpoint := newCrossingRelay(t)
	apiA, apiB := newVNetPair(t)

	start := func(name string, api *webrtc.API, sink *firstPacket) (*call.Session, stateWatcher) {
		t.Helper()
		obs := stateWatcher{states: make(chan call.State, 32)}
		s, err := call.NewSession(t.Context(), call.Options{
			Endpoint:   endpoint,
			NewChannel: call.SignalingChannels(signaling.Options{}),
			NewPeer:    call.TransportPeers(api, []webrtc.ICEServer{}),
			Audio:      media.Silence{},
			Sink:       sink,
			Observer:   obs,
		})
		if err != nil {
			t.Fatalf("NewSession: %v", err)
		}
		if err := s.Join("1234", name); err != nil {
			t.Fatalf("%s Join: %v", name, err)
		}
		obs.waitFor(t, call.StateNegotiating)
		return s, obs
	}

	aliceSink, bobSink := newFirstPacket(), newFirstPacket()
	alice, aliceObs := start("Alice", apiA, aliceSink)
	bob, bobObs := start("Bob", apiB, bobSink)

	waitForAudio(t, map[string]*firstPacket{"Alice": aliceSink, "Bob": bobSink})
	aliceObs.waitFor(t, call.StateActive)
	bobObs.waitFor(t, call.StateActive)

	alice.Leave()
	bob.Leave()
}
