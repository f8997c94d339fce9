package relay

import (
	"slices"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/1ureka/voicecall/internal/protocol"
)

// roomCapacity is the number of participants in one call.
const roomCapacity = 2

// room is a set of clients sharing a code, in join order.
type room struct {
	code    string
	members []*client
}

func (r *room) names() []string {
	names := make([]string, 0, len(r.members))
	for _, m := range r.members {
		names = append(names, m.name)
	}
	return names
}

func (r *room) remove(c *client) {
	for i, m := range r.members {
		if m == c {
			r.members = append(r.members[:i], r.members[i+1:]...)
			return
		}
	}
}

// hub owns all rooms and clients. Every change goes through its run loop.
type hub struct {
	log zerolog.Logger

	clients map[*client]bool
	rooms   map[string]*room

	register chan *client
	leaving  chan *client
	inbound  chan inbound
	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func newHub(log zerolog.Logger) *hub {
	return &hub{
		log:      log,
		clients:  make(map[*client]bool),
		rooms:    make(map[string]*room),
		register: make(chan *client),
		leaving:  make(chan *client),
		inbound:  make(chan inbound),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (h *hub) run() {
	defer close(h.done)

	for {
		select {
		case <-h.quit:
			for c := range h.clients {
				h.drop(c, websocket.CloseGoingAway, "relay shutting down")
			}
			return

		case c := <-h.register:
			h.clients[c] = true
			c.log.Info().Msg("Client connected")

		case c := <-h.leaving:
			if h.clients[c] {
				h.leave(c)
				delete(h.clients, c)
				close(c.send)
			}
			c.log.Info().Msg("Client disconnected")

		case in := <-h.inbound:
			if h.clients[in.from] {
				h.handle(in)
			}
		}
	}
}

// add, unregister and deliver hand work to the run loop; they return false
// once the hub has stopped.

func (h *hub) add(c *client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.quit:
		return false
	}
}

func (h *hub) unregister(c *client) {
	select {
	case h.leaving <- c:
	case <-h.quit:
	}
}

func (h *hub) deliver(in inbound) bool {
	select {
	case h.inbound <- in:
		return true
	case <-h.quit:
		return false
	}
}

func (h *hub) stop() {
	h.stopOnce.Do(func() { close(h.quit) })
	<-h.done
}

func (h *hub) handle(in inbound) {
	c := in.from

	switch m := in.msg.(type) {
	case protocol.Join:
		h.join(c, m)
	case protocol.Offer, protocol.Answer, protocol.Candidate:
		if c.room == nil {
			c.log.Warn().Str("type", string(m.Type())).Msg("Signaling before join, dropped")
			return
		}
		for _, peer := range slices.Clone(c.room.members) {
			if peer != c {
				h.send(peer, in.raw)
			}
		}
	default:
		c.log.Warn().Str("type", string(m.Type())).Msg("Unexpected message from client")
	}
}

func (h *hub) join(c *client, m protocol.Join) {
	if c.room != nil {
		c.log.Warn().Str("room", c.room.code).Msg("Already in a room, join ignored")
		return
	}

	r := h.rooms[m.Room]
	if r == nil {
		r = &room{code: m.Room}
		h.rooms[m.Room] = r
		h.log.Info().Str("room", m.Room).Msg("Room created")
	}
	if len(r.members) >= roomCapacity {
		c.log.Warn().Str("room", m.Room).Msg("Room is full, rejecting")
		h.drop(c, websocket.ClosePolicyViolation, "room is full")
		return
	}

	c.name = m.Name
	c.room = r
	r.members = append(r.members, c)
	c.log.Info().Str("room", r.code).Str("name", c.name).Int("members", len(r.members)).Msg("Joined room")

	h.broadcastParticipants(r)
}

// leave removes c from its room, announcing the new roster to whoever is
// left.
func (h *hub) leave(c *client) {
	r := c.room
	if r == nil {
		return
	}
	c.room = nil
	r.remove(c)

	if len(r.members) == 0 {
		delete(h.rooms, r.code)
		h.log.Info().Str("room", r.code).Msg("Room removed")
		return
	}
	h.broadcastParticipants(r)
}

func (h *hub) broadcastParticipants(r *room) {
	frame, err := protocol.Encode(protocol.Participants{List: r.names()})
	if err != nil {
		h.log.Error().Err(err).Msg("Encode participants")
		return
	}
	for _, m := range slices.Clone(r.members) {
		h.send(m, frame)
	}
}

// send queues frame for c, dropping c if it cannot keep up.
func (h *hub) send(c *client, frame []byte) {
	if !h.clients[c] {
		return
	}
	select {
	case c.send <- frame:
	default:
		c.log.Warn().Msg("Send buffer full, dropping client")
		h.leave(c)
		h.drop(c, websocket.CloseTryAgainLater, "too slow")
	}
}

// drop closes c's outbound queue with the given close frame. The read pump
// notices the closed connection and unregisters, which is then a no-op.
func (h *hub) drop(c *client, code int, text string) {
	if !h.clients[c] {
		return
	}
	delete(h.clients, c)
	c.closeCode = code
	c.closeText = text
	close(c.send)
}
