// Package signaling owns the WebSocket connection to the relay. It turns
// wire frames into protocol messages and reports the connection lifecycle
// to a single Handler.
package signaling

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/1ureka/voicecall/internal/protocol"
)

var (
	// ErrConnection reports that the relay could not be reached, or that an
	// open connection failed.
	ErrConnection = errors.New("signaling connection failed")

	// ErrNotOpen is returned by Send when the channel is not open.
	ErrNotOpen = errors.New("signaling channel is not open")

	// ErrAlreadyOpened is returned by a second call to Open.
	ErrAlreadyOpened = errors.New("signaling channel already opened")
)

// Handler receives the channel's lifecycle events. All calls come from a
// single goroutine owned by the channel, in order, never concurrently.
type Handler interface {
	// OnOpen fires once the connection is established.
	OnOpen()
	// OnMessage fires once per decoded frame, in relay order.
	OnMessage(msg protocol.Message)
	// OnError fires for transport failures; it is always followed by OnClose.
	OnError(err error)
	// OnClose fires exactly once, whoever closed the connection.
	OnClose()
}

// Options tunes the connection. The zero value gives sensible defaults.
type Options struct {
	OpenTimeout     time.Duration // 0 = no limit beyond ctx
	PingInterval    time.Duration // 0 = no keepalive pings
	WriteWait       time.Duration // per-frame write deadline
	MaxMessageBytes int64         // read limit per frame
}

const (
	defaultWriteWait       = 10 * time.Second
	defaultMaxMessageBytes = 64 * 1024
)

func (o Options) withDefaults() Options {
	if o.WriteWait <= 0 {
		o.WriteWait = defaultWriteWait
	}
	if o.MaxMessageBytes <= 0 {
		o.MaxMessageBytes = defaultMaxMessageBytes
	}
	return o
}

type state int

const (
	stateNew state = iota
	stateOpening
	stateOpen
	stateClosed
)

// Channel is one logical connection to the relay.
//
// Its lifecycle: New → Open (asynchronous dial) → OnOpen → messages →
// OnClose. A Channel is single-use; after OnClose it stays closed.
type Channel struct {
	handler Handler
	opts    Options

	mu     sync.Mutex
	state  state
	conn   *websocket.Conn
	cancel context.CancelFunc

	sender *sender
	done   chan struct{}
}

// New creates an unopened channel that reports to h.
func New(h Handler, opts Options) *Channel {
	return &Channel{
		handler: h,
		opts:    opts.withDefaults(),
		done:    make(chan struct{}),
	}
}

// Open starts connecting to endpoint in the background. The outcome is
// reported through the Handler: OnOpen on success, OnError + OnClose on
// failure. Open itself only fails when called twice or after Close.
func (c *Channel) Open(ctx context.Context, endpoint string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case stateNew:
	case stateClosed:
		return ErrNotOpen
	default:
		return ErrAlreadyOpened
	}

	dialCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.state = stateOpening

	go c.run(dialCtx, endpoint)
	return nil
}

// Send encodes and writes msg. It fails with ErrNotOpen unless the channel
// has reported OnOpen and has not been closed since.
func (c *Channel) Send(msg protocol.Message) error {
	c.mu.Lock()
	s := c.sender
	open := c.state == stateOpen
	c.mu.Unlock()

	if !open || s == nil {
		return ErrNotOpen
	}
	return s.send(msg)
}

// Close closes the channel locally. It is safe to call at any time and
// more than once; OnClose is still delivered exactly once if Open was
// called.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.state == stateClosed {
		c.mu.Unlock()
		return nil
	}
	c.state = stateClosed
	conn := c.conn
	cancel := c.cancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn == nil {
		return nil
	}

	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"),
		time.Now().Add(c.opts.WriteWait))
	return conn.Close()
}

// Done returns a channel that is closed after OnClose has been delivered.
func (c *Channel) Done() <-chan struct{} {
	return c.done
}

// closedLocally reports whether Close was called.
func (c *Channel) closedLocally() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == stateClosed
}

// run is the channel's only event-producing goroutine: dial, OnOpen, read
// loop, OnClose.
func (c *Channel) run(ctx context.Context, endpoint string) {
	defer close(c.done)
	defer c.handler.OnClose()

	conn, err := connect(ctx, endpoint, c.opts.OpenTimeout)
	if err != nil {
		if !c.closedLocally() {
			c.handler.OnError(err)
		}
		c.markClosed()
		return
	}

	c.mu.Lock()
	if c.state == stateClosed {
		c.mu.Unlock()
		conn.Close()
		return
	}
	c.conn = conn
	c.sender = &sender{conn: conn, writeWait: c.opts.WriteWait}
	c.state = stateOpen
	c.mu.Unlock()

	c.handler.OnOpen()

	r := &receiver{conn: conn, handler: c.handler, opts: c.opts}
	if err := r.watch(ctx); err != nil && !c.closedLocally() {
		c.handler.OnError(err)
	}

	c.markClosed()
	conn.Close()
}

func (c *Channel) markClosed() {
	c.mu.Lock()
	c.state = stateClosed
	c.mu.Unlock()
}
