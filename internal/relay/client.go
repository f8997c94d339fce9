package relay

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/1ureka/voicecall/internal/protocol"
)

// client is one WebSocket connection to the relay. The hub owns every
// field below conn except send, which only the hub closes.
type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	log  zerolog.Logger

	// Set by the hub.
	name      string
	room      *room
	closeCode int
	closeText string
}

func newClient(conn *websocket.Conn, log zerolog.Logger) *client {
	id := uuid.NewString()
	return &client{
		id:        id,
		conn:      conn,
		send:      make(chan []byte, sendBuffer),
		log:       log.With().Str("client_id", id).Logger(),
		closeCode: websocket.CloseNormalClosure,
	}
}

// inbound is one decoded frame from a client, with its raw bytes for
// verbatim forwarding.
type inbound struct {
	from *client
	msg  protocol.Message
	raw  []byte
}

// readPump decodes frames and hands them to the hub until the connection
// ends, then unregisters the client.
func (c *client) readPump(h *hub, opts Options) {
	defer func() {
		h.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(opts.MaxMessageBytes)
	pongWait := 2 * opts.PingInterval
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Warn().Err(err).Msg("Unexpected close")
			}
			return
		}

		msg, err := protocol.Decode(data)
		if errors.Is(err, protocol.ErrUnknownType) {
			c.log.Warn().Err(err).Msg("Ignoring message")
			continue
		}
		if err != nil {
			c.log.Warn().Err(err).Msg("Dropping malformed frame")
			continue
		}

		if !h.deliver(inbound{from: c, msg: msg, raw: data}) {
			return
		}
	}
}

// writePump writes queued frames and keepalive pings. When the hub closes
// send, it writes the close frame the hub chose and ends the connection.
func (c *client) writePump(opts Options) {
	ticker := time.NewTicker(opts.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(opts.WriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(c.closeCode, c.closeText))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.log.Debug().Err(err).Msg("Write failed")
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(opts.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
