package signaling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"github.com/1ureka/voicecall/internal/protocol"
	"github.com/1ureka/voicecall/internal/util"
)

// receiver reads frames from the WebSocket and hands decoded messages to
// the handler (private).
type receiver struct {
	conn    *websocket.Conn
	handler Handler
	opts    Options
}

// watch runs the read loop until the connection ends. It returns nil for a
// normal close and an ErrConnection-wrapped error otherwise.
func (r *receiver) watch(ctx context.Context) error {
	r.conn.SetReadLimit(r.opts.MaxMessageBytes)

	if r.opts.PingInterval > 0 {
		pongWait := 2 * r.opts.PingInterval
		r.conn.SetReadDeadline(time.Now().Add(pongWait))
		r.conn.SetPongHandler(func(string) error {
			return r.conn.SetReadDeadline(time.Now().Add(pongWait))
		})

		stop := make(chan struct{})
		defer close(stop)
		go r.keepalive(ctx, stop)
	}

	for {
		_, data, err := r.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				util.LogDebug("relay closed the signaling channel: %v", err)
				return nil
			}
			return fmt.Errorf("%w: read: %w", ErrConnection, err)
		}

		msg, err := protocol.Decode(data)
		switch {
		case errors.Is(err, protocol.ErrUnknownType):
			util.LogWarning("ignoring signaling message: %v", err)
			continue
		case err != nil:
			util.LogWarning("dropping signaling frame: %v", err)
			continue
		}

		r.handler.OnMessage(msg)
	}
}

// keepalive pings the relay until stop or ctx is closed. A failed ping is
// left to the read deadline to detect.
func (r *receiver) keepalive(ctx context.Context, stop <-chan struct{}) {
	ticker := time.NewTicker(r.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := r.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(r.opts.WriteWait)); err != nil {
				util.LogDebug("signaling ping failed: %v", err)
				return
			}
		case <-stop:
			return
		case <-ctx.Done():
			return
		}
	}
}
