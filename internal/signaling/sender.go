package signaling

import (
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/1ureka/voicecall/internal/protocol"
)

// sender serializes outgoing signaling messages to the WebSocket (private).
// gorilla/websocket allows one concurrent writer, so every data frame goes
// through the mutex.
type sender struct {
	conn      *websocket.Conn
	writeWait time.Duration
	mu        sync.Mutex
}

// send encodes msg and writes it as one text frame.
func (s *sender) send(msg protocol.Message) error {
	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.conn.SetWriteDeadline(time.Now().Add(s.writeWait))
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("%w: write %s: %w", ErrConnection, msg.Type(), err)
	}
	return nil
}
