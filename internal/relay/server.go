// Package relay is a development signaling relay: it pairs up to two
// clients per room code, announces the roster and forwards offer, answer
// and candidate messages between them unchanged.
package relay

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const sendBuffer = 64

// Options configures a relay Server. The zero value is usable.
type Options struct {
	Logger          zerolog.Logger
	PingInterval    time.Duration // default 30s; pong wait is twice this
	WriteWait       time.Duration // default 10s
	MaxMessageBytes int64         // default 64 KiB
}

func (o Options) withDefaults() Options {
	if o.PingInterval <= 0 {
		o.PingInterval = 30 * time.Second
	}
	if o.WriteWait <= 0 {
		o.WriteWait = 10 * time.Second
	}
	if o.MaxMessageBytes <= 0 {
		o.MaxMessageBytes = 64 * 1024
	}
	return o
}

// Server serves the relay's WebSocket endpoint at /ws.
type Server struct {
	opts     Options
	log      zerolog.Logger
	hub      *hub
	upgrader websocket.Upgrader

	httpSrv  *http.Server
	listener net.Listener
}

// New creates a Server and starts its hub. Call Close to stop it.
func New(opts Options) *Server {
	opts = opts.withDefaults()
	s := &Server{
		opts: opts,
		log:  opts.Logger,
		hub:  newHub(opts.Logger),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	go s.hub.run()
	return s
}

// Router returns the relay's HTTP handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/ws", s.serveWS)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("ok\n"))
	})
	return r
}

// Start listens on addr and serves in the background. It returns the
// address actually bound, so ":0" picks a free port.
func (s *Server) Start(addr string) (string, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("relay: listen %s: %w", addr, err)
	}
	s.listener = listener
	s.httpSrv = &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.httpSrv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("Relay server stopped")
		}
	}()

	bound := listener.Addr().String()
	s.log.Info().Str("addr", bound).Msg("Relay listening")
	return bound, nil
}

// Close disconnects every client and stops the HTTP server, if started.
func (s *Server) Close(ctx context.Context) error {
	s.hub.stop()
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("WebSocket upgrade failed")
		return
	}

	c := newClient(conn, s.log)
	if !s.hub.add(c) {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "relay shutting down"))
		conn.Close()
		return
	}

	go c.writePump(s.opts)
	go c.readPump(s.hub, s.opts)
}
