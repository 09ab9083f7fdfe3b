// Package wsgateway serves the relay protocol over WebSocket at /ws. Each text
// frame is one protocol line in either direction. WebSocket users share the
// hub, and therefore the registry, with every other transport.
package wsgateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cyberinferno/chatrelay/chat"
	"github.com/cyberinferno/chatrelay/logger"
	"github.com/cyberinferno/chatrelay/safemap"
	"github.com/gorilla/websocket"
)

// Path is the WebSocket endpoint.
const Path = "/ws"

// Gateway accepts WebSocket clients and runs a chat session for each.
type Gateway struct {
	addr         string
	hub          *chat.Hub
	maxLineBytes int
	logger       logger.Logger

	upgrader websocket.Upgrader
	server   *http.Server
	listener net.Listener
	sessions *safemap.SafeMap[uint32, *chat.Session]
	handlers sync.WaitGroup
	running  atomic.Bool
}

// New creates a Gateway for hub.
//
// Parameters:
//   - addr: Listen address such as ":8080"
//   - hub: The shared chat hub
//   - maxLineBytes: Largest accepted frame; values <= 0 use chat.DefaultMaxLineBytes
//   - log: Logger; nil discards
//
// Returns:
//   - A stopped Gateway; call Start to listen, or mount Handler yourself
func New(addr string, hub *chat.Hub, maxLineBytes int, log logger.Logger) *Gateway {
	if maxLineBytes <= 0 {
		maxLineBytes = chat.DefaultMaxLineBytes
	}
	if log == nil {
		log = logger.Nop()
	}

	g := &Gateway{
		addr:         addr,
		hub:          hub,
		maxLineBytes: maxLineBytes,
		logger:       log,
		sessions:     safemap.NewSafeMap[uint32, *chat.Session](),
		upgrader: websocket.Upgrader{
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
			HandshakeTimeout: 10 * time.Second,
			// Line clients are not browsers; any origin may connect.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}

	g.server = &http.Server{
		Handler:           g.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return g
}

// Handler returns the HTTP routes of the gateway.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(Path, g.ServeWS)
	return mux
}

// Start binds the listen address and serves in a goroutine.
//
// Returns:
//   - An error if the gateway is already running or the bind fails
func (g *Gateway) Start() error {
	if !g.running.CompareAndSwap(false, true) {
		return errors.New("websocket gateway already running")
	}

	ln, err := net.Listen("tcp", g.addr)
	if err != nil {
		g.running.Store(false)
		return fmt.Errorf("websocket gateway failed to start: %w", err)
	}

	g.listener = ln
	g.logger.Info("websocket gateway started", logger.Field{Key: "addr", Value: ln.Addr().String()}, logger.Field{Key: "path", Value: Path})

	go func() {
		if err := g.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("websocket gateway stopped serving", logger.ErrField(err))
		}
	}()

	return nil
}

// ListenAddr returns the bound address, or nil before Start.
func (g *Gateway) ListenAddr() net.Addr {
	if g.listener == nil {
		return nil
	}

	return g.listener.Addr()
}

// Stop refuses new clients, closes every live session and waits for their
// cleanup.
//
// Parameters:
//   - ctx: Bounds the HTTP shutdown
//
// Returns:
//   - The HTTP shutdown error, if any
func (g *Gateway) Stop(ctx context.Context) error {
	var err error
	if g.running.CompareAndSwap(true, false) {
		err = g.server.Shutdown(ctx)
	}

	g.sessions.Range(func(_ uint32, s *chat.Session) bool {
		_ = s.Close()
		return true
	})

	g.handlers.Wait()
	g.logger.Info("websocket gateway stopped")

	return err
}

// ServeWS upgrades the request and runs a session until it ends.
func (g *Gateway) ServeWS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	g.handlers.Add(1)
	defer g.handlers.Done()

	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Debug("websocket upgrade failed", logger.ErrField(err), logger.Field{Key: "remote", Value: r.RemoteAddr})
		return
	}

	id := g.hub.IDs().Id()
	session := g.hub.NewSession(id, newConn(ws, r.RemoteAddr, g.maxLineBytes))
	g.sessions.Store(id, session)
	defer g.sessions.Delete(id)

	session.Handle()
}

// SessionCount returns the number of live WebSocket sessions.
func (g *Gateway) SessionCount() int {
	return g.sessions.Len()
}
