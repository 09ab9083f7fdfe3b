// Package sshgateway serves the relay protocol over SSH. Every "session"
// channel that asks for a shell becomes one chat connection; the channel
// carries newline-terminated lines exactly like a TCP socket. Clients connect
// without authentication and pick their display name at the prompt, e.g.
// "ssh -T -p 2222 relay.example.com".
package sshgateway

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cyberinferno/chatrelay/chat"
	"github.com/cyberinferno/chatrelay/logger"
	"github.com/cyberinferno/chatrelay/safemap"
	"golang.org/x/crypto/ssh"
)

const handshakeTimeout = 10 * time.Second

// Gateway accepts SSH clients for a chat hub.
type Gateway struct {
	addr         string
	hub          *chat.Hub
	maxLineBytes int
	config       *ssh.ServerConfig
	logger       logger.Logger

	listener net.Listener
	conns    *safemap.SafeMap[uint32, net.Conn]
	nextConn atomic.Uint32
	running  atomic.Bool
	loopDone chan struct{}
	handlers sync.WaitGroup
}

// New creates a Gateway presenting signer as its host key.
//
// Parameters:
//   - addr: Listen address such as ":2222"
//   - signer: Host key, see LoadOrGenerateSigner
//   - hub: The shared chat hub
//   - maxLineBytes: Longest accepted line; values <= 0 use chat.DefaultMaxLineBytes
//   - log: Logger; nil discards
//
// Returns:
//   - A stopped Gateway
func New(addr string, signer ssh.Signer, hub *chat.Hub, maxLineBytes int, log logger.Logger) *Gateway {
	if log == nil {
		log = logger.Nop()
	}

	cfg := &ssh.ServerConfig{NoClientAuth: true}
	cfg.AddHostKey(signer)

	return &Gateway{
		addr:         addr,
		hub:          hub,
		maxLineBytes: maxLineBytes,
		config:       cfg,
		logger:       log,
		conns:        safemap.NewSafeMap[uint32, net.Conn](),
	}
}

// Start binds the listen address and accepts in a goroutine.
//
// Returns:
//   - An error if the gateway is already running or the bind fails
func (g *Gateway) Start() error {
	if g.running.Load() {
		return errors.New("ssh gateway already running")
	}

	ln, err := net.Listen("tcp", g.addr)
	if err != nil {
		return fmt.Errorf("ssh gateway failed to start: %w", err)
	}

	g.listener = ln
	g.loopDone = make(chan struct{})
	g.running.Store(true)

	g.logger.Info("ssh gateway started", logger.Field{Key: "addr", Value: ln.Addr().String()})
	go g.acceptLoop()

	return nil
}

// ListenAddr returns the bound address, or nil before Start.
func (g *Gateway) ListenAddr() net.Addr {
	if g.listener == nil {
		return nil
	}

	return g.listener.Addr()
}

// Stop closes the listener and every client connection, then waits for all
// chat sessions to finish cleanup.
func (g *Gateway) Stop() {
	if !g.running.CompareAndSwap(true, false) {
		return
	}

	_ = g.listener.Close()
	<-g.loopDone

	g.conns.Range(func(_ uint32, conn net.Conn) bool {
		_ = conn.Close()
		return true
	})

	g.handlers.Wait()
	g.logger.Info("ssh gateway stopped")
}

// ConnCount returns the number of open SSH connections.
func (g *Gateway) ConnCount() int {
	return g.conns.Len()
}

func (g *Gateway) acceptLoop() {
	defer close(g.loopDone)

	for g.running.Load() {
		conn, err := g.listener.Accept()
		if err != nil {
			if !g.running.Load() || errors.Is(err, net.ErrClosed) {
				return
			}

			g.logger.Error("ssh gateway accept error", logger.ErrField(err))
			continue
		}

		id := g.nextConn.Add(1)
		g.conns.Store(id, conn)

		g.handlers.Add(1)
		go func() {
			defer g.handlers.Done()
			defer g.conns.Delete(id)
			defer conn.Close()
			g.handleConn(conn)
		}()
	}
}

func (g *Gateway) handleConn(conn net.Conn) {
	_ = conn.SetDeadline(time.Now().Add(handshakeTimeout))
	sshConn, chans, reqs, err := ssh.NewServerConn(conn, g.config)
	if err != nil {
		g.logger.Debug("ssh handshake failed", logger.ErrField(err), logger.Field{Key: "remote", Value: conn.RemoteAddr().String()})
		return
	}
	_ = conn.SetDeadline(time.Time{})
	defer sshConn.Close()

	g.logger.Debug("ssh client connected",
		logger.Field{Key: "remote", Value: sshConn.RemoteAddr().String()},
		logger.Field{Key: "client", Value: string(sshConn.ClientVersion())},
	)

	go ssh.DiscardRequests(reqs)

	var channels sync.WaitGroup
	defer channels.Wait()

	for newChannel := range chans {
		if newChannel.ChannelType() != "session" {
			_ = newChannel.Reject(ssh.UnknownChannelType, "only session channels are supported")
			continue
		}

		channel, requests, err := newChannel.Accept()
		if err != nil {
			g.logger.Debug("ssh channel accept failed", logger.ErrField(err))
			continue
		}

		channels.Add(1)
		go func() {
			defer channels.Done()
			g.serveChannel(sshConn.RemoteAddr().String(), channel, requests)
		}()
	}
}

// serveChannel waits for the shell request and then runs a chat session on
// the channel. Terminal emulation is refused, so clients send cooked lines.
func (g *Gateway) serveChannel(remote string, channel ssh.Channel, requests <-chan *ssh.Request) {
	if !awaitShell(requests) {
		_ = channel.Close()
		return
	}
	go ssh.DiscardRequests(requests)

	conn := chat.NewStreamConn(&shellStream{Channel: channel}, remote, g.maxLineBytes)
	g.hub.NewSession(g.hub.IDs().Id(), conn).Handle()
}

func awaitShell(requests <-chan *ssh.Request) bool {
	for req := range requests {
		switch req.Type {
		case "shell":
			_ = req.Reply(true, nil)
			return true
		case "env":
			_ = req.Reply(true, nil)
		default:
			_ = req.Reply(false, nil)
		}
	}

	return false
}

// shellStream reports a zero exit status before closing, so the client's
// ssh process ends cleanly when the chat session does.
type shellStream struct {
	ssh.Channel
}

func (s *shellStream) Close() error {
	_, _ = s.SendRequest("exit-status", false, ssh.Marshal(struct{ Status uint32 }{0}))
	return s.Channel.Close()
}
