// Package tcpserver is the accept loop of the relay: it binds a TCP listener
// and runs one session goroutine per accepted connection.
package tcpserver

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/cyberinferno/chatrelay/idgenerator"
	"github.com/cyberinferno/chatrelay/logger"
	"github.com/cyberinferno/chatrelay/safemap"
)

// NewSessionFunc creates the TCPServerSession for an accepted connection. It
// receives the assigned session ID and the net.Conn, which the session owns
// from then on.
type NewSessionFunc func(id uint32, conn net.Conn) TCPServerSession

// TCPServer accepts connections and delegates each one to a session created by
// NewSession. Live sessions are tracked by ID so Stop can close them.
type TCPServer struct {
	Logger      logger.Logger
	Name        string
	Addr        string
	NewSession  NewSessionFunc
	IdGenerator *idgenerator.IdGenerator

	listener net.Listener
	sessions *safemap.SafeMap[uint32, TCPServerSession]
	running  atomic.Bool
	loopDone chan struct{}
	handlers sync.WaitGroup
}

// New creates a TCPServer.
//
// Parameters:
//   - name: Label used in log lines, e.g. "tcp"
//   - addr: Listen address such as ":12345"
//   - ids: Id source, shared with other transports of the same hub
//   - newSession: Session factory
//   - log: Logger; nil discards
//
// Returns:
//   - A stopped TCPServer; call Start to listen
func New(name, addr string, ids *idgenerator.IdGenerator, newSession NewSessionFunc, log logger.Logger) *TCPServer {
	if log == nil {
		log = logger.Nop()
	}

	return &TCPServer{
		Logger:      log,
		Name:        name,
		Addr:        addr,
		NewSession:  newSession,
		IdGenerator: ids,
		sessions:    safemap.NewSafeMap[uint32, TCPServerSession](),
	}
}

// Start binds Addr and begins the accept loop in a goroutine.
//
// Returns:
//   - An error if the server is already running or if listening on Addr fails
func (s *TCPServer) Start() error {
	if s.running.Load() {
		s.Logger.Error("server already running")
		return fmt.Errorf("server %s already running", s.Name)
	}

	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		s.Logger.Error("server failed to start", logger.ErrField(err))
		return fmt.Errorf("server %s failed to start: %w", s.Name, err)
	}

	s.listener = ln
	s.loopDone = make(chan struct{})
	s.running.Store(true)

	s.Logger.Info(fmt.Sprintf("%s server started", s.Name), logger.Field{Key: "addr", Value: ln.Addr().String()})
	go s.AcceptLoop()

	return nil
}

// ListenAddr returns the bound address, or nil before Start.
func (s *TCPServer) ListenAddr() net.Addr {
	if s.listener == nil {
		return nil
	}

	return s.listener.Addr()
}

// Stop closes the listener and every live session, then waits for their
// handlers to finish cleanup. Safe to call when the server is not running.
func (s *TCPServer) Stop() {
	if !s.running.CompareAndSwap(true, false) {
		s.Logger.Info(fmt.Sprintf("%s server not running", s.Name))
		return
	}

	_ = s.listener.Close()
	<-s.loopDone

	s.sessions.Range(func(_ uint32, session TCPServerSession) bool {
		_ = session.Close()
		return true
	})

	s.handlers.Wait()
	s.Logger.Info(fmt.Sprintf("%s server stopped", s.Name))
}

// AddSession stores a session under the given id.
func (s *TCPServer) AddSession(id uint32, session TCPServerSession) {
	s.sessions.Store(id, session)
}

// RemoveSession forgets the session with the given id.
func (s *TCPServer) RemoveSession(id uint32) {
	s.sessions.Delete(id)
}

// GetSession returns the live session for id, if any.
//
// Parameters:
//   - id: The session ID to look up
//
// Returns:
//   - The session and true if found, or nil and false otherwise
func (s *TCPServer) GetSession(id uint32) (TCPServerSession, bool) {
	return s.sessions.Load(id)
}

// SessionCount returns the number of connections currently being handled.
func (s *TCPServer) SessionCount() int {
	return s.sessions.Len()
}

// AcceptLoop accepts connections until Stop. Each connection gets the next
// id, a session from NewSession and its own goroutine; the session is
// forgotten once its Handle returns.
func (s *TCPServer) AcceptLoop() {
	defer close(s.loopDone)

	for s.running.Load() {
		conn, err := s.listener.Accept()
		if err != nil {
			if !s.running.Load() || errors.Is(err, net.ErrClosed) {
				return
			}

			s.Logger.Error(fmt.Sprintf("%s server accept error", s.Name), logger.ErrField(err))
			continue
		}

		if !s.running.Load() {
			_ = conn.Close()
			return
		}

		id := s.IdGenerator.Id()
		session := s.NewSession(id, conn)
		s.AddSession(id, session)

		s.handlers.Add(1)
		go func() {
			defer s.handlers.Done()
			defer s.RemoveSession(id)
			session.Handle()
		}()
	}
}
