package chat

import (
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/cyberinferno/chatrelay/logger"
	"github.com/cyberinferno/chatrelay/perfmonitor"
)

// Session drives the protocol for one connection: it asks for a name,
// registers it, relays every line the client sends and finally cleans up.
// Handle is the reader; a second goroutine drains the outbox to the wire.
type Session struct {
	id     uint32
	conn   Conn
	hub    *Hub
	outbox *Outbox
	logger logger.Logger

	name       string
	writerDone chan struct{}
	cleanup    sync.Once
	lifetime   *perfmonitor.PerformanceMonitor
}

// ID returns the connection id assigned by the accepting transport.
func (s *Session) ID() uint32 {
	return s.id
}

// Handle runs the session until the client quits, disconnects or is
// rejected. Cleanup always runs before Handle returns.
func (s *Session) Handle() {
	s.lifetime = perfmonitor.StartNew()
	go s.pump(s.logger)
	defer s.finish()

	s.logger.Debug("session started")

	name, ok := s.register()
	if !ok {
		return
	}

	s.hub.router.Joined(name)
	s.serve(name)
}

// Close drops the connection. The session notices on its next read and runs
// the usual cleanup.
//
// Returns:
//   - An error if closing the transport failed
func (s *Session) Close() error {
	return s.conn.Close()
}

func (s *Session) register() (string, bool) {
	s.send(PromptUsername)

	line, err := s.conn.ReadLine()
	if err != nil {
		s.logReadEnd("disconnected before naming", err)
		return "", false
	}

	name := strings.TrimSpace(line)
	if name == "" {
		s.send(ReplyEmptyName)
		s.logger.Info("rejected empty name")
		return "", false
	}

	claimed := s.outbox.admit(func() bool {
		return s.hub.registry.TryRegister(name, s.outbox)
	}, FormatWelcome(name))
	if !claimed {
		s.send(ReplyNameTaken)
		s.logger.Info("rejected name in use", logger.Field{Key: "name", Value: name})
		return "", false
	}

	s.name = name
	s.logger = s.logger.With(logger.Field{Key: "user", Value: name})
	s.logger.Info("user registered", logger.Field{Key: "online", Value: s.hub.registry.Len()})

	return name, true
}

func (s *Session) serve(name string) {
	for {
		line, err := s.conn.ReadLine()
		if err != nil {
			s.logReadEnd("connection ended", err)
			return
		}

		msg := Classify(name, line)
		switch msg.Kind {
		case KindEmpty:
			continue
		case KindQuit:
			s.logger.Info("user quit")
			return
		default:
			s.hub.router.Dispatch(s.outbox, msg)
		}
	}
}

// finish is the single exit path of a session.
func (s *Session) finish() {
	s.cleanup.Do(func() {
		if s.name != "" {
			s.hub.registry.Remove(s.name)
		}

		s.outbox.Close()

		if s.name != "" {
			s.hub.router.Left(s.name)
		}

		s.awaitWriter()
		_ = s.conn.Close()

		s.lifetime.Stop()
		s.logger.Info("session closed", logger.Field{Key: "duration", Value: s.lifetime.Elapsed().String()})
	})
}

// pump writes queued lines until the outbox is closed and drained. A failed
// write closes the connection so the reader stops as well.
func (s *Session) pump(log logger.Logger) {
	defer close(s.writerDone)

	for line := range s.outbox.Lines() {
		if err := s.conn.WriteLine(line); err != nil {
			log.Debug("write failed", logger.ErrField(err))
			_ = s.conn.Close()
			return
		}
	}
}

// dropSlow returns the outbox overflow handler. Closing the connection ends
// the reader, which then runs the usual cleanup.
func (s *Session) dropSlow(log logger.Logger) func() {
	return func() {
		log.Warn("outbox full, disconnecting slow client", logger.Field{Key: "queue_size", Value: s.hub.opts.OutboundQueueSize})
		_ = s.conn.Close()
	}
}

func (s *Session) awaitWriter() {
	timeout := s.hub.opts.FlushTimeout
	if timeout <= 0 {
		<-s.writerDone
		return
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-s.writerDone:
	case <-timer.C:
		s.logger.Warn("outbox not flushed before close", logger.Field{Key: "pending", Value: s.outbox.Pending()})
	}
}

func (s *Session) send(line string) {
	if err := s.outbox.Deliver(line); err != nil {
		s.logger.Debug("delivery skipped", logger.ErrField(err))
	}
}

func (s *Session) logReadEnd(msg string, err error) {
	if errors.Is(err, io.EOF) {
		s.logger.Debug(msg)
		return
	}

	s.logger.Debug(msg, logger.ErrField(err))
}
