// Package chat implements the relay core: the registry of online names, the
// router that fans lines out to their recipients, and the per-connection
// session that speaks the line protocol. Transports hand the Hub a Conn; the
// Hub hands back a Session to run.
package chat

import (
	"time"

	"github.com/cyberinferno/chatrelay/idgenerator"
	"github.com/cyberinferno/chatrelay/logger"
	"github.com/cyberinferno/chatrelay/roster"
)

// Defaults applied by NewHub to zero Options fields.
const (
	DefaultOutboundQueueSize = 256
	DefaultFlushTimeout      = 2 * time.Second
)

// Options configures a Hub.
type Options struct {
	// OutboundQueueSize is the number of lines a session may fall behind
	// before it is disconnected.
	OutboundQueueSize int
	// FlushTimeout bounds how long cleanup waits for queued lines to reach
	// the client before the connection is closed anyway.
	FlushTimeout time.Duration
	// ReservedNames can never be registered.
	ReservedNames []string
	// Roster caches the /users listing. Nil reads the registry directly.
	Roster roster.Cache
	// Censor masks chat text. Nil relays text unchanged.
	Censor Censor
	Logger logger.Logger
}

// Hub is the state shared by every session of one relay process.
type Hub struct {
	opts     Options
	registry *Registry
	router   *Router
	ids      *idgenerator.IdGenerator
	logger   logger.Logger
}

// NewHub creates a Hub.
//
// Parameters:
//   - opts: Queue, flush and routing settings; zero values use defaults
//
// Returns:
//   - A new Hub with an empty registry
func NewHub(opts Options) *Hub {
	if opts.OutboundQueueSize <= 0 {
		opts.OutboundQueueSize = DefaultOutboundQueueSize
	}
	if opts.FlushTimeout <= 0 {
		opts.FlushTimeout = DefaultFlushTimeout
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}

	registry := NewRegistry(opts.ReservedNames...)

	routerOpts := []RouterOption{WithLogger(opts.Logger.With(logger.Field{Key: "component", Value: "router"}))}
	if opts.Roster != nil {
		routerOpts = append(routerOpts, WithRoster(opts.Roster))
	}
	if opts.Censor != nil {
		routerOpts = append(routerOpts, WithCensor(opts.Censor))
	}

	return &Hub{
		opts:     opts,
		registry: registry,
		router:   NewRouter(registry, routerOpts...),
		ids:      idgenerator.NewIdGenerator("s", 0),
		logger:   opts.Logger,
	}
}

// NewSession binds conn to the hub. The caller runs Handle, usually in its
// own goroutine.
//
// Parameters:
//   - id: Connection id, normally from IDs
//   - conn: The client connection; the session closes it
//
// Returns:
//   - A Session ready to Handle
func (h *Hub) NewSession(id uint32, conn Conn) *Session {
	s := &Session{
		id:     id,
		conn:   conn,
		hub:    h,
		outbox: NewOutbox(h.opts.OutboundQueueSize),
		logger: h.logger.With(
			logger.Field{Key: "session_id", Value: h.ids.Label(id)},
			logger.Field{Key: "remote", Value: conn.RemoteAddr()},
		),
		writerDone: make(chan struct{}),
	}
	s.outbox.OnOverflow(s.dropSlow(s.logger))

	return s
}

// IDs is the id source shared by all transports feeding this hub.
func (h *Hub) IDs() *idgenerator.IdGenerator {
	return h.ids
}

// Registry exposes the directory of online names.
func (h *Hub) Registry() *Registry {
	return h.registry
}

// Router exposes the hub's router, e.g. for operator announcements.
func (h *Hub) Router() *Router {
	return h.router
}
