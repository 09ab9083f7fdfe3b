package chat

import (
	"context"
	"strings"
	"time"

	"github.com/cyberinferno/chatrelay/logger"
	"github.com/cyberinferno/chatrelay/perfmonitor"
	"github.com/cyberinferno/chatrelay/roster"
)

// Censor rewrites the text of a chat line before it is fanned out.
type Censor interface {
	Censor(text string) string
}

// Router turns classified messages into deliveries. Delivery is fire and
// forget: a recipient that cannot take a line is skipped and the rest of the
// fan-out continues.
type Router struct {
	registry      *Registry
	roster        roster.Cache
	censor        Censor
	logger        logger.Logger
	rosterTimeout time.Duration
}

// RouterOption customizes a Router.
type RouterOption func(*Router)

// WithRoster answers /users through cache instead of walking the registry on
// every request.
func WithRoster(cache roster.Cache) RouterOption {
	return func(r *Router) { r.roster = cache }
}

// WithCensor masks chat text through c. Announcements and replies from
// SERVER are never censored.
func WithCensor(c Censor) RouterOption {
	return func(r *Router) { r.censor = c }
}

// WithLogger sets the logger used for fan-out diagnostics.
func WithLogger(l logger.Logger) RouterOption {
	return func(r *Router) { r.logger = l }
}

// NewRouter creates a Router over registry.
//
// Parameters:
//   - registry: The shared directory of online names
//   - opts: Optional roster cache, censor and logger
//
// Returns:
//   - A new Router
func NewRouter(registry *Registry, opts ...RouterOption) *Router {
	r := &Router{
		registry:      registry,
		logger:        logger.Nop(),
		rosterTimeout: time.Second,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Dispatch delivers msg on behalf of the session whose sink is from.
//
// Parameters:
//   - from: The sender's own sink, used for echoes and error replies
//   - msg: A message produced by Classify
func (r *Router) Dispatch(from Sink, msg Message) {
	switch msg.Kind {
	case KindBroadcast:
		r.fanOut(FormatBroadcast(msg.Sender, r.clean(msg.Text)))
	case KindPrivate:
		r.private(from, msg)
	case KindInvalidPrivate:
		r.reply(from, ReplyInvalidPrivate)
	case KindUsers:
		r.reply(from, FormatBroadcast(SystemSender, "Online users: "+strings.Join(r.onlineNames(), ", ")))
	}
}

// Announce broadcasts a SERVER line to everyone online.
func (r *Router) Announce(text string) {
	r.fanOut(FormatBroadcast(SystemSender, text))
}

// Joined announces that name has registered.
func (r *Router) Joined(name string) {
	r.invalidateRoster()
	r.Announce(name + " has joined the chat.")
}

// Left announces that name is gone. The caller must already have removed the
// name from the registry.
func (r *Router) Left(name string) {
	r.invalidateRoster()
	r.Announce(name + " has left the chat.")
}

func (r *Router) private(from Sink, msg Message) {
	target, ok := r.registry.Lookup(msg.Target)
	if !ok {
		r.reply(from, FormatNotFound(msg.Target))
		return
	}

	line := FormatPrivate(msg.Sender, r.clean(msg.Text))
	r.reply(target, line)
	r.reply(from, line)
}

func (r *Router) fanOut(line string) {
	pm := perfmonitor.StartNew()
	sinks := r.registry.Snapshot()

	failed := 0
	for _, sink := range sinks {
		if err := sink.Deliver(line); err != nil {
			failed++
		}
	}

	pm.Stop()
	if failed > 0 {
		r.logger.Debug("fan-out skipped recipients",
			logger.Field{Key: "recipients", Value: len(sinks)},
			logger.Field{Key: "failed", Value: failed},
			logger.Field{Key: "elapsed_ms", Value: pm.ElapsedMilliseconds()},
		)
	}
}

func (r *Router) reply(to Sink, line string) {
	if err := to.Deliver(line); err != nil {
		r.logger.Debug("delivery skipped", logger.ErrField(err))
	}
}

func (r *Router) clean(text string) string {
	if r.censor == nil {
		return text
	}

	return r.censor.Censor(text)
}

func (r *Router) onlineNames() []string {
	if r.roster == nil {
		return r.registry.Names()
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.rosterTimeout)
	defer cancel()

	names, err := r.roster.Names(ctx, func(context.Context) ([]string, error) {
		return r.registry.Names(), nil
	})
	if err != nil {
		r.logger.Warn("roster cache unavailable, reading registry", logger.ErrField(err))
		return r.registry.Names()
	}

	return names
}

func (r *Router) invalidateRoster() {
	if r.roster == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.rosterTimeout)
	defer cancel()

	if err := r.roster.Invalidate(ctx); err != nil {
		r.logger.Warn("failed to invalidate roster", logger.ErrField(err))
	}
}
