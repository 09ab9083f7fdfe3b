// Command chatserver runs the chat relay. Configuration comes from CHAT_*
// environment variables, optionally preloaded from a .env file.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cyberinferno/chatrelay/chat"
	"github.com/cyberinferno/chatrelay/config"
	"github.com/cyberinferno/chatrelay/logger"
	"github.com/cyberinferno/chatrelay/moderation"
	"github.com/cyberinferno/chatrelay/roster"
	"github.com/cyberinferno/chatrelay/sshgateway"
	"github.com/cyberinferno/chatrelay/tcpserver"
	"github.com/cyberinferno/chatrelay/wsgateway"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "chatserver: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log, err := logger.New(logger.Options{
		ServiceName: cfg.ServiceName,
		Level:       cfg.LogLevel,
		Dir:         cfg.LogDir,
		Pretty:      cfg.LogPretty,
	})
	if err != nil {
		return err
	}
	defer log.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rosterCache, closeRoster := newRoster(ctx, cfg, log)
	defer closeRoster()

	opts := chat.Options{
		OutboundQueueSize: cfg.OutboundQueueSize,
		FlushTimeout:      cfg.FlushTimeout,
		ReservedNames:     cfg.ReservedNameList(),
		Roster:            rosterCache,
		Logger:            log,
	}

	if words := cfg.CensoredWordList(); len(words) > 0 {
		moderator, err := moderation.NewModerator(words, cfg.MaskRune())
		if err != nil {
			return fmt.Errorf("failed to build word filter: %w", err)
		}
		opts.Censor = moderator
		log.Info("word filter enabled", logger.Field{Key: "words", Value: len(words)})
	}

	hub := chat.NewHub(opts)

	tcp := tcpserver.New("tcp", cfg.Addr, hub.IDs(), func(id uint32, conn net.Conn) tcpserver.TCPServerSession {
		return hub.NewSession(id, chat.NewNetConn(conn, cfg.MaxLineBytes))
	}, log.With(logger.Field{Key: "transport", Value: "tcp"}))
	if err := tcp.Start(); err != nil {
		return err
	}

	var ws *wsgateway.Gateway
	if cfg.WSAddr != "" {
		ws = wsgateway.New(cfg.WSAddr, hub, cfg.MaxLineBytes, log.With(logger.Field{Key: "transport", Value: "ws"}))
		if err := ws.Start(); err != nil {
			tcp.Stop()
			return err
		}
	}

	var sshGw *sshgateway.Gateway
	if cfg.SSHAddr != "" {
		signer, err := sshgateway.LoadOrGenerateSigner(cfg.SSHHostKey)
		if err == nil {
			sshGw = sshgateway.New(cfg.SSHAddr, signer, hub, cfg.MaxLineBytes, log.With(logger.Field{Key: "transport", Value: "ssh"}))
			err = sshGw.Start()
		}
		if err != nil {
			tcp.Stop()
			if ws != nil {
				_ = ws.Stop(context.Background())
			}
			return err
		}
	}

	<-ctx.Done()
	log.Info("shutting down", logger.Field{Key: "online", Value: hub.Registry().Len()})

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var g errgroup.Group
	g.Go(func() error {
		tcp.Stop()
		return nil
	})
	if ws != nil {
		g.Go(func() error { return ws.Stop(shutdownCtx) })
	}
	if sshGw != nil {
		g.Go(func() error {
			sshGw.Stop()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		log.Warn("shutdown incomplete", logger.ErrField(err))
	}

	log.Info("chatserver stopped")
	return nil
}

// newRoster picks the Redis roster cache when CHAT_REDIS_ADDR is set and the
// server answers, and the in-process cache otherwise.
func newRoster(ctx context.Context, cfg *config.Config, log logger.Logger) (roster.Cache, func()) {
	if cfg.RedisAddr == "" {
		return roster.NewMemoryCache(cfg.RosterTTL), func() {}
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Warn("redis unavailable, using in-memory roster", logger.ErrField(err), logger.Field{Key: "addr", Value: cfg.RedisAddr})
		_ = client.Close()
		return roster.NewMemoryCache(cfg.RosterTTL), func() {}
	}

	log.Info("roster cached in redis", logger.Field{Key: "addr", Value: cfg.RedisAddr}, logger.Field{Key: "key", Value: cfg.RedisKey})
	return roster.NewRedisCache(client, cfg.RedisKey, cfg.RosterTTL), func() { _ = client.Close() }
}
