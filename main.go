package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"schedule-board/api"
	"schedule-board/board"
	"schedule-board/broadcast"
	"schedule-board/storage"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg := loadConfig()
	logger := log.New()
	if cfg.debug {
		log.SetLevel(log.DebugLevel)
		logger.SetLevel(log.DebugLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var rc *redis.Client
	if cfg.redisConn != "" {
		rc = redis.NewClient(redisOptions(cfg.redisConn))
		defer rc.Close()
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderContentEncoding},
	}))

	g, gctx := errgroup.WithContext(ctx)
	var (
		hub     *broadcast.Hub
		cleanup func()
		err     error
	)
	switch cfg.role {
	case roleStream:
		hub = startFollower(gctx, g, cfg, rc, e, logger)
		cleanup = func() {}
	default:
		hub, cleanup, err = startPrimary(gctx, cfg, rc, e, logger)
		if err != nil {
			logger.Fatalf("startup: %v", err)
		}
	}
	defer cleanup()

	g.Go(func() error {
		logger.WithFields(log.Fields{"addr": cfg.listenAddr, "role": cfg.role}).Info("board listening")
		if err := e.Start(cfg.listenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		hub.Close()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return e.Shutdown(sctx)
	})
	if err := g.Wait(); err != nil {
		logger.Errorf("server: %v", err)
	}
	logger.Info("board stopped")
}

// startPrimary builds the store, restores it, wires every emitter and
// registers the full API. The returned cleanup drains background writes.
func startPrimary(ctx context.Context, cfg config, rc *redis.Client, e *echo.Echo, logger *log.Logger) (*broadcast.Hub, func(), error) {
	store := storage.NewTaskStore()

	var sinks []storage.Sink
	persister, err := openPersister(cfg)
	if err != nil {
		return nil, nil, err
	}
	if persister != nil {
		tasks, err := persister.Load(ctx)
		if err != nil {
			return nil, nil, err
		}
		rev := store.Restore(tasks)
		logger.WithFields(log.Fields{"backend": cfg.backend, "tasks": len(tasks), "rev": rev}).Info("board restored")
		sinks = append(sinks, persister)
	}
	if cfg.changeQueue != "" {
		q, err := storage.NewQueueExporter(cfg.storageConn, cfg.changeQueue)
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, q)
	}

	svc := board.NewService(store, logger)
	hub := broadcast.NewHub(svc, cfg.sessionBuffer, logger)
	emitters := []board.Emitter{hub}
	var writer *storage.Writer
	if len(sinks) > 0 {
		writer = storage.NewWriter(cfg.writer, logger, sinks...)
		emitters = append(emitters, writer)
	}
	var relay *broadcast.RedisRelay
	if rc != nil {
		relay = broadcast.NewRedisRelay(rc, cfg.relayChan, cfg.relayPrefix, logger)
		emitters = append(emitters, relay)
	}
	svc.Attach(emitters...)

	if store.Len() == 0 && cfg.seedFile != "" {
		tasks, err := storage.LoadSeed(cfg.seedFile)
		if err != nil {
			return nil, nil, err
		}
		if err := svc.Seed(tasks); err != nil {
			return nil, nil, err
		}
		logger.WithFields(log.Fields{"file": cfg.seedFile, "tasks": len(tasks)}).Info("board seeded")
	}
	if relay != nil {
		snap, err := svc.Snapshot(ctx)
		if err != nil {
			return nil, nil, err
		}
		if err := relay.Mirror(ctx, snap); err != nil {
			return nil, nil, err
		}
	}

	api.Register(e, svc, svc, hub, logger)

	cleanup := func() {
		if writer != nil {
			writer.Close()
		}
		if persister != nil {
			if err := persister.Close(); err != nil {
				logger.Errorf("close persister: %v", err)
			}
		}
	}
	return hub, cleanup, nil
}

// startFollower serves replicas from the redis mirror. It holds no store and
// rejects commands.
func startFollower(ctx context.Context, g *errgroup.Group, cfg config, rc *redis.Client, e *echo.Echo, logger *log.Logger) *broadcast.Hub {
	relay := broadcast.NewRedisRelay(rc, cfg.relayChan, cfg.relayPrefix, logger)
	hub := broadcast.NewHub(relay, cfg.sessionBuffer, logger)
	g.Go(func() error {
		relay.Run(ctx, hub)
		return nil
	})
	api.Register(e, nil, relay, hub, logger)
	return hub
}

func openPersister(cfg config) (storage.Persister, error) {
	switch cfg.backend {
	case backendSQLite:
		return storage.OpenSQLite(cfg.sqlitePath)
	case backendTables:
		return storage.NewTableStore(cfg.storageConn, cfg.tasksTable)
	default:
		return nil, nil
	}
}
