package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/agehcx/hiking-app-sub000/internal/config"
	"github.com/agehcx/hiking-app-sub000/internal/db"
	"github.com/agehcx/hiking-app-sub000/internal/logger"
	"github.com/agehcx/hiking-app-sub000/internal/server"
	"github.com/agehcx/hiking-app-sub000/internal/storage"
	"github.com/agehcx/hiking-app-sub000/internal/stream"
	"github.com/agehcx/hiking-app-sub000/internal/vector"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const defaultShutdownGrace = 10 * time.Second

var mainDepsProvider = defaultDeps
var mainRunner = realMain
var exitFn = os.Exit

func main() {
	mainRunner(mainDepsProvider())
}

type mainDeps struct {
	loadConfig      func() (config.Config, error)
	newLogger       func(level string, development bool) (*zap.Logger, error)
	connectPostgres func(config.Config) (*pgxpool.Pool, error)
	migrate         func(context.Context, db.Querier) error
	connectRedis    func(config.Config) *redis.Client
	notify          func(chan<- os.Signal, ...os.Signal)
	run             func(context.Context, config.Config, Resources, <-chan os.Signal, ListenFunc) error
}

func defaultDeps() mainDeps {
	return mainDeps{
		loadConfig:      config.Load,
		newLogger:       logger.New,
		connectPostgres: db.ConnectPostgres,
		migrate:         db.Migrate,
		connectRedis:    db.ConnectRedis,
		notify:          signal.Notify,
		run:             Run,
	}
}

// Resources are the connections opened before the server starts. Run owns
// them from then on and closes them on shutdown.
type Resources struct {
	DB      server.Database
	CloseDB func()
	Redis   *redis.Client
	Log     *zap.Logger
}

func realMain(deps mainDeps) {
	cfg, cfgErr := deps.loadConfig()

	log, err := deps.newLogger(cfg.Log.Level, cfg.IsDevelopment())
	if err != nil {
		log = zap.NewNop()
	}
	defer func() { _ = log.Sync() }()

	if cfgErr != nil {
		log.Error("invalid configuration", zap.Error(cfgErr))
		exitFn(1)
		return
	}

	pg, err := deps.connectPostgres(cfg)
	if err != nil {
		log.Error("postgres connection failed", zap.Error(err))
		exitFn(1)
		return
	}
	if err := deps.migrate(context.Background(), pg); err != nil {
		log.Error("schema migration failed", zap.Error(err))
		pg.Close()
		exitFn(1)
		return
	}

	rdb := deps.connectRedis(cfg)

	signals := make(chan os.Signal, 1)
	deps.notify(signals, syscall.SIGINT, syscall.SIGTERM)

	res := Resources{DB: pg, CloseDB: pg.Close, Redis: rdb, Log: log}
	if err := deps.run(context.Background(), cfg, res, signals, nil); err != nil {
		log.Error("server exited with error", zap.Error(err))
		exitFn(1)
	}
}

type ListenFunc func(app *fiber.App, addr string) error

var defaultListen ListenFunc = func(app *fiber.App, addr string) error {
	return app.Listen(addr)
}

var shutdownFn = func(app *fiber.App, ctx context.Context) error {
	return app.ShutdownWithContext(ctx)
}

// Run starts the HTTP server and waits for termination signals.
func Run(ctx context.Context, cfg config.Config, res Resources, signals <-chan os.Signal, listen ListenFunc) error {
	log := res.Log
	defer res.close()

	photos, err := storage.NewLocal(cfg.Upload)
	if err != nil {
		return err
	}

	var hub *stream.Hub
	if cfg.Websocket.Enabled {
		hub, err = stream.NewHub(ctx, res.Redis, log)
		if err != nil {
			return err
		}
		defer func() { _ = hub.Close() }()
	}

	vec := vector.NewClient(cfg.Vector, cfg.Cache.APITimeout, log)
	if vec != nil {
		if err := vec.EnsureCollection(ctx); err != nil {
			log.Warn("vector database unavailable, continuing without it", zap.Error(err))
		}
	}

	srv := server.NewServer(cfg, server.Deps{
		DB:     res.DB,
		Redis:  res.Redis,
		Hub:    hub,
		Vector: vec,
		Photos: photos,
		Log:    log,
	})

	if listen == nil {
		listen = defaultListen
	}

	addr := ":" + cfg.Server.Port
	errCh := make(chan error, 1)
	go func() {
		errCh <- listen(srv.App, addr)
	}()
	log.Info("server listening", zap.String("addr", addr), zap.String("env", cfg.Server.Env))

	select {
	case <-signals:
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	grace := cfg.Server.ShutdownGrace
	if grace <= 0 {
		grace = defaultShutdownGrace
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()

	log.Info("shutting down", zap.Duration("grace", grace))
	return shutdownFn(srv.App, shutdownCtx)
}

func (r Resources) close() {
	if r.Redis != nil {
		_ = r.Redis.Close()
	}
	if r.CloseDB != nil {
		r.CloseDB()
	}
}
