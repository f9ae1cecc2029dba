package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	_ "github.com/lib/pq"

	"github.com/mazeportal/maze-api/internal/anticheat"
	"github.com/mazeportal/maze-api/internal/bot"
	"github.com/mazeportal/maze-api/internal/database"
	apperrors "github.com/mazeportal/maze-api/internal/errors"
	"github.com/mazeportal/maze-api/internal/game"
	"github.com/mazeportal/maze-api/internal/health"
	"github.com/mazeportal/maze-api/internal/lifecycle"
	"github.com/mazeportal/maze-api/internal/maze"
	"github.com/mazeportal/maze-api/internal/ratelimit"
	"github.com/mazeportal/maze-api/internal/server"
	"github.com/mazeportal/maze-api/internal/store"
	"github.com/mazeportal/maze-api/pkg/config"
	"github.com/mazeportal/maze-api/pkg/graceful"
	"github.com/mazeportal/maze-api/pkg/logger"
	redisclient "github.com/mazeportal/maze-api/pkg/redis"
)

func main() {
	if err := run(); err != nil {
		slog.Error("maze api exited with error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, v, err := config.Load()
	if err != nil {
		return err
	}

	log := logger.New(*cfg)
	slog.SetDefault(log)
	config.Watch(v, log)

	log.Info("starting maze api",
		slog.String("env", cfg.AppEnv),
		slog.String("port", cfg.Server.Port))

	if cfg.Sentry.Enabled {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.Sentry.DSN,
			Environment: cfg.AppEnv,
		}); err != nil {
			return err
		}
		defer sentry.Flush(2 * time.Second)
	}

	db, err := sql.Open("postgres", cfg.DB.DSN())
	if err != nil {
		return err
	}
	defer closeQuietly(log, "database", db.Close)

	if err := apperrors.WithRetry(ctx, func() error {
		return db.PingContext(ctx)
	}); err != nil {
		return err
	}

	migrationsDir := cfg.DB.Migrations
	if migrationsDir == "" {
		migrationsDir = "migrations"
	}
	if err := database.NewMigrator(db, log).ApplyDir(ctx, migrationsDir); err != nil {
		return err
	}

	var (
		limiter ratelimit.Limiter
		rules   = ratelimit.NewRules(cfg.RateLimit)
		checker = health.NewChecker(log)
	)

	checker.AddCheck("database", health.NewDBChecker(db))

	if cfg.RateLimit.Enabled {
		rdb, err := redisclient.New(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer closeQuietly(log, "redis", rdb.Close)

		limiter = ratelimit.NewRedisLimiter(rdb.Client, log)
		checker.AddCheck("redis", health.NewRedisChecker(rdb.Client))
	}

	users := store.NewUserStore(db, log)
	mazes := store.NewMazeStore(db, log)
	policy := anticheat.NewPolicy(cfg.Game.BaseBlock, cfg.Game.MaxBlock, cfg.Game.TimePerMove)
	controller := game.NewController(users, mazes, maze.NewGenerator(nil), policy, log)

	shutdown := lifecycle.NewShutdown(log)

	if cfg.Telegram.BotEnabled {
		companion, err := bot.New(cfg.Telegram, users, log)
		if err != nil {
			return err
		}

		go companion.Start()
		checker.AddCheck("bot", health.NewBotChecker(companion.Telebot()))
		shutdown.Register("bot", func(context.Context) error {
			companion.Stop()
			return nil
		})
	}

	api := server.NewServer(
		controller,
		apperrors.NewHandler(log, cfg.Sentry.Enabled),
		checker,
		limiter,
		rules,
		log,
		cfg.Telegram.BotToken,
	)

	httpServer := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      api.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	srv := graceful.NewServer(log, httpServer, cfg.Server.ShutdownTimeout)
	serveErr := srv.ListenAndServe(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := shutdown.Execute(shutdownCtx); err != nil {
		log.Error("shutdown hooks failed", slog.Any("error", err))
	}

	return serveErr
}

func closeQuietly(log *slog.Logger, name string, fn func() error) {
	if err := fn(); err != nil {
		log.Error("close failed", slog.String("component", name), slog.Any("error", err))
	}
}
