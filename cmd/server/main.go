package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/oro-os/backend/api"
	"github.com/oro-os/backend/internal/assistant"
	"github.com/oro-os/backend/internal/config"
	"github.com/oro-os/backend/internal/db"
	"github.com/oro-os/backend/internal/logger"
	"github.com/oro-os/backend/internal/ratelimit"
	"github.com/oro-os/backend/internal/repository"
	"github.com/oro-os/backend/internal/session"
	"github.com/oro-os/backend/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	var hubOpts []ws.HubOption
	deps := api.Deps{
		Logger:         log,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RateLimit:      cfg.Assistant.RateLimit,
	}

	// Connection audit log
	var sqlDB *sql.DB
	if cfg.Database.Path != "" {
		sqlDB, err = db.InitDB(cfg.Database.Path)
		if err != nil {
			log.Error("failed to initialize database", "path", cfg.Database.Path, "error", err)
			os.Exit(1)
		}
		repo := repository.NewParticipantRepository(sqlDB)
		hubOpts = append(hubOpts, ws.WithRecorder(repo))
		deps.Audit = repo
		log.Info("connection audit enabled", "path", cfg.Database.Path)
	}

	// Assistant rate limiting
	var rdb *redis.Client
	if cfg.Redis.Addr != "" && cfg.Assistant.RateLimit > 0 {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			log.Warn("redis not reachable, assistant rate limiting will fail open", "addr", cfg.Redis.Addr, "error", err)
		}
		deps.Limiter = ratelimit.NewRedisLimiter(rdb, cfg.Assistant.RateLimit, cfg.Assistant.RateWindow, "oro:assistant:")
	}

	// Assistant
	var generator assistant.Generator
	if cfg.Assistant.URL != "" {
		generator = assistant.NewHTTPGenerator(cfg.Assistant.URL, cfg.Assistant.Model, cfg.Assistant.Timeout)
	}
	deps.Assistant = assistant.New(generator, log)

	// Collaboration hub
	hub := ws.NewHub(session.NewRegistry(), log, hubOpts...)
	deps.WS = ws.NewHandler(hub, ws.Config{
		WriteWait:      cfg.Hub.WriteWait,
		PongWait:       cfg.Hub.PongWait,
		MaxMessageSize: cfg.Hub.MaxMessageSize,
		SendBuffer:     cfg.Hub.SendBuffer,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	}, log)

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      api.NewRouter(deps),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info("starting server", "addr", srv.Addr, "environment", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	operations := map[string]gfshutdown.Operation{
		// Hijacked WebSocket connections outlive srv.Shutdown, so the hub
		// closes them, then the audit log is closed behind it.
		"collaboration-server": func(ctx context.Context) error {
			log.Info("shutting down server")
			err := srv.Shutdown(ctx)
			hub.Close()
			return errors.Join(err, db.CloseDB(sqlDB))
		},
	}
	if rdb != nil {
		operations["redis"] = func(ctx context.Context) error {
			return rdb.Close()
		}
	}

	wait := gfshutdown.GracefulShutdown(context.Background(), cfg.Server.ShutdownTimeout, operations)

	exitCode := <-wait
	log.Info("server exited", "code", exitCode)
	os.Exit(exitCode)
}
