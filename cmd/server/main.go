package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"restream-orchestrator/internal/datastore"
	"restream-orchestrator/internal/mediaserver"
	"restream-orchestrator/internal/orchestrator"
	"restream-orchestrator/internal/platform/config"
	"restream-orchestrator/internal/platform/logger"
	"restream-orchestrator/internal/platform/metrics"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"
)

const (
	shutdownTimeout = 10 * time.Second
	startupTimeout  = 15 * time.Second
)

func main() {
	_ = config.Load()

	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	startCtx, cancelStart := context.WithTimeout(context.Background(), startupTimeout)
	defer cancelStart()

	var (
		gateway datastore.Gateway
		checks  []func(context.Context) error
	)
	if cfg.DatabaseURL != "" {
		pg, err := datastore.ConnectPostgres(startCtx, datastore.PostgresConfig{
			DSN:             cfg.DatabaseURL,
			ApplicationName: "restream-orchestrator",
		})
		if err != nil {
			log.Error("postgres connect failed", "error", err)
			os.Exit(1)
		}
		defer pg.Close()
		if err := pg.EnsureSchema(startCtx); err != nil {
			log.Error("postgres schema failed", "error", err)
			os.Exit(1)
		}
		gateway = pg
		checks = append(checks, pg.Ping)
	} else {
		gateway = datastore.NewMemoryGateway(datastore.MediaServer{
			ID:          1,
			Name:        "static",
			Host:        cfg.Server.Host,
			APIPort:     cfg.Media.APIPort,
			APIUser:     cfg.Media.APIUser,
			APIPassword: cfg.Server.Password,
			Application: cfg.Media.Application,
			Limit:       cfg.Server.Limit,
			Status:      datastore.ServerActive,
		})
	}

	var store orchestrator.SessionStore = orchestrator.NewInMemorySessionStore()
	if cfg.RedisURL != "" {
		client, err := orchestrator.ConnectRedis(startCtx, cfg.RedisURL)
		if err != nil {
			log.Error("redis connect failed", "error", err)
			os.Exit(1)
		}
		defer client.Close()
		rs := orchestrator.NewRedisSessionStore(client, cfg.RedisKeyPrefix, cfg.RedisSessionTTL)
		store = rs
		checks = append(checks, rs.Ping)
	}

	factory := mediaserver.NewFactory(mediaserver.Config{
		Scheme:    cfg.Media.Scheme,
		Port:      cfg.Media.APIPort,
		Username:  cfg.Media.APIUser,
		Auth:      mediaserver.AuthMode(cfg.Media.Auth),
		Timeout:   cfg.Media.RequestTimeout,
		RateLimit: rate.Limit(cfg.Media.RateLimit),
		Burst:     cfg.Media.RateBurst,
	}, log)

	met := metrics.New()
	svc := orchestrator.NewService(orchestrator.Deps{
		Gateway: gateway,
		Store:   store,
		Clients: func(s datastore.MediaServer) (orchestrator.ControlClient, error) {
			c, err := factory.Client(s.Host, s.APIPort, s.APIUser, s.APIPassword)
			if err != nil {
				return nil, err
			}
			return c, nil
		},
		Logger:  log,
		Metrics: met,
	}, orchestrator.Config{
		Application:       cfg.Media.Application,
		StreamingPort:     cfg.Media.StreamingPort,
		LoadThreshold:     cfg.LoadThreshold,
		FanoutTimeout:     cfg.Fanout.Timeout,
		FanoutConcurrency: cfg.Fanout.Concurrency,
		BindingCacheSize:  cfg.BindingCacheSize,
	})
	h := orchestrator.NewHandler(svc, log)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met))
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		met.Handler(func() { met.SetActiveSessions(svc.ActiveSessionCount(r.Context())) }).ServeHTTP(w, r)
	})
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		for _, check := range checks {
			if err := check(r.Context()); err != nil {
				log.Warn("health check failed", "error", err)
				http.Error(w, "unhealthy", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	h.Routes(r)

	addr := ":" + cfg.Port
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("server starting",
		"port", cfg.Port,
		"postgres", cfg.DatabaseURL != "",
		"redis", cfg.RedisURL != "",
		slog.String("application", cfg.Media.Application),
		"log_level", cfg.LogLevel,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, draining connections")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	log.Info("server stopped")
}
