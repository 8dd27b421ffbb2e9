package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/coldsnap-io/coldsnap/internal/api"
	"github.com/coldsnap-io/coldsnap/internal/auth"
	"github.com/coldsnap-io/coldsnap/internal/config"
	"github.com/coldsnap-io/coldsnap/internal/engine"
	"github.com/coldsnap-io/coldsnap/internal/notify"
	"github.com/coldsnap-io/coldsnap/internal/readings"
	"github.com/coldsnap-io/coldsnap/internal/recent"
	"github.com/coldsnap-io/coldsnap/internal/store"
	"github.com/coldsnap-io/coldsnap/internal/ws"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	slog.Info("coldsnap starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	slog.Info("config loaded",
		"http_port", cfg.Server.HTTPPort,
		"check_interval", cfg.Server.CheckInterval,
		"auth_mode", cfg.Server.Auth.Mode,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Relational store: rules, readings, history.
	dbURL := cfg.Server.Database.URL()
	if dbURL == "" {
		slog.Error("database URL not set", "env", config.DefaultPostgresURLEnv)
		os.Exit(1)
	}
	st, err := store.New(ctx, dbURL)
	if err != nil {
		slog.Error("failed to connect to database", "err", err)
		os.Exit(1)
	}
	defer st.Close()
	if err := st.EnsureSchema(ctx); err != nil {
		slog.Error("failed to apply schema", "err", err)
		os.Exit(1)
	}

	// Optional Redis cache in front of the latest-reading query.
	var rdb *redis.Client
	if addr := cfg.Server.Redis.Addr; addr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: addr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			slog.Warn("redis unreachable — continuing without cache", "addr", addr, "err", err)
			rdb = nil
		}
	}
	src := readings.New(rdb, st)

	// Notification providers. The webhook provider is always available; push
	// and MQTT are enabled by configuration.
	dispatcher := notify.NewDispatcher()
	dispatcher.Register(notify.NewWebhookProvider())
	if cfg.Server.Push.BaseURL != "" {
		dispatcher.Register(notify.NewPushProvider(cfg.Server.Push.BaseURL, cfg.Server.Push.Token()))
	}
	if cfg.Server.MQTT.BrokerURL != "" {
		mp, err := notify.NewMQTTProvider(cfg.Server.MQTT.BrokerURL, cfg.Server.MQTT.ClientID, cfg.Server.MQTT.TopicPrefix)
		if err != nil {
			slog.Error("failed to connect to MQTT broker",
				"broker", cfg.Server.MQTT.BrokerURL, "err", err)
			os.Exit(1)
		}
		defer mp.Close()
		dispatcher.Register(mp)
	}
	slog.Info("providers registered", "providers", dispatcher.Names())

	// Recent-alert buffer with background eviction, feeding the live surfaces.
	buf := recent.New(cfg.Server.History.TTL, cfg.Server.History.Cap)
	go buf.Run(ctx)

	// Evaluation engine.
	eng := engine.New(cfg.Server.CheckInterval)
	if err := eng.Initialize(st, src, dispatcher, buf); err != nil {
		slog.Error("failed to initialize engine", "err", err)
		os.Exit(1)
	}
	if err := eng.Start(ctx); err != nil {
		slog.Error("failed to start engine", "err", err)
		os.Exit(1)
	}
	defer eng.Stop()

	// WebSocket hub — pushes status and recent alerts to clients.
	hub := ws.New(eng, buf, cfg.Server.BroadcastInterval)
	go hub.Run(ctx)

	// Hot reload: the check interval can change without a restart.
	go func() {
		if err := config.Watch(ctx, *configPath, func(s config.ServerConfig) {
			eng.SetInterval(s.CheckInterval)
		}); err != nil {
			slog.Error("config watcher stopped", "err", err)
		}
	}()

	// Combined HTTP server: REST API + WebSocket hub + metrics on HTTPPort.
	httpMux := http.NewServeMux()
	httpMux.Handle("/api/", api.New(st, eng, dispatcher))
	httpMux.Handle("/ws/stream", hub)
	httpMux.Handle("/metrics", promhttp.Handler())

	handler := auth.APIKeyMiddleware(
		cfg.Server.Auth.Mode,
		cfg.Server.Auth.EffectiveHeader(),
		cfg.Server.Auth.Key(),
		httpMux,
	)

	httpSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler: handler,
	}
	go func() {
		slog.Info("HTTP server listening", "port", cfg.Server.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server stopped", "err", err)
		}
	}()

	<-ctx.Done()
	slog.Info("coldsnap shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	httpSrv.Shutdown(shutdownCtx) //nolint:errcheck
}
