package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/park285/netchess/internal/api"
	"github.com/park285/netchess/internal/config"
	"github.com/park285/netchess/internal/events"
	"github.com/park285/netchess/internal/match"
	"github.com/park285/netchess/internal/msgcat"
	"github.com/park285/netchess/internal/obslog"
	"github.com/park285/netchess/internal/registry"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	logger := obslog.L()
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config_error", zap.Error(err))
	}
	messages, err := msgcat.New(cfg.MessagesDir)
	if err != nil {
		logger.Fatal("messages_error", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hub := events.NewHub(events.DefaultBuffer)
	observers := []match.Observer{hub}
	var source events.Source = hub
	var (
		bus  *events.RedisBus
		live *events.LiveIndex
	)
	if cfg.RedisURL != "" {
		rdb, err := events.Connect(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal("redis_connect_error", zap.Error(err))
		}
		defer func() { _ = rdb.Close() }()
		bus = events.NewRedisBus(rdb, 0)
		live = events.NewLiveIndex(rdb, 0)
		observers = append(observers, bus, live)
		source = bus
		logger.Info("redis_enabled")
	}

	reg := registry.New(registry.Options{
		DefaultClockSeconds: cfg.DefaultClockSeconds,
		EmptyGrace:          cfg.EmptyGrace,
		IdleTimeout:         cfg.IdleTimeout,
		DrawOfferTTL:        cfg.DrawOfferTTL,
		TickInterval:        time.Second,
	}, registry.Hooks{
		Removed: func(id string) {
			hub.CloseMatch(id)
			if bus != nil {
				bus.CloseMatch(id)
			}
			if live != nil {
				live.Forget(id)
			}
			logger.Info("match_removed", zap.String("match_id", id))
		},
	}, observers...)

	janitorCtx, stopJanitor := context.WithCancel(ctx)
	reg.RunJanitor(janitorCtx, cfg.SweepInterval)

	srv := &api.Server{
		Registry:       reg,
		Events:         source,
		Live:           live,
		Messages:       messages,
		AllowedOrigins: cfg.AllowedOrigins,
	}
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	failed := false
	select {
	case <-ctx.Done():
		logger.Info("shutdown_signal")
	case err := <-errCh:
		if err != nil {
			logger.Error("http_server_error", zap.Error(err))
			failed = true
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http_shutdown_error", zap.Error(err))
	}
	stopJanitor()
	reg.Close()
	if bus != nil {
		bus.Close()
	}
	if live != nil {
		live.Close()
	}
	logger.Info("stopped")
	if failed {
		_ = logger.Sync()
		os.Exit(1)
	}
}
