package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/campuslink/presence/internal/config"
	"github.com/campuslink/presence/internal/eventbus"
	"github.com/campuslink/presence/internal/httpapi"
	"github.com/campuslink/presence/internal/logging"
	"github.com/campuslink/presence/pkg/errors"
	"github.com/campuslink/presence/pkg/presence"
	"github.com/campuslink/presence/pkg/store"
	"github.com/campuslink/presence/pkg/transport/websocket"
)

func main() {
	configPath := flag.String("config", "", "path to config file (json or yaml)")
	flag.Parse()

	cfg, err := config.Load(config.LoadOptions{Path: *configPath})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Logging)

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *logging.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	statusStore, err := store.Open(ctx, cfg.Store, logger)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer statusStore.Close()

	// Clear flags left behind by a previous crash before accepting anyone.
	affected, err := statusStore.MarkAllOffline(ctx)
	if err != nil {
		logger.Error("failed to reconcile stale online flags", "error", err)
	} else if affected > 0 {
		logger.Info("reconciled stale online flags", "count", affected)
	}

	bus := eventbus.NewInMemoryBus(256)
	bus.Start(ctx)
	defer bus.Stop()

	// Presence transitions are the integration point for the rest of the
	// system; keep an audit trail of them.
	bus.SubscribeAll(func(event *eventbus.Event) {
		logger.Debug("event", "type", event.Type, "source", event.Source, "metadata", event.Metadata)
	})

	hub := presence.NewHub(statusStore, logger, bus, presence.Options{
		HeartbeatInterval: cfg.Heartbeat.Interval,
		HeartbeatTimeout:  cfg.Heartbeat.Timeout,
		StoreTimeout:      cfg.Store.WriteTimeout,
		SendTimeout:       cfg.Server.WriteTimeout,
	})
	if err := hub.Start(ctx); err != nil {
		return fmt.Errorf("failed to start hub: %w", err)
	}

	wsServer := websocket.NewServer(
		websocket.WithHub(hub),
		websocket.WithLogger(logger),
	)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      httpapi.NewRouter(hub, wsServer, logger),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errHandler := errors.NewDefaultHandler(logger.Logger)

	errChan := make(chan error, 1)
	go func() {
		logger.Info("presence server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		wrapped := errors.Wrap(err, errors.ErrorTypeTransport, "LISTEN_FAILED", "http server failed")
		errHandler.Handle(ctx, wrapped)
		return wrapped
	case sig := <-quit:
		logger.Info("shutting down", "signal", sig.String())
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Close the live connections first; their upgrade handlers hold the
	// http server open until the hub lets them go.
	if err := hub.Stop(); err != nil {
		logger.Error("hub stop error", "error", err)
	}

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown error", "error", err)
	}

	logger.Info("server exited")
	return nil
}
