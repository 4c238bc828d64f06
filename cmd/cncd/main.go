// Command cncd is the CNC control core daemon: it loads config.yaml,
// opens the event bus, tick scheduler and audit log, then serves the
// WebSocket client protocol and a Prometheus /metrics endpoint until a
// termination signal arrives.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cheton/cnc/internal/audit"
	"github.com/cheton/cnc/internal/auth"
	"github.com/cheton/cnc/internal/config"
	"github.com/cheton/cnc/internal/event"
	"github.com/cheton/cnc/internal/router"
	"github.com/cheton/cnc/internal/schedule"
	"github.com/cheton/cnc/internal/watchdir"
	"github.com/cheton/cnc/internal/wsapi"
)

const shutdownTimeout = 5 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	dir := os.Getenv("CNC_CONFIG_DIR")
	cfg, err := config.Load(dir)
	if err != nil {
		logger.Error("load config", "error", err)
		os.Exit(1)
	}

	auditLog, err := audit.Open(cfg.AuditLogPath)
	if err != nil {
		logger.Error("open audit log", "error", err)
		os.Exit(1)
	}
	defer auditLog.Close()

	bus := event.NewBus()
	sched := schedule.New(logger)

	rt := router.New(bus, sched, auditLog, cfg, logger)

	var gate *auth.Gate
	if cfg.JWTSecret != "" || len(cfg.AllowedIPs) > 0 || len(cfg.DeniedIPs) > 0 {
		gate, err = auth.New(cfg.JWTSecret, cfg.AllowedIPs, cfg.DeniedIPs, cfg.Users)
		if err != nil {
			logger.Error("build auth gate", "error", err)
			os.Exit(1)
		}
	}

	if cfg.WatchDir != "" {
		w, err := watchdir.New(cfg.WatchDir, func(names []string) {
			bus.Publish(event.Event{Type: event.ProgramList, Payload: names})
		}, logger)
		if err != nil {
			logger.Warn("watch program directory", "dir", cfg.WatchDir, "error", err)
		} else {
			rt.SetWatcher(w)
			go w.Start()
			defer w.Close()
		}
	}

	ws := wsapi.New(rt, gate, logger)

	config.Watch(func(next *config.Config, err error) {
		if err != nil {
			logger.Warn("config reload failed", "error", err)
			return
		}
		cfg = next
		bus.Publish(event.Event{Type: event.ConfigChange, Payload: next})
		logger.Info("config reloaded")
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go sched.Start(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", ws.ServeHTTP)
	server := &http.Server{Addr: cfg.ListenAddr, Handler: mux}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux}

	go func() {
		logger.Info("cncd listening", "addr", cfg.ListenAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("websocket server", "error", err)
		}
	}()
	go func() {
		logger.Info("metrics listening", "addr", cfg.MetricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server", "error", err)
		}
	}()

	waitForShutdown(logger, cancel, server, metricsServer, rt)
}

func waitForShutdown(logger *slog.Logger, cancel context.CancelFunc, server, metricsServer *http.Server, rt *router.Router) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutdown signal received, closing connections")
	cancel()

	for _, ident := range rt.Idents() {
		if err := rt.Close(ident); err != nil {
			logger.Warn("close connection during shutdown", "ident", ident, "error", err)
		}
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	server.Shutdown(shutdownCtx)
	metricsServer.Shutdown(shutdownCtx)

	logger.Info("cncd stopped")
}
