package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mapwatch/mapwatch/internal/alert"
	"github.com/mapwatch/mapwatch/internal/api"
	"github.com/mapwatch/mapwatch/internal/classify"
	"github.com/mapwatch/mapwatch/internal/config"
	"github.com/mapwatch/mapwatch/internal/history"
	"github.com/mapwatch/mapwatch/internal/monitor"
	"github.com/mapwatch/mapwatch/internal/probe"
	"github.com/mapwatch/mapwatch/internal/session"
	"github.com/mapwatch/mapwatch/internal/snapshot"
	"github.com/mapwatch/mapwatch/internal/state"
	"github.com/mapwatch/mapwatch/internal/ws"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	once := flag.Bool("once", false, "run a single check cycle and exit")
	logLevel := flag.String("log-level", "info", "log level: debug | info | warn | error")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(*logLevel)}))
	slog.SetDefault(logger)

	slog.Info("mapwatch starting", "config", *configPath)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	slog.Info("config loaded",
		"entities", len(cfg.Entities),
		"interval", cfg.Monitor.Interval,
		"http_port", cfg.Web.Port,
		"email", cfg.Alerts.Email.Enabled(),
		"webhooks", len(cfg.Alerts.Webhooks),
		"history", cfg.History.Backend,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, *configPath, *once); err != nil {
		slog.Error("mapwatch failed", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, configPath string, once bool) error {
	classifier := classify.New(cfg.Monitor.ErrorColor, cfg.Monitor.NormalColor)

	// One authenticated session is shared by all map probes. Metrics-only
	// deployments never touch the dashboard.
	var gw *session.Gateway
	if needsSession(cfg.Entities) {
		var err error
		gw, err = session.New(cfg.Dashboard)
		if err != nil {
			return err
		}
		defer gw.Close()

		if err := gw.Login(ctx); err != nil {
			if errors.Is(err, session.ErrAuth) {
				return fmt.Errorf("dashboard login rejected, check credentials: %w", err)
			}
			return fmt.Errorf("dashboard login: %w", err)
		}
		slog.Info("dashboard session established", "base_url", cfg.Dashboard.BaseURL)
	}

	targets, err := buildTargets(cfg, gw, classifier)
	if err != nil {
		return err
	}
	for _, t := range targets {
		slog.Info("watching entity", "id", t.ID, "name", t.Name)
	}

	sink := buildSink(cfg.Alerts)

	var hist *history.Store
	if cfg.History.Enabled() {
		hist, err = history.Open(cfg.History)
		if err != nil {
			return err
		}
		defer hist.Close()
		slog.Info("alert history enabled", "backend", cfg.History.Backend)
	}

	states := state.New()
	snaps := snapshot.New(cfg.Web.SnapshotTTL)

	var recorder monitor.Recorder // nil interface when history is disabled
	if hist != nil {
		recorder = hist
	}
	loop := monitor.New(targets, states, snaps, sink, recorder, cfg.Monitor.Interval)

	if once {
		loop.RunOnce(ctx)
		return nil
	}

	go snaps.Run(ctx)

	hub := ws.New(snaps, 5*time.Second)
	go hub.Run(ctx)

	mux := http.NewServeMux()
	mux.Handle("/api/", api.New(snaps, histReader(hist)))
	mux.Handle("/ws/stream", hub)

	httpSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Web.Port),
		Handler: mux,
	}
	go func() {
		slog.Info("HTTP server listening", "port", cfg.Web.Port)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server stopped", "err", err)
		}
	}()

	// Config changes are logged but applied only on restart: entities and
	// credentials are bound at startup.
	go func() {
		if err := config.Watch(ctx, configPath, func(*config.Config) {
			slog.Warn("config changed on disk, restart to apply")
		}); err != nil {
			slog.Error("config watch failed", "err", err)
		}
	}()

	loop.Run(ctx)

	slog.Info("mapwatch shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	httpSrv.Shutdown(shutdownCtx) //nolint:errcheck
	return nil
}

func needsSession(entities []config.Entity) bool {
	for _, e := range entities {
		if e.Probe == "" || e.Probe == "map" {
			return true
		}
	}
	return false
}

func buildTargets(cfg *config.Config, gw *session.Gateway, cls *classify.Classifier) ([]monitor.Target, error) {
	targets := make([]monitor.Target, 0, len(cfg.Entities))
	for _, e := range cfg.Entities {
		obs, err := probe.New(e, gw, cls)
		if err != nil {
			return nil, fmt.Errorf("entity %q: %w", e.ID, err)
		}

		url := e.Metrics.Endpoint
		if e.Probe == "" || e.Probe == "map" {
			url = gw.MapURL(e.MapID)
		}
		targets = append(targets, monitor.Target{
			ID:       e.ID,
			Name:     e.Name,
			URL:      url,
			Observer: obs,
		})
	}
	return targets, nil
}

func buildSink(cfg config.AlertsConfig) alert.Sink {
	var sinks []alert.Sink
	if cfg.Email.Enabled() {
		sinks = append(sinks, alert.NewEmailSink(cfg.Email))
	} else {
		slog.Warn("email alerts disabled, no smtp host configured")
	}
	for _, wh := range cfg.Webhooks {
		sinks = append(sinks, alert.NewWebhookSink(wh))
	}
	if len(sinks) == 0 {
		slog.Warn("no alert channels configured, alerts will only be logged")
		return alert.Nop{}
	}
	return alert.NewRouter(sinks...)
}

// histReader avoids handing api a non-nil interface wrapping a nil *Store.
func histReader(hist *history.Store) api.HistoryReader {
	if hist == nil {
		return nil
	}
	return hist
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
