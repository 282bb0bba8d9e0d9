package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/wilsonzlin/aero/proxy/webrtc-pairing/internal/config"
	"github.com/wilsonzlin/aero/proxy/webrtc-pairing/internal/httpserver"
	"github.com/wilsonzlin/aero/proxy/webrtc-pairing/internal/metrics"
	"github.com/wilsonzlin/aero/proxy/webrtc-pairing/internal/relay"
	"github.com/wilsonzlin/aero/proxy/webrtc-pairing/internal/signaling"
)

var (
	// Set via -ldflags at build time. Values may be empty in local/dev builds.
	buildCommit = ""
	buildTime   = ""
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger, err := config.NewLogger(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	slog.SetDefault(logger)

	logger.Info("starting aero-webrtc-pairing",
		"listen_addr", cfg.ListenAddr,
		"mode", cfg.Mode,
		"allowed_origins", cfg.AllowedOrigins,
		"max_participants", cfg.MaxParticipants,
		"ice_servers", len(cfg.ICEServers),
		"max_signaling_message_bytes", cfg.MaxSignalingMessageBytes,
		"max_signaling_messages_per_second", cfg.MaxSignalingMessagesPerSecond,
	)

	logStartupSecurityWarnings(logger, cfg)

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		logger.Error("failed to listen", "err", err)
		os.Exit(1)
	}

	commit, builtAt := resolveBuildInfo(buildCommit, buildTime)
	app := newApp(cfg, logger, httpserver.BuildInfo{Commit: commit, BuildTime: builtAt})

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.http.Serve(ln)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		app.signaling.Close()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server exited", "err", err)
			os.Exit(1)
		}
		return
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	// Hijacked WebSocket connections are not tracked by http.Server, so close
	// them explicitly before waiting on plain HTTP requests.
	app.signaling.Close()
	if err := app.http.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", "err", err)
	}

	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server exited after shutdown", "err", err)
		os.Exit(1)
	}

	stats := app.coord.Stats()
	logger.Info("shutdown complete",
		"connected", stats.Connected,
		"queued", stats.Queued,
		"sessions", stats.Sessions,
	)
}

type app struct {
	http      *httpserver.Server
	signaling *signaling.Server
	coord     *relay.Coordinator
	metrics   *metrics.Metrics
}

// newApp builds the coordinator, the /signal WebSocket surface and the HTTP
// server around them.
func newApp(cfg config.Config, logger *slog.Logger, build httpserver.BuildInfo) *app {
	m := metrics.New()
	coord := relay.NewCoordinator(relay.Config{
		MaxParticipants: cfg.MaxParticipants,
		Logger:          logger,
		Metrics:         m,
	})

	srv := httpserver.New(cfg, logger, build)
	sig := signaling.NewServer(signaling.Config{
		Coordinator: coord,
		Logger:      logger,
		Metrics:     m,

		DefaultDisplayName:   cfg.DefaultDisplayName,
		MaxDisplayNameLength: cfg.MaxDisplayNameLength,
		MaxChatMessageLength: cfg.MaxChatMessageLength,

		MaxSignalingMessageBytes:      cfg.MaxSignalingMessageBytes,
		MaxSignalingMessagesPerSecond: cfg.MaxSignalingMessagesPerSecond,
		SignalingWSIdleTimeout:        cfg.SignalingWSIdleTimeout,
		SignalingWSPingInterval:       cfg.SignalingWSPingInterval,
		SendQueueBytes:                cfg.SignalingSendQueueBytes,
	})
	sig.RegisterRoutes(srv.Mux())

	// Expose internal counters and live participant gauges in Prometheus' text format.
	srv.Mux().Handle("GET /metrics", metrics.PrometheusHandler(m, coord.Gauges))

	return &app{http: srv, signaling: sig, coord: coord, metrics: m}
}

func resolveBuildInfo(commit, buildTime string) (string, string) {
	// Prefer ldflags-injected values (production builds) but fall back to the Go
	// build info when available (useful for `go run` / dev builds).
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				if commit == "" {
					commit = s.Value
				}
			case "vcs.time":
				if buildTime == "" {
					buildTime = s.Value
				}
			}
		}
	}

	return commit, buildTime
}
