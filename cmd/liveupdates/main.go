// liveupdates keeps a WebSocket open to the best reachable live-updates
// endpoint, logs every inbound message and serves /metrics and /health.
// Usage: go run ./cmd/liveupdates --config configs/liveupdates.example.yaml
//
// Without --config the built-in endpoint list and defaults are used.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bytedance/sonic"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/pezkuwi/liveupdates/internal/config"
	"github.com/pezkuwi/liveupdates/internal/connection"
	"github.com/pezkuwi/liveupdates/internal/endpoint"
	"github.com/pezkuwi/liveupdates/internal/metrics"
	"github.com/pezkuwi/liveupdates/internal/router"
	"github.com/pezkuwi/liveupdates/internal/scheduler"
	"github.com/pezkuwi/liveupdates/internal/version"
	"github.com/pezkuwi/liveupdates/internal/wire"
)

func main() {
	configPath := flag.String("config", "", "path to config file (defaults built in when empty)")
	sendType := flag.String("send", "", "message type to publish once connected")
	sendData := flag.String("data", "{}", "JSON payload for --send")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.LoadAndValidate(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
			os.Exit(1)
		}
	}

	// Set up structured logging
	logger := newLogger(cfg.Log, os.Stdout)
	slog.SetDefault(logger)

	logger.Info("starting liveupdates",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
		"endpoints", len(cfg.Endpoints),
	)

	var outgoing *wire.Envelope
	if *sendType != "" {
		env, err := outgoingEnvelope(*sendType, *sendData)
		if err != nil {
			logger.Error("invalid --send message", "type", *sendType, "error", err)
			os.Exit(1)
		}
		outgoing = &env
	}

	if err := run(cfg, outgoing, logger); err != nil {
		logger.Error("liveupdates failed", "error", err)
		os.Exit(1)
	}

	logger.Info("liveupdates stopped")
}

func run(cfg *config.Config, outgoing *wire.Envelope, logger *slog.Logger) error {
	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	mt, err := metrics.New(reg)
	if err != nil {
		return err
	}

	table, err := endpoint.NewTable(cfg.Endpoints)
	if err != nil {
		return fmt.Errorf("build endpoint table: %w", err)
	}

	rtr := router.NewRouter(logger, mt)

	logMessages := router.Func(func(data json.RawMessage) {
		logger.Info("message received", "size", len(data), "data", string(data))
	})
	for _, t := range wire.KnownTypes() {
		if err := rtr.Subscribe(t, logMessages); err != nil {
			return fmt.Errorf("subscribe %s: %w", t, err)
		}
	}

	connected := make(chan struct{}, 1)
	notifier := &signalNotifier{
		Notifier: connection.LogNotifier{Logger: logger},
		ready:    connected,
	}

	mgr := connection.NewManager(managerConfig(cfg), table, rtr, logger,
		connection.WithNotifier(notifier),
		connection.WithMetrics(mt),
	)

	g, gctx := errgroup.WithContext(ctx)

	// Connection Manager lifecycle
	g.Go(func() error {
		if err := mgr.Start(gctx); err != nil {
			return fmt.Errorf("start connection manager: %w", err)
		}
		<-gctx.Done()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return mgr.Stop(shutdownCtx)
	})

	// One-shot publish once connected
	if outgoing != nil {
		g.Go(func() error {
			select {
			case <-connected:
				logger.Info("publishing message", "type", outgoing.Type)
				mgr.SendMessage(*outgoing)
			case <-gctx.Done():
			}
			return nil
		})
	}

	if cfg.Metrics.IsEnabled() {
		server := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Metrics.Port),
			Handler:           newHTTPHandler(cfg.Metrics.Path, reg, mgr, rtr),
			ReadHeaderTimeout: 5 * time.Second,
		}

		g.Go(func() error {
			logger.Info("starting http server",
				"port", cfg.Metrics.Port,
				"metrics_path", cfg.Metrics.Path,
			)
			if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})

		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}

// outgoingEnvelope builds the --send message. The type must be one of the
// declared message types and data must be valid JSON.
func outgoingEnvelope(tag, data string) (wire.Envelope, error) {
	kind, ok := wire.ParseType(tag)
	if !ok {
		return wire.Envelope{}, fmt.Errorf("unknown message type %q", tag)
	}
	if !sonic.Valid([]byte(data)) {
		return wire.Envelope{}, fmt.Errorf("data is not valid JSON: %s", data)
	}
	return wire.Envelope{Type: kind.String(), Data: json.RawMessage(data)}, nil
}

// managerConfig maps the file configuration onto the Connection Manager's.
func managerConfig(cfg *config.Config) connection.ManagerConfig {
	mc := connection.DefaultManagerConfig()
	mc.Policy = scheduler.Policy{
		MaxAttempts:   cfg.Reconnect.MaxAttempts,
		RetryDelay:    cfg.Reconnect.RetryDelay,
		FailoverDelay: cfg.Reconnect.FailoverDelay,
	}
	mc.Client.HandshakeTimeout = cfg.Transport.HandshakeTimeout
	mc.Client.WriteTimeout = cfg.Transport.WriteTimeout
	mc.Client.PingInterval = cfg.Transport.PingInterval
	mc.Client.PongTimeout = cfg.Transport.PongTimeout
	mc.Client.ReadLimit = cfg.Transport.ReadLimit
	mc.Client.BufferSize = cfg.Transport.BufferSize
	return mc
}

// signalNotifier forwards notifications and signals the first connection.
type signalNotifier struct {
	connection.Notifier
	ready chan struct{}
}

func (n *signalNotifier) Connected(ep endpoint.Endpoint) {
	n.Notifier.Connected(ep)
	select {
	case n.ready <- struct{}{}:
	default:
	}
}
