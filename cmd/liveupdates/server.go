package main

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/bytedance/sonic"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pezkuwi/liveupdates/internal/config"
	"github.com/pezkuwi/liveupdates/internal/connection"
	"github.com/pezkuwi/liveupdates/internal/router"
	"github.com/pezkuwi/liveupdates/internal/version"
)

// newLogger builds the process logger. Unknown levels fall back to info;
// the config validator rejects them before this point.
func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

type healthResponse struct {
	Status     string             `json:"status"`
	Version    string             `json:"version"`
	Connection connectionHealth   `json:"connection"`
	Router     router.RouterStats `json:"router"`
}

type connectionHealth struct {
	State    string `json:"state"`
	Endpoint string `json:"endpoint,omitempty"`
	Attempts int    `json:"attempts"`
}

// newHTTPHandler serves Prometheus metrics at metricsPath and connection
// health at /health.
func newHTTPHandler(metricsPath string, reg *prometheus.Registry, mgr connection.Manager, rtr router.Router) http.Handler {
	mux := http.NewServeMux()

	mux.Handle(metricsPath, promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		st := mgr.State()

		health := healthResponse{
			Version: version.Version,
			Connection: connectionHealth{
				State:    st.Phase.String(),
				Attempts: st.Attempts,
			},
			Router: rtr.Stats(),
		}
		if ep, ok := mgr.Endpoint(); ok {
			health.Connection.Endpoint = ep.URL
		}

		switch st.Phase {
		case connection.PhaseConnected:
			health.Status = "healthy"
		case connection.PhaseConnecting:
			health.Status = "degraded"
		default:
			health.Status = "unhealthy"
		}

		// Set response
		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		sonic.ConfigStd.NewEncoder(w).Encode(health)
	})

	return mux
}
