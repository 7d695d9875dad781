package connection

import (
	"log/slog"

	"github.com/pezkuwi/liveupdates/internal/endpoint"
)

// Notifier is the user-facing notification layer (toasts in the dashboard).
//
// Within one failover cycle the manager calls Connected at most once, on the
// first successful connection, and Exhausted at most once. A cycle starts at
// Start and at every Reconnect. Both methods run on the manager's event
// goroutine and must not block.
type Notifier interface {
	Connected(ep endpoint.Endpoint)
	Exhausted(tried int)
}

// LogNotifier reports notifications through slog.
type LogNotifier struct {
	Logger *slog.Logger
}

// Connected logs that live updates are enabled.
func (n LogNotifier) Connected(ep endpoint.Endpoint) {
	n.logger().Info("real-time updates enabled", "endpoint", ep.URL, "priority", ep.Priority)
}

// Exhausted logs that live updates are unavailable.
func (n LogNotifier) Exhausted(tried int) {
	n.logger().Error("real-time connection unavailable, live updates disabled", "endpoints_tried", tried)
}

func (n LogNotifier) logger() *slog.Logger {
	if n.Logger == nil {
		return slog.Default()
	}
	return n.Logger
}
