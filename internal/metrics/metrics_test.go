package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNew_RegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()

	m, err := New(reg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	m.DialAttempt("ws://a", 0)
	m.FrameReceived()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	if len(families) == 0 {
		t.Fatal("expected registered metric families")
	}
}

func TestNew_DoubleRegisterFails(t *testing.T) {
	reg := prometheus.NewRegistry()

	if _, err := New(reg); err != nil {
		t.Fatalf("first New failed: %v", err)
	}
	if _, err := New(reg); err == nil {
		t.Error("expected error registering the same collectors twice")
	}
}

func TestConnectionMetrics(t *testing.T) {
	m, err := New(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	m.DialAttempt("ws://a", 0)
	m.DialAttempt("ws://a", 0)
	m.TransportFailure("ws://a")
	m.DialAttempt("ws://b", 1)
	m.Failover()
	m.Connected()

	if got := testutil.ToFloat64(m.dialAttempts.WithLabelValues("ws://a")); got != 2 {
		t.Errorf("dial attempts for a = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.dialFailures.WithLabelValues("ws://a")); got != 1 {
		t.Errorf("dial failures for a = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.currentEndpoint); got != 1 {
		t.Errorf("endpoint index = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.connected); got != 1 {
		t.Errorf("connected = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.failovers); got != 1 {
		t.Errorf("failovers = %v, want 1", got)
	}

	m.Exhausted()
	if got := testutil.ToFloat64(m.connected); got != 0 {
		t.Errorf("connected after exhaustion = %v, want 0", got)
	}
	if got := testutil.ToFloat64(m.exhausted); got != 1 {
		t.Errorf("exhausted = %v, want 1", got)
	}
}

func TestSendMetrics(t *testing.T) {
	m, err := New(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	m.Sent()
	m.SendDropped(DropNotConnected)
	m.SendDropped(DropNotConnected)
	m.SendDropped(DropWrite)

	if got := testutil.ToFloat64(m.sent); got != 1 {
		t.Errorf("sent = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.sendDropped.WithLabelValues(DropNotConnected)); got != 2 {
		t.Errorf("dropped not_connected = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.sendDropped.WithLabelValues(DropWrite)); got != 1 {
		t.Errorf("dropped write = %v, want 1", got)
	}
}

func TestRouterMetrics_UnknownTypesCollapse(t *testing.T) {
	m, err := New(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	m.Dispatched("vote", true)
	m.Unrouted("spam-1", false)
	m.Unrouted("spam-2", false)
	m.HandlerPanic("vote", true)
	m.ParseError()

	if got := testutil.ToFloat64(m.dispatched.WithLabelValues("vote")); got != 1 {
		t.Errorf("dispatched vote = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.unrouted.WithLabelValues(UnknownType)); got != 2 {
		t.Errorf("unrouted unknown = %v, want 2", got)
	}
	if got := testutil.CollectAndCount(m.unrouted); got != 1 {
		t.Errorf("unrouted series = %d, want 1", got)
	}
	if got := testutil.ToFloat64(m.handlerPanics.WithLabelValues("vote")); got != 1 {
		t.Errorf("handler panics = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.parseErrors); got != 1 {
		t.Errorf("parse errors = %v, want 1", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics

	m.DialAttempt("ws://a", 0)
	m.TransportFailure("ws://a")
	m.Connected()
	m.Disconnected()
	m.Failover()
	m.Exhausted()
	m.Sent()
	m.SendDropped(DropEncode)
	m.FrameReceived()
	m.Dispatched("vote", true)
	m.Unrouted("vote", true)
	m.ParseError()
	m.HandlerPanic("vote", true)
}
