package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "liveupdates"

// Drop reasons for outbound messages.
const (
	DropNotConnected = "not_connected"
	DropEncode       = "encode"
	DropWrite        = "write"
)

// UnknownType is the label used for message types outside the known set,
// keeping label cardinality bounded.
const UnknownType = "unknown"

// Metrics holds every collector for the subsystem. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	dialAttempts    *prometheus.CounterVec
	dialFailures    *prometheus.CounterVec
	failovers       prometheus.Counter
	exhausted       prometheus.Counter
	connected       prometheus.Gauge
	currentEndpoint prometheus.Gauge
	sent            prometheus.Counter
	sendDropped     *prometheus.CounterVec

	framesReceived prometheus.Counter
	dispatched     *prometheus.CounterVec
	unrouted       *prometheus.CounterVec
	parseErrors    prometheus.Counter
	handlerPanics  *prometheus.CounterVec
}

func newCounterVec(subsystem, name, help string, labels []string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
		},
		labels,
	)
}

func newCounter(subsystem, name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	})
}

func newGauge(subsystem, name, help string) prometheus.Gauge {
	return prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	})
}

// New creates the collectors and registers them with reg.
// A nil registerer uses prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		dialAttempts:    newCounterVec("connection", "dial_attempts_total", "Dial attempts per endpoint", []string{"endpoint"}),
		dialFailures:    newCounterVec("connection", "dial_failures_total", "Transport failures per endpoint, including drops after open", []string{"endpoint"}),
		failovers:       newCounter("connection", "failovers_total", "Switches to the next endpoint after repeated failures"),
		exhausted:       newCounter("connection", "exhausted_total", "Failover cycles that ran out of endpoints"),
		connected:       newGauge("connection", "connected", "1 while a transport is open"),
		currentEndpoint: newGauge("connection", "endpoint_index", "Index of the endpoint currently used or dialed"),
		sent:            newCounter("connection", "messages_sent_total", "Outbound messages written to the transport"),
		sendDropped:     newCounterVec("connection", "messages_dropped_total", "Outbound messages dropped", []string{"reason"}),

		framesReceived: newCounter("router", "frames_received_total", "Inbound frames handed to the router"),
		dispatched:     newCounterVec("router", "messages_dispatched_total", "Messages delivered to at least one subscriber", []string{"type"}),
		unrouted:       newCounterVec("router", "messages_unrouted_total", "Messages with no subscribers", []string{"type"}),
		parseErrors:    newCounter("router", "parse_errors_total", "Inbound frames that failed to decode"),
		handlerPanics:  newCounterVec("router", "handler_panics_total", "Subscriber callbacks that panicked", []string{"type"}),
	}

	collectors := []prometheus.Collector{
		m.dialAttempts,
		m.dialFailures,
		m.failovers,
		m.exhausted,
		m.connected,
		m.currentEndpoint,
		m.sent,
		m.sendDropped,
		m.framesReceived,
		m.dispatched,
		m.unrouted,
		m.parseErrors,
		m.handlerPanics,
	}

	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}

	return m, nil
}

// DialAttempt records a dial to url.
func (m *Metrics) DialAttempt(url string, index int) {
	if m == nil {
		return
	}
	m.dialAttempts.WithLabelValues(url).Inc()
	m.currentEndpoint.Set(float64(index))
}

// TransportFailure records a failed dial or a dropped transport on url.
func (m *Metrics) TransportFailure(url string) {
	if m == nil {
		return
	}
	m.dialFailures.WithLabelValues(url).Inc()
	m.connected.Set(0)
}

// Connected records a transport opening.
func (m *Metrics) Connected() {
	if m == nil {
		return
	}
	m.connected.Set(1)
}

// Disconnected records the transport going away without a failure,
// e.g. on reconnect or shutdown.
func (m *Metrics) Disconnected() {
	if m == nil {
		return
	}
	m.connected.Set(0)
}

// Failover records a switch to the next endpoint.
func (m *Metrics) Failover() {
	if m == nil {
		return
	}
	m.failovers.Inc()
}

// Exhausted records a failover cycle running out of endpoints.
func (m *Metrics) Exhausted() {
	if m == nil {
		return
	}
	m.exhausted.Inc()
	m.connected.Set(0)
}

// Sent records an outbound message.
func (m *Metrics) Sent() {
	if m == nil {
		return
	}
	m.sent.Inc()
}

// SendDropped records an outbound message that was not written.
func (m *Metrics) SendDropped(reason string) {
	if m == nil {
		return
	}
	m.sendDropped.WithLabelValues(reason).Inc()
}

// FrameReceived records an inbound frame.
func (m *Metrics) FrameReceived() {
	if m == nil {
		return
	}
	m.framesReceived.Inc()
}

// Dispatched records a message delivered to subscribers.
func (m *Metrics) Dispatched(msgType string, known bool) {
	if m == nil {
		return
	}
	m.dispatched.WithLabelValues(typeLabel(msgType, known)).Inc()
}

// Unrouted records a message nobody subscribed to.
func (m *Metrics) Unrouted(msgType string, known bool) {
	if m == nil {
		return
	}
	m.unrouted.WithLabelValues(typeLabel(msgType, known)).Inc()
}

// ParseError records an inbound frame that could not be decoded.
func (m *Metrics) ParseError() {
	if m == nil {
		return
	}
	m.parseErrors.Inc()
}

// HandlerPanic records a subscriber callback that panicked.
func (m *Metrics) HandlerPanic(msgType string, known bool) {
	if m == nil {
		return
	}
	m.handlerPanics.WithLabelValues(typeLabel(msgType, known)).Inc()
}

func typeLabel(msgType string, known bool) string {
	if !known {
		return UnknownType
	}
	return msgType
}
