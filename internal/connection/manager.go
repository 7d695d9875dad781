package connection

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/pezkuwi/liveupdates/internal/endpoint"
	"github.com/pezkuwi/liveupdates/internal/metrics"
	"github.com/pezkuwi/liveupdates/internal/router"
	"github.com/pezkuwi/liveupdates/internal/scheduler"
	"github.com/pezkuwi/liveupdates/internal/wire"
)

// Manager keeps one live WebSocket open to the best reachable endpoint and
// feeds inbound messages to the Message Router.
type Manager interface {
	// Start begins connecting to the first endpoint.
	Start(ctx context.Context) error

	// Stop closes the transport and stops all retries.
	Stop(ctx context.Context) error

	// IsConnected reports whether a transport is currently open.
	IsConnected() bool

	// SendMessage writes env if connected and drops it otherwise.
	SendMessage(env wire.Envelope)

	// Reconnect closes any live transport and restarts the failover
	// cycle at the first endpoint. It only queues the request: the restart
	// happens asynchronously on the manager goroutine, so State may still
	// report the old connection when Reconnect returns.
	Reconnect()

	// Subscribe and Unsubscribe manage consumers of inbound messages.
	router.Registry

	// State returns a snapshot of the state machine.
	State() State

	// Endpoint returns the endpoint currently used or dialed.
	Endpoint() (endpoint.Endpoint, bool)
}

// Option customizes a Manager.
type Option func(*manager)

// WithClock sets the clock used for retry delays.
func WithClock(c clock.Clock) Option {
	return func(m *manager) { m.clock = c }
}

// WithNotifier sets the user-facing notification layer.
func WithNotifier(n Notifier) Option {
	return func(m *manager) { m.notifier = n }
}

// WithClientFactory sets how clients are built for each dial attempt.
func WithClientFactory(f ClientFactory) Option {
	return func(m *manager) { m.newClient = f }
}

// WithMetrics sets the metrics sink.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *manager) { m.metrics = mt }
}

type eventKind int

const (
	evOpened eventKind = iota // dial succeeded
	evFailed                  // dial failed or open transport died
	evFrame                   // inbound frame
	evRetry                   // retry timer fired
)

// event is posted to the run goroutine. gen ties it to the dial attempt
// (or retry timer) that produced it; events from older generations are
// discarded.
type event struct {
	kind   eventKind
	gen    uint64
	index  int
	client Client
	data   []byte
	err    error
}

// session is one open transport.
type session struct {
	id     uuid.UUID
	gen    uint64
	index  int
	client Client
	stop   chan struct{}
}

// manager implements the Manager interface.
type manager struct {
	cfg       ManagerConfig
	table     *endpoint.Table
	router    router.Router
	logger    *slog.Logger
	clock     clock.Clock
	notifier  Notifier
	newClient ClientFactory
	metrics   *metrics.Metrics

	events    chan event
	reconnect chan struct{}

	lifeMu  sync.Mutex
	started bool
	stopped bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Owned by the run goroutine.
	st        State
	gen       uint64
	timer     *clock.Timer
	waiting   bool // a retry is scheduled and no dial is in flight
	announced bool // Connected notified in this failover cycle

	// The open session, shared with SendMessage.
	sessMu  sync.Mutex
	session *session

	snapshot atomic.Pointer[State]
}

// NewManager creates a new Connection Manager. Nothing is dialed until Start.
func NewManager(cfg ManagerConfig, table *endpoint.Table, rtr router.Router, logger *slog.Logger, opts ...Option) Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.EventBufferSize < 1 {
		cfg.EventBufferSize = DefaultManagerConfig().EventBufferSize
	}

	m := &manager{
		cfg:       cfg,
		table:     table,
		router:    rtr,
		logger:    logger,
		clock:     clock.New(),
		newClient: NewClient,
		events:    make(chan event, cfg.EventBufferSize),
		reconnect: make(chan struct{}, 1),
	}
	m.notifier = LogNotifier{Logger: logger}

	for _, opt := range opts {
		opt(m)
	}

	m.publish()
	return m
}

// Start begins the connection manager.
func (m *manager) Start(ctx context.Context) error {
	m.lifeMu.Lock()
	defer m.lifeMu.Unlock()

	if m.stopped {
		return ErrStopped
	}
	if m.started {
		return ErrAlreadyStarted
	}
	m.started = true

	m.ctx, m.cancel = context.WithCancel(ctx)

	m.wg.Add(1)
	go m.run()

	m.logger.Info("connection manager started",
		"endpoints", m.table.Len(),
		"max_attempts", m.cfg.Policy.MaxAttempts,
		"retry_delay", m.cfg.Policy.RetryDelay,
	)

	return nil
}

// Stop gracefully shuts down.
func (m *manager) Stop(ctx context.Context) error {
	m.lifeMu.Lock()
	if !m.started || m.stopped {
		m.stopped = true
		m.lifeMu.Unlock()
		return nil
	}
	m.stopped = true
	m.lifeMu.Unlock()

	m.logger.Info("stopping connection manager")
	m.cancel()

	// Wait for goroutines with timeout
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		m.logger.Warn("shutdown timeout, forcing close")
	}

	m.logger.Info("connection manager stopped")
	return nil
}

// IsConnected returns true while a transport is open.
func (m *manager) IsConnected() bool {
	return m.snapshot.Load().Connected
}

// State returns the latest state snapshot.
func (m *manager) State() State {
	return *m.snapshot.Load()
}

// Endpoint returns the endpoint currently used or dialed.
func (m *manager) Endpoint() (endpoint.Endpoint, bool) {
	st := m.snapshot.Load()
	if st.Phase != PhaseConnecting && st.Phase != PhaseConnected {
		return endpoint.Endpoint{}, false
	}
	return m.table.At(st.EndpointIndex)
}

// Subscribe registers h for messages of type t.
func (m *manager) Subscribe(t wire.MessageType, h router.Handler) error {
	return m.router.Subscribe(t, h)
}

// Unsubscribe removes h from messages of type t.
func (m *manager) Unsubscribe(t wire.MessageType, h router.Handler) {
	m.router.Unsubscribe(t, h)
}

// Reconnect requests a fresh failover cycle and returns without waiting
// for it. The run goroutine performs the restart. Repeated calls before it
// picks up the first one collapse into a single restart.
func (m *manager) Reconnect() {
	select {
	case m.reconnect <- struct{}{}:
	default:
	}
}

// SendMessage writes env to the open transport. Delivery is best effort:
// when no transport is open the message is dropped.
func (m *manager) SendMessage(env wire.Envelope) {
	m.sessMu.Lock()
	s := m.session
	m.sessMu.Unlock()

	if s == nil {
		m.metrics.SendDropped(metrics.DropNotConnected)
		m.logger.Warn("websocket not connected, dropping message", "type", env.Type)
		return
	}

	if env.Timestamp == 0 {
		env.Timestamp = m.clock.Now().UnixMilli()
	}

	data, err := wire.Encode(env)
	if err != nil {
		m.metrics.SendDropped(metrics.DropEncode)
		m.logger.Warn("failed to encode message, dropping", "type", env.Type, "error", err)
		return
	}

	if err := s.client.Send(data); err != nil {
		m.metrics.SendDropped(metrics.DropWrite)
		m.logger.Warn("failed to send message, dropping",
			"type", env.Type,
			"session", s.id,
			"error", err,
		)
		return
	}

	m.metrics.Sent()
}

// run is the only goroutine that mutates connection state.
func (m *manager) run() {
	defer m.wg.Done()

	// A Reconnect before Start would only repeat the initial dial.
	select {
	case <-m.reconnect:
	default:
	}

	m.connect(0)

	for {
		select {
		case <-m.ctx.Done():
			m.shutdown()
			return
		case <-m.reconnect:
			m.restart()
		case ev := <-m.events:
			m.handle(ev)
		}
	}
}

func (m *manager) handle(ev event) {
	if ev.gen != m.gen {
		if ev.client != nil {
			ev.client.Close()
		}
		m.logger.Debug("ignoring stale event", "kind", ev.kind, "gen", ev.gen, "current", m.gen)
		return
	}

	switch ev.kind {
	case evOpened:
		m.opened(ev)
	case evFailed:
		m.failed(ev.err)
	case evFrame:
		m.router.DispatchRaw(ev.data)
	case evRetry:
		if m.waiting {
			m.connect(ev.index)
		}
	}
}

// connect dials the endpoint at index, or exhausts if there is none.
func (m *manager) connect(index int) {
	m.timer = nil
	m.waiting = false

	ep, ok := m.table.At(index)
	if !ok {
		m.exhaust()
		return
	}

	m.gen++
	gen := m.gen

	m.st.Phase = PhaseConnecting
	m.st.Connected = false
	m.st.EndpointIndex = index
	m.publish()

	m.metrics.DialAttempt(ep.URL, index)
	m.logger.Info("attempting websocket connection",
		"endpoint", ep.URL,
		"attempt", m.st.Attempts+1,
	)

	cfg := m.cfg.Client
	cfg.URL = ep.URL
	c := m.newClient(cfg, m.logger.With("endpoint", ep.URL))

	m.wg.Add(1)
	go m.dial(gen, index, c)
}

// dial runs the blocking handshake off the run goroutine.
func (m *manager) dial(gen uint64, index int, c Client) {
	defer m.wg.Done()

	ev := event{kind: evOpened, gen: gen, index: index, client: c}
	if err := c.Connect(m.ctx); err != nil {
		ev = event{kind: evFailed, gen: gen, index: index, err: err}
	}

	if !m.post(ev) || m.ctx.Err() != nil {
		// Shutting down; shutdown may already have drained the queue.
		c.Close()
	}
}

func (m *manager) opened(ev event) {
	ep, _ := m.table.At(ev.index)

	s := &session{
		id:     uuid.New(),
		gen:    ev.gen,
		index:  ev.index,
		client: ev.client,
		stop:   make(chan struct{}),
	}

	m.sessMu.Lock()
	m.session = s
	m.sessMu.Unlock()

	m.st.Phase = PhaseConnected
	m.st.Connected = true
	m.st.Attempts = 0
	m.st.SurfacedFinalFailure = false
	m.publish()

	m.metrics.Connected()
	m.logger.Info("websocket connected", "endpoint", ep.URL, "session", s.id)

	m.wg.Add(1)
	go m.pump(s)

	if !m.announced {
		m.announced = true
		m.notifier.Connected(ep)
	}
}

func (m *manager) failed(err error) {
	if m.waiting || (m.st.Phase != PhaseConnecting && m.st.Phase != PhaseConnected) {
		return
	}

	index := m.st.EndpointIndex
	ep, _ := m.table.At(index)
	wasConnected := m.st.Phase == PhaseConnected

	m.closeSession()
	m.metrics.TransportFailure(ep.URL)

	m.st.Connected = false
	m.st.Attempts++

	d := m.cfg.Policy.Decide(m.st.Attempts, index, m.table.Len())

	msg := "websocket connection failed"
	if wasConnected {
		msg = "websocket disconnected"
	}
	m.logger.Warn(msg,
		"endpoint", ep.URL,
		"attempt", m.st.Attempts,
		"next", d.Action,
		"error", err,
	)

	switch d.Action {
	case scheduler.RetrySame:
		m.st.Phase = PhaseConnecting
		m.schedule(d.Delay, index)

	case scheduler.Advance:
		m.metrics.Failover()
		m.st.Attempts = 0
		m.st.Phase = PhaseConnecting
		m.st.EndpointIndex = d.Endpoint
		m.schedule(d.Delay, d.Endpoint)

	case scheduler.Exhausted:
		m.exhaust()
	}
}

// schedule dials index after delay. The timer only posts an event; the
// dial itself happens on the run goroutine. The state is published once
// the timer is armed.
func (m *manager) schedule(delay time.Duration, index int) {
	m.stopTimer()

	if delay <= 0 {
		m.connect(index)
		return
	}

	gen := m.gen
	m.waiting = true
	m.timer = m.clock.AfterFunc(delay, func() {
		m.post(event{kind: evRetry, gen: gen, index: index})
	})
	m.publish()
}

func (m *manager) exhaust() {
	m.stopTimer()
	m.closeSession()
	m.gen++

	m.st.Phase = PhaseExhausted
	m.st.Connected = false
	m.st.EndpointIndex = m.table.Len()
	m.st.Attempts = 0

	m.metrics.Exhausted()
	m.logger.Error("all websocket endpoints failed", "endpoints", m.table.Len())

	if !m.st.SurfacedFinalFailure {
		m.st.SurfacedFinalFailure = true
		m.notifier.Exhausted(m.table.Len())
	}

	m.publish()
}

// restart begins a new failover cycle at endpoint 0.
func (m *manager) restart() {
	m.logger.Info("reconnect requested", "state", m.st.String())

	m.stopTimer()
	m.closeSession()
	m.metrics.Disconnected()

	m.st = State{Phase: PhaseConnecting}
	m.announced = false

	// connect bumps gen, which retires any in-flight dial or timer.
	m.connect(0)
}

func (m *manager) shutdown() {
	m.stopTimer()
	m.closeSession()
	m.gen++

	m.st.Phase = PhaseDisconnected
	m.st.Connected = false
	m.publish()
	m.metrics.Disconnected()

	for {
		select {
		case ev := <-m.events:
			if ev.client != nil {
				ev.client.Close()
			}
		default:
			return
		}
	}
}

func (m *manager) stopTimer() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.waiting = false
}

func (m *manager) closeSession() {
	m.sessMu.Lock()
	s := m.session
	m.session = nil
	m.sessMu.Unlock()

	if s == nil {
		return
	}

	close(s.stop)
	s.client.Close()
	m.logger.Debug("session closed", "session", s.id)
}

// pump forwards one session's frames and its terminal error to the run goroutine.
func (m *manager) pump(s *session) {
	defer m.wg.Done()

	for {
		select {
		case <-s.stop:
			return
		case <-m.ctx.Done():
			return
		case msg := <-s.client.Messages():
			if !m.post(event{kind: evFrame, gen: s.gen, data: msg.Data}) {
				return
			}
		case err := <-s.client.Errors():
			m.drain(s)
			m.post(event{kind: evFailed, gen: s.gen, index: s.index, err: err})
			return
		}
	}
}

// drain forwards frames that arrived before the session died.
func (m *manager) drain(s *session) {
	for {
		select {
		case msg := <-s.client.Messages():
			if !m.post(event{kind: evFrame, gen: s.gen, data: msg.Data}) {
				return
			}
		default:
			return
		}
	}
}

func (m *manager) post(ev event) bool {
	select {
	case m.events <- ev:
		return true
	case <-m.ctx.Done():
		return false
	}
}

func (m *manager) publish() {
	st := m.st
	m.snapshot.Store(&st)
}
