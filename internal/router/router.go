package router

import (
	"log/slog"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/pezkuwi/liveupdates/internal/metrics"
	"github.com/pezkuwi/liveupdates/internal/wire"
)

// Router maps message types to subscriber sets and delivers inbound messages.
type Router interface {
	Registry

	// Dispatch delivers env.Data to every subscriber of env.Type and
	// returns once all of them have run.
	Dispatch(env wire.Envelope)

	// DispatchRaw decodes one inbound frame and dispatches it.
	// Malformed frames are dropped.
	DispatchRaw(frame []byte)

	// Subscribers returns the number of handlers registered for t.
	Subscribers(t wire.MessageType) int

	// Stats returns current router statistics.
	Stats() RouterStats
}

// router is the internal implementation.
type router struct {
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu   sync.RWMutex
	subs map[wire.MessageType]map[Handler]struct{}

	received   atomic.Int64
	dispatched atomic.Int64
	unrouted   atomic.Int64
	parseErrs  atomic.Int64
	panics     atomic.Int64
}

// NewRouter creates a new Message Router with an empty subscription table.
// m may be nil.
func NewRouter(logger *slog.Logger, m *metrics.Metrics) Router {
	if logger == nil {
		logger = slog.Default()
	}

	return &router{
		logger:  logger,
		metrics: m,
		subs:    make(map[wire.MessageType]map[Handler]struct{}),
	}
}

// Subscribe adds h to the set for t.
func (r *router) Subscribe(t wire.MessageType, h Handler) error {
	if !t.Known() {
		return ErrUnknownType
	}
	if h == nil {
		return ErrNilHandler
	}
	if !reflect.TypeOf(h).Comparable() {
		return ErrHandlerNotComparable
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.subs[t]
	if !ok {
		set = make(map[Handler]struct{})
		r.subs[t] = set
	}
	set[h] = struct{}{}

	return nil
}

// Unsubscribe removes h from the set for t.
func (r *router) Unsubscribe(t wire.MessageType, h Handler) {
	if h == nil || !reflect.TypeOf(h).Comparable() {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.subs[t]
	if !ok {
		return
	}
	delete(set, h)
	if len(set) == 0 {
		delete(r.subs, t)
	}
}

// Subscribers returns the number of handlers registered for t.
func (r *router) Subscribers(t wire.MessageType) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs[t])
}

// DispatchRaw decodes and dispatches one frame.
func (r *router) DispatchRaw(frame []byte) {
	r.received.Add(1)
	r.metrics.FrameReceived()

	env, err := wire.Decode(frame)
	if err != nil {
		r.parseErrs.Add(1)
		r.metrics.ParseError()
		r.logger.Debug("dropping malformed message", "error", err, "size", len(frame))
		return
	}

	r.deliver(env)
}

// Dispatch delivers an already decoded envelope.
func (r *router) Dispatch(env wire.Envelope) {
	r.received.Add(1)
	r.metrics.FrameReceived()
	r.deliver(env)
}

func (r *router) deliver(env wire.Envelope) {
	kind, known := env.Kind()

	// Copy the set so handlers may (un)subscribe while being called.
	var handlers []Handler
	if known {
		r.mu.RLock()
		set := r.subs[kind]
		handlers = make([]Handler, 0, len(set))
		for h := range set {
			handlers = append(handlers, h)
		}
		r.mu.RUnlock()
	}

	if len(handlers) == 0 {
		r.unrouted.Add(1)
		r.metrics.Unrouted(env.Type, known)
		r.logger.Debug("no subscribers for message", "type", env.Type, "known", known)
		return
	}

	for _, h := range handlers {
		r.invoke(env, h, known)
	}

	r.dispatched.Add(1)
	r.metrics.Dispatched(env.Type, known)
}

// invoke runs one handler; a panic in one subscriber must not stop the others.
func (r *router) invoke(env wire.Envelope, h Handler, known bool) {
	defer func() {
		if rec := recover(); rec != nil {
			r.panics.Add(1)
			r.metrics.HandlerPanic(env.Type, known)
			r.logger.Error("subscriber panicked",
				"type", env.Type,
				"panic", rec,
			)
		}
	}()

	h.Handle(env.Data)
}

// Stats returns current statistics.
func (r *router) Stats() RouterStats {
	return RouterStats{
		MessagesReceived:   r.received.Load(),
		MessagesDispatched: r.dispatched.Load(),
		UnroutedMessages:   r.unrouted.Load(),
		ParseErrors:        r.parseErrs.Load(),
		HandlerPanics:      r.panics.Load(),
	}
}
