package router

import (
	"encoding/json"
	"errors"

	"github.com/pezkuwi/liveupdates/internal/wire"
)

// Errors
var (
	ErrNilHandler           = errors.New("nil handler")
	ErrHandlerNotComparable = errors.New("handler type is not comparable")
	ErrUnknownType          = errors.New("unknown message type")
)

// Handler receives the payload of every message of the type it subscribed to.
//
// Handlers are stored in a set keyed by identity, so implementations must be
// comparable. Pointer receivers are the usual choice.
type Handler interface {
	Handle(data json.RawMessage)
}

// HandlerFunc adapts a plain function to Handler. Use Func to create one;
// the pointer is what gives the function a stable identity for Unsubscribe.
type HandlerFunc struct {
	fn func(json.RawMessage)
}

// Func wraps fn as a Handler.
func Func(fn func(json.RawMessage)) *HandlerFunc {
	return &HandlerFunc{fn: fn}
}

// Handle calls the wrapped function.
func (h *HandlerFunc) Handle(data json.RawMessage) {
	h.fn(data)
}

// Registry is the subscribe/unsubscribe surface used by application code.
// Subscribers own their registrations and must remove them when done.
type Registry interface {
	// Subscribe adds h to the subscribers of t. Subscribing the same
	// handler twice is a no-op. The zero MessageType is rejected.
	Subscribe(t wire.MessageType, h Handler) error

	// Unsubscribe removes h from the subscribers of t. Removing a handler
	// that is not subscribed is a no-op.
	Unsubscribe(t wire.MessageType, h Handler)
}

// RouterStats contains runtime statistics.
type RouterStats struct {
	MessagesReceived   int64 `json:"messages_received"`
	MessagesDispatched int64 `json:"messages_dispatched"`
	UnroutedMessages   int64 `json:"unrouted_messages"`
	ParseErrors        int64 `json:"parse_errors"`
	HandlerPanics      int64 `json:"handler_panics"`
}
