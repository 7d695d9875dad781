package connection

import (
	"errors"
	"fmt"
	"time"

	"github.com/pezkuwi/liveupdates/internal/scheduler"
)

// Errors
var (
	ErrNotConnected    = errors.New("not connected")
	ErrStaleConnection = errors.New("connection stale (no pong)")
	ErrAlreadyClosed   = errors.New("already closed")
	ErrAlreadyStarted  = errors.New("manager already started")
	ErrStopped         = errors.New("manager stopped")
)

// TimestampedMessage wraps raw message data with receive timestamp.
type TimestampedMessage struct {
	Data       []byte    // Raw message bytes from WebSocket
	ReceivedAt time.Time // Local timestamp when ReadMessage() returned
}

// ClientConfig configures a WebSocket client.
type ClientConfig struct {
	URL              string        // WebSocket URL (e.g., wss://ws.pezkuwichain.io)
	HandshakeTimeout time.Duration // Max time for the opening handshake
	PingInterval     time.Duration // How often we ping the server
	PongTimeout      time.Duration // Max time without pong before considering connection stale
	WriteTimeout     time.Duration // Write deadline for sends
	ReadLimit        int64         // Max inbound frame size in bytes (0 = unlimited)
	BufferSize       int           // Message channel buffer size
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		HandshakeTimeout: 10 * time.Second,
		PingInterval:     30 * time.Second,
		PongTimeout:      60 * time.Second,
		WriteTimeout:     5 * time.Second,
		ReadLimit:        1 << 20,
		BufferSize:       256,
	}
}

// ManagerConfig configures the Connection Manager.
type ManagerConfig struct {
	Policy          scheduler.Policy // Retry/failover policy
	Client          ClientConfig     // Template for every client; URL is set per endpoint
	EventBufferSize int              // Buffer size for the manager's event queue
}

// DefaultManagerConfig returns sensible defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		Policy:          scheduler.DefaultPolicy(),
		Client:          DefaultClientConfig(),
		EventBufferSize: 1024,
	}
}

// Phase is the state of the Connection Manager's state machine.
type Phase int

const (
	PhaseDisconnected Phase = iota
	PhaseConnecting
	PhaseConnected
	PhaseExhausted
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case PhaseDisconnected:
		return "disconnected"
	case PhaseConnecting:
		return "connecting"
	case PhaseConnected:
		return "connected"
	case PhaseExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// State is a point-in-time snapshot of the Connection Manager.
type State struct {
	Phase                Phase
	Connected            bool
	EndpointIndex        int // Endpoint being dialed or used; len(endpoints) once exhausted
	Attempts             int // Consecutive failures on EndpointIndex
	SurfacedFinalFailure bool
}

// String formats the state as e.g. "connecting(1) attempts=2".
func (s State) String() string {
	switch s.Phase {
	case PhaseConnecting, PhaseConnected:
		return fmt.Sprintf("%s(%d) attempts=%d", s.Phase, s.EndpointIndex, s.Attempts)
	default:
		return s.Phase.String()
	}
}
