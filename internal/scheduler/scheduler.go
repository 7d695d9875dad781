// Package scheduler decides what the connection manager does after a
// transport failure: retry the same endpoint, fail over to the next one,
// or give up.
//
// Decide is a pure function of its inputs so the failover policy can be
// tested without a socket.
package scheduler

import "time"

// Default policy values.
const (
	DefaultMaxAttempts   = 3
	DefaultRetryDelay    = 2 * time.Second
	DefaultFailoverDelay = 0
)

// Action is the kind of decision.
type Action int

const (
	RetrySame Action = iota
	Advance
	Exhausted
)

// String returns the action name.
func (a Action) String() string {
	switch a {
	case RetrySame:
		return "retry_same"
	case Advance:
		return "advance"
	case Exhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// Decision tells the manager which endpoint to dial next and when.
type Decision struct {
	Action   Action
	Endpoint int           // Endpoint index to dial (unused for Exhausted)
	Delay    time.Duration // Wait before dialing
}

// Policy configures the retry/failover decision.
type Policy struct {
	MaxAttempts   int           // Consecutive failures tolerated per endpoint
	RetryDelay    time.Duration // Wait before retrying the same endpoint
	FailoverDelay time.Duration // Wait before dialing the next endpoint
}

// DefaultPolicy returns three attempts per endpoint, 2s apart.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:   DefaultMaxAttempts,
		RetryDelay:    DefaultRetryDelay,
		FailoverDelay: DefaultFailoverDelay,
	}
}

// Decide returns the next step given the number of consecutive failures on
// the endpoint at index, counting the failure that just happened.
func (p Policy) Decide(attempts, index, count int) Decision {
	if index < 0 || index >= count {
		return Decision{Action: Exhausted, Endpoint: count}
	}

	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	if attempts < maxAttempts {
		return Decision{Action: RetrySame, Endpoint: index, Delay: p.RetryDelay}
	}

	next := index + 1
	if next >= count {
		return Decision{Action: Exhausted, Endpoint: next}
	}

	return Decision{Action: Advance, Endpoint: next, Delay: p.FailoverDelay}
}
