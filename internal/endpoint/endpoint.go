// Package endpoint holds the ordered table of candidate WebSocket servers.
//
// The table is built once at startup and never changes. Index 0 is the
// highest priority endpoint and is always where a fresh failover cycle begins.
package endpoint

import (
	"errors"
	"fmt"
	"net/url"
)

// Errors
var (
	ErrEmpty      = errors.New("endpoint table is empty")
	ErrInvalidURL = errors.New("invalid endpoint url")
)

// Endpoint is a candidate server the connection manager may dial.
type Endpoint struct {
	URL      string
	Priority int // Index in the table, 0 = most preferred
}

// Table is an immutable, priority-ordered list of endpoints.
type Table struct {
	endpoints []Endpoint
}

// NewTable builds a table from URLs given in priority order.
// Every URL must use the ws or wss scheme and carry a host.
func NewTable(urls []string) (*Table, error) {
	if len(urls) == 0 {
		return nil, ErrEmpty
	}

	endpoints := make([]Endpoint, 0, len(urls))
	for i, raw := range urls {
		if err := checkURL(raw); err != nil {
			return nil, fmt.Errorf("endpoint %d: %w", i, err)
		}
		endpoints = append(endpoints, Endpoint{URL: raw, Priority: i})
	}

	return &Table{endpoints: endpoints}, nil
}

// Len returns the number of endpoints.
func (t *Table) Len() int {
	return len(t.endpoints)
}

// At returns the endpoint at index i.
func (t *Table) At(i int) (Endpoint, bool) {
	if i < 0 || i >= len(t.endpoints) {
		return Endpoint{}, false
	}
	return t.endpoints[i], true
}

// All returns a copy of every endpoint in priority order.
func (t *Table) All() []Endpoint {
	out := make([]Endpoint, len(t.endpoints))
	copy(out, t.endpoints)
	return out
}

// URLs returns the endpoint URLs in priority order.
func (t *Table) URLs() []string {
	out := make([]string, len(t.endpoints))
	for i, e := range t.endpoints {
		out[i] = e.URL
	}
	return out
}

func checkURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalidURL, raw, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("%w: %q: scheme must be ws or wss", ErrInvalidURL, raw)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: %q: missing host", ErrInvalidURL, raw)
	}
	return nil
}
