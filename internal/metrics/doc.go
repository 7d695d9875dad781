// Package metrics provides Prometheus metrics for the live-update client.
//
// Key metrics:
//   - Dial attempts and failures per endpoint
//   - Failovers, exhaustion episodes and current connection state
//   - Outbound sends and drops
//   - Inbound frames, dispatches per message type and parse errors
package metrics
