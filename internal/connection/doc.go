// Package connection implements the Connection Manager component.
//
// The Connection Manager:
//   - Keeps at most one WebSocket open, to the best reachable endpoint
//   - Retries a failing endpoint a few times, then fails over to the next
//   - Stops and notifies once when every endpoint has failed
//   - Restarts from the first endpoint on an explicit Reconnect
//   - Hands every inbound frame to the Message Router
//
// All state transitions run on a single goroutine; transport and timer
// callbacks only post events to it.
package connection
