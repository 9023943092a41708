// Package agent implements the in-process Pulse attach server.
//
// The agent owns a unix-domain listening socket named after the
// hosting process id and serves exactly one attach client at a time.
// A single worker goroutine runs the whole accept → handshake →
// active-tick loop, so the shared buffers and component state are
// never touched concurrently. The control goroutine calling Start and
// Stop only signals and joins.
//
// Connection lifecycle:
//
//	Idle → Listening → Handshaking → Active → Listening (reconnect)
//	                                        ↘ Idle (Stop)
//
// Every connection-fatal condition (protocol violation, transport
// failure, heartbeat timeout, buffer overflow) funnels into the same
// recovery: close the socket, notify components, return to listening.
// Only an explicit Stop ends the worker.
package agent
