// Package client implements the attach side of the Pulse protocol:
// the external tooling process that connects to an agent's socket,
// performs the version handshake, and exchanges frames with the
// agent's components.
//
// A Client serves exactly one session. When the agent recycles the
// connection (heartbeat timeout, protocol violation, process restart),
// attach again — Backoff paces the retry loop.
package client
