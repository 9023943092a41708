package component

import (
	"time"

	"github.com/pulse-protocol/pulse-go/pkg/wire"
)

// MaxComponents bounds the valid component id range [0, MaxComponents).
const MaxComponents = 16

// ServerComponentID is reserved for the agent's own control component.
const ServerComponentID uint8 = 0

// Signal is the result of a component's Receive or Update call.
type Signal int

const (
	// SignalDone indicates the component has no pending work.
	SignalDone Signal = iota

	// SignalMoreData indicates the component has backlog left and the
	// whole update pass should repeat within the same tick.
	SignalMoreData

	// SignalReconnect indicates a fatal per-connection condition; the
	// agent must close the connection and return to listening.
	SignalReconnect
)

// String returns the signal name.
func (s Signal) String() string {
	switch s {
	case SignalDone:
		return "DONE"
	case SignalMoreData:
		return "MORE_DATA"
	case SignalReconnect:
		return "RECONNECT"
	default:
		return "UNKNOWN"
	}
}

// Component is a capability provider registered with the agent.
// All methods are invoked only from the agent's worker goroutine, so
// implementations need no internal locking for state touched solely
// through this interface.
type Component interface {
	// ID returns the component's unique identifier. It must be
	// constant for the lifetime of the component.
	ID() uint8

	// Configure applies an enable-bits flag byte and returns a status
	// string for the client, or "" when there is nothing to report.
	Configure(flags byte) string

	// OnConnect is called once after a client session becomes active.
	OnConnect()

	// OnDisconnect is called once when the session ends, before the
	// agent returns to listening.
	OnDisconnect()

	// Receive offers an inbound frame. The input buffer is positioned
	// at the start of the frame payload; the component may append at
	// most one reply frame to out. Components ignore frames whose
	// header does not address them.
	Receive(now time.Time, h wire.Header, in, out *wire.Buffer) (Signal, error)

	// Update runs one periodic pass. The component may append zero or
	// more frames to out and reports whether backlog remains.
	Update(now time.Time, out *wire.Buffer) (Signal, error)
}
