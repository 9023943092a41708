package log

import (
	"time"
)

// Event represents a protocol event captured by the agent or client.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// ConnectionID uniquely identifies the client session (UUID).
	ConnectionID string `cbor:"2,keyasint,omitempty"`

	// Direction indicates message flow for frame and heartbeat events.
	Direction Direction `cbor:"3,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"4,keyasint"`

	// SocketPath is the local socket the agent is serving on.
	SocketPath string `cbor:"5,keyasint,omitempty"`

	// Type-specific payload (exactly one is set).
	Frame       *FrameEvent       `cbor:"6,keyasint,omitempty"`
	Heartbeat   *HeartbeatEvent   `cbor:"7,keyasint,omitempty"`
	StateChange *StateChangeEvent `cbor:"8,keyasint,omitempty"`
	Component   *ComponentEvent   `cbor:"9,keyasint,omitempty"`
	Error       *ErrorEventData   `cbor:"10,keyasint,omitempty"`
}

// Direction indicates the direction of message flow.
type Direction uint8

const (
	// DirectionIn indicates an inbound message.
	DirectionIn Direction = 0
	// DirectionOut indicates an outbound message.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryFrame indicates a protocol frame crossing the transport.
	CategoryFrame Category = 0
	// CategoryHeartbeat indicates ping/pong liveness activity.
	CategoryHeartbeat Category = 1
	// CategoryState indicates a server or session state change.
	CategoryState Category = 2
	// CategoryComponent indicates component lifecycle or configuration.
	CategoryComponent Category = 3
	// CategoryError indicates an error event.
	CategoryError Category = 4
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryFrame:
		return "FRAME"
	case CategoryHeartbeat:
		return "HEARTBEAT"
	case CategoryState:
		return "STATE"
	case CategoryComponent:
		return "COMPONENT"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// FrameEvent captures one frame at the framing layer.
type FrameEvent struct {
	// Size is the frame size in bytes, header included.
	Size int `cbor:"1,keyasint"`

	// MessageID is the correlation id from the header.
	MessageID uint16 `cbor:"2,keyasint"`

	// Flags is the raw header flags byte.
	Flags byte `cbor:"3,keyasint"`

	// ComponentType is the addressed component.
	ComponentType uint8 `cbor:"4,keyasint"`

	// SubType is the message kind within the component.
	SubType uint8 `cbor:"5,keyasint"`
}

// HeartbeatEvent captures ping/pong liveness activity.
type HeartbeatEvent struct {
	// Kind of heartbeat activity.
	Kind HeartbeatKind `cbor:"1,keyasint"`

	// Seq is the heartbeat sequence number involved.
	Seq uint16 `cbor:"2,keyasint"`
}

// HeartbeatKind indicates the kind of heartbeat activity.
type HeartbeatKind uint8

const (
	// HeartbeatPing indicates an emitted ping request.
	HeartbeatPing HeartbeatKind = 0
	// HeartbeatPong indicates a received ping acknowledgment.
	HeartbeatPong HeartbeatKind = 1
	// HeartbeatTimeout indicates a liveness timeout.
	HeartbeatTimeout HeartbeatKind = 2
)

// String returns the heartbeat kind name.
func (k HeartbeatKind) String() string {
	switch k {
	case HeartbeatPing:
		return "PING"
	case HeartbeatPong:
		return "PONG"
	case HeartbeatTimeout:
		return "TIMEOUT"
	default:
		return "UNKNOWN"
	}
}

// StateChangeEvent captures server and session lifecycle transitions.
type StateChangeEvent struct {
	// OldState is the previous state (may be empty).
	OldState string `cbor:"1,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"2,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"3,keyasint,omitempty"`
}

// ComponentEvent captures component lifecycle and configuration.
type ComponentEvent struct {
	// ID is the component identifier.
	ID uint8 `cbor:"1,keyasint"`

	// Action describes what happened (connect, disconnect, configure).
	Action string `cbor:"2,keyasint"`

	// Detail carries action-specific information.
	Detail string `cbor:"3,keyasint,omitempty"`
}

// ErrorEventData captures errors at any layer.
type ErrorEventData struct {
	// Message is the error message.
	Message string `cbor:"1,keyasint"`

	// Context describes what operation was being performed.
	Context string `cbor:"2,keyasint,omitempty"`
}
