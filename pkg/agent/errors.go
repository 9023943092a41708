package agent

import "errors"

// Agent errors.
var (
	// ErrHeartbeatTimeout indicates the client failed to acknowledge a
	// ping within the timeout window. Connection-fatal.
	ErrHeartbeatTimeout = errors.New("heartbeat timed out")

	// ErrAgentRunning indicates an operation that requires a stopped
	// agent, such as registering a component.
	ErrAgentRunning = errors.New("agent is running")

	// ErrProtocolViolation wraps malformed-frame and handshake
	// failures. Connection-fatal, never worker-fatal.
	ErrProtocolViolation = errors.New("protocol violation")

	// ErrTransportFailure wraps I/O errors on the client socket.
	ErrTransportFailure = errors.New("transport failure")
)
