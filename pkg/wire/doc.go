// Package wire implements the binary framing layer of the Pulse
// attach protocol.
//
// Every frame starts with a fixed 7-byte little-endian header:
//
//	┌──────────┬──────────────┬────────────┬───────────────────┬─────────────┐
//	│ id (u16) │ length (u16) │ flags (u8) │ componentType(u8) │ subType(u8) │
//	└──────────┴──────────────┴────────────┴───────────────────┴─────────────┘
//
// The payload follows immediately; length counts the header and the
// payload together. Component type 0 is reserved for the agent's own
// control traffic (handshake, ping, enable-bits).
//
// The package also provides Buffer, a fixed-capacity byte region with
// explicit read/write cursors. Buffers are never reallocated; a frame
// that does not fit its buffer is a protocol violation, not a resize.
package wire
