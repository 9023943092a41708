package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Protocol constants.
const (
	// HeaderSize is the size of the fixed message header in bytes.
	HeaderSize = 7

	// ProtocolVersion is the attach protocol version implemented by
	// this library. The handshake rejects any other value.
	ProtocolVersion uint32 = 1

	// HandshakeLength is the exact length of a handshake frame:
	// the header plus a u32 protocol version.
	HandshakeLength = HeaderSize + 4
)

// Header flags. Bit 0 carries the response indicator; the remaining
// bits are reserved request flags and are currently always zero.
const (
	FlagResponse byte = 0x01
	RequestFlags byte = 0x00
)

// Control subtypes, valid on component type ComponentServer.
const (
	SubHandshake  uint8 = 0
	SubPing       uint8 = 1
	SubReserved   uint8 = 2
	SubEnableBits uint8 = 3
)

// ComponentServer is the component type addressing the agent itself.
const ComponentServer uint8 = 0

// Handshake and enable-bits status bytes.
const (
	StatusOK         byte = 0
	StatusError      byte = 1
	StringTerminator byte = 0
)

// Framing errors.
var (
	// ErrFrameTooLarge indicates a declared frame length exceeding the
	// buffer capacity. The peer is not speaking this protocol version;
	// the connection must be torn down, not retried.
	ErrFrameTooLarge = errors.New("frame exceeds buffer capacity")

	// ErrInvalidLength indicates a declared frame length smaller than
	// the header itself.
	ErrInvalidLength = errors.New("frame length smaller than header")
)

// Header is the fixed-size message header preceding every frame.
type Header struct {
	// ID correlates requests and responses. Clients assign it on
	// requests; responses echo it back.
	ID uint16

	// Length is the total frame length in bytes, header included.
	Length uint16

	// Flags is a bitmask; bit 0 marks a response.
	Flags byte

	// ComponentType identifies the addressed component (0 = agent).
	ComponentType uint8

	// SubType is the message kind within the component.
	SubType uint8
}

// IsResponse reports whether the response flag bit is set.
func (h Header) IsResponse() bool {
	return h.Flags&FlagResponse != 0
}

// PayloadLen returns the declared payload length in bytes.
func (h Header) PayloadLen() int {
	return int(h.Length) - HeaderSize
}

// Response returns a copy of h with the response flag set.
func (h Header) Response() Header {
	h.Flags |= FlagResponse
	return h
}

// Validate checks the declared length against the header size and the
// given buffer capacity. A violation is connection-fatal.
func (h Header) Validate(capacity int) error {
	if int(h.Length) < HeaderSize {
		return fmt.Errorf("%w: %d", ErrInvalidLength, h.Length)
	}
	if int(h.Length) > capacity {
		return fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, h.Length, capacity)
	}
	return nil
}

// ParseHeader consumes a header from the buffer's read cursor.
// It returns false without touching the buffer when fewer than
// HeaderSize bytes are readable; callers that may need to re-read the
// frame later should Save the cursor first.
func ParseHeader(b *Buffer) (Header, bool) {
	if b.Readable() < HeaderSize {
		return Header{}, false
	}
	var h Header
	h.ID, _ = b.GetU16()
	h.Length, _ = b.GetU16()
	h.Flags, _ = b.GetU8()
	h.ComponentType, _ = b.GetU8()
	h.SubType, _ = b.GetU8()
	return h, true
}

// WriteTo appends the encoded header at the buffer's write cursor.
func (h Header) WriteTo(b *Buffer) error {
	var raw [HeaderSize]byte
	h.Encode(raw[:])
	return b.PutBytes(raw[:])
}

// Encode writes the header into p, which must hold at least HeaderSize
// bytes.
func (h Header) Encode(p []byte) {
	binary.LittleEndian.PutUint16(p[0:2], h.ID)
	binary.LittleEndian.PutUint16(p[2:4], h.Length)
	p[4] = h.Flags
	p[5] = h.ComponentType
	p[6] = h.SubType
}

// DecodeHeader parses a header from p, which must hold at least
// HeaderSize bytes.
func DecodeHeader(p []byte) (Header, error) {
	if len(p) < HeaderSize {
		return Header{}, ErrBufferUnderflow
	}
	return Header{
		ID:            binary.LittleEndian.Uint16(p[0:2]),
		Length:        binary.LittleEndian.Uint16(p[2:4]),
		Flags:         p[4],
		ComponentType: p[5],
		SubType:       p[6],
	}, nil
}
