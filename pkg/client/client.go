package client

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/pulse-protocol/pulse-go/pkg/config"
	"github.com/pulse-protocol/pulse-go/pkg/wire"
)

// Client defaults.
const (
	// DefaultAttachTimeout bounds dialing and the handshake exchange.
	DefaultAttachTimeout = 5 * time.Second

	// DefaultMaxFrameSize matches the agent's output window.
	DefaultMaxFrameSize = 64 * 1024
)

// Client errors.
var (
	// ErrConnectionClosed indicates the client has been closed.
	ErrConnectionClosed = errors.New("connection closed")

	// ErrHandshakeRejected indicates the agent refused the protocol
	// version or handshake format.
	ErrHandshakeRejected = errors.New("handshake rejected")

	// ErrFrameTooLarge indicates an inbound frame exceeding the
	// configured maximum.
	ErrFrameTooLarge = errors.New("frame exceeds maximum size")
)

// Frame is one complete header+payload unit received from the agent.
type Frame struct {
	Header  wire.Header
	Payload []byte
}

// Config configures an attach client.
type Config struct {
	// AttachTimeout bounds dialing and the handshake (default 5s).
	AttachTimeout time.Duration

	// MaxFrameSize is the largest acceptable inbound frame (default 64KB).
	MaxFrameSize int
}

// Client is an attached session with a Pulse agent.
type Client struct {
	conn     net.Conn
	maxFrame int

	mu     sync.Mutex // serializes the protocol stream
	nextID uint16
	hdr    [wire.HeaderSize]byte

	closeCh   chan struct{}
	closeOnce sync.Once
}

// SocketPath returns the default agent socket path for a process id.
func SocketPath(pid int) string {
	cfg := config.Default()
	return cfg.SocketPath(pid)
}

// AttachPID attaches to the agent inside the given process, using the
// default socket naming scheme.
func AttachPID(pid int, cfg Config) (*Client, error) {
	return Attach(SocketPath(pid), cfg)
}

// Attach dials the agent socket and performs the version handshake.
// On success the session is active and the agent starts heartbeating.
func Attach(path string, cfg Config) (*Client, error) {
	if cfg.AttachTimeout == 0 {
		cfg.AttachTimeout = DefaultAttachTimeout
	}
	if cfg.MaxFrameSize == 0 {
		cfg.MaxFrameSize = DefaultMaxFrameSize
	}

	conn, err := net.DialTimeout("unix", path, cfg.AttachTimeout)
	if err != nil {
		return nil, fmt.Errorf("dial failed: %w", err)
	}

	c := &Client{
		conn:     conn,
		maxFrame: cfg.MaxFrameSize,
		closeCh:  make(chan struct{}),
	}
	if err := c.handshake(cfg.AttachTimeout); err != nil {
		conn.Close()
		return nil, err
	}
	return c, nil
}

// handshake sends the version frame and waits for the status reply.
func (c *Client) handshake(timeout time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	deadline := time.Now().Add(timeout)

	var frame [wire.HandshakeLength]byte
	h := wire.Header{
		ID:            c.allocID(),
		Length:        wire.HandshakeLength,
		Flags:         wire.RequestFlags,
		ComponentType: wire.ComponentServer,
		SubType:       wire.SubHandshake,
	}
	h.Encode(frame[:])
	binary.LittleEndian.PutUint32(frame[wire.HeaderSize:], wire.ProtocolVersion)

	c.conn.SetWriteDeadline(deadline)
	if _, err := c.conn.Write(frame[:]); err != nil {
		return fmt.Errorf("handshake write: %w", err)
	}

	resp, err := c.readFrameLocked(deadline)
	if err != nil {
		return fmt.Errorf("handshake read: %w", err)
	}
	if !resp.Header.IsResponse() || resp.Header.SubType != wire.SubHandshake || len(resp.Payload) != 1 {
		return fmt.Errorf("%w: malformed response", ErrHandshakeRejected)
	}
	if resp.Payload[0] != wire.StatusOK {
		return fmt.Errorf("%w: agent protocol version differs", ErrHandshakeRejected)
	}
	return nil
}

// allocID hands out correlation ids for request frames.
// Callers must hold mu.
func (c *Client) allocID() uint16 {
	id := c.nextID
	c.nextID++
	return id
}

// ReadFrame reads the next frame from the agent, waiting at most
// timeout (0 means no deadline). Callers are responsible for answering
// agent pings when reading raw frames; see Pump.
func (c *Client) ReadFrame(timeout time.Duration) (Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	return c.readFrameLocked(deadline)
}

func (c *Client) readFrameLocked(deadline time.Time) (Frame, error) {
	if c.closed() {
		return Frame{}, ErrConnectionClosed
	}
	c.conn.SetReadDeadline(deadline)

	if _, err := io.ReadFull(c.conn, c.hdr[:]); err != nil {
		return Frame{}, err
	}
	h, err := wire.DecodeHeader(c.hdr[:])
	if err != nil {
		return Frame{}, err
	}
	if int(h.Length) < wire.HeaderSize {
		return Frame{}, fmt.Errorf("invalid frame length %d", h.Length)
	}
	if int(h.Length) > c.maxFrame {
		return Frame{}, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, h.Length, c.maxFrame)
	}

	payload := make([]byte, h.PayloadLen())
	if len(payload) > 0 {
		if _, err := io.ReadFull(c.conn, payload); err != nil {
			return Frame{}, err
		}
	}
	return Frame{Header: h, Payload: payload}, nil
}

// writeFrameLocked writes a raw frame. Callers must hold mu.
func (c *Client) writeFrameLocked(h wire.Header, payload []byte, deadline time.Time) error {
	if c.closed() {
		return ErrConnectionClosed
	}
	buf := make([]byte, wire.HeaderSize+len(payload))
	h.Encode(buf)
	copy(buf[wire.HeaderSize:], payload)

	c.conn.SetWriteDeadline(deadline)
	_, err := c.conn.Write(buf)
	return err
}

// Send writes one request frame addressed to a component. The header
// length is computed from the payload.
func (c *Client) Send(componentType, subType uint8, payload []byte, timeout time.Duration) (uint16, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	h := wire.Header{
		ID:            c.allocID(),
		Length:        uint16(wire.HeaderSize + len(payload)),
		Flags:         wire.RequestFlags,
		ComponentType: componentType,
		SubType:       subType,
	}
	return h.ID, c.writeFrameLocked(h, payload, time.Now().Add(timeout))
}

// Ping measures round-trip time to the agent. Frames that arrive while
// waiting are handled as in Pump: agent pings are answered, everything
// else is discarded.
func (c *Client) Ping(timeout time.Duration) (time.Duration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	deadline := time.Now().Add(timeout)
	start := time.Now()

	ping := wire.Header{
		ID:            c.allocID(),
		Length:        wire.HeaderSize,
		Flags:         wire.RequestFlags,
		ComponentType: wire.ComponentServer,
		SubType:       wire.SubPing,
	}
	if err := c.writeFrameLocked(ping, nil, deadline); err != nil {
		return 0, err
	}

	for {
		f, err := c.readFrameLocked(deadline)
		if err != nil {
			return 0, err
		}
		if f.Header.ComponentType == wire.ComponentServer && f.Header.SubType == wire.SubPing {
			if f.Header.IsResponse() && f.Header.ID == ping.ID {
				return time.Since(start), nil
			}
			if !f.Header.IsResponse() {
				if err := c.pongLocked(f.Header, deadline); err != nil {
					return 0, err
				}
			}
		}
	}
}

// EnableBits sends a configuration request for the target component
// and returns the agent's status string ("" when the component had
// nothing to report).
func (c *Client) EnableBits(target uint8, flags byte, timeout time.Duration) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	deadline := time.Now().Add(timeout)
	req := wire.Header{
		ID:            c.allocID(),
		Length:        wire.HeaderSize + 2,
		Flags:         wire.RequestFlags,
		ComponentType: wire.ComponentServer,
		SubType:       wire.SubEnableBits,
	}
	if err := c.writeFrameLocked(req, []byte{target, flags}, deadline); err != nil {
		return "", err
	}

	for {
		f, err := c.readFrameLocked(deadline)
		if err != nil {
			return "", err
		}
		if f.Header.ComponentType == wire.ComponentServer && f.Header.SubType == wire.SubPing && !f.Header.IsResponse() {
			if err := c.pongLocked(f.Header, deadline); err != nil {
				return "", err
			}
			continue
		}
		if f.Header.SubType == wire.SubEnableBits && f.Header.IsResponse() && f.Header.ID == req.ID {
			if len(f.Payload) == 1 && f.Payload[0] == wire.StringTerminator {
				return "", nil
			}
			return string(f.Payload), nil
		}
	}
}

// Pump reads frames until the timeout or an error, answering agent
// pings and passing every other frame to handle. A nil handle discards
// frames. It returns nil when the deadline expires.
func (c *Client) Pump(timeout time.Duration, handle func(Frame)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		f, err := c.readFrameLocked(deadline)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				return nil
			}
			return err
		}
		if f.Header.ComponentType == wire.ComponentServer && f.Header.SubType == wire.SubPing && !f.Header.IsResponse() {
			if err := c.pongLocked(f.Header, deadline); err != nil {
				return err
			}
			continue
		}
		if handle != nil {
			handle(f)
		}
	}
	return nil
}

// pongLocked answers an agent ping request. Callers must hold mu.
func (c *Client) pongLocked(ping wire.Header, deadline time.Time) error {
	pong := ping.Response()
	pong.Length = wire.HeaderSize
	return c.writeFrameLocked(pong, nil, deadline)
}

// closed reports whether Close has been called.
func (c *Client) closed() bool {
	select {
	case <-c.closeCh:
		return true
	default:
		return false
	}
}

// Close closes the session. Safe to call multiple times.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closeCh)
		err = c.conn.Close()
	})
	return err
}
