package agent_test

import (
	"encoding/binary"
	"io"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulse-protocol/pulse-go/pkg/agent"
	"github.com/pulse-protocol/pulse-go/pkg/client"
	"github.com/pulse-protocol/pulse-go/pkg/component"
	"github.com/pulse-protocol/pulse-go/pkg/config"
	"github.com/pulse-protocol/pulse-go/pkg/profilers"
	"github.com/pulse-protocol/pulse-go/pkg/wire"
)

const testTimeout = 2 * time.Second

// testConfig keeps sockets in the test's temp dir and pings rarely
// enough that raw-socket tests see no interleaved heartbeat traffic.
func testConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		SocketDir:        t.TempDir(),
		SocketPrefix:     "pulse_test",
		PingInterval:     config.Duration(10 * time.Second),
		HeartbeatTimeout: config.Duration(30 * time.Second),
	}
}

func startAgent(t *testing.T, cfg config.Config, comps ...component.Component) *agent.Agent {
	t.Helper()
	a, err := agent.New(cfg, nil)
	require.NoError(t, err)
	for _, c := range comps {
		require.NoError(t, a.Register(c))
	}
	require.NoError(t, a.Start())
	t.Cleanup(func() { a.Stop() })
	return a
}

// rawAttach dials the agent socket and completes the handshake without
// the client package, for tests that need byte-level control.
func rawAttach(t *testing.T, path string) net.Conn {
	t.Helper()
	conn, err := net.DialTimeout("unix", path, testTimeout)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	var hs [wire.HandshakeLength]byte
	h := wire.Header{
		Length:        wire.HandshakeLength,
		ComponentType: wire.ComponentServer,
		SubType:       wire.SubHandshake,
	}
	h.Encode(hs[:])
	binary.LittleEndian.PutUint32(hs[wire.HeaderSize:], wire.ProtocolVersion)
	_, err = conn.Write(hs[:])
	require.NoError(t, err)

	resp := make([]byte, wire.HeaderSize+1)
	conn.SetReadDeadline(time.Now().Add(testTimeout))
	_, err = io.ReadFull(conn, resp)
	require.NoError(t, err)
	require.Equal(t, wire.StatusOK, resp[wire.HeaderSize], "handshake not accepted")
	return conn
}

// lifecycleComponent counts session callbacks.
type lifecycleComponent struct {
	id          uint8
	connects    atomic.Int32
	disconnects atomic.Int32
}

func (c *lifecycleComponent) ID() uint8                   { return c.id }
func (c *lifecycleComponent) Configure(flags byte) string { return "" }
func (c *lifecycleComponent) OnConnect()                  { c.connects.Add(1) }
func (c *lifecycleComponent) OnDisconnect()               { c.disconnects.Add(1) }

func (c *lifecycleComponent) Receive(now time.Time, h wire.Header, in, out *wire.Buffer) (component.Signal, error) {
	return component.SignalDone, nil
}

func (c *lifecycleComponent) Update(now time.Time, out *wire.Buffer) (component.Signal, error) {
	return component.SignalDone, nil
}

func TestAttachPingEnable(t *testing.T) {
	mem := profilers.NewMemory(20 * time.Millisecond)
	a := startAgent(t, testConfig(t), mem)

	c, err := client.Attach(a.SocketPath(), client.Config{})
	require.NoError(t, err)
	defer c.Close()

	rtt, err := c.Ping(testTimeout)
	require.NoError(t, err)
	assert.Greater(t, rtt, time.Duration(0))

	status, err := c.EnableBits(profilers.MemoryComponentID, profilers.FlagEnabled, testTimeout)
	require.NoError(t, err)
	assert.Contains(t, status, "memory sampling")

	// Enabled profiler pushes samples on its own.
	var samples []client.Frame
	require.NoError(t, c.Pump(300*time.Millisecond, func(f client.Frame) {
		if f.Header.ComponentType == profilers.MemoryComponentID {
			samples = append(samples, f)
		}
	}))
	require.NotEmpty(t, samples, "no samples pushed")

	s, err := profilers.DecodeMemorySample(samples[0].Payload)
	require.NoError(t, err)
	assert.NotZero(t, s.HeapAlloc)
}

func TestEnableBitsUnknownTarget(t *testing.T) {
	a := startAgent(t, testConfig(t))

	c, err := client.Attach(a.SocketPath(), client.Config{})
	require.NoError(t, err)
	defer c.Close()

	// Unknown components yield an empty result, not an error.
	status, err := c.EnableBits(9, 0x01, testTimeout)
	require.NoError(t, err)
	assert.Empty(t, status)
}

func TestHandshakeWrongVersion(t *testing.T) {
	a := startAgent(t, testConfig(t))

	conn, err := net.DialTimeout("unix", a.SocketPath(), testTimeout)
	require.NoError(t, err)
	defer conn.Close()

	var hs [wire.HandshakeLength]byte
	h := wire.Header{
		Length:        wire.HandshakeLength,
		ComponentType: wire.ComponentServer,
		SubType:       wire.SubHandshake,
	}
	h.Encode(hs[:])
	binary.LittleEndian.PutUint32(hs[wire.HeaderSize:], 0xDEAD)
	_, err = conn.Write(hs[:])
	require.NoError(t, err)

	resp := make([]byte, wire.HeaderSize+1)
	conn.SetReadDeadline(time.Now().Add(testTimeout))
	_, err = io.ReadFull(conn, resp)
	require.NoError(t, err)
	assert.Equal(t, wire.StatusError, resp[wire.HeaderSize])

	// The agent hangs up and goes back to listening.
	conn.SetReadDeadline(time.Now().Add(testTimeout))
	_, err = conn.Read(make([]byte, 1))
	assert.ErrorIs(t, err, io.EOF)

	// A well-behaved client can still attach afterwards.
	c, err := client.Attach(a.SocketPath(), client.Config{})
	require.NoError(t, err)
	c.Close()
}

func TestSplitFrameDispatchedOnce(t *testing.T) {
	a := startAgent(t, testConfig(t))
	conn := rawAttach(t, a.SocketPath())

	// Enable-bits request for an unknown target, split mid-payload.
	req := wire.Header{
		ID:            5,
		Length:        wire.HeaderSize + 2,
		ComponentType: wire.ComponentServer,
		SubType:       wire.SubEnableBits,
	}
	frame := make([]byte, wire.HeaderSize+2)
	req.Encode(frame)
	frame[wire.HeaderSize] = 9   // target
	frame[wire.HeaderSize+1] = 1 // flags

	_, err := conn.Write(frame[:wire.HeaderSize+1])
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)
	_, err = conn.Write(frame[wire.HeaderSize+1:])
	require.NoError(t, err)

	// Exactly one reply arrives: the terminator response.
	resp := make([]byte, wire.HeaderSize+1)
	conn.SetReadDeadline(time.Now().Add(testTimeout))
	_, err = io.ReadFull(conn, resp)
	require.NoError(t, err)

	got, err := wire.DecodeHeader(resp)
	require.NoError(t, err)
	assert.Equal(t, uint16(5), got.ID)
	assert.True(t, got.IsResponse())
	assert.Equal(t, wire.StringTerminator, resp[wire.HeaderSize])

	// And nothing more.
	conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	_, err = conn.Read(make([]byte, 1))
	var ne net.Error
	require.ErrorAs(t, err, &ne)
	assert.True(t, ne.Timeout(), "unexpected extra bytes after single reply")
}

func TestOversizedFrameEndsSession(t *testing.T) {
	a := startAgent(t, testConfig(t))
	conn := rawAttach(t, a.SocketPath())

	// Declared length beyond the input window is connection-fatal.
	bad := wire.Header{ID: 1, Length: 60000, ComponentType: 1}
	var hdr [wire.HeaderSize]byte
	bad.Encode(hdr[:])
	_, err := conn.Write(hdr[:])
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(testTimeout))
	_, err = conn.Read(make([]byte, 1))
	assert.ErrorIs(t, err, io.EOF)

	// The agent survives and accepts the next client.
	c, err := client.Attach(a.SocketPath(), client.Config{})
	require.NoError(t, err)
	c.Close()
}

func TestSessionLifecycleCallbacks(t *testing.T) {
	lc := &lifecycleComponent{id: 3}
	a := startAgent(t, testConfig(t), lc)

	c, err := client.Attach(a.SocketPath(), client.Config{})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return lc.connects.Load() == 1
	}, testTimeout, 10*time.Millisecond)

	c.Close()
	require.Eventually(t, func() bool {
		return lc.disconnects.Load() == 1
	}, testTimeout, 10*time.Millisecond)

	// A second session fires the callbacks again, once each.
	c, err = client.Attach(a.SocketPath(), client.Config{})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return lc.connects.Load() == 2
	}, testTimeout, 10*time.Millisecond)
	c.Close()
	require.Eventually(t, func() bool {
		return lc.disconnects.Load() == 2
	}, testTimeout, 10*time.Millisecond)
}

func TestStartStopReentrant(t *testing.T) {
	a, err := agent.New(testConfig(t), nil)
	require.NoError(t, err)

	require.NoError(t, a.Start())
	require.NoError(t, a.Start()) // no-op
	assert.Equal(t, agent.StateListening, a.State())

	require.NoError(t, a.Stop())
	require.NoError(t, a.Stop()) // no-op
	assert.Equal(t, agent.StateIdle, a.State())

	// The agent restarts cleanly on the same socket path.
	require.NoError(t, a.Start())
	defer a.Stop()

	c, err := client.Attach(a.SocketPath(), client.Config{})
	require.NoError(t, err)
	c.Close()
}

func TestRegisterWhileRunning(t *testing.T) {
	a := startAgent(t, testConfig(t))
	err := a.Register(&lifecycleComponent{id: 4})
	assert.ErrorIs(t, err, agent.ErrAgentRunning)
}

func TestHeartbeatTimeoutRecyclesConnection(t *testing.T) {
	cfg := testConfig(t)
	cfg.PingInterval = config.Duration(50 * time.Millisecond)
	cfg.HeartbeatTimeout = config.Duration(150 * time.Millisecond)
	a := startAgent(t, cfg)

	// Attach but never answer pings.
	conn := rawAttach(t, a.SocketPath())

	// The agent pings, gets no pong, and hangs up within the timeout.
	conn.SetReadDeadline(time.Now().Add(testTimeout))
	buf := make([]byte, 64)
	sawEOF := false
	for !sawEOF {
		if _, err := conn.Read(buf); err != nil {
			require.ErrorIs(t, err, io.EOF)
			sawEOF = true
		}
	}

	// And is ready for the next client.
	c, err := client.Attach(a.SocketPath(), client.Config{})
	require.NoError(t, err)
	c.Close()
}
