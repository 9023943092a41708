package agent

import (
	"net"
	"time"

	"github.com/pulse-protocol/pulse-go/pkg/component"
	"github.com/pulse-protocol/pulse-go/pkg/wire"
)

// negotiate performs the version handshake on a fresh connection. It
// blocks, polling at the tick rate, until exactly one handshake frame
// arrives or the heartbeat timeout elapses. Acceptance requires the
// server component type, the handshake subtype, the exact frame
// length, and a matching protocol version.
//
// Any mismatch or timeout yields SignalReconnect: the caller closes
// the socket and returns to accept. A version or length mismatch is
// answered with an error status byte first, best effort.
func (a *Agent) negotiate(conn net.Conn, flush component.FlushFunc) component.Signal {
	start := time.Now()
	deadline := start.Add(a.cfg.HeartbeatTimeout.Std())

	for a.in.Readable() < wire.HandshakeLength {
		if a.stopping() {
			a.logError(nil, "handshake aborted: agent stopping")
			return component.SignalReconnect
		}
		if !time.Now().Before(deadline) {
			a.logError(nil, "handshake timed out")
			return component.SignalReconnect
		}

		conn.SetReadDeadline(time.Now().Add(a.cfg.TickInterval.Std()))
		n, err := conn.Read(a.in.WritableSlice())
		if n > 0 {
			a.in.AdvanceWrite(n)
		}
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			a.logError(err, "handshake read")
			return component.SignalReconnect
		}
	}

	// The first read must contain the handshake and nothing else;
	// clients may not pipeline ahead of the accept response.
	if a.in.Readable() != wire.HandshakeLength {
		a.logError(nil, "client sent more than a handshake as first message")
		return component.SignalReconnect
	}

	h, _ := wire.ParseHeader(a.in)
	if h.ComponentType != wire.ComponentServer || h.SubType != wire.SubHandshake {
		a.logError(nil, "first frame is not a handshake")
		return component.SignalReconnect
	}

	resp := h
	resp.Flags = wire.FlagResponse
	resp.Length = wire.HeaderSize + 1
	if err := resp.WriteTo(a.out); err != nil {
		a.logError(err, "handshake response")
		return component.SignalReconnect
	}

	version, _ := a.in.GetU32()
	if h.Length != wire.HandshakeLength || version != wire.ProtocolVersion {
		// Tell the client why, if the socket still accepts writes.
		a.out.PutU8(wire.StatusError)
		_ = flush(a.out)
		if h.Length != wire.HandshakeLength {
			a.logError(nil, "invalid handshake frame length")
		} else {
			a.logError(nil, "incompatible client protocol version")
		}
		return component.SignalReconnect
	}

	if err := a.out.PutU8(wire.StatusOK); err != nil {
		return component.SignalReconnect
	}
	if err := flush(a.out); err != nil {
		a.logError(err, "handshake response write")
		return component.SignalReconnect
	}

	a.hb.Enable()
	a.in.Reset()
	return component.SignalDone
}
