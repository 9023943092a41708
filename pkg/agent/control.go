package agent

import (
	"fmt"
	"time"

	"github.com/pulse-protocol/pulse-go/pkg/component"
	"github.com/pulse-protocol/pulse-go/pkg/log"
	"github.com/pulse-protocol/pulse-go/pkg/wire"
)

// controlComponent is the agent's own capability provider (id 0). It
// observes every inbound frame, answers pings, applies pongs to the
// heartbeat monitor, and fans enable-bits requests out to the target
// component. A handshake frame arriving mid-session forces a
// reconnect.
type controlComponent struct {
	agent *Agent
}

func (c *controlComponent) ID() uint8 {
	return component.ServerComponentID
}

func (c *controlComponent) Configure(flags byte) string { return "" }

func (c *controlComponent) OnConnect()    {}
func (c *controlComponent) OnDisconnect() {}

func (c *controlComponent) Receive(now time.Time, h wire.Header, in, out *wire.Buffer) (component.Signal, error) {
	if h.ComponentType != wire.ComponentServer {
		return component.SignalDone, nil
	}

	switch h.SubType {
	case wire.SubPing:
		if !h.IsResponse() {
			pong := h.Response()
			pong.Length = wire.HeaderSize
			if err := pong.WriteTo(out); err != nil {
				return component.SignalDone, err
			}
			c.agent.logHeartbeat(log.DirectionOut, log.HeartbeatPong, h.ID)
		} else if c.agent.hb.Ack(h.ID) {
			c.agent.logHeartbeat(log.DirectionIn, log.HeartbeatPong, h.ID)
		}

	case wire.SubEnableBits:
		return c.enableBits(h, in, out)

	case wire.SubHandshake:
		// The handshake is only valid as the first frame of a session.
		return component.SignalReconnect, nil
	}

	return component.SignalDone, nil
}

// enableBits applies a configuration flag byte to the target component
// and replies with either a terminator byte (no result) or an ASCII
// status string.
func (c *controlComponent) enableBits(h wire.Header, in, out *wire.Buffer) (component.Signal, error) {
	target, err := in.GetU8()
	if err != nil {
		return component.SignalDone, fmt.Errorf("%w: enable-bits payload: %v", ErrProtocolViolation, err)
	}
	flags, err := in.GetU8()
	if err != nil {
		return component.SignalDone, fmt.Errorf("%w: enable-bits payload: %v", ErrProtocolViolation, err)
	}

	result := ""
	if comp, ok := c.agent.reg.Lookup(target); ok {
		result = comp.Configure(flags)
	}
	c.agent.logComponent(target, "configure", fmt.Sprintf("flags=%#02x", flags))

	resp := h.Response()
	if result == "" {
		resp.Length = wire.HeaderSize + 1
	} else {
		resp.Length = uint16(wire.HeaderSize + len(result))
	}
	if err := resp.WriteTo(out); err != nil {
		return component.SignalDone, err
	}
	if result == "" {
		err = out.PutU8(wire.StringTerminator)
	} else {
		err = out.PutBytes([]byte(result))
	}
	return component.SignalDone, err
}

// Update drives the heartbeat from the normal component update cycle.
func (c *controlComponent) Update(now time.Time, out *wire.Buffer) (component.Signal, error) {
	pinged, err := c.agent.hb.Tick(now, out)
	if err != nil {
		if err == ErrHeartbeatTimeout {
			c.agent.logHeartbeat(log.DirectionOut, log.HeartbeatTimeout, c.agent.hb.Seq())
		}
		return component.SignalReconnect, err
	}
	if pinged {
		c.agent.logHeartbeat(log.DirectionOut, log.HeartbeatPing, c.agent.hb.Seq()-1)
	}
	return component.SignalDone, nil
}

// Compile-time interface satisfaction check.
var _ component.Component = (*controlComponent)(nil)
