package agent

import (
	"time"

	"github.com/pulse-protocol/pulse-go/pkg/wire"
)

// Heartbeat tracks outstanding pings and elapsed time for one client
// session. It is pure state over time: the caller supplies the clock,
// which keeps it deterministic under test. Only the worker goroutine
// touches it.
type Heartbeat struct {
	interval time.Duration
	timeout  time.Duration

	// seq is the next ping id to send; outstanding is the id awaiting
	// acknowledgment. seq == outstanding means no ping is in flight.
	seq          uint16
	outstanding  uint16
	lastActivity time.Time
	enabled      bool
}

// NewHeartbeat creates a heartbeat monitor. The timeout must exceed
// the interval; config.Validate enforces this for agent configs.
func NewHeartbeat(interval, timeout time.Duration) *Heartbeat {
	return &Heartbeat{interval: interval, timeout: timeout}
}

// Reset clears all session state. Called on every new accept.
func (hb *Heartbeat) Reset(now time.Time) {
	hb.seq = 0
	hb.outstanding = 0
	hb.lastActivity = now
	hb.enabled = false
}

// Enable turns heartbeating on. Called after a successful handshake.
func (hb *Heartbeat) Enable() {
	hb.enabled = true
}

// Enabled reports whether heartbeating is active.
func (hb *Heartbeat) Enabled() bool {
	return hb.enabled
}

// Touch refreshes the last-activity timestamp. Any inbound frame
// counts as liveness, so real traffic suppresses pings.
func (hb *Heartbeat) Touch(now time.Time) {
	hb.lastActivity = now
}

// InFlight reports whether a ping awaits acknowledgment.
func (hb *Heartbeat) InFlight() bool {
	return hb.seq != hb.outstanding
}

// Seq returns the next ping id to be sent.
func (hb *Heartbeat) Seq() uint16 {
	return hb.seq
}

// Ack clears the outstanding ping if id matches it. Returns true when
// the ping was cleared.
func (hb *Heartbeat) Ack(id uint16) bool {
	if !hb.InFlight() || id != hb.outstanding {
		return false
	}
	hb.outstanding = hb.seq
	return true
}

// Tick evaluates the heartbeat for one tick. With no ping in flight
// and the interval elapsed it appends a ping request to out and
// reports pinged=true. With a ping in flight past the timeout it
// returns ErrHeartbeatTimeout; the caller must close and reconnect.
func (hb *Heartbeat) Tick(now time.Time, out *wire.Buffer) (pinged bool, err error) {
	if !hb.enabled {
		return false, nil
	}

	if !hb.InFlight() {
		if now.Sub(hb.lastActivity) <= hb.interval {
			return false, nil
		}
		ping := wire.Header{
			ID:            hb.seq,
			Length:        wire.HeaderSize,
			Flags:         wire.RequestFlags,
			ComponentType: wire.ComponentServer,
			SubType:       wire.SubPing,
		}
		if err := ping.WriteTo(out); err != nil {
			return false, err
		}
		hb.lastActivity = now
		hb.seq++
		return true, nil
	}

	if now.Sub(hb.lastActivity) > hb.timeout {
		return false, ErrHeartbeatTimeout
	}
	return false, nil
}
