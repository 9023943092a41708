package component

import (
	"errors"
	"fmt"
	"time"

	"github.com/pulse-protocol/pulse-go/pkg/log"
	"github.com/pulse-protocol/pulse-go/pkg/wire"
)

// FlushFunc drains the output buffer to the transport. The dispatcher
// calls it after every component so a single tick's accumulated output
// never exceeds the fixed output capacity.
type FlushFunc func(out *wire.Buffer) error

// Dispatcher routes inbound frames to the registered components and
// drives their periodic update cycle, multiplexing all output onto one
// outbound buffer.
type Dispatcher struct {
	reg    *Registry
	logger log.Logger
	connID string
}

// NewDispatcher creates a dispatcher over the given registry.
// A nil logger disables logging.
func NewDispatcher(reg *Registry, logger log.Logger) *Dispatcher {
	if logger == nil {
		logger = log.NoopLogger{}
	}
	return &Dispatcher{reg: reg, logger: logger}
}

// SetConnectionID tags subsequent log events with the session id.
func (d *Dispatcher) SetConnectionID(id string) {
	d.connID = id
}

// Dispatch offers one complete frame to every registered component in
// ascending id order. The input buffer must be positioned at the start
// of the frame payload; each component sees the payload from that
// position. Component errors are logged and isolated, except for
// output-buffer overflow on a reply path, which is connection-fatal.
func (d *Dispatcher) Dispatch(now time.Time, h wire.Header, in, out *wire.Buffer, flush FlushFunc) (Signal, error) {
	payload := in.Save()

	for _, c := range d.reg.Components() {
		in.Restore(payload)

		sig, err := c.Receive(now, h, in, out)
		if err != nil {
			if errors.Is(err, wire.ErrBufferOverflow) {
				// A reply that cannot fit the output window means the
				// connection state is unrecoverable.
				return SignalReconnect, err
			}
			d.logComponentError(c.ID(), "receive", err)
		}
		if flushErr := flush(out); flushErr != nil {
			return SignalReconnect, flushErr
		}
		if sig == SignalReconnect {
			return SignalReconnect, nil
		}
	}
	return SignalDone, nil
}

// UpdateAll invokes every component's periodic update in ascending id
// order, flushing after each. If any component reports more pending
// data, the whole pass repeats immediately until a full pass yields no
// pending work, draining backlog within one logical tick.
func (d *Dispatcher) UpdateAll(now time.Time, out *wire.Buffer, flush FlushFunc) (Signal, error) {
	for {
		pending := 0

		for _, c := range d.reg.Components() {
			sig, err := c.Update(now, out)
			if err != nil {
				if sig == SignalReconnect {
					return SignalReconnect, err
				}
				d.logComponentError(c.ID(), "update", err)
			}
			switch sig {
			case SignalMoreData:
				pending++
			case SignalReconnect:
				return SignalReconnect, nil
			}
			if flushErr := flush(out); flushErr != nil {
				return SignalReconnect, flushErr
			}
		}

		if pending == 0 {
			return SignalDone, nil
		}
	}
}

// ConnectAll notifies every component of a new active session.
func (d *Dispatcher) ConnectAll() {
	for _, c := range d.reg.Components() {
		c.OnConnect()
	}
}

// DisconnectAll notifies every component that the session ended.
func (d *Dispatcher) DisconnectAll() {
	for _, c := range d.reg.Components() {
		c.OnDisconnect()
	}
}

func (d *Dispatcher) logComponentError(id uint8, ctx string, err error) {
	d.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: d.connID,
		Category:     log.CategoryError,
		Error: &log.ErrorEventData{
			Message: err.Error(),
			Context: fmt.Sprintf("component %d %s", id, ctx),
		},
	})
}
