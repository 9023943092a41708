package profilers

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/pulse-protocol/pulse-go/pkg/component"
	"github.com/pulse-protocol/pulse-go/pkg/wire"
)

// networkSampleSize is the payload of one network delta frame:
// timestamp, bytes sent and bytes received since the previous frame
// (u64 each).
const networkSampleSize = 3 * 8

// NetworkSample is the traffic delta covering one sampling period.
type NetworkSample struct {
	When     time.Time
	Sent     uint64
	Received uint64
}

// Network counts traffic the host process reports through RecordSent
// and RecordReceived and pushes delta frames on a fixed period. The
// record hooks are safe to call from any goroutine; everything else
// runs on the agent worker.
type Network struct {
	interval time.Duration

	sent     atomic.Uint64
	received atomic.Uint64

	enabled  bool
	last     time.Time
	nextID   uint16
	lastSent uint64
	lastRecv uint64
}

// NewNetwork creates the network profiler with the given sampling
// period (DefaultSampleInterval when zero).
func NewNetwork(interval time.Duration) *Network {
	if interval <= 0 {
		interval = DefaultSampleInterval
	}
	return &Network{interval: interval}
}

// RecordSent adds n bytes to the outbound traffic counter.
func (n *Network) RecordSent(bytes int) {
	if bytes > 0 {
		n.sent.Add(uint64(bytes))
	}
}

// RecordReceived adds n bytes to the inbound traffic counter.
func (n *Network) RecordReceived(bytes int) {
	if bytes > 0 {
		n.received.Add(uint64(bytes))
	}
}

func (n *Network) ID() uint8 { return NetworkComponentID }

// Configure applies the enable flag and reports the resulting state.
func (n *Network) Configure(flags byte) string {
	n.enabled = flags&FlagEnabled != 0
	if !n.enabled {
		return "network sampling off"
	}
	// Deltas start from the enable point, not process start.
	n.lastSent = n.sent.Load()
	n.lastRecv = n.received.Load()
	return fmt.Sprintf("network sampling every %s", n.interval)
}

func (n *Network) OnConnect() {
	n.last = time.Time{}
}

func (n *Network) OnDisconnect() {
	n.enabled = false
}

// Receive answers on-demand sample requests with the totals since the
// last pushed frame.
func (n *Network) Receive(now time.Time, h wire.Header, in, out *wire.Buffer) (component.Signal, error) {
	if h.ComponentType != NetworkComponentID || h.SubType != SubSample || h.IsResponse() {
		return component.SignalDone, nil
	}
	resp := h.Response()
	resp.Length = wire.HeaderSize + networkSampleSize
	err := writeNetworkSample(out, resp, NetworkSample{
		When:     now,
		Sent:     n.sent.Load() - n.lastSent,
		Received: n.received.Load() - n.lastRecv,
	})
	return component.SignalDone, err
}

// Update pushes one delta frame per period. Frames are skipped, not
// queued, while the output window is full; the counters keep
// accumulating so no traffic is lost.
func (n *Network) Update(now time.Time, out *wire.Buffer) (component.Signal, error) {
	if !n.enabled {
		return component.SignalDone, nil
	}
	if !n.last.IsZero() && now.Sub(n.last) < n.interval {
		return component.SignalDone, nil
	}
	if out.Writable() < wire.HeaderSize+networkSampleSize {
		return component.SignalMoreData, nil
	}

	sent := n.sent.Load()
	recv := n.received.Load()
	sample := NetworkSample{
		When:     now,
		Sent:     sent - n.lastSent,
		Received: recv - n.lastRecv,
	}

	h := wire.Header{
		ID:            n.nextID,
		Length:        wire.HeaderSize + networkSampleSize,
		Flags:         wire.RequestFlags,
		ComponentType: NetworkComponentID,
		SubType:       SubSample,
	}
	if err := writeNetworkSample(out, h, sample); err != nil {
		return component.SignalDone, err
	}
	n.nextID++
	n.last = now
	n.lastSent = sent
	n.lastRecv = recv
	return component.SignalDone, nil
}

func writeNetworkSample(out *wire.Buffer, h wire.Header, s NetworkSample) error {
	if err := h.WriteTo(out); err != nil {
		return err
	}
	out.PutU64(uint64(s.When.UnixNano()))
	out.PutU64(s.Sent)
	return out.PutU64(s.Received)
}

// DecodeNetworkSample parses a delta frame payload, as produced by the
// network profiler.
func DecodeNetworkSample(payload []byte) (NetworkSample, error) {
	b := wire.NewBuffer(len(payload))
	if err := b.PutBytes(payload); err != nil {
		return NetworkSample{}, err
	}
	var s NetworkSample
	ns, err := b.GetU64()
	if err != nil {
		return NetworkSample{}, err
	}
	s.When = time.Unix(0, int64(ns))
	if s.Sent, err = b.GetU64(); err != nil {
		return NetworkSample{}, err
	}
	if s.Received, err = b.GetU64(); err != nil {
		return NetworkSample{}, err
	}
	return s, nil
}

var _ component.Component = (*Network)(nil)
