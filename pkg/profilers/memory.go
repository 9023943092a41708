package profilers

import (
	"fmt"
	"runtime"
	"time"

	"github.com/eapache/queue"

	"github.com/pulse-protocol/pulse-go/pkg/component"
	"github.com/pulse-protocol/pulse-go/pkg/wire"
)

// Component ids of the built-in profilers.
const (
	MemoryComponentID  uint8 = 1
	NetworkComponentID uint8 = 2
)

// SubSample is the telemetry subtype. As a request from the client it
// asks for an immediate sample; frames from the agent carry it on every
// pushed sample.
const SubSample uint8 = 0

// Enable-bits flags understood by the profilers.
const (
	// FlagEnabled turns periodic sampling on.
	FlagEnabled byte = 0x01
)

const (
	// DefaultSampleInterval is the default sampling period.
	DefaultSampleInterval = time.Second

	// DefaultMaxBacklog bounds the sample queue. When the output
	// window stays full longer than this many samples, the oldest
	// are dropped.
	DefaultMaxBacklog = 64
)

// memorySampleSize is the payload of one memory sample frame:
// timestamp, heap alloc, heap sys, heap objects (u64 each), then
// GC count and goroutine count (u32 each).
const memorySampleSize = 4*8 + 2*4

// MemorySample is one observation of the host process heap.
type MemorySample struct {
	When        time.Time
	HeapAlloc   uint64
	HeapSys     uint64
	HeapObjects uint64
	NumGC       uint32
	Goroutines  uint32
}

// Memory samples runtime.MemStats on a fixed period and pushes one
// sample frame per update pass. All methods run on the agent worker
// goroutine.
type Memory struct {
	interval   time.Duration
	maxBacklog int

	enabled bool
	last    time.Time
	nextID  uint16
	backlog *queue.Queue

	// read is swapped out in tests.
	read func() MemorySample
}

// NewMemory creates the memory profiler with the given sampling period
// (DefaultSampleInterval when zero).
func NewMemory(interval time.Duration) *Memory {
	if interval <= 0 {
		interval = DefaultSampleInterval
	}
	return &Memory{
		interval:   interval,
		maxBacklog: DefaultMaxBacklog,
		backlog:    queue.New(),
		read:       readMemStats,
	}
}

func readMemStats() MemorySample {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return MemorySample{
		When:        time.Now(),
		HeapAlloc:   ms.HeapAlloc,
		HeapSys:     ms.HeapSys,
		HeapObjects: ms.HeapObjects,
		NumGC:       ms.NumGC,
		Goroutines:  uint32(runtime.NumGoroutine()),
	}
}

func (m *Memory) ID() uint8 { return MemoryComponentID }

// Configure applies the enable flag and reports the resulting state.
func (m *Memory) Configure(flags byte) string {
	m.enabled = flags&FlagEnabled != 0
	if !m.enabled {
		m.drain()
		return "memory sampling off"
	}
	return fmt.Sprintf("memory sampling every %s", m.interval)
}

func (m *Memory) OnConnect() {
	m.last = time.Time{}
}

func (m *Memory) OnDisconnect() {
	m.enabled = false
	m.drain()
}

func (m *Memory) drain() {
	for m.backlog.Length() > 0 {
		m.backlog.Remove()
	}
}

// Receive answers on-demand sample requests. Frames addressed to other
// components pass through untouched.
func (m *Memory) Receive(now time.Time, h wire.Header, in, out *wire.Buffer) (component.Signal, error) {
	if h.ComponentType != MemoryComponentID || h.SubType != SubSample || h.IsResponse() {
		return component.SignalDone, nil
	}
	resp := h.Response()
	resp.Length = wire.HeaderSize + memorySampleSize
	if err := writeSample(out, resp, m.read()); err != nil {
		return component.SignalDone, err
	}
	return component.SignalDone, nil
}

// Update takes a sample when the period elapsed and drains the backlog
// one frame per pass, reporting MoreData while frames remain.
func (m *Memory) Update(now time.Time, out *wire.Buffer) (component.Signal, error) {
	if !m.enabled {
		return component.SignalDone, nil
	}

	if m.last.IsZero() || now.Sub(m.last) >= m.interval {
		m.last = now
		if m.backlog.Length() >= m.maxBacklog {
			m.backlog.Remove()
		}
		m.backlog.Add(m.read())
	}

	if m.backlog.Length() == 0 {
		return component.SignalDone, nil
	}
	if out.Writable() < wire.HeaderSize+memorySampleSize {
		// Output window full; try again next pass.
		return component.SignalMoreData, nil
	}

	sample := m.backlog.Remove().(MemorySample)
	h := wire.Header{
		ID:            m.nextID,
		Length:        wire.HeaderSize + memorySampleSize,
		Flags:         wire.RequestFlags,
		ComponentType: MemoryComponentID,
		SubType:       SubSample,
	}
	m.nextID++
	if err := writeSample(out, h, sample); err != nil {
		return component.SignalDone, err
	}

	if m.backlog.Length() > 0 {
		return component.SignalMoreData, nil
	}
	return component.SignalDone, nil
}

func writeSample(out *wire.Buffer, h wire.Header, s MemorySample) error {
	if err := h.WriteTo(out); err != nil {
		return err
	}
	out.PutU64(uint64(s.When.UnixNano()))
	out.PutU64(s.HeapAlloc)
	out.PutU64(s.HeapSys)
	out.PutU64(s.HeapObjects)
	out.PutU32(s.NumGC)
	return out.PutU32(s.Goroutines)
}

// DecodeMemorySample parses a sample frame payload, as produced by
// writeSample. Attach tooling uses it to render pushed samples.
func DecodeMemorySample(payload []byte) (MemorySample, error) {
	b := wire.NewBuffer(len(payload))
	if err := b.PutBytes(payload); err != nil {
		return MemorySample{}, err
	}
	var s MemorySample
	ns, err := b.GetU64()
	if err != nil {
		return MemorySample{}, err
	}
	s.When = time.Unix(0, int64(ns))
	if s.HeapAlloc, err = b.GetU64(); err != nil {
		return MemorySample{}, err
	}
	if s.HeapSys, err = b.GetU64(); err != nil {
		return MemorySample{}, err
	}
	if s.HeapObjects, err = b.GetU64(); err != nil {
		return MemorySample{}, err
	}
	if s.NumGC, err = b.GetU32(); err != nil {
		return MemorySample{}, err
	}
	if s.Goroutines, err = b.GetU32(); err != nil {
		return MemorySample{}, err
	}
	return s, nil
}

var _ component.Component = (*Memory)(nil)
