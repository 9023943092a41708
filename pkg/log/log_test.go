package log

import (
	"bytes"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func sampleEvent(connID string, cat Category) Event {
	ev := Event{
		Timestamp:    time.Now().UTC(),
		ConnectionID: connID,
		Category:     cat,
	}
	switch cat {
	case CategoryFrame:
		ev.Direction = DirectionIn
		ev.Frame = &FrameEvent{Size: 11, MessageID: 7, ComponentType: 0, SubType: 0}
	case CategoryHeartbeat:
		ev.Direction = DirectionOut
		ev.Heartbeat = &HeartbeatEvent{Kind: HeartbeatPing, Seq: 3}
	case CategoryState:
		ev.StateChange = &StateChangeEvent{OldState: "LISTENING", NewState: "ACTIVE"}
	case CategoryComponent:
		ev.Component = &ComponentEvent{ID: 1, Action: "configure", Detail: "flags=0x01"}
	case CategoryError:
		ev.Error = &ErrorEventData{Message: "boom", Context: "dispatch"}
	}
	return ev
}

func TestEncodeDecodeEvent(t *testing.T) {
	for _, cat := range []Category{CategoryFrame, CategoryHeartbeat, CategoryState, CategoryComponent, CategoryError} {
		t.Run(cat.String(), func(t *testing.T) {
			ev := sampleEvent("conn-1", cat)
			data, err := EncodeEvent(ev)
			if err != nil {
				t.Fatalf("EncodeEvent failed: %v", err)
			}
			got, err := DecodeEvent(data)
			if err != nil {
				t.Fatalf("DecodeEvent failed: %v", err)
			}
			if got.ConnectionID != ev.ConnectionID || got.Category != ev.Category {
				t.Errorf("round trip = %+v, want %+v", got, ev)
			}
			if !got.Timestamp.Equal(ev.Timestamp) {
				t.Errorf("Timestamp = %v, want %v", got.Timestamp, ev.Timestamp)
			}
		})
	}
}

func TestFrameEventRoundTrip(t *testing.T) {
	ev := sampleEvent("conn-2", CategoryFrame)
	data, err := EncodeEvent(ev)
	if err != nil {
		t.Fatal(err)
	}
	got, err := DecodeEvent(data)
	if err != nil {
		t.Fatal(err)
	}
	if got.Frame == nil {
		t.Fatal("Frame payload lost in round trip")
	}
	if *got.Frame != *ev.Frame {
		t.Errorf("Frame = %+v, want %+v", *got.Frame, *ev.Frame)
	}
}

func TestFileLoggerAndReader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "protocol.cborlog")

	fl, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}
	fl.Log(sampleEvent("conn-a", CategoryFrame))
	fl.Log(sampleEvent("conn-b", CategoryHeartbeat))
	fl.Log(sampleEvent("conn-a", CategoryError))
	if err := fl.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	// Close is idempotent and later logs are dropped silently.
	if err := fl.Close(); err != nil {
		t.Errorf("second Close = %v", err)
	}
	fl.Log(sampleEvent("conn-a", CategoryFrame))

	r, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	defer r.Close()

	count := 0
	for {
		_, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		count++
	}
	if count != 3 {
		t.Errorf("read %d events, want 3", count)
	}
}

func TestFilteredReader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "protocol.cborlog")

	fl, err := NewFileLogger(path)
	if err != nil {
		t.Fatal(err)
	}
	fl.Log(sampleEvent("conn-a", CategoryFrame))
	fl.Log(sampleEvent("conn-b", CategoryFrame))
	fl.Log(sampleEvent("conn-a", CategoryHeartbeat))
	fl.Close()

	cat := CategoryFrame
	r, err := NewFilteredReader(path, Filter{ConnectionID: "conn-a", Category: &cat})
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	ev, err := r.Next()
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if ev.ConnectionID != "conn-a" || ev.Category != CategoryFrame {
		t.Errorf("filtered event = %+v", ev)
	}
	if _, err := r.Next(); err != io.EOF {
		t.Errorf("second Next = %v, want io.EOF", err)
	}
}

// recordingLogger collects events for assertions.
type recordingLogger struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingLogger) Log(event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func TestMultiLogger(t *testing.T) {
	a := &recordingLogger{}
	b := &recordingLogger{}
	ml := NewMultiLogger(a, b, NoopLogger{})

	ml.Log(sampleEvent("conn-x", CategoryState))

	if len(a.events) != 1 || len(b.events) != 1 {
		t.Errorf("fan-out = %d, %d events, want 1 each", len(a.events), len(b.events))
	}
}

func TestSlogAdapter(t *testing.T) {
	var buf bytes.Buffer
	sl := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	adapter := NewSlogAdapter(sl)

	adapter.Log(sampleEvent("conn-s", CategoryHeartbeat))

	out := buf.String()
	if out == "" {
		t.Fatal("slog adapter produced no output")
	}
	for _, want := range []string{"HEARTBEAT", "conn-s", "PING"} {
		if !bytes.Contains(buf.Bytes(), []byte(want)) {
			t.Errorf("output missing %q: %s", want, out)
		}
	}
}
