package agent

import (
	"fmt"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/pulse-protocol/pulse-go/pkg/component"
	"github.com/pulse-protocol/pulse-go/pkg/config"
	"github.com/pulse-protocol/pulse-go/pkg/log"
	"github.com/pulse-protocol/pulse-go/pkg/wire"
)

// readPoll bounds the per-tick read so the loop never blocks waiting
// for client bytes.
const readPoll = time.Millisecond

// State is the agent lifecycle state, exposed for observability.
type State uint8

const (
	// StateIdle indicates the agent is constructed but not started.
	StateIdle State = iota

	// StateListening indicates the agent is waiting for a client.
	StateListening

	// StateHandshaking indicates a client connected and the version
	// handshake is in progress.
	StateHandshaking

	// StateActive indicates an attached client session.
	StateActive

	// StateClosing indicates the worker is unwinding.
	StateClosing
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateListening:
		return "LISTENING"
	case StateHandshaking:
		return "HANDSHAKING"
	case StateActive:
		return "ACTIVE"
	case StateClosing:
		return "CLOSING"
	default:
		return "UNKNOWN"
	}
}

// Agent is the in-process attach server. Construct it with New, add
// capability components with Register, then Start it. One client may
// attach at a time; the agent outlives any number of client sessions
// and only Stop ends it.
type Agent struct {
	cfg    config.Config
	logger log.Logger

	reg  *component.Registry
	disp *component.Dispatcher
	hb   *Heartbeat

	// Fixed-capacity session buffers, owned by the worker goroutine.
	in  *wire.Buffer
	out *wire.Buffer

	socketPath string
	connID     string // current session id, worker-only

	mu       sync.Mutex
	running  bool
	stopCh   chan struct{}
	wg       sync.WaitGroup
	listener *net.UnixListener

	state atomic.Int32
}

// New constructs an agent. The configuration is defaulted and
// validated; a nil logger disables logging.
func New(cfg config.Config, logger log.Logger) (*Agent, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.NoopLogger{}
	}

	a := &Agent{
		cfg:        cfg,
		logger:     logger,
		reg:        component.NewRegistry(),
		hb:         NewHeartbeat(cfg.PingInterval.Std(), cfg.HeartbeatTimeout.Std()),
		in:         wire.NewBuffer(cfg.InputBufferSize),
		out:        wire.NewBuffer(cfg.OutputBufferSize),
		socketPath: cfg.SocketPath(os.Getpid()),
	}
	a.disp = component.NewDispatcher(a.reg, logger)

	if err := a.reg.Register(&controlComponent{agent: a}); err != nil {
		return nil, err
	}
	return a, nil
}

// Register adds a capability component. Components must be registered
// before Start; the registry is immutable while the worker runs.
func (a *Agent) Register(c component.Component) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running {
		return ErrAgentRunning
	}
	return a.reg.Register(c)
}

// SocketPath returns the unix socket path the agent serves on.
func (a *Agent) SocketPath() string {
	return a.socketPath
}

// State returns the current lifecycle state.
func (a *Agent) State() State {
	return State(a.state.Load())
}

func (a *Agent) setState(s State) {
	a.state.Store(int32(s))
}

// Start opens the listening socket and spawns the worker. It returns
// once the worker is observably running. Reentrant: starting a
// running agent is a no-op.
func (a *Agent) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running {
		return nil
	}

	// A crashed previous run may have left the socket file behind.
	_ = os.Remove(a.socketPath)

	ln, err := net.Listen("unix", a.socketPath)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", a.socketPath, err)
	}
	a.listener = ln.(*net.UnixListener)
	a.stopCh = make(chan struct{})
	a.running = true
	a.setState(StateListening)

	started := make(chan struct{})
	a.wg.Add(1)
	go a.run(started)
	<-started

	return nil
}

// Stop signals cancellation, unblocks the worker, joins it, and closes
// the listening socket. Reentrant: stopping a stopped agent is a no-op.
func (a *Agent) Stop() error {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return nil
	}
	a.running = false
	a.setState(StateClosing)
	close(a.stopCh)
	a.listener.Close()
	a.mu.Unlock()

	a.wg.Wait()
	_ = os.Remove(a.socketPath)
	a.setState(StateIdle)
	return nil
}

// stopping reports whether cancellation has been signaled.
func (a *Agent) stopping() bool {
	select {
	case <-a.stopCh:
		return true
	default:
		return false
	}
}

// sleep waits for d or until cancellation, whichever is first.
func (a *Agent) sleep(d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-a.stopCh:
	case <-timer.C:
	}
}

// run is the worker loop: accept a client, serve the session, repeat.
func (a *Agent) run(started chan<- struct{}) {
	defer a.wg.Done()
	close(started)

	for !a.stopping() {
		conn := a.accept()
		if conn == nil {
			continue
		}
		a.session(conn)
	}
}

// accept waits for a client, polling so cancellation is observed
// within one retry interval. Returns nil when stopping or to retry
// after a listener error.
func (a *Agent) accept() net.Conn {
	retry := a.cfg.AcceptRetry.Std()

	for !a.stopping() {
		a.listener.SetDeadline(time.Now().Add(retry))
		conn, err := a.listener.Accept()
		if err == nil {
			a.in.Reset()
			a.out.Reset()
			return conn
		}
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			continue
		}
		if a.stopping() {
			return nil
		}
		// A misbehaving client must not kill the agent; log and keep
		// listening.
		a.logError(err, "accept")
		a.sleep(retry)
	}
	return nil
}

// session serves one client connection from handshake to disconnect.
func (a *Agent) session(conn net.Conn) {
	defer conn.Close()

	a.connID = uuid.New().String()
	a.disp.SetConnectionID(a.connID)
	a.hb.Reset(time.Now())
	flush := a.flushFunc(conn)

	a.setState(StateHandshaking)
	a.logState(StateListening, StateHandshaking, "client connected")

	if a.negotiate(conn, flush) != component.SignalDone {
		a.setState(StateListening)
		a.logState(StateHandshaking, StateListening, "handshake rejected")
		return
	}

	a.setState(StateActive)
	a.logState(StateHandshaking, StateActive, "handshake accepted")
	a.disp.ConnectAll()

	reason := a.tickLoop(conn, flush)

	a.disp.DisconnectAll()
	a.setState(StateListening)
	a.logState(StateActive, StateListening, reason)
}

// tickLoop runs the active-connection loop at the configured cadence
// and returns the reason the session ended.
func (a *Agent) tickLoop(conn net.Conn, flush component.FlushFunc) string {
	tick := a.cfg.TickInterval.Std()

	for !a.stopping() {
		start := time.Now()

		sig, err := a.processFrames(start, conn, flush)
		if err != nil || sig == component.SignalReconnect {
			return a.sessionEndReason(err)
		}

		sig, err = a.disp.UpdateAll(start, a.out, flush)
		if err != nil || sig == component.SignalReconnect {
			return a.sessionEndReason(err)
		}

		// Sleep whatever remains of the tick budget; skip if the work
		// overran it.
		if remaining := tick - time.Since(start); remaining > 0 {
			a.sleep(remaining)
		}
	}
	return "agent stopping"
}

func (a *Agent) sessionEndReason(err error) string {
	if err == nil {
		return "component requested reconnect"
	}
	a.logError(err, "session")
	return err.Error()
}

// processFrames reads any available bytes, then extracts and
// dispatches every complete frame in the input buffer. Partial frames
// survive across ticks via the compacting cursor.
func (a *Agent) processFrames(now time.Time, conn net.Conn, flush component.FlushFunc) (component.Signal, error) {
	if a.in.Writable() > 0 {
		conn.SetReadDeadline(time.Now().Add(readPoll))
		n, err := conn.Read(a.in.WritableSlice())
		if n > 0 {
			a.in.AdvanceWrite(n)
		}
		if err != nil {
			if ne, ok := err.(net.Error); !ok || !ne.Timeout() {
				return component.SignalReconnect, fmt.Errorf("%w: %v", ErrTransportFailure, err)
			}
		}
	}

	for a.in.Readable() >= wire.HeaderSize {
		frameStart := a.in.Save()
		h, _ := wire.ParseHeader(a.in)

		// An impossible length means the peer is not speaking this
		// protocol; waiting for more bytes would never resolve it.
		if err := h.Validate(a.in.Cap()); err != nil {
			return component.SignalReconnect, fmt.Errorf("%w: %v", ErrProtocolViolation, err)
		}

		if a.in.Readable() < h.PayloadLen() {
			a.in.Restore(frameStart)
			break
		}

		// Any complete inbound frame proves the client is alive.
		a.hb.Touch(now)
		a.logFrame(log.DirectionIn, h)

		sig, err := a.disp.Dispatch(now, h, a.in, a.out, flush)
		if err != nil || sig == component.SignalReconnect {
			return component.SignalReconnect, err
		}

		// Skip the whole frame exactly once, wherever the components
		// left the read cursor.
		a.in.Restore(frameStart)
		a.in.Skip(int(h.Length))
	}

	a.in.Compact()
	return component.SignalDone, nil
}

// flushFunc returns the dispatcher's flush callback bound to conn.
func (a *Agent) flushFunc(conn net.Conn) component.FlushFunc {
	return func(out *wire.Buffer) error {
		if out.Readable() == 0 {
			return nil
		}
		size := out.Readable()
		conn.SetWriteDeadline(time.Now().Add(a.cfg.HeartbeatTimeout.Std()))
		if _, err := out.Flush(conn); err != nil {
			return fmt.Errorf("%w: %v", ErrTransportFailure, err)
		}
		a.logger.Log(log.Event{
			Timestamp:    time.Now(),
			ConnectionID: a.connID,
			Direction:    log.DirectionOut,
			Category:     log.CategoryFrame,
			Frame:        &log.FrameEvent{Size: size},
		})
		return nil
	}
}

// Logging helpers.

func (a *Agent) logFrame(dir log.Direction, h wire.Header) {
	a.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: a.connID,
		Direction:    dir,
		Category:     log.CategoryFrame,
		Frame: &log.FrameEvent{
			Size:          int(h.Length),
			MessageID:     h.ID,
			Flags:         h.Flags,
			ComponentType: h.ComponentType,
			SubType:       h.SubType,
		},
	})
}

func (a *Agent) logHeartbeat(dir log.Direction, kind log.HeartbeatKind, seq uint16) {
	a.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: a.connID,
		Direction:    dir,
		Category:     log.CategoryHeartbeat,
		Heartbeat:    &log.HeartbeatEvent{Kind: kind, Seq: seq},
	})
}

func (a *Agent) logComponent(id uint8, action, detail string) {
	a.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: a.connID,
		Category:     log.CategoryComponent,
		Component:    &log.ComponentEvent{ID: id, Action: action, Detail: detail},
	})
}

func (a *Agent) logState(from, to State, reason string) {
	a.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: a.connID,
		Category:     log.CategoryState,
		SocketPath:   a.socketPath,
		StateChange: &log.StateChangeEvent{
			OldState: from.String(),
			NewState: to.String(),
			Reason:   reason,
		},
	})
}

func (a *Agent) logError(err error, context string) {
	msg := context
	if err != nil {
		msg = err.Error()
	}
	a.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: a.connID,
		Category:     log.CategoryError,
		Error:        &log.ErrorEventData{Message: msg, Context: context},
	})
}
