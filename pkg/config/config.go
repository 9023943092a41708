// Package config loads and validates the Pulse agent configuration.
//
// Configuration is optional: the zero value plus ApplyDefaults yields
// a working agent. A YAML file can override any field, with durations
// written as Go duration strings ("2s", "100ms").
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pulse-protocol/pulse-go/pkg/wire"
)

// Defaults. The tick rate and buffer sizes bound the agent's memory
// and latency; they are not grown at runtime.
const (
	DefaultSocketPrefix = "pulse_agent"

	// DefaultTickInterval is the target tick cadence (60 Hz).
	DefaultTickInterval = time.Second / 60

	// DefaultPingInterval is the quiet time before a ping is emitted.
	DefaultPingInterval = 2 * time.Second

	// DefaultHeartbeatTimeout is how long an unacknowledged ping may
	// remain outstanding before the connection is considered dead.
	// Also bounds the handshake read.
	DefaultHeartbeatTimeout = 5 * time.Second

	// DefaultAcceptRetry bounds the accept call so cancellation is
	// observed promptly.
	DefaultAcceptRetry = 100 * time.Millisecond

	// DefaultInputBufferSize holds header and control traffic.
	DefaultInputBufferSize = 1024

	// DefaultOutputBufferSize holds one tick's accumulated responses
	// and telemetry.
	DefaultOutputBufferSize = 64 * 1024
)

// Config errors.
var (
	ErrTimeoutTooShort = errors.New("heartbeat timeout must exceed ping interval")
	ErrBufferTooSmall  = errors.New("buffer too small for a frame")
)

// Duration wraps time.Duration with YAML string encoding ("250ms").
type Duration time.Duration

// UnmarshalYAML parses a Go duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML encodes the duration as a string.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config holds the agent configuration.
type Config struct {
	// SocketDir is the directory holding the agent socket.
	// Defaults to the OS temp directory.
	SocketDir string `yaml:"socket_dir"`

	// SocketPrefix is the socket name prefix; the full name appends
	// the hosting process id.
	SocketPrefix string `yaml:"socket_prefix"`

	// TickInterval is the target cadence of the active-connection loop.
	TickInterval Duration `yaml:"tick_interval"`

	// PingInterval is the quiet time before a heartbeat ping.
	PingInterval Duration `yaml:"ping_interval"`

	// HeartbeatTimeout bounds outstanding pings and the handshake read.
	HeartbeatTimeout Duration `yaml:"heartbeat_timeout"`

	// AcceptRetry is the accept-poll interval while listening.
	AcceptRetry Duration `yaml:"accept_retry"`

	// InputBufferSize is the fixed input window in bytes.
	InputBufferSize int `yaml:"input_buffer_size"`

	// OutputBufferSize is the fixed output window in bytes.
	OutputBufferSize int `yaml:"output_buffer_size"`
}

// Default returns the default configuration.
func Default() Config {
	var c Config
	c.ApplyDefaults()
	return c
}

// ApplyDefaults fills unset fields with defaults.
func (c *Config) ApplyDefaults() {
	if c.SocketDir == "" {
		c.SocketDir = os.TempDir()
	}
	if c.SocketPrefix == "" {
		c.SocketPrefix = DefaultSocketPrefix
	}
	if c.TickInterval == 0 {
		c.TickInterval = Duration(DefaultTickInterval)
	}
	if c.PingInterval == 0 {
		c.PingInterval = Duration(DefaultPingInterval)
	}
	if c.HeartbeatTimeout == 0 {
		c.HeartbeatTimeout = Duration(DefaultHeartbeatTimeout)
	}
	if c.AcceptRetry == 0 {
		c.AcceptRetry = Duration(DefaultAcceptRetry)
	}
	if c.InputBufferSize == 0 {
		c.InputBufferSize = DefaultInputBufferSize
	}
	if c.OutputBufferSize == 0 {
		c.OutputBufferSize = DefaultOutputBufferSize
	}
}

// Validate rejects configurations the protocol cannot operate under.
func (c *Config) Validate() error {
	if c.HeartbeatTimeout <= c.PingInterval {
		return fmt.Errorf("%w: timeout %s, interval %s",
			ErrTimeoutTooShort, c.HeartbeatTimeout.Std(), c.PingInterval.Std())
	}
	if c.InputBufferSize < wire.HandshakeLength {
		return fmt.Errorf("%w: input %d bytes", ErrBufferTooSmall, c.InputBufferSize)
	}
	if c.OutputBufferSize < wire.HeaderSize+1 {
		return fmt.Errorf("%w: output %d bytes", ErrBufferTooSmall, c.OutputBufferSize)
	}
	if c.TickInterval <= 0 || c.AcceptRetry <= 0 {
		return errors.New("tick interval and accept retry must be positive")
	}
	return nil
}

// Load reads a YAML configuration file over the defaults.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	c.ApplyDefaults()
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// SocketPath returns the socket path for the given process id.
func (c *Config) SocketPath(pid int) string {
	return filepath.Join(c.SocketDir, fmt.Sprintf("%s_pid%d.sock", c.SocketPrefix, pid))
}
