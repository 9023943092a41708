// Command pulse-agent hosts a Pulse agent inside a demo process.
//
// In production the agent is embedded in the monitored process itself;
// this command stands in for that process so attach tooling has
// something to talk to. It registers the built-in memory and network
// profilers and, in simulation mode, generates synthetic traffic for
// the network profiler to report.
//
// Usage:
//
//	pulse-agent [flags]
//
// Flags:
//
//	-config string        Configuration file path (YAML)
//	-socket-dir string    Directory for the agent socket
//	-protocol-log string  Write protocol events to a CBOR log file
//	-log-level string     Log level: debug, info, warn, error (default "info")
//	-sample-interval      Profiler sampling period (default 1s)
//	-simulate             Generate synthetic network traffic (default true)
//
// Examples:
//
//	# Start with defaults; prints the socket path to attach to
//	pulse-agent
//
//	# Capture a protocol log for later analysis with pulse-log
//	pulse-agent -protocol-log session.plog
package main

import (
	"flag"
	stdlog "log"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pulse-protocol/pulse-go/pkg/agent"
	"github.com/pulse-protocol/pulse-go/pkg/config"
	"github.com/pulse-protocol/pulse-go/pkg/log"
	"github.com/pulse-protocol/pulse-go/pkg/profilers"
)

var (
	configFile     string
	socketDir      string
	protocolLog    string
	logLevel       string
	sampleInterval time.Duration
	simulate       bool
)

func init() {
	flag.StringVar(&configFile, "config", "", "Configuration file path (YAML)")
	flag.StringVar(&socketDir, "socket-dir", "", "Directory for the agent socket")
	flag.StringVar(&protocolLog, "protocol-log", "", "Write protocol events to a CBOR log file")
	flag.StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	flag.DurationVar(&sampleInterval, "sample-interval", time.Second, "Profiler sampling period")
	flag.BoolVar(&simulate, "simulate", true, "Generate synthetic network traffic")
}

func main() {
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		stdlog.Fatalf("Invalid configuration: %v", err)
	}

	logger, cleanup, err := buildLogger()
	if err != nil {
		stdlog.Fatalf("Failed to set up logging: %v", err)
	}
	defer cleanup()

	a, err := agent.New(cfg, logger)
	if err != nil {
		stdlog.Fatalf("Failed to create agent: %v", err)
	}

	mem := profilers.NewMemory(sampleInterval)
	netw := profilers.NewNetwork(sampleInterval)
	if err := a.Register(mem); err != nil {
		stdlog.Fatalf("Failed to register memory profiler: %v", err)
	}
	if err := a.Register(netw); err != nil {
		stdlog.Fatalf("Failed to register network profiler: %v", err)
	}

	if err := a.Start(); err != nil {
		stdlog.Fatalf("Failed to start agent: %v", err)
	}
	stdlog.Printf("Agent listening on %s", a.SocketPath())

	stopSim := make(chan struct{})
	if simulate {
		go runTrafficSimulation(netw, stopSim)
	}

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh

	stdlog.Printf("Received signal: %v", sig)
	close(stopSim)
	if err := a.Stop(); err != nil {
		stdlog.Printf("Error stopping agent: %v", err)
	}
	stdlog.Println("Agent stopped")
}

func loadConfig() (config.Config, error) {
	if configFile != "" {
		cfg, err := config.Load(configFile)
		if err != nil {
			return config.Config{}, err
		}
		if socketDir != "" {
			cfg.SocketDir = socketDir
		}
		return cfg, nil
	}
	cfg := config.Default()
	if socketDir != "" {
		cfg.SocketDir = socketDir
	}
	return cfg, nil
}

// buildLogger assembles the protocol event logger: slog to stderr,
// plus the CBOR file log when requested.
func buildLogger() (log.Logger, func(), error) {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLevel(logLevel),
	})
	loggers := []log.Logger{log.NewSlogAdapter(slog.New(handler))}

	cleanup := func() {}
	if protocolLog != "" {
		fl, err := log.NewFileLogger(protocolLog)
		if err != nil {
			return nil, nil, err
		}
		loggers = append(loggers, fl)
		cleanup = func() { fl.Close() }
	}
	return log.NewMultiLogger(loggers...), cleanup, nil
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// runTrafficSimulation feeds the network profiler with bursts of
// synthetic traffic so attach sessions have something to watch.
func runTrafficSimulation(n *profilers.Network, stop <-chan struct{}) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			n.RecordSent(rng.Intn(4096))
			n.RecordReceived(rng.Intn(16384))
		}
	}
}
