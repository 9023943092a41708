// Command pulse-attach is an interactive console for talking to a
// running Pulse agent.
//
// Usage:
//
//	pulse-attach [flags]
//
// Flags:
//
//	-pid int        Process id hosting the agent (socket derived from it)
//	-socket string  Explicit socket path (overrides -pid)
//
// Once attached, type "help" for the available commands: ping the
// agent, enable or disable profilers, take one-off samples, and watch
// pushed telemetry.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/pulse-protocol/pulse-go/pkg/client"
	"github.com/pulse-protocol/pulse-go/pkg/profilers"
)

const commandTimeout = 5 * time.Second

var (
	pid        int
	socketPath string
)

func init() {
	flag.IntVar(&pid, "pid", 0, "Process id hosting the agent")
	flag.StringVar(&socketPath, "socket", "", "Explicit socket path (overrides -pid)")
}

func main() {
	flag.Parse()

	path := socketPath
	if path == "" {
		if pid == 0 {
			fmt.Fprintln(os.Stderr, "Error: -pid or -socket required")
			flag.Usage()
			os.Exit(1)
		}
		path = client.SocketPath(pid)
	}

	c, err := attachWithRetry(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer c.Close()
	fmt.Printf("Attached to %s\n", path)

	console := &console{client: c}
	if err := console.run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// attachWithRetry keeps dialing with exponential backoff until the
// agent answers or the attempts run out.
func attachWithRetry(path string) (*client.Client, error) {
	backoff := client.NewBackoff()
	for {
		c, err := client.Attach(path, client.Config{})
		if err == nil {
			return c, nil
		}
		if backoff.Attempts() >= 5 {
			return nil, err
		}
		delay := backoff.Next()
		fmt.Fprintf(os.Stderr, "attach failed (%v), retrying in %v\n", err, delay)
		time.Sleep(delay)
	}
}

type console struct {
	client *client.Client
	rl     *readline.Instance
}

func (c *console) run() error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "pulse> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	c.rl = rl
	defer rl.Close()

	c.printHelp()

	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(rl.Stdout(), "Exiting...")
			return nil
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		parts := strings.Fields(input)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		switch cmd {
		case "help", "?":
			c.printHelp()

		case "ping", "p":
			c.cmdPing()

		case "enable", "e":
			c.cmdEnable(args, true)

		case "disable", "d":
			c.cmdEnable(args, false)

		case "sample", "s":
			c.cmdSample(args)

		case "watch", "w":
			c.cmdWatch(args)

		case "quit", "exit", "q":
			fmt.Fprintln(rl.Stdout(), "Exiting...")
			return nil

		default:
			fmt.Fprintf(rl.Stdout(), "Unknown command: %s (try \"help\")\n", cmd)
		}
	}
}

func (c *console) printHelp() {
	fmt.Fprint(c.out(), `Commands:
  ping                Measure round-trip time to the agent
  enable <id>         Enable a profiler (1=memory, 2=network)
  disable <id>        Disable a profiler
  sample <id>         Take one immediate sample
  watch [seconds]     Print pushed telemetry (default 5s)
  help                Show this help
  quit                Exit
`)
}

func (c *console) out() io.Writer {
	if c.rl != nil {
		return c.rl.Stdout()
	}
	return os.Stdout
}

func (c *console) cmdPing() {
	rtt, err := c.client.Ping(commandTimeout)
	if err != nil {
		fmt.Fprintf(c.out(), "ping failed: %v\n", err)
		return
	}
	fmt.Fprintf(c.out(), "pong in %v\n", rtt)
}

func (c *console) cmdEnable(args []string, on bool) {
	if len(args) < 1 {
		fmt.Fprintln(c.out(), "usage: enable|disable <component-id>")
		return
	}
	id, err := strconv.ParseUint(args[0], 10, 8)
	if err != nil {
		fmt.Fprintf(c.out(), "invalid component id %q\n", args[0])
		return
	}

	var flags byte
	if on {
		flags = profilers.FlagEnabled
	}
	status, err := c.client.EnableBits(uint8(id), flags, commandTimeout)
	if err != nil {
		fmt.Fprintf(c.out(), "configure failed: %v\n", err)
		return
	}
	if status == "" {
		fmt.Fprintln(c.out(), "ok (no status)")
		return
	}
	fmt.Fprintln(c.out(), status)
}

func (c *console) cmdSample(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(c.out(), "usage: sample <component-id>")
		return
	}
	id, err := strconv.ParseUint(args[0], 10, 8)
	if err != nil {
		fmt.Fprintf(c.out(), "invalid component id %q\n", args[0])
		return
	}

	if _, err := c.client.Send(uint8(id), profilers.SubSample, nil, commandTimeout); err != nil {
		fmt.Fprintf(c.out(), "request failed: %v\n", err)
		return
	}

	// The response arrives through the normal frame stream.
	done := false
	err = c.client.Pump(commandTimeout, func(f client.Frame) {
		if done || f.Header.ComponentType != uint8(id) {
			return
		}
		done = true
		c.printFrame(f)
	})
	if err != nil {
		fmt.Fprintf(c.out(), "read failed: %v\n", err)
	} else if !done {
		fmt.Fprintln(c.out(), "no sample received (is the component registered?)")
	}
}

func (c *console) cmdWatch(args []string) {
	duration := 5 * time.Second
	if len(args) > 0 {
		secs, err := strconv.Atoi(args[0])
		if err != nil || secs <= 0 {
			fmt.Fprintf(c.out(), "invalid duration %q\n", args[0])
			return
		}
		duration = time.Duration(secs) * time.Second
	}

	fmt.Fprintf(c.out(), "watching for %v...\n", duration)
	count := 0
	err := c.client.Pump(duration, func(f client.Frame) {
		count++
		c.printFrame(f)
	})
	if err != nil {
		fmt.Fprintf(c.out(), "watch failed: %v\n", err)
		return
	}
	fmt.Fprintf(c.out(), "%d frames\n", count)
}

func (c *console) printFrame(f client.Frame) {
	switch f.Header.ComponentType {
	case profilers.MemoryComponentID:
		s, err := profilers.DecodeMemorySample(f.Payload)
		if err != nil {
			fmt.Fprintf(c.out(), "bad memory sample: %v\n", err)
			return
		}
		fmt.Fprintf(c.out(), "[%s] mem: heap=%s sys=%s objects=%d gc=%d goroutines=%d\n",
			s.When.Format("15:04:05.000"),
			formatBytes(s.HeapAlloc), formatBytes(s.HeapSys),
			s.HeapObjects, s.NumGC, s.Goroutines)

	case profilers.NetworkComponentID:
		s, err := profilers.DecodeNetworkSample(f.Payload)
		if err != nil {
			fmt.Fprintf(c.out(), "bad network sample: %v\n", err)
			return
		}
		fmt.Fprintf(c.out(), "[%s] net: sent=%s received=%s\n",
			s.When.Format("15:04:05.000"),
			formatBytes(s.Sent), formatBytes(s.Received))

	default:
		fmt.Fprintf(c.out(), "frame: component=%d subtype=%d id=%d payload=%d bytes\n",
			f.Header.ComponentType, f.Header.SubType, f.Header.ID, len(f.Payload))
	}
}

func formatBytes(n uint64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1fMiB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1fKiB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%dB", n)
	}
}
