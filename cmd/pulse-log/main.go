// Command pulse-log views and analyzes Pulse protocol log files.
//
// Log files are created by running pulse-agent with the -protocol-log
// flag; they hold a CBOR event stream.
//
// Usage:
//
//	pulse-log <command> [flags] <file.plog>
//
// Commands:
//
//	view     View log file in human-readable format
//	filter   Filter log file and write to new file
//	stats    Show statistics about the log file
//
// Examples:
//
//	# View all events
//	pulse-log view session.plog
//
//	# View only outbound frames
//	pulse-log view -direction out -category frame session.plog
//
//	# Filter by connection and save to new file
//	pulse-log filter -conn-id abc12345 -o filtered.plog session.plog
//
//	# Show statistics
//	pulse-log stats session.plog
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pulse-protocol/pulse-go/pkg/log"
)

const usage = `pulse-log - Pulse Protocol Log Analyzer

Usage:
  pulse-log <command> [flags] <file.plog>

Commands:
  view     View log file in human-readable format
  filter   Filter log file and write to new file
  stats    Show statistics about the log file

Use "pulse-log <command> -help" for more information about a command.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "view":
		runView(args)
	case "filter":
		runFilter(args)
	case "stats":
		runStats(args)
	case "-h", "-help", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
}

// filterFlags registers the shared filter flags on fs and returns a
// builder that assembles the log.Filter after parsing.
func filterFlags(fs *flag.FlagSet) func() (log.Filter, error) {
	connID := fs.String("conn-id", "", "Filter by connection ID")
	direction := fs.String("direction", "", "Filter by direction (in, out)")
	category := fs.String("category", "", "Filter by category (frame, heartbeat, state, component, error)")
	timeStart := fs.String("time-start", "", "Filter by start time (RFC3339)")
	timeEnd := fs.String("time-end", "", "Filter by end time (RFC3339)")

	return func() (log.Filter, error) {
		var f log.Filter
		f.ConnectionID = *connID

		if *direction != "" {
			d, err := parseDirection(*direction)
			if err != nil {
				return f, err
			}
			f.Direction = &d
		}
		if *category != "" {
			c, err := parseCategory(*category)
			if err != nil {
				return f, err
			}
			f.Category = &c
		}
		if *timeStart != "" {
			t, err := time.Parse(time.RFC3339, *timeStart)
			if err != nil {
				return f, fmt.Errorf("invalid time-start: %w", err)
			}
			f.TimeStart = &t
		}
		if *timeEnd != "" {
			t, err := time.Parse(time.RFC3339, *timeEnd)
			if err != nil {
				return f, fmt.Errorf("invalid time-end: %w", err)
			}
			f.TimeEnd = &t
		}
		return f, nil
	}
}

func parseDirection(s string) (log.Direction, error) {
	switch s {
	case "in":
		return log.DirectionIn, nil
	case "out":
		return log.DirectionOut, nil
	}
	return 0, fmt.Errorf("unknown direction %q (want in or out)", s)
}

func parseCategory(s string) (log.Category, error) {
	switch s {
	case "frame":
		return log.CategoryFrame, nil
	case "heartbeat":
		return log.CategoryHeartbeat, nil
	case "state":
		return log.CategoryState, nil
	case "component":
		return log.CategoryComponent, nil
	case "error":
		return log.CategoryError, nil
	}
	return 0, fmt.Errorf("unknown category %q", s)
}

func runView(args []string) {
	fs := flag.NewFlagSet("view", flag.ExitOnError)
	buildFilter := filterFlags(fs)
	fs.Usage = func() {
		fmt.Fprint(os.Stderr, "pulse-log view - View log file in human-readable format\n\nUsage:\n  pulse-log view [flags] <file.plog>\n\nFlags:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: log file path required")
		fs.Usage()
		os.Exit(1)
	}

	filter, err := buildFilter()
	if err != nil {
		fatal(err)
	}
	r, err := log.NewFilteredReader(fs.Arg(0), filter)
	if err != nil {
		fatal(err)
	}
	defer r.Close()

	for {
		event, err := r.Next()
		if err == io.EOF {
			return
		}
		if err != nil {
			fatal(err)
		}
		fmt.Println(formatEvent(event))
	}
}

func runFilter(args []string) {
	fs := flag.NewFlagSet("filter", flag.ExitOnError)
	buildFilter := filterFlags(fs)
	output := fs.String("o", "", "Output file (required)")
	fs.Usage = func() {
		fmt.Fprint(os.Stderr, "pulse-log filter - Filter log file and write to new file\n\nUsage:\n  pulse-log filter [flags] <file.plog>\n\nFlags:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: log file path required")
		fs.Usage()
		os.Exit(1)
	}
	if *output == "" {
		fmt.Fprintln(os.Stderr, "Error: output file (-o) required")
		fs.Usage()
		os.Exit(1)
	}

	filter, err := buildFilter()
	if err != nil {
		fatal(err)
	}
	r, err := log.NewFilteredReader(fs.Arg(0), filter)
	if err != nil {
		fatal(err)
	}
	defer r.Close()

	out, err := os.Create(*output)
	if err != nil {
		fatal(err)
	}
	defer out.Close()

	enc := log.NewEncoder(out)
	kept := 0
	for {
		event, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			fatal(err)
		}
		if err := enc.Encode(event); err != nil {
			fatal(err)
		}
		kept++
	}
	fmt.Printf("Wrote %d events to %s\n", kept, *output)
}

func runStats(args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprint(os.Stderr, "pulse-log stats - Show statistics about the log file\n\nUsage:\n  pulse-log stats <file.plog>\n\n")
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: log file path required")
		fs.Usage()
		os.Exit(1)
	}

	r, err := log.NewReader(fs.Arg(0))
	if err != nil {
		fatal(err)
	}
	defer r.Close()

	var (
		total       int
		byCategory  = map[log.Category]int{}
		byDirection = map[log.Direction]int{}
		connections = map[string]bool{}
		frameBytes  int
		first, last time.Time
	)

	for {
		event, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			fatal(err)
		}

		total++
		byCategory[event.Category]++
		if event.Category == log.CategoryFrame || event.Category == log.CategoryHeartbeat {
			byDirection[event.Direction]++
		}
		if event.ConnectionID != "" {
			connections[event.ConnectionID] = true
		}
		if event.Frame != nil {
			frameBytes += event.Frame.Size
		}
		if first.IsZero() || event.Timestamp.Before(first) {
			first = event.Timestamp
		}
		if event.Timestamp.After(last) {
			last = event.Timestamp
		}
	}

	fmt.Printf("Events:      %d\n", total)
	if total == 0 {
		return
	}
	fmt.Printf("Connections: %d\n", len(connections))
	fmt.Printf("Time range:  %s .. %s (%v)\n",
		first.Format(time.RFC3339), last.Format(time.RFC3339), last.Sub(first).Round(time.Millisecond))
	fmt.Printf("Frame bytes: %d\n", frameBytes)
	fmt.Println("By category:")
	for c := log.CategoryFrame; c <= log.CategoryError; c++ {
		if n := byCategory[c]; n > 0 {
			fmt.Printf("  %-10s %d\n", c, n)
		}
	}
	fmt.Println("By direction:")
	fmt.Printf("  %-10s %d\n", log.DirectionIn, byDirection[log.DirectionIn])
	fmt.Printf("  %-10s %d\n", log.DirectionOut, byDirection[log.DirectionOut])
}

// formatEvent renders one event as a single line.
func formatEvent(e log.Event) string {
	ts := e.Timestamp.Format("15:04:05.000000")
	conn := e.ConnectionID
	if len(conn) > 8 {
		conn = conn[:8]
	}

	switch {
	case e.Frame != nil:
		return fmt.Sprintf("%s [%s] %s FRAME id=%d comp=%d sub=%d flags=%#02x size=%d",
			ts, conn, e.Direction, e.Frame.MessageID, e.Frame.ComponentType,
			e.Frame.SubType, e.Frame.Flags, e.Frame.Size)
	case e.Heartbeat != nil:
		return fmt.Sprintf("%s [%s] %s HEARTBEAT %s seq=%d",
			ts, conn, e.Direction, e.Heartbeat.Kind, e.Heartbeat.Seq)
	case e.StateChange != nil:
		return fmt.Sprintf("%s [%s] STATE %s -> %s (%s)",
			ts, conn, e.StateChange.OldState, e.StateChange.NewState, e.StateChange.Reason)
	case e.Component != nil:
		return fmt.Sprintf("%s [%s] COMPONENT id=%d %s %s",
			ts, conn, e.Component.ID, e.Component.Action, e.Component.Detail)
	case e.Error != nil:
		return fmt.Sprintf("%s [%s] ERROR %s (%s)",
			ts, conn, e.Error.Message, e.Error.Context)
	default:
		return fmt.Sprintf("%s [%s] %s", ts, conn, e.Category)
	}
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
