// Package log provides pluggable protocol event logging for the Pulse
// agent and attach client.
//
// The agent emits structured events (frames, heartbeats, state changes,
// component activity, errors) through the Logger interface. Supplied
// implementations:
//
//   - NoopLogger: discards everything (the default)
//   - SlogAdapter: forwards events to a log/slog logger for console use
//   - FileLogger: appends CBOR-encoded events to a file for offline
//     analysis with Reader or the pulse-log command
//   - MultiLogger: fans out to several loggers at once
//
// Logging never affects protocol behavior: encoding failures are
// swallowed and a nil logger is equivalent to NoopLogger.
package log
