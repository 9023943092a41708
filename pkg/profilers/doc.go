// Package profilers provides the built-in telemetry components that
// ship with a Pulse agent: a memory profiler sampling the Go runtime
// heap and a network profiler counting bytes the host process reports.
//
// Both are ordinary components. They stay quiet until an attach client
// enables them through an enable-bits request, then push sample frames
// from the agent's update cycle. Samples taken while the output window
// is full queue up in a backlog and drain one frame per update pass.
package profilers
