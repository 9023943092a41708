// Package component defines the capability provider contract of the
// Pulse agent and the dispatcher that drives registered providers.
//
// A component is identified by a unique 8-bit id. The registry keeps
// components sorted ascending by id, and that order is the dispatch
// and update order for the lifetime of the process. Every inbound
// frame is offered to every component (broadcast-and-filter): each
// component compares the frame's component type against its own id
// and ignores frames not addressed to it, which lets the agent's
// control component observe all traffic for heartbeat bookkeeping.
package component
