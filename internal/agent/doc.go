// Package agent tracks connected agents and their delivery queues.
//
// The Registry is the authority on which agents are currently connected. Each
// connection owns one bounded FIFO Queue of events awaiting delivery. The
// queue contract is asymmetric by design: Enqueue never blocks the producing
// side (a full queue drops the newest event and counts it), while Poll blocks
// the consuming transport up to its timeout waiting for the first event.
//
// Unregistering an agent discards its queue. Cascading cleanup of the agent's
// subscriptions and channel memberships is the gateway's job, not this
// package's.
package agent
