// Package run defines the identifiers and lifecycle status shared by the
// Agent Runner and the Checkpoint contract: a RunID names one execution
// attempt of a strategy, SessionID/TurnID group related runs into a
// conversation when a host chooses to use them.
package run

import "time"

// Status is the coarse-grained lifecycle state of a Run. A Run transitions
// Pending → Running on its first hook, then Running → {Completed, Failed,
// Cancelled} exactly once. A Run is never restarted in place; restoring a
// checkpoint always produces a new Run id.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Context carries the identity of one Run through the interpreter and the
// Feature Pipeline's events.
type Context struct {
	// RunID uniquely identifies this execution attempt.
	RunID string

	// AgentID identifies the agent definition this Run belongs to.
	AgentID string

	// SessionID optionally groups this Run with other runs into a
	// conversation thread. Empty for standalone runs.
	SessionID string

	// TurnID optionally identifies the conversational turn within
	// SessionID this Run answers. Multiple runs share a TurnID when a turn
	// is interrupted and resumed via restore.
	TurnID string

	// Attempt counts how many times this logical turn has been attempted,
	// incrementing across restore.
	Attempt int
}

// Record is the lifecycle metadata a host may persist alongside a Run,
// independent of the Checkpoint snapshot used to actually resume execution.
type Record struct {
	RunID     string
	AgentID   string
	SessionID string
	TurnID    string
	Status    Status
	StartedAt time.Time
	UpdatedAt time.Time
}
