package agent

import "github.com/agentkit/agentrt/tools"

// RetryReason categorizes the failure that produced a RetryHint.
type RetryReason string

const (
	RetryReasonInvalidArguments RetryReason = "invalid_arguments"
	RetryReasonMissingFields    RetryReason = "missing_fields"
	RetryReasonToolFailure      RetryReason = "tool_failure"
	RetryReasonNeedsConfirm     RetryReason = "needs_confirmation"
)

// RetryHint carries guidance for retrying a failed tool call. A node that
// places one in its output lets its outgoing edge guards route around the
// failure (e.g. to a clarification node) without the Strategy Graph needing
// any new primitives. No error type in this module carries a RetryHint and
// no built-in node produces one.
type RetryHint struct {
	// Reason categorizes the failure.
	Reason RetryReason

	// Tool identifies the tool involved in the failure.
	Tool tools.Ident

	// RestrictToTool signals that only this tool should be offered on the
	// next turn, implementing a circuit-breaker against repeating the same
	// error with a different tool.
	RestrictToTool bool

	// MissingFields lists required fields that were missing or invalid.
	MissingFields []string

	// ExampleInput is a correctly formatted example for the model to
	// reference on retry.
	ExampleInput map[string]any

	// PriorInput is the input that failed validation.
	PriorInput map[string]any

	// ClarifyingQuestion is a human-readable prompt for human-in-the-loop
	// continuation when the run cannot proceed without more information.
	ClarifyingQuestion string

	// Message is a human-readable summary for logging and debugging.
	Message string
}
