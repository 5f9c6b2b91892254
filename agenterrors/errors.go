// Package agenterrors defines the unified error taxonomy shared by the
// Strategy Graph interpreter, the Agent Runner, and the LLM Executor
// boundary. Each kind named in the specification's error taxonomy gets a
// concrete exported type here so callers can use errors.As/errors.Is instead
// of string matching.
package agenterrors

import (
	"errors"
	"fmt"

	"github.com/agentkit/agentrt/toolerrors"
	"github.com/agentkit/agentrt/tools"
)

// Cancelled is the sentinel terminal, non-error status emitted through the
// error channel for propagation uniformity when a Run is cancelled.
var Cancelled = errors.New("agent: run cancelled")

// LLMErrorKind classifies an LLMTransientError.
type LLMErrorKind string

const (
	// LLMErrorTimeout indicates the provider request exceeded its deadline.
	LLMErrorTimeout LLMErrorKind = "timeout"
	// LLMErrorRateLimited indicates the provider throttled the request.
	LLMErrorRateLimited LLMErrorKind = "rate_limited"
	// LLMErrorTransient5xx indicates a transient provider-side failure.
	LLMErrorTransient5xx LLMErrorKind = "transient_5xx"
)

type (
	// ConfigurationError indicates an invalid strategy graph, duplicate tool
	// names, or unreachable nodes. It is detected at build time and never
	// emitted mid-Run.
	ConfigurationError struct {
		Reason string
	}

	// CapabilityUnsupportedError is returned when the executor rejects a call
	// because the target model lacks a required capability. It is fatal for
	// the Run unless a feature catches it.
	CapabilityUnsupportedError struct {
		Capability string
	}

	// LLMTransientError wraps a retryable LLM boundary failure (§4.6).
	LLMTransientError struct {
		Kind  LLMErrorKind
		Cause error
	}

	// LLMPermanentError wraps a non-retryable LLM boundary failure. It
	// surfaces immediately and terminates the Run unless a node handles it.
	LLMPermanentError struct {
		Cause error
	}

	// ToolValidationError indicates tool arguments failed JSON-schema
	// validation against the descriptor.
	ToolValidationError struct {
		Tool   tools.Ident
		Issues []tools.FieldIssue
	}

	// ToolExecutionError wraps a tool's own failure.
	ToolExecutionError struct {
		Tool  tools.Ident
		Cause *toolerrors.ToolError
	}

	// NoEligibleEdgeError indicates the interpreter found no guard that
	// matched a node's output.
	NoEligibleEdgeError struct {
		Node string
	}

	// IterationLimitExceededError indicates the interpreter's iteration
	// counter exceeded the strategy's configured bound.
	IterationLimitExceededError struct {
		Limit int
	}

	// SubgraphDepthExceededError indicates nested subgraph invocation exceeded
	// the configured maximum stack depth.
	SubgraphDepthExceededError struct {
		Limit int
	}

	// FeatureAbortedError indicates a feature explicitly aborted the Run from
	// a lifecycle hook.
	FeatureAbortedError struct {
		FeatureKey string
		Reason     string
	}
)

// NewConfigurationError constructs a ConfigurationError with the given
// reason.
func NewConfigurationError(reason string) *ConfigurationError {
	return &ConfigurationError{Reason: reason}
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("agent: invalid strategy configuration: %s", e.Reason)
}

func (e *CapabilityUnsupportedError) Error() string {
	return fmt.Sprintf("agent: model does not support capability %q", e.Capability)
}

func (e *LLMTransientError) Error() string {
	return fmt.Sprintf("agent: transient llm error (%s): %v", e.Kind, e.Cause)
}

func (e *LLMTransientError) Unwrap() error { return e.Cause }

func (e *LLMPermanentError) Error() string {
	return fmt.Sprintf("agent: permanent llm error: %v", e.Cause)
}

func (e *LLMPermanentError) Unwrap() error { return e.Cause }

func (e *ToolValidationError) Error() string {
	return fmt.Sprintf("agent: tool %q arguments failed validation (%d issues)", e.Tool, len(e.Issues))
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("agent: tool %q execution failed: %v", e.Tool, e.Cause)
}

func (e *ToolExecutionError) Unwrap() error {
	if e.Cause == nil {
		return nil
	}
	return e.Cause
}

func (e *NoEligibleEdgeError) Error() string {
	return fmt.Sprintf("agent: no eligible outgoing edge from node %q", e.Node)
}

func (e *IterationLimitExceededError) Error() string {
	return fmt.Sprintf("agent: iteration limit of %d exceeded", e.Limit)
}

func (e *SubgraphDepthExceededError) Error() string {
	return fmt.Sprintf("agent: subgraph depth limit of %d exceeded", e.Limit)
}

func (e *FeatureAbortedError) Error() string {
	return fmt.Sprintf("agent: feature %q aborted the run: %s", e.FeatureKey, e.Reason)
}

// IsFatal reports whether err should crash the Runner outright rather than
// merely being reported through on_agent_error (§4.5 interception
// semantics: handler errors are caught and reported unless the error kind is
// Fatal). Configuration errors and interpreter-level structural failures are
// always fatal; every other kind is recoverable by a feature that chooses to
// Abort or substitute a value.
func IsFatal(err error) bool {
	var (
		cfgErr   *ConfigurationError
		edgeErr  *NoEligibleEdgeError
		iterErr  *IterationLimitExceededError
		depthErr *SubgraphDepthExceededError
	)
	switch {
	case errors.As(err, &cfgErr):
		return true
	case errors.As(err, &edgeErr):
		return true
	case errors.As(err, &iterErr):
		return true
	case errors.As(err, &depthErr):
		return true
	default:
		return false
	}
}
