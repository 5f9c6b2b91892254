package llm

import (
	"context"

	"github.com/agentkit/agentrt/agent"
	"github.com/agentkit/agentrt/agenterrors"
	"github.com/agentkit/agentrt/stream"
	"github.com/agentkit/agentrt/tools"
)

// Choice is one alternative from an execute_multiple_choices call.
type Choice []agent.Message

// Executor is the single public surface the core depends on for LLM
// invocation. Message IDs, tool-call IDs, and finish reasons are opaque
// strings assigned by the executor; the core treats them as identifiers
// only. Implementations MUST perform capability enforcement (see
// RequireCapabilities) before any network I/O.
type Executor interface {
	// Execute performs a synchronous request-reply call, returning 1..N
	// messages. When params.ToolChoice.Mode is ToolChoiceRequired and the
	// model supports tools, the executor MUST return at least one ToolCall
	// message or fail with ToolChoiceUnsatisfiedError. When Mode is
	// ToolChoiceNone, the executor MUST NOT emit any ToolCall. When Mode is
	// ToolChoiceNamed, the first tool call (if any) MUST name that tool.
	Execute(ctx context.Context, prompt agent.Prompt, model LLModel, descriptors []tools.ToolDescriptor) ([]agent.Message, error)

	// ExecuteStreaming emits text fragments in arrival order. The returned
	// sequence is finite, non-restartable, and terminates either normally or
	// with an error. Cancelling the consumer closes the underlying transport.
	ExecuteStreaming(ctx context.Context, prompt agent.Prompt, model LLModel) (stream.LazySequence[string], error)

	// ExecuteMultipleChoices returns one Choice per alternative. Fails with
	// *agenterrors.CapabilityUnsupportedError(MultipleChoices) on models
	// lacking the capability.
	ExecuteMultipleChoices(ctx context.Context, prompt agent.Prompt, model LLModel, descriptors []tools.ToolDescriptor) ([]Choice, error)

	// Moderate classifies prompt content for policy violations.
	Moderate(ctx context.Context, prompt agent.Prompt, model LLModel) (ModerationResult, error)

	// Embed returns a model-defined-length vector of finite values for text.
	Embed(ctx context.Context, text string, model LLModel) ([]float64, error)
}

// ToolChoiceUnsatisfiedError indicates params.ToolChoice.Mode was Required
// but the executor did not produce any ToolCall message.
type ToolChoiceUnsatisfiedError struct{}

func (ToolChoiceUnsatisfiedError) Error() string {
	return "llm: tool_choice=required was not satisfied by the model response"
}

// EnforceToolChoice checks an Execute response against the ToolChoice the
// caller requested, returning ToolChoiceUnsatisfiedError when choice.Mode is
// ToolChoiceRequired but messages contains no agent.KindToolCall message.
// Every provider adapter calls this on its translated response rather than
// trusting the vendor's native tool_choice parameter, since a model may
// still reply with text only despite being asked to require a tool call.
func EnforceToolChoice(choice agent.ToolChoice, messages []agent.Message) error {
	if choice.Mode != agent.ToolChoiceRequired {
		return nil
	}
	for _, m := range messages {
		if m.Kind == agent.KindToolCall {
			return nil
		}
	}
	return ToolChoiceUnsatisfiedError{}
}

// RequireCapability returns a *agenterrors.CapabilityUnsupportedError if
// model does not support cap. Executors call this before issuing any
// network I/O, per the capability enforcement contract.
func RequireCapability(model LLModel, cap Capability) error {
	if model.HasCapability(cap) {
		return nil
	}
	return &agenterrors.CapabilityUnsupportedError{Capability: string(cap)}
}

// RequireCapabilities checks each capability in turn, returning the first
// unsupported one as an error.
func RequireCapabilities(model LLModel, caps ...Capability) error {
	for _, c := range caps {
		if err := RequireCapability(model, c); err != nil {
			return err
		}
	}
	return nil
}
