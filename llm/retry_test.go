package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/agentkit/agentrt/agent"
	"github.com/agentkit/agentrt/agenterrors"
	"github.com/agentkit/agentrt/stream"
	"github.com/agentkit/agentrt/telemetry"
	"github.com/agentkit/agentrt/tools"
	"github.com/stretchr/testify/require"
)

type stubExecutor struct {
	failuresRemaining int
	failWith          error
	calls             int
}

func (s *stubExecutor) Execute(ctx context.Context, prompt agent.Prompt, model LLModel, descriptors []tools.ToolDescriptor) ([]agent.Message, error) {
	s.calls++
	if s.failuresRemaining > 0 {
		s.failuresRemaining--
		return nil, s.failWith
	}
	return []agent.Message{agent.NewAssistantMessage("ok", nil)}, nil
}

func (s *stubExecutor) ExecuteStreaming(ctx context.Context, prompt agent.Prompt, model LLModel) (stream.LazySequence[string], error) {
	return nil, errors.New("not implemented")
}

func (s *stubExecutor) ExecuteMultipleChoices(ctx context.Context, prompt agent.Prompt, model LLModel, descriptors []tools.ToolDescriptor) ([]Choice, error) {
	return nil, errors.New("not implemented")
}

func (s *stubExecutor) Moderate(ctx context.Context, prompt agent.Prompt, model LLModel) (ModerationResult, error) {
	return ModerationResult{}, errors.New("not implemented")
}

func (s *stubExecutor) Embed(ctx context.Context, text string, model LLModel) ([]float64, error) {
	return nil, errors.New("not implemented")
}

func TestRetryPolicy_DelayGrowsExponentiallyAndCaps(t *testing.T) {
	p := RetryPolicy{BaseDelay: time.Second, Multiplier: 2.0, MaxDelay: 3 * time.Second, MaxAttempts: 5}
	require.Equal(t, time.Second, p.Delay(1))
	require.Equal(t, 2*time.Second, p.Delay(2))
	require.Equal(t, 3*time.Second, p.Delay(3)) // would be 4s, capped at 3s
}

func TestRetryingExecutor_RetriesTransientThenSucceeds(t *testing.T) {
	inner := &stubExecutor{
		failuresRemaining: 2,
		failWith:          &agenterrors.LLMTransientError{Kind: agenterrors.LLMErrorTransient5xx, Cause: errors.New("boom")},
	}
	retrying := NewRetryingExecutor(inner, RetryPolicy{BaseDelay: time.Millisecond, Multiplier: 1, MaxDelay: time.Millisecond, MaxAttempts: 3}, telemetry.NewNoopProvider())

	msgs, err := retrying.Execute(context.Background(), agent.NewPrompt(), LLModel{}, nil)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, 3, inner.calls)
}

func TestRetryingExecutor_DoesNotRetryPermanentError(t *testing.T) {
	inner := &stubExecutor{
		failuresRemaining: 1,
		failWith:          &agenterrors.LLMPermanentError{Cause: errors.New("nope")},
	}
	retrying := NewRetryingExecutor(inner, DefaultRetryPolicy(), telemetry.NewNoopProvider())

	_, err := retrying.Execute(context.Background(), agent.NewPrompt(), LLModel{}, nil)
	require.Error(t, err)
	require.Equal(t, 1, inner.calls)
}

func TestRequireCapability_FailsWhenUnsupported(t *testing.T) {
	model := NewLLModel("anthropic", "claude", CapCompletion)
	err := RequireCapability(model, CapMultipleChoices)
	require.Error(t, err)
	var capErr *agenterrors.CapabilityUnsupportedError
	require.ErrorAs(t, err, &capErr)
	require.Equal(t, string(CapMultipleChoices), capErr.Capability)
}

func TestRequireCapability_PassesWhenSupported(t *testing.T) {
	model := NewLLModel("anthropic", "claude", CapCompletion, CapTools)
	require.NoError(t, RequireCapability(model, CapTools))
}
