package llm

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/agentkit/agentrt/agent"
	"github.com/agentkit/agentrt/agenterrors"
	"github.com/agentkit/agentrt/stream"
	"github.com/agentkit/agentrt/telemetry"
	"github.com/agentkit/agentrt/tools"
	"golang.org/x/time/rate"
)

// RetryPolicy implements the exponential backoff applied at the LLM
// boundary: delay = base * multiplier^(attempt-1), capped at MaxDelay, up to
// MaxAttempts. Only LLMTransientError (Timeout, RateLimited, Transient5xx)
// is retried; every other error surfaces immediately.
type RetryPolicy struct {
	BaseDelay   time.Duration
	Multiplier  float64
	MaxDelay    time.Duration
	MaxAttempts int
}

// DefaultRetryPolicy returns the spec's default retry configuration: 3
// attempts, multiplier 2.0, base delay 1s, max delay 30s. These defaults are
// documented, not normatively tested; callers needing different behavior
// should construct their own RetryPolicy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		BaseDelay:   time.Second,
		Multiplier:  2.0,
		MaxDelay:    30 * time.Second,
		MaxAttempts: 3,
	}
}

// Delay computes the backoff delay before the given attempt number
// (1-indexed: attempt 1 is the first retry after the initial failure).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(attempt-1))
	if d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	return time.Duration(d)
}

// IsTransient reports whether err is an *agenterrors.LLMTransientError,
// the only kind this policy retries.
func IsTransient(err error) bool {
	var transient *agenterrors.LLMTransientError
	return errors.As(err, &transient)
}

// RetryingExecutor wraps an Executor, retrying Execute calls that fail with
// a transient LLM error according to Policy. Streaming, multiple-choice,
// moderation, and embedding calls are passed through unmodified: the retry
// policy is specified only for the LLM boundary's single-response path.
type RetryingExecutor struct {
	Inner    Executor
	Policy   RetryPolicy
	Provider telemetry.Provider
}

// NewRetryingExecutor wraps inner with the given retry policy and telemetry
// provider. A zero telemetry.Provider is accepted: with a nil Logger, retry
// attempts are simply not logged.
func NewRetryingExecutor(inner Executor, policy RetryPolicy, provider telemetry.Provider) *RetryingExecutor {
	return &RetryingExecutor{Inner: inner, Policy: policy, Provider: provider}
}

// Execute retries transient failures with exponential backoff, honoring
// ctx cancellation between attempts.
func (r *RetryingExecutor) Execute(ctx context.Context, prompt agent.Prompt, model LLModel, descriptors []tools.ToolDescriptor) ([]agent.Message, error) {
	var lastErr error
	maxAttempts := r.Policy.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		msgs, err := r.Inner.Execute(ctx, prompt, model, descriptors)
		if err == nil {
			return msgs, nil
		}
		lastErr = err
		if !IsTransient(err) || attempt == maxAttempts {
			return nil, err
		}
		if r.Provider.Logger != nil {
			r.Provider.Logger.Warn(ctx, "llm: retrying after transient error", "attempt", attempt, "error", err.Error())
		}
		delay := r.Policy.Delay(attempt)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, lastErr
}

// ExecuteStreaming delegates directly to the wrapped executor.
func (r *RetryingExecutor) ExecuteStreaming(ctx context.Context, prompt agent.Prompt, model LLModel) (stream.LazySequence[string], error) {
	return r.Inner.ExecuteStreaming(ctx, prompt, model)
}

// ExecuteMultipleChoices delegates directly to the wrapped executor.
func (r *RetryingExecutor) ExecuteMultipleChoices(ctx context.Context, prompt agent.Prompt, model LLModel, descriptors []tools.ToolDescriptor) ([]Choice, error) {
	return r.Inner.ExecuteMultipleChoices(ctx, prompt, model, descriptors)
}

// Moderate delegates directly to the wrapped executor.
func (r *RetryingExecutor) Moderate(ctx context.Context, prompt agent.Prompt, model LLModel) (ModerationResult, error) {
	return r.Inner.Moderate(ctx, prompt, model)
}

// Embed delegates directly to the wrapped executor.
func (r *RetryingExecutor) Embed(ctx context.Context, text string, model LLModel) ([]float64, error) {
	return r.Inner.Embed(ctx, text, model)
}

// RateLimitedExecutor paces outgoing Execute calls through a token-bucket
// limiter, protecting provider adapters from bursty callers ahead of the
// provider's own rate limiting. Wrap a RetryingExecutor with this when a
// host needs client-side pacing in addition to retry-on-429 behavior.
type RateLimitedExecutor struct {
	Executor
	limiter *rate.Limiter
}

// NewRateLimitedExecutor wraps inner with a limiter allowing up to rps
// requests per second with the given burst capacity.
func NewRateLimitedExecutor(inner Executor, rps float64, burst int) *RateLimitedExecutor {
	return &RateLimitedExecutor{Executor: inner, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

// Execute waits for a limiter token before delegating to the wrapped
// executor.
func (r *RateLimitedExecutor) Execute(ctx context.Context, prompt agent.Prompt, model LLModel, descriptors []tools.ToolDescriptor) ([]agent.Message, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.Executor.Execute(ctx, prompt, model, descriptors)
}
