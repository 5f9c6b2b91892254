// Package telemetry integrates runtime lifecycle events with structured
// logging, metrics, and tracing. Implementations typically delegate to
// goa.design/clue/log and OpenTelemetry, but the interfaces are intentionally
// small so tests and alternative hosts can provide lightweight stubs.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Logger captures structured logging used throughout the runtime.
type Logger interface {
	Debug(ctx context.Context, msg string, keyvals ...any)
	Info(ctx context.Context, msg string, keyvals ...any)
	Warn(ctx context.Context, msg string, keyvals ...any)
	Error(ctx context.Context, msg string, keyvals ...any)
}

// Metrics exposes counter, timer, and gauge helpers for runtime instrumentation.
type Metrics interface {
	IncCounter(name string, value float64, tags ...string)
	RecordTimer(name string, duration time.Duration, tags ...string)
	RecordGauge(name string, value float64, tags ...string)
}

// Tracer abstracts span creation so runtime code stays agnostic of the
// underlying tracing provider.
type Tracer interface {
	Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, Span)
	Span(ctx context.Context) Span
}

// Span represents an in-flight tracing span.
type Span interface {
	End(opts ...trace.SpanEndOption)
	AddEvent(name string, attrs ...any)
	SetStatus(code codes.Code, description string)
	RecordError(err error, opts ...trace.EventOption)
}

// Provider bundles the logger, metrics recorder, and tracer an Agent Runner
// needs at construction. Hosts that do not care about one of the three may
// substitute the corresponding Noop implementation.
type Provider struct {
	Logger  Logger
	Metrics Metrics
	Tracer  Tracer
}

// NewNoopProvider returns a Provider whose components discard everything.
// Useful for tests and for hosts that have not wired observability yet.
func NewNoopProvider() Provider {
	return Provider{
		Logger:  NewNoopLogger(),
		Metrics: NewNoopMetrics(),
		Tracer:  NewNoopTracer(),
	}
}

// ToolTelemetry captures observability metadata collected during a single
// tool execution. The Extra map holds tool-specific data (API response
// headers, cache keys, provider details) that common fields do not capture.
type ToolTelemetry struct {
	// DurationMs is the wall-clock execution time in milliseconds.
	DurationMs int64
	// TokensUsed tracks the total tokens consumed by LLM calls made while
	// executing the tool (e.g. an agent-as-tool).
	TokensUsed int
	// Model identifies which LLM model was used, if any.
	Model string
	// Extra holds tool-specific metadata not captured by common fields.
	Extra map[string]any
}
