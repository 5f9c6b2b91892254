package hooks

import (
	"context"
	"fmt"
	"sync"

	"github.com/agentkit/agentrt/agenterrors"
)

// Outcome is a handler's verdict on a fired event: either Continue,
// optionally replacing the event payload, or Abort, which terminates the
// Run with FeatureAborted.
type Outcome struct {
	aborted    bool
	abortErr   error
	payload    any
	hasPayload bool
}

// Continue produces an outcome that lets the event proceed unchanged.
func Continue() Outcome { return Outcome{} }

// ContinueWith produces an outcome that replaces the event payload for
// downstream handlers and the caller.
func ContinueWith(payload any) Outcome { return Outcome{payload: payload, hasPayload: true} }

// Abort produces an outcome that terminates the Run. reason is surfaced on
// the resulting *agenterrors.FeatureAbortedError.
func Abort(reason string) Outcome { return Outcome{aborted: true, abortErr: fmt.Errorf("%s", reason)} }

// Handler reacts to a single fired event. It is invoked in the installation
// order of the feature that registered it.
type Handler func(ctx context.Context, payload any) (Outcome, error)

type registration struct {
	featureKey string
	handler    Handler
}

// Pipeline is the Feature Pipeline: an ordered, keyed set of handlers over
// the exhaustive lifecycle hook surface. Handlers are invoked in feature
// installation order; a feature may subscribe to any subset of hooks.
type Pipeline struct {
	mu       sync.RWMutex
	handlers map[Name][]registration
	order    []string
}

// NewPipeline constructs an empty Feature Pipeline.
func NewPipeline() *Pipeline {
	return &Pipeline{handlers: make(map[Name][]registration)}
}

// Install registers f's handlers on the pipeline. Features are installed in
// call order; handlers registered by a feature installed earlier run before
// those of a feature installed later, for every hook they share.
func (p *Pipeline) Install(f Feature) error {
	p.mu.Lock()
	for _, key := range p.order {
		if key == f.Key() {
			p.mu.Unlock()
			return fmt.Errorf("hooks: feature key %q already installed", f.Key())
		}
	}
	p.order = append(p.order, f.Key())
	p.mu.Unlock()
	return f.Install(p)
}

// On registers handler under hook for featureKey. It is called by a
// Feature's Install method, never directly by application code outside a
// Feature implementation.
func (p *Pipeline) On(hook Name, featureKey string, handler Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[hook] = append(p.handlers[hook], registration{featureKey: featureKey, handler: handler})
}

// Fire invokes every handler registered for hook, in installation order,
// passing payload (or the replacement from a prior Continue(payload)). It
// returns the final payload and an error, which is either a
// *agenterrors.FeatureAbortedError (a handler called Abort) or the error
// returned by a misbehaving handler. Callers route FeatureAbortedError to
// immediate Run termination and route any other error through
// on_agent_error, crashing only if agenterrors.IsFatal(err).
func (p *Pipeline) Fire(ctx context.Context, hook Name, payload any) (any, error) {
	p.mu.RLock()
	regs := make([]registration, len(p.handlers[hook]))
	copy(regs, p.handlers[hook])
	p.mu.RUnlock()

	current := payload
	for _, reg := range regs {
		outcome, err := p.invoke(ctx, reg.handler, current)
		if err != nil {
			return current, err
		}
		if outcome.aborted {
			return current, &agenterrors.FeatureAbortedError{FeatureKey: reg.featureKey, Reason: outcome.abortErr.Error()}
		}
		if outcome.hasPayload {
			current = outcome.payload
		}
	}
	return current, nil
}

// invoke calls handler, converting a panic into an error so one
// misbehaving handler cannot crash the Runner outright.
func (p *Pipeline) invoke(ctx context.Context, handler Handler, payload any) (outcome Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("hooks: handler panicked: %v", r)
		}
	}()
	return handler(ctx, payload)
}
