// Package runner implements the Agent Runner: the reentrancy-safe
// programmatic surface (run/cancel/checkpoint/restore/install_feature) that
// wires a Strategy, a Tool Registry, an LLM Executor, and a Feature Pipeline
// together into one executable agent.
package runner

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/agentkit/agentrt/agent"
	"github.com/agentkit/agentrt/agenterrors"
	"github.com/agentkit/agentrt/checkpoint"
	"github.com/agentkit/agentrt/environment"
	"github.com/agentkit/agentrt/hooks"
	"github.com/agentkit/agentrt/interrupt"
	"github.com/agentkit/agentrt/llm"
	"github.com/agentkit/agentrt/run"
	"github.com/agentkit/agentrt/session"
	"github.com/agentkit/agentrt/strategy"
	"github.com/agentkit/agentrt/telemetry"
	"github.com/agentkit/agentrt/tools"
	"github.com/google/uuid"
)

// ErrRunnerBusy is returned by Run when the Runner is already serving a Run;
// a single Runner serves one Run at a time.
var ErrRunnerBusy = errors.New("runner: busy serving another run")

// Result is the user-visible outcome of a Run: always exactly one of
// Completed(output), Failed(error), or Cancelled.
type Result struct {
	Output    any
	Err       error
	Cancelled bool
}

// Runner is the Agent Runner. It is reentrancy-safe — Cancel and Checkpoint
// may be called from another goroutine while Run executes — but only one
// Run may be in flight at a time.
type Runner struct {
	AgentID       string
	Strategy      *strategy.Strategy
	Registry      *tools.Registry
	Executor      llm.Executor
	Pipeline      *hooks.Pipeline
	Provider      telemetry.Provider
	MaxIterations int
	MaxDepth      int

	// AwaitController, when set, is attached to every Run's Environment so
	// a node such as strategy.AwaitResumeNode can suspend for external
	// input (human review, a clarifying answer, out-of-process tool
	// results). A Runner serves one Run at a time, so a single Controller
	// unambiguously addresses "the current Run"; a host driving multiple
	// concurrent Runners gives each its own Controller.
	AwaitController *interrupt.Controller

	// Sessions, SessionID and TurnID, when Sessions is non-nil, make every
	// Run recorded as a run.Record under the named conversation: Running at
	// the start of run(), then Completed/Failed/Cancelled at finish. A
	// standalone Runner (no conversation grouping) leaves Sessions nil and
	// pays no session-tracking cost.
	Sessions  session.Store
	SessionID string
	TurnID    string

	mu          sync.Mutex
	busy        bool
	current     *activeRun
	lastHistory []agent.Message
}

// activeRun tracks the state of the Run currently in flight, updated by an
// internal feature hook so Checkpoint can snapshot progress mid-Run.
type activeRun struct {
	runID      string
	env        *environment.AgentEnvironment
	storage    *hooks.RunStorage
	subgraph   string
	node       string
	nodeInput  any
	cancelFunc context.CancelFunc
}

// New constructs a Runner. It installs an internal feature on pipeline that
// tracks the active node/subgraph/input for Checkpoint; callers must not
// reuse the same *hooks.Pipeline across multiple Runners.
func New(agentID string, s *strategy.Strategy, registry *tools.Registry, executor llm.Executor, pipeline *hooks.Pipeline, provider telemetry.Provider) *Runner {
	r := &Runner{
		AgentID:  agentID,
		Strategy: s,
		Registry: registry,
		Executor: executor,
		Pipeline: pipeline,
		Provider: provider,
	}
	pipeline.On(hooks.OnBeforeNode, "runner.checkpoint-tracker", func(ctx context.Context, payload any) (hooks.Outcome, error) {
		evt, ok := payload.(hooks.BeforeNodeEvent)
		if !ok {
			return hooks.Continue(), nil
		}
		r.mu.Lock()
		if r.current != nil {
			r.current.node = evt.Node
			r.current.subgraph = evt.Subgraph
			r.current.nodeInput = evt.Input
		}
		r.mu.Unlock()
		return hooks.Continue(), nil
	})
	return r
}

// Run drives the strategy's entry subgraph to completion against input,
// returning the user-visible Result. Concurrent callers while a Run is in
// flight receive ErrRunnerBusy.
func (r *Runner) Run(ctx context.Context, input any) (Result, error) {
	return r.run(ctx, input, agent.NewPrompt(), "", "")
}

// resumePoint, when non-empty, positions the interpreter at an arbitrary
// node within the named subgraph instead of the strategy's entry point; it
// is used by restored runs.
func (r *Runner) run(ctx context.Context, input any, initialPrompt agent.Prompt, resumeSubgraph, resumeNode string) (Result, error) {
	r.mu.Lock()
	if r.busy {
		r.mu.Unlock()
		return Result{}, ErrRunnerBusy
	}
	r.busy = true
	runCtx, cancel := context.WithCancel(ctx)
	runID := uuid.NewString()
	storage := hooks.NewRunStorage()
	env := environment.New(runID, initialPrompt, llm.LLModel{}, r.Executor, r.Registry, r.Pipeline, r.Provider)
	if r.AwaitController != nil {
		env.SetAwaitController(r.AwaitController)
	}
	r.current = &activeRun{runID: runID, env: env, storage: storage, cancelFunc: cancel}
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.lastHistory = env.History()
		r.busy = false
		r.current = nil
		r.mu.Unlock()
		cancel()
	}()

	startedAt := time.Now().UTC()
	r.recordRun(runCtx, runID, run.StatusRunning, startedAt)

	if _, err := r.Pipeline.Fire(runCtx, hooks.OnAgentStart, hooks.AgentStartEvent{
		StrategyName: r.Strategy.Name, AgentID: r.AgentID, RunID: runID,
	}); err != nil {
		return r.finish(runCtx, runID, Result{Err: err}, err)
	}

	in := strategy.NewInterpreter(r.Pipeline)
	if r.MaxIterations > 0 {
		in.MaxIterations = r.MaxIterations
	}
	if r.MaxDepth > 0 {
		in.MaxDepth = r.MaxDepth
	}

	var (
		output any
		err    error
	)
	if resumeSubgraph != "" {
		output, err = in.ResumeAt(runCtx, env, r.Strategy, resumeSubgraph, resumeNode, input)
	} else {
		output, err = in.Run(runCtx, env, r.Strategy, input)
	}
	result := Result{Output: output, Err: err}
	if errors.Is(err, agenterrors.Cancelled) {
		result = Result{Cancelled: true}
		result.Err = nil
	}
	return r.finish(runCtx, runID, result, err)
}

func (r *Runner) finish(ctx context.Context, runID string, result Result, runErr error) (Result, error) {
	if runErr != nil && !result.Cancelled {
		r.recordRun(ctx, runID, run.StatusFailed, time.Now().UTC())
		if _, fireErr := r.Pipeline.Fire(ctx, hooks.OnAgentError, hooks.AgentErrorEvent{
			StrategyName: r.Strategy.Name, RunID: runID, Err: runErr,
		}); fireErr != nil {
			// A hook failing during error reporting must not mask the
			// original failure.
			_ = fireErr
		}
		return result, runErr
	}
	if result.Cancelled {
		r.recordRun(ctx, runID, run.StatusCancelled, time.Now().UTC())
	} else {
		r.recordRun(ctx, runID, run.StatusCompleted, time.Now().UTC())
	}
	if _, err := r.Pipeline.Fire(ctx, hooks.OnAgentFinish, hooks.AgentFinishEvent{
		StrategyName: r.Strategy.Name, RunID: runID, Result: result.Output, Cancelled: result.Cancelled,
	}); err != nil {
		return result, err
	}
	return result, nil
}

// recordRun upserts status into Sessions, if configured, swallowing the
// store error: a session-tracking failure must never fail the Run itself,
// it is host-observable bookkeeping layered on top of the Run lifecycle the
// Checkpoint contract already makes durable.
func (r *Runner) recordRun(ctx context.Context, runID string, status run.Status, at time.Time) {
	if r.Sessions == nil {
		return
	}
	_ = r.Sessions.UpsertRun(ctx, run.Record{
		RunID:     runID,
		AgentID:   r.AgentID,
		SessionID: r.SessionID,
		TurnID:    r.TurnID,
		Status:    status,
		StartedAt: at,
		UpdatedAt: at,
	})
}

// Cancel requests cooperative cancellation of the in-flight Run, if any.
// It is a no-op when no Run is active.
func (r *Runner) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return
	}
	r.current.env.Cancel()
	r.current.cancelFunc()
}

// Checkpoint captures the in-flight Run's state per the checkpoint wire
// contract. It returns an error if no Run is active.
func (r *Runner) Checkpoint() (checkpoint.Checkpoint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return checkpoint.Checkpoint{}, errors.New("runner: no run in flight to checkpoint")
	}
	storageSnapshot := make(map[string]any)
	// RunStorage does not expose enumeration by design (features only know
	// their own key); a runner-level snapshot is limited to what features
	// explicitly publish back through feature_storage-aware hooks. Hosts
	// that need durable feature state export it via their own feature.
	return checkpoint.New(
		r.current.runID,
		r.AgentID,
		r.Strategy.Name,
		r.current.subgraph,
		r.current.node,
		r.current.nodeInput,
		r.current.env.History(),
		storageSnapshot,
		time.Now().UTC(),
	)
}

// Restore builds a new Runner for cp's strategy. Per the Run lifecycle
// invariant, restoring never resumes the original Run id; callers drive the
// returned Runner to completion with RunFromCheckpoint, which starts a
// fresh Run positioned at cp's node boundary.
func Restore(cp checkpoint.Checkpoint, s *strategy.Strategy, registry *tools.Registry, executor llm.Executor, pipeline *hooks.Pipeline, provider telemetry.Provider) *Runner {
	return New(cp.AgentID, s, registry, executor, pipeline, provider)
}

// RunFromCheckpoint rebuilds cp's message history and drives the strategy
// to completion from cp's node boundary, with cp's current_input as the
// value that node receives.
func (r *Runner) RunFromCheckpoint(ctx context.Context, cp checkpoint.Checkpoint) (Result, error) {
	prompt := agent.NewPrompt().AppendAll(cp.MessagesAsAgent()...)

	var currentInput any
	if err := cp.DecodeCurrentInput(&currentInput); err != nil {
		return Result{}, err
	}

	return r.run(ctx, currentInput, prompt, cp.CurrentSubgraph, cp.CurrentNode)
}

// InstallFeature installs f on the Runner's pipeline, in installation
// order, before any Run begins.
func (r *Runner) InstallFeature(f hooks.Feature) error {
	return r.Pipeline.Install(f)
}

// History returns the message history of the most recently completed (or
// failed, or cancelled) Run. It is empty until a Run has finished at least
// once.
func (r *Runner) History() []agent.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastHistory
}
