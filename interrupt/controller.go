// Package interrupt models human-in-the-loop pause/resume distinct from
// plain cancellation: a node that needs external input blocks on a
// Controller's Wait* method until a host delivers the answer through the
// matching Deliver* call. The Runner neither checkpoints nor suspends on
// its own; a host that wants to persist a blocked Run takes
// Runner.Checkpoint while the node waits and later drives a new Runner from
// that checkpoint with RunFromCheckpoint. This is
// additive to the Checkpoint contract — it introduces no new invariant
// beyond what the existing Checkpoint/restore boundary already allows.
package interrupt

import (
	"context"
	"errors"
	"sync"

	"github.com/agentkit/agentrt/agent"
)

// ErrClosed is returned by Wait* calls once the Controller has been closed.
var ErrClosed = errors.New("interrupt: controller closed")

// PauseRequest carries the reason a Run is being asked to pause.
type PauseRequest struct {
	RunID       string
	Reason      string
	RequestedBy string
	Labels      map[string]string
}

// ResumeRequest carries the signal that resumes a paused Run, optionally
// injecting new messages before the strategy continues.
type ResumeRequest struct {
	RunID       string
	Notes       string
	RequestedBy string
	Messages    []agent.Message
}

// ClarificationAnswer carries a human's answer to a clarifying question
// raised via agent.RetryHint.ClarifyingQuestion.
type ClarificationAnswer struct {
	RunID  string
	ID     string
	Answer string
}

// ToolResultsSet carries externally-supplied tool results for a Run that
// suspended awaiting them (e.g. a tool requiring out-of-process approval).
type ToolResultsSet struct {
	RunID   string
	ID      string
	Results []agent.Message
}

// Controller is an in-process, channel-based await point a Runner's
// AgentEnvironment can expose to nodes that need to suspend for external
// input. Unlike the teacher's Temporal-signal-backed controller, this
// Controller delivers values over buffered Go channels local to one
// process — distributed delivery is a host's concern, layered on top by
// forwarding into Deliver* from whatever transport the host uses (HTTP
// callback, message queue, CLI prompt).
type Controller struct {
	mu     sync.Mutex
	closed bool

	pause   chan PauseRequest
	resume  chan ResumeRequest
	clarify chan ClarificationAnswer
	results chan ToolResultsSet
}

// NewController returns a Controller with reasonably-sized internal
// buffers so DeliverPause et al. do not block the caller under normal
// operation.
func NewController() *Controller {
	return &Controller{
		pause:   make(chan PauseRequest, 8),
		resume:  make(chan ResumeRequest, 8),
		clarify: make(chan ClarificationAnswer, 8),
		results: make(chan ToolResultsSet, 8),
	}
}

// Close unblocks every pending and future Wait* call with ErrClosed.
// Idempotent.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.pause)
	close(c.resume)
	close(c.clarify)
	close(c.results)
}

// DeliverPause enqueues a pause request for PollPause/WaitPause to observe.
func (c *Controller) DeliverPause(req PauseRequest) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.pause <- req:
	default:
	}
}

// DeliverResume enqueues a resume request for WaitResume to observe.
func (c *Controller) DeliverResume(req ResumeRequest) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.resume <- req:
	default:
	}
}

// DeliverClarification enqueues a clarification answer for
// WaitProvideClarification to observe.
func (c *Controller) DeliverClarification(ans ClarificationAnswer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.clarify <- ans:
	default:
	}
}

// DeliverToolResults enqueues external tool results for
// WaitProvideToolResults to observe.
func (c *Controller) DeliverToolResults(rs ToolResultsSet) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.results <- rs:
	default:
	}
}

// PollPause dequeues a pending pause request without blocking.
func (c *Controller) PollPause() (PauseRequest, bool) {
	select {
	case req, ok := <-c.pause:
		return req, ok
	default:
		return PauseRequest{}, false
	}
}

// WaitResume blocks until a resume request arrives, ctx is cancelled, or
// the Controller is closed.
func (c *Controller) WaitResume(ctx context.Context) (ResumeRequest, error) {
	select {
	case <-ctx.Done():
		return ResumeRequest{}, ctx.Err()
	case req, ok := <-c.resume:
		if !ok {
			return ResumeRequest{}, ErrClosed
		}
		return req, nil
	}
}

// WaitProvideClarification blocks until a clarification answer arrives,
// ctx is cancelled, or the Controller is closed.
func (c *Controller) WaitProvideClarification(ctx context.Context) (ClarificationAnswer, error) {
	select {
	case <-ctx.Done():
		return ClarificationAnswer{}, ctx.Err()
	case ans, ok := <-c.clarify:
		if !ok {
			return ClarificationAnswer{}, ErrClosed
		}
		return ans, nil
	}
}

// WaitProvideToolResults blocks until external tool results arrive, ctx is
// cancelled, or the Controller is closed.
func (c *Controller) WaitProvideToolResults(ctx context.Context) (ToolResultsSet, error) {
	select {
	case <-ctx.Done():
		return ToolResultsSet{}, ctx.Err()
	case rs, ok := <-c.results:
		if !ok {
			return ToolResultsSet{}, ErrClosed
		}
		return rs, nil
	}
}
