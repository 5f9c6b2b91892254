package strategy

import (
	"context"
	"fmt"

	"github.com/agentkit/agentrt/environment"
)

// AwaitResumeNode suspends the Run until an external resume signal arrives
// on the Environment's AwaitController, implementing the
// pause-via-external-awaits extension: a host observes the Run is blocked
// here (e.g. via Runner.Checkpoint, taken concurrently while this node is
// in flight), delivers a human decision out of band, then calls
// interrupt.Controller.DeliverResume to unblock it. Its output is the
// resuming agent.Message slice carried on the ResumeRequest, or input
// unchanged if the resume carried none.
type AwaitResumeNode struct {
	NodeName string
}

// NewAwaitResumeNode constructs an await_resume node.
func NewAwaitResumeNode(name string) *AwaitResumeNode { return &AwaitResumeNode{NodeName: name} }

// Name returns the node's unique name.
func (n *AwaitResumeNode) Name() string { return n.NodeName }

// Run blocks on WaitResume until a resume request arrives, ctx is
// cancelled, or the Run's Environment has no AwaitController configured, in
// which case it fails fast rather than blocking a Run nobody can resume.
func (n *AwaitResumeNode) Run(ctx context.Context, env environment.Environment, input any) (any, error) {
	controller := env.AwaitController()
	if controller == nil {
		return nil, fmt.Errorf("strategy: await_resume node %q requires a Runner configured with an AwaitController", n.NodeName)
	}
	req, err := controller.WaitResume(ctx)
	if err != nil {
		return nil, err
	}
	if len(req.Messages) == 0 {
		return input, nil
	}
	return req.Messages, nil
}
