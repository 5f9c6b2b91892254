package interrupt_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/agentkit/agentrt/interrupt"
)

func TestController_PollPauseNonBlocking(t *testing.T) {
	c := interrupt.NewController()
	_, ok := c.PollPause()
	require.False(t, ok)

	c.DeliverPause(interrupt.PauseRequest{RunID: "run-1", Reason: "human review"})
	req, ok := c.PollPause()
	require.True(t, ok)
	require.Equal(t, "run-1", req.RunID)

	_, ok = c.PollPause()
	require.False(t, ok, "pause request must be consumed exactly once")
}

func TestController_WaitResumeDeliversAsynchronously(t *testing.T) {
	c := interrupt.NewController()
	go func() {
		time.Sleep(5 * time.Millisecond)
		c.DeliverResume(interrupt.ResumeRequest{RunID: "run-1", Notes: "continue"})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	req, err := c.WaitResume(ctx)
	require.NoError(t, err)
	require.Equal(t, "continue", req.Notes)
}

func TestController_WaitResumeRespectsContextCancellation(t *testing.T) {
	c := interrupt.NewController()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	_, err := c.WaitResume(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestController_CloseUnblocksWaiters(t *testing.T) {
	c := interrupt.NewController()
	errCh := make(chan error, 1)
	go func() {
		_, err := c.WaitProvideClarification(context.Background())
		errCh <- err
	}()

	time.Sleep(5 * time.Millisecond)
	c.Close()

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, interrupt.ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("Close did not unblock WaitProvideClarification")
	}
}

func TestController_DeliverAfterCloseIsNoop(t *testing.T) {
	c := interrupt.NewController()
	c.Close()
	require.NotPanics(t, func() {
		c.DeliverPause(interrupt.PauseRequest{RunID: "run-1"})
		c.DeliverResume(interrupt.ResumeRequest{RunID: "run-1"})
	})
}
