package hooks

import (
	"context"
	"errors"
	"testing"

	"github.com/agentkit/agentrt/agenterrors"
	"github.com/stretchr/testify/require"
)

type recordingFeature struct {
	key    string
	onFire func(ctx context.Context, payload any) (Outcome, error)
	log    *[]string
}

func (f *recordingFeature) Key() string { return f.key }

func (f *recordingFeature) Install(p *Pipeline) error {
	p.On(OnBeforeNode, f.key, func(ctx context.Context, payload any) (Outcome, error) {
		*f.log = append(*f.log, f.key)
		if f.onFire != nil {
			return f.onFire(ctx, payload)
		}
		return Continue(), nil
	})
	return nil
}

func TestPipeline_HandlersFireInInstallationOrder(t *testing.T) {
	p := NewPipeline()
	var log []string
	require.NoError(t, p.Install(&recordingFeature{key: "first", log: &log}))
	require.NoError(t, p.Install(&recordingFeature{key: "second", log: &log}))

	_, err := p.Fire(context.Background(), OnBeforeNode, "input")
	require.NoError(t, err)
	require.Equal(t, []string{"first", "second"}, log)
}

func TestPipeline_ContinueWithReplacesPayload(t *testing.T) {
	p := NewPipeline()
	var log []string
	require.NoError(t, p.Install(&recordingFeature{
		key: "replacer",
		log: &log,
		onFire: func(ctx context.Context, payload any) (Outcome, error) {
			return ContinueWith("replaced"), nil
		},
	}))

	out, err := p.Fire(context.Background(), OnBeforeNode, "original")
	require.NoError(t, err)
	require.Equal(t, "replaced", out)
}

func TestPipeline_AbortTerminatesWithFeatureAborted(t *testing.T) {
	p := NewPipeline()
	var log []string
	require.NoError(t, p.Install(&recordingFeature{
		key: "aborter",
		log: &log,
		onFire: func(ctx context.Context, payload any) (Outcome, error) {
			return Abort("policy violation"), nil
		},
	}))
	require.NoError(t, p.Install(&recordingFeature{key: "never-reached", log: &log}))

	_, err := p.Fire(context.Background(), OnBeforeNode, "input")
	require.Error(t, err)
	var abortErr *agenterrors.FeatureAbortedError
	require.ErrorAs(t, err, &abortErr)
	require.Equal(t, "aborter", abortErr.FeatureKey)
	require.Equal(t, []string{"aborter"}, log)
}

func TestPipeline_InstallRejectsDuplicateKey(t *testing.T) {
	p := NewPipeline()
	var log []string
	require.NoError(t, p.Install(&recordingFeature{key: "dup", log: &log}))
	require.Error(t, p.Install(&recordingFeature{key: "dup", log: &log}))
}

func TestPipeline_HandlerPanicBecomesError(t *testing.T) {
	p := NewPipeline()
	p.On(OnAfterNode, "panics", func(ctx context.Context, payload any) (Outcome, error) {
		panic("boom")
	})

	_, err := p.Fire(context.Background(), OnAfterNode, nil)
	require.Error(t, err)
}

func TestRunStorage_GetOrInitOnlyInitializesOnce(t *testing.T) {
	s := NewRunStorage()
	calls := 0
	init := func() any {
		calls++
		return "value"
	}
	v1 := s.GetOrInit("feature-a", init)
	v2 := s.GetOrInit("feature-a", init)

	require.Equal(t, 1, calls)
	require.Equal(t, v1, v2)
}

func TestPipeline_HandlerErrorPropagates(t *testing.T) {
	p := NewPipeline()
	wantErr := errors.New("handler failed")
	p.On(OnToolFailure, "failing", func(ctx context.Context, payload any) (Outcome, error) {
		return Outcome{}, wantErr
	})

	_, err := p.Fire(context.Background(), OnToolFailure, nil)
	require.ErrorIs(t, err, wantErr)
}
