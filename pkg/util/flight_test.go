package util

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type flightResult struct {
	val any
	err error
}

// startFlight calls Do for key "k" in a goroutine.
func startFlight(g *FlightGroup, ctx context.Context, fn func(context.Context) (any, error)) <-chan flightResult {
	out := make(chan flightResult, 1)
	go func() {
		v, err := g.Do(ctx, "k", fn)
		out <- flightResult{v, err}
	}()
	return out
}

func TestFlightGroupSurvivesOneCallerLeaving(t *testing.T) {
	var g FlightGroup
	var runs atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	fn := func(ctx context.Context) (any, error) {
		if runs.Add(1) == 1 {
			close(started)
		}
		select {
		case <-release:
			return "ok", nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	ctxA, cancelA := context.WithCancel(context.Background())
	a := startFlight(&g, ctxA, fn)
	<-started
	b := startFlight(&g, context.Background(), fn)
	require.Eventually(t, func() bool { return g.Waiters("k") == 2 }, 5*time.Second, 5*time.Millisecond)

	cancelA()
	resA := <-a
	require.ErrorIs(t, resA.err, context.Canceled)

	close(release)
	resB := <-b
	require.NoError(t, resB.err)
	require.Equal(t, "ok", resB.val)
	require.Equal(t, int32(1), runs.Load())
}

func TestFlightGroupCancelledWhenAllCallersLeave(t *testing.T) {
	var g FlightGroup
	started := make(chan struct{})
	stopped := make(chan error, 1)
	fn := func(ctx context.Context) (any, error) {
		close(started)
		<-ctx.Done()
		stopped <- ctx.Err()
		return nil, ctx.Err()
	}

	ctx, cancel := context.WithCancel(context.Background())
	res := startFlight(&g, ctx, fn)
	<-started
	cancel()

	require.ErrorIs(t, (<-res).err, context.Canceled)
	select {
	case err := <-stopped:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("shared call not cancelled after its last caller left")
	}
}

func TestFlightGroupCancelStartsFreshCall(t *testing.T) {
	var g FlightGroup
	var runs atomic.Int32
	started := make(chan struct{}, 2)
	fn := func(ctx context.Context) (any, error) {
		n := runs.Add(1)
		started <- struct{}{}
		if n == 1 {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return "fresh", nil
	}

	stale := startFlight(&g, context.Background(), fn)
	<-started
	g.Cancel("k")
	require.ErrorIs(t, (<-stale).err, context.Canceled)

	v, err := g.Do(context.Background(), "k", fn)
	require.NoError(t, err)
	require.Equal(t, "fresh", v)
	require.Equal(t, int32(2), runs.Load())

	// Cancelling an idle key is a no-op.
	g.Cancel("k")
}

func TestFlightGroupCancelDoesNotDetachNewerCall(t *testing.T) {
	var g FlightGroup
	staleStarted := make(chan struct{})
	staleRelease := make(chan struct{})
	freshRelease := make(chan struct{})
	var runs atomic.Int32
	fn := func(ctx context.Context) (any, error) {
		if runs.Add(1) == 1 {
			close(staleStarted)
			<-staleRelease
			return "stale", nil
		}
		select {
		case <-freshRelease:
			return "fresh", nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	stale := startFlight(&g, context.Background(), fn)
	<-staleStarted
	g.Cancel("k")

	fresh := startFlight(&g, context.Background(), fn)
	require.Eventually(t, func() bool { return runs.Load() == 2 }, 5*time.Second, 5*time.Millisecond)

	// The stale call finishing must not drop or cancel the fresh one.
	close(staleRelease)
	require.Equal(t, "stale", (<-stale).val)
	joined := startFlight(&g, context.Background(), fn)
	require.Eventually(t, func() bool { return g.Waiters("k") == 2 }, 5*time.Second, 5*time.Millisecond)

	close(freshRelease)
	require.Equal(t, "fresh", (<-fresh).val)
	require.Equal(t, "fresh", (<-joined).val)
	require.Equal(t, int32(2), runs.Load())
}
