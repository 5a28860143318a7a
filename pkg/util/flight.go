package util

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// FlightGroup coalesces concurrent calls with the same key, like
// singleflight.Group, but the shared call runs on its own context. That
// context outlives any single caller: it is cancelled once every waiter
// has left, or when Cancel is called for the key.
type FlightGroup struct {
	sf singleflight.Group

	mu    sync.Mutex
	calls map[string]*flight
}

type flight struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

// Do runs fn once for all concurrent callers of key. A caller whose ctx ends
// first returns ctx.Err() without affecting the others.
func (g *FlightGroup) Do(ctx context.Context, key string, fn func(ctx context.Context) (any, error)) (any, error) {
	g.mu.Lock()
	if g.calls == nil {
		g.calls = make(map[string]*flight)
	}
	f, ok := g.calls[key]
	if !ok {
		fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		f = &flight{ctx: fctx, cancel: cancel}
		g.calls[key] = f
	}
	f.waiters++
	ch := g.sf.DoChan(key, func() (any, error) {
		defer g.finish(key, f)
		return fn(f.ctx)
	})
	g.mu.Unlock()

	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		g.leave(key, f)
		return nil, ctx.Err()
	}
}

// Cancel detaches the call in flight for key, if any, and cancels its
// context. Waiters already joined still get its result; the next Do starts
// a new call.
func (g *FlightGroup) Cancel(key string) {
	g.mu.Lock()
	f, ok := g.calls[key]
	if ok {
		g.detachLocked(key, f)
	}
	g.mu.Unlock()
	if ok {
		f.cancel()
	}
}

// Waiters returns how many callers wait on the call in flight for key.
func (g *FlightGroup) Waiters(key string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	if f, ok := g.calls[key]; ok {
		return f.waiters
	}
	return 0
}

func (g *FlightGroup) leave(key string, f *flight) {
	g.mu.Lock()
	f.waiters--
	last := f.waiters == 0
	if last {
		g.detachLocked(key, f)
	}
	g.mu.Unlock()
	if last {
		f.cancel()
	}
}

func (g *FlightGroup) finish(key string, f *flight) {
	g.mu.Lock()
	g.detachLocked(key, f)
	g.mu.Unlock()
	f.cancel()
}

// detachLocked only touches key while it still belongs to f.
func (g *FlightGroup) detachLocked(key string, f *flight) {
	if g.calls[key] != f {
		return
	}
	delete(g.calls, key)
	g.sf.Forget(key)
}
