package subscribe

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// dispatcher decides how notification handlers run. Both adapters share
// the same session loop.
type dispatcher interface {
	runContext() context.Context
	dispatch(fn func(ctx context.Context) error) error
	wait() error
}

type syncDispatcher struct {
	ctx context.Context
}

func newSyncDispatcher(ctx context.Context) *syncDispatcher {
	return &syncDispatcher{ctx: ctx}
}

func (d *syncDispatcher) runContext() context.Context {
	return d.ctx
}

func (d *syncDispatcher) dispatch(fn func(ctx context.Context) error) error {
	return fn(d.ctx)
}

func (d *syncDispatcher) wait() error {
	return nil
}

type groupDispatcher struct {
	g   *errgroup.Group
	ctx context.Context
}

func newGroupDispatcher(ctx context.Context) *groupDispatcher {
	g, gctx := errgroup.WithContext(ctx)
	return &groupDispatcher{g: g, ctx: gctx}
}

func (d *groupDispatcher) runContext() context.Context {
	return d.ctx
}

func (d *groupDispatcher) dispatch(fn func(ctx context.Context) error) error {
	d.g.Go(func() error {
		return fn(d.ctx)
	})
	return nil
}

func (d *groupDispatcher) wait() error {
	return d.g.Wait()
}
