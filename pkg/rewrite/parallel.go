package rewrite

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/odvcencio/reforge/pkg/object"
)

// prewarm rewrites the root trees of order on a pool of workers so that
// the sequential commit pass finds them in the entry cache. Each worker
// writes through its own inserter.
func (e *Engine) prewarm(ctx context.Context, order []object.Hash) error {
	workers := e.opts.Threads
	if workers > len(order) {
		workers = len(order)
	}
	e.log.Info("pre-warming root trees", "commits", len(order), "workers", workers)

	g, gctx := errgroup.WithContext(ctx)
	jobs := make(chan object.Hash)
	g.Go(func() error {
		defer close(jobs)
		for _, id := range order {
			select {
			case jobs <- id:
			case <-gctx.Done():
				return nil
			}
		}
		return nil
	})

	inserters := make([]object.Inserter, workers)
	for i := range inserters {
		ins := e.dst.NewInserter()
		inserters[i] = ins
		wctx := WithInserter(gctx, ins)
		g.Go(func() error {
			for id := range jobs {
				if gctx.Err() != nil {
					continue
				}
				if _, err := e.rewriteRoot(WithCommit(wctx, id), e.commits[id].TreeHash); err != nil {
					return err
				}
			}
			return nil
		})
	}

	err := g.Wait()
	for _, ins := range inserters {
		if ferr := ins.Flush(); ferr != nil && err == nil {
			err = contextError(ctx, "flush objects", ferr)
		}
		if cerr := ins.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}
	return err
}
