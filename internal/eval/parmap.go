package eval

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/nicolagi/vesta/internal/deppath"
	"github.com/nicolagi/vesta/internal/value"
)

// ParMap evaluates "par_map(f, list)" (spec.md's concurrent counterpart of
// foreach): f is applied to every element of list concurrently, bounded by
// maxThreads in flight at a time (spec.md's -maxthreads), via
// golang.org/x/sync/errgroup the way the teacher's repository client bounds
// concurrent block fetches. The first element error aborts the remaining
// work and is returned; results otherwise preserve list order.
func (e *Evaluator) ParMap(ctx value.Context, fn value.Closure, list value.List, maxThreads int) (value.Value, error) {
	if maxThreads <= 0 {
		maxThreads = 1
	}
	out := make([]value.Value, list.Len())
	g, gctx := errgroup.WithContext(context.Background())
	g.SetLimit(maxThreads)
	for i, el := range list.Elems {
		i, el := i, el
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			// Each par_map element runs as its own worker thread (spec.md
			// §5): when caching is on, it gets a ThreadData child of the
			// coordinator's, and hands any leftover orphans up on Retire
			// (spec.md §4.3's unclaimed_child_orphanCIs).
			worker := e
			if e.Cache != nil {
				child := *e
				child.TD = e.Cache.Spawn(e.TD)
				worker = &child
				defer e.Cache.Retire(child.TD)
			}
			elv := value.Extend(list, el, deppath.IndexArc(i), deppath.Norm, false)
			v, err := worker.applyClosure(fn, []namedArg{{value: elv}})
			if err != nil {
				return err
			}
			out[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return value.NewFatalError(value.ClassDomain, "par_map: %v", err), err
	}
	var deps = list.Deps()
	for _, v := range out {
		deps = deps.Union(v.Deps())
	}
	return value.MergeAndLen(value.NewList(out).WithDeps(deps), list), nil
}
