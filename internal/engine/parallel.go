package engine

import (
	"context"
	"errors"
	"sync"

	"github.com/roach88/icrepl/internal/ir"
)

// callTask is one prepared entry of a parallel call.
type callTask func(ctx context.Context) (ir.Value, error)

// evalParCall prepares every call on the evaluation goroutine, then runs
// them on the session pool.
func (e *Env) evalParCall(ctx context.Context, p ir.ExpParCall) (ir.Value, error) {
	s := e.session
	tasks := make([]callTask, 0, len(p.Calls))
	for _, c := range p.Calls {
		args, err := e.evalArgs(ctx, c.Args)
		if err != nil {
			return nil, err
		}
		info, err := e.resolveMethod(ctx, c.Method, false)
		if err != nil {
			return nil, err
		}
		arg, err := encodeArgs(info, args)
		if err != nil {
			return nil, err
		}
		method := c.Method.Method
		if s.offline {
			vals, err := s.invoke(ctx, info, method, arg)
			if err != nil {
				return nil, err
			}
			tasks = append(tasks, func(context.Context) (ir.Value, error) { return ir.ArgsToValue(vals), nil })
			continue
		}
		tasks = append(tasks, func(ctx context.Context) (ir.Value, error) {
			vals, err := s.invoke(ctx, info, method, arg)
			if err != nil {
				return nil, err
			}
			return ir.ArgsToValue(vals), nil
		})
	}
	results, err := s.runBatch(ctx, tasks)
	if err != nil {
		return nil, err
	}
	return ir.Tuple(results...), nil
}

// errSkipped marks a task that never started because the batch failed.
var errSkipped = errors.New("skipped")

// runBatch runs tasks on the pool and returns their results in submission
// order. On the first failure the batch context is cancelled so that
// tasks not yet started are skipped; tasks already running are awaited.
// The returned error is that of the earliest failed task in submission
// order, ignoring failures caused by the cancellation itself.
func (s *Session) runBatch(ctx context.Context, tasks []callTask) ([]ir.Value, error) {
	batchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([]ir.Value, len(tasks))
	errs := make([]error, len(tasks))
	var failed sync.Once
	var wg sync.WaitGroup
	for i, task := range tasks {
		wg.Add(1)
		err := s.pool.Submit(batchCtx, func() {
			defer wg.Done()
			if batchCtx.Err() != nil {
				errs[i] = errSkipped
				return
			}
			v, err := task(batchCtx)
			if err != nil {
				errs[i] = err
				failed.Do(cancel)
				return
			}
			results[i] = v
		})
		if err != nil {
			wg.Done()
			errs[i] = errSkipped
		}
	}
	wg.Wait()

	cancelled := batchCtx.Err() != nil && ctx.Err() == nil
	var first error
	for _, err := range errs {
		if err == nil || errors.Is(err, errSkipped) {
			continue
		}
		if cancelled && errors.Is(err, context.Canceled) {
			if first == nil {
				first = err
			}
			continue
		}
		return nil, transport(err)
	}
	if first != nil {
		return nil, transport(first)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}
