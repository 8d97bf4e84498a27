package engine

import (
	"context"
	"sync"
)

// Pool is a fixed set of worker goroutines created once per session.
type Pool struct {
	tasks chan func()
	wg    sync.WaitGroup
	once  sync.Once
}

// NewPool starts n workers.
func NewPool(n int) *Pool {
	if n <= 0 {
		n = DefaultWorkers
	}
	p := &Pool{tasks: make(chan func())}
	p.wg.Add(n)
	for range n {
		go func() {
			defer p.wg.Done()
			for task := range p.tasks {
				task()
			}
		}()
	}
	return p
}

// Submit hands fn to an idle worker, blocking until one is free or ctx is
// done.
func (p *Pool) Submit(ctx context.Context, fn func()) error {
	select {
	case p.tasks <- fn:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the workers after running tasks finish. Submit must not be
// called after Close.
func (p *Pool) Close() {
	p.once.Do(func() {
		close(p.tasks)
		p.wg.Wait()
	})
}
