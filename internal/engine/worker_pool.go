package engine

import (
	"context"
)

// WorkerPool bounds how many batch evaluations run at once
type WorkerPool struct {
	workers int
	slots   chan struct{}
}

// NewWorkerPool creates a new worker pool
func NewWorkerPool(workers int) *WorkerPool {
	if workers <= 0 {
		workers = 16
	}

	return &WorkerPool{
		workers: workers,
		slots:   make(chan struct{}, workers),
	}
}

// Submit runs task on its own goroutine once a slot is free. It returns false
// without running the task if the context ends first.
func (p *WorkerPool) Submit(ctx context.Context, task func()) bool {
	select {
	case p.slots <- struct{}{}:
	case <-ctx.Done():
		return false
	}

	go func() {
		defer func() { <-p.slots }()
		task()
	}()
	return true
}

// Workers returns the number of workers
func (p *WorkerPool) Workers() int {
	return p.workers
}
