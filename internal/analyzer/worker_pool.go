package analyzer

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
)

// ErrPoolClosed is returned by Do after Close.
var ErrPoolClosed = errors.New("worker pool is closed")

// WorkerPool runs CPU-bound scoring jobs on a fixed set of goroutines
type WorkerPool struct {
	workers  int
	jobQueue chan func()
	pending  sync.WaitGroup
	running  sync.WaitGroup
	start    sync.Once
	stop     sync.Once

	mu     sync.RWMutex
	closed bool

	totalJobs     atomic.Int64
	completedJobs atomic.Int64
	activeWorkers atomic.Int64
}

// PoolStats is a snapshot of the pool counters.
type PoolStats struct {
	Workers       int   `json:"workers"`
	TotalJobs     int64 `json:"total_jobs"`
	CompletedJobs int64 `json:"completed_jobs"`
	ActiveWorkers int64 `json:"active_workers"`
}

// NewWorkerPool creates a new worker pool with the specified number of workers
func NewWorkerPool(workers int) *WorkerPool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	return &WorkerPool{
		workers:  workers,
		jobQueue: make(chan func(), workers*2),
	}
}

// Start initializes and starts all workers in the pool
func (wp *WorkerPool) Start() {
	wp.start.Do(func() {
		for i := 0; i < wp.workers; i++ {
			wp.running.Add(1)
			go wp.worker()
		}
	})
}

// worker processes jobs from the job queue
func (wp *WorkerPool) worker() {
	defer wp.running.Done()
	for job := range wp.jobQueue {
		wp.activeWorkers.Add(1)
		func() {
			defer func() {
				wp.activeWorkers.Add(-1)
				wp.completedJobs.Add(1)
				wp.pending.Done()
			}()
			job()
		}()
	}
}

// Submit queues job and reports whether it was accepted. It blocks while
// the queue is full.
func (wp *WorkerPool) Submit(job func()) bool {
	wp.mu.RLock()
	defer wp.mu.RUnlock()
	if wp.closed {
		return false
	}
	wp.pending.Add(1)
	wp.totalJobs.Add(1)
	wp.jobQueue <- job
	return true
}

// Do runs job on the pool and waits for it. If ctx ends first Do returns
// ctx.Err(); a job already queued still runs, so callers must not read its
// results after an error.
func (wp *WorkerPool) Do(ctx context.Context, job func()) error {
	done := make(chan struct{})
	wrapped := func() {
		defer close(done)
		job()
	}

	wp.mu.RLock()
	if wp.closed {
		wp.mu.RUnlock()
		return ErrPoolClosed
	}
	wp.pending.Add(1)
	select {
	case wp.jobQueue <- wrapped:
		wp.totalJobs.Add(1)
		wp.mu.RUnlock()
	case <-ctx.Done():
		wp.pending.Done()
		wp.mu.RUnlock()
		return ctx.Err()
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait waits for all submitted jobs to complete
func (wp *WorkerPool) Wait() {
	wp.pending.Wait()
}

// GetStats returns the current counters.
func (wp *WorkerPool) GetStats() PoolStats {
	return PoolStats{
		Workers:       wp.workers,
		TotalJobs:     wp.totalJobs.Load(),
		CompletedJobs: wp.completedJobs.Load(),
		ActiveWorkers: wp.activeWorkers.Load(),
	}
}

// Close stops accepting jobs, drains the queue and waits for the workers
// to exit. It is safe to call more than once.
func (wp *WorkerPool) Close() {
	wp.stop.Do(func() {
		wp.mu.Lock()
		wp.closed = true
		close(wp.jobQueue)
		wp.mu.Unlock()
		wp.running.Wait()
	})
}
