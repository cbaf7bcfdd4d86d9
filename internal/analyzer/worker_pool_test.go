package analyzer

import (
	"context"
	"errors"
	"runtime"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewWorkerPool_Size(t *testing.T) {
	tests := []struct {
		name    string
		workers int
		want    int
	}{
		{"explicit", 4, 4},
		{"zero uses cpus", 0, runtime.NumCPU()},
		{"negative uses cpus", -3, runtime.NumCPU()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pool := NewWorkerPool(tt.workers)
			if pool.workers != tt.want {
				t.Errorf("workers = %d, want %d", pool.workers, tt.want)
			}
			if cap(pool.jobQueue) != 2*tt.want {
				t.Errorf("queue capacity = %d, want %d", cap(pool.jobQueue), 2*tt.want)
			}
			if got := pool.GetStats().Workers; got != tt.want {
				t.Errorf("stats workers = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestWorkerPool_WaitBlocksUntilJobsFinish(t *testing.T) {
	pool := NewWorkerPool(2)
	pool.Start()
	defer pool.Close()

	release := make(chan struct{})
	var finished atomic.Int64
	const jobs = 6
	for i := 0; i < jobs; i++ {
		go pool.Submit(func() {
			<-release
			finished.Add(1)
		})
	}

	// Let every Submit register before Wait starts.
	deadline := time.Now().Add(time.Second)
	for pool.GetStats().TotalJobs < jobs && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	waited := make(chan struct{})
	go func() {
		pool.Wait()
		close(waited)
	}()

	select {
	case <-waited:
		t.Fatal("Wait returned while jobs were still blocked")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	select {
	case <-waited:
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after jobs finished")
	}
	if got := finished.Load(); got != jobs {
		t.Errorf("finished = %d, want %d", got, jobs)
	}

	stats := pool.GetStats()
	if stats.TotalJobs != jobs || stats.CompletedJobs != jobs {
		t.Errorf("stats = %+v, want %d total and completed", stats, jobs)
	}
	if stats.ActiveWorkers != 0 {
		t.Errorf("active workers = %d after Wait", stats.ActiveWorkers)
	}
}

func TestWorkerPool_StartTwiceKeepsWorkerCount(t *testing.T) {
	pool := NewWorkerPool(1)
	pool.Start()
	pool.Start()
	defer pool.Close()

	// With a single worker two blocking jobs cannot run at once.
	release := make(chan struct{})
	var peak, active atomic.Int64
	for i := 0; i < 2; i++ {
		pool.Submit(func() {
			n := active.Add(1)
			if n > peak.Load() {
				peak.Store(n)
			}
			<-release
			active.Add(-1)
		})
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	pool.Wait()

	if peak.Load() != 1 {
		t.Errorf("peak concurrency = %d, want 1", peak.Load())
	}
}

func TestWorkerPool_Close(t *testing.T) {
	pool := NewWorkerPool(2)
	pool.Start()

	var ran atomic.Bool
	pool.Submit(func() {
		time.Sleep(10 * time.Millisecond)
		ran.Store(true)
	})

	pool.Close()
	if !ran.Load() {
		t.Error("Close should drain queued jobs before returning")
	}
	if pool.Submit(func() {}) {
		t.Error("Submit accepted a job after Close")
	}
	if err := pool.Do(context.Background(), func() {}); !errors.Is(err, ErrPoolClosed) {
		t.Errorf("Do after Close = %v, want ErrPoolClosed", err)
	}

	done := make(chan struct{})
	go func() {
		pool.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("second Close blocked")
	}
}

func TestWorkerPool_Do(t *testing.T) {
	pool := NewWorkerPool(2)
	pool.Start()
	defer pool.Close()

	var result int
	if err := pool.Do(context.Background(), func() { result = 42 }); err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if result != 42 {
		t.Errorf("result = %d, want 42", result)
	}
	if stats := pool.GetStats(); stats.CompletedJobs != 1 {
		t.Errorf("completed jobs = %d, want 1", stats.CompletedJobs)
	}
}

func TestWorkerPool_DoCancelled(t *testing.T) {
	pool := NewWorkerPool(1)
	pool.Start()
	defer pool.Close()

	release := make(chan struct{})
	pool.Submit(func() { <-release })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := pool.Do(ctx, func() {})
	close(release)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Do() error = %v, want deadline exceeded", err)
	}
	pool.Wait()
}
