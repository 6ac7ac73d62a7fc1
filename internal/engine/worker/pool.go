// Package worker runs background jobs on a bounded number of goroutines and
// hands back a Task that can be waited on.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/Faultbox/midgard-fx/internal/logger"
)

// ErrClosed is returned by tasks submitted after Close.
var ErrClosed = errors.New("worker pool closed")

// Task is the handle of a submitted job.
type Task struct {
	name string
	done chan struct{}
	err  error
}

// Wait blocks until the job has run and returns its error.
func (t *Task) Wait() error {
	<-t.done
	return t.err
}

// Done is closed once the job has run.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Name returns the name the task was submitted with.
func (t *Task) Name() string {
	return t.name
}

func (t *Task) finish(err error) {
	t.err = err
	close(t.done)
}

// Pool runs at most its size of jobs at once. Jobs waiting for a slot
// start in no particular order.
type Pool struct {
	sem  *semaphore.Weighted
	size int

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup

	log *zap.Logger
}

// New creates a pool running up to workers jobs at once. Zero or less means
// one per CPU.
func New(workers int) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Pool{
		sem:  semaphore.NewWeighted(int64(workers)),
		size: workers,
		log:  logger.Named(logger.Worker),
	}
}

// Size returns the maximum number of concurrent jobs.
func (p *Pool) Size() int {
	return p.size
}

// Submit queues fn. A panic in fn is recovered and reported as the task's
// error.
func (p *Pool) Submit(name string, fn func() error) *Task {
	t := &Task{name: name, done: make(chan struct{})}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		t.finish(ErrClosed)
		return t
	}
	p.wg.Add(1)
	p.mu.Unlock()

	go func() {
		defer p.wg.Done()

		// Never cancelled; a queued job always gets to run
		if err := p.sem.Acquire(context.Background(), 1); err != nil {
			t.finish(err)
			return
		}
		defer p.sem.Release(1)

		t.finish(p.run(t.name, fn))
	}()
	return t
}

func (p *Pool) run(name string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %s panicked: %v", name, r)
			p.log.Error("task panicked", zap.String("task", name), zap.Any("panic", r))
		}
	}()
	return fn()
}

// Close stops accepting jobs and waits for every queued job to finish.
func (p *Pool) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	p.wg.Wait()
}
