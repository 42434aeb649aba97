package events

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/park285/netchess/internal/obslog"
)

type job struct {
	name string
	run  func(ctx context.Context) error
}

// queue is a single-worker job queue whose Submit never blocks, so it can
// be fed from match observers that run under the match lock.
type queue struct {
	name    string
	timeout time.Duration
	jobs    chan job

	mu      sync.RWMutex
	closed  bool
	wg      sync.WaitGroup
	dropped atomic.Int64
}

func newQueue(name string, size int, timeout time.Duration) *queue {
	if size <= 0 {
		size = 256
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	q := &queue{name: name, timeout: timeout, jobs: make(chan job, size)}
	q.wg.Add(1)
	go q.loop()
	return q
}

func (q *queue) loop() {
	defer q.wg.Done()
	for j := range q.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
		if err := j.run(ctx); err != nil {
			obslog.L().Warn("queue_job_failed", zap.String("queue", q.name), zap.String("job", j.name), zap.Error(err))
		}
		cancel()
	}
}

// submit enqueues j, dropping it when the queue is full or closed.
func (q *queue) submit(j job) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return false
	}
	select {
	case q.jobs <- j:
		return true
	default:
		if n := q.dropped.Add(1); n == 1 || n%100 == 0 {
			obslog.L().Warn("queue_full", zap.String("queue", q.name), zap.Int64("dropped", n))
		}
		return false
	}
}

// close drains pending jobs and stops the worker.
func (q *queue) close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.jobs)
	q.mu.Unlock()
	q.wg.Wait()
}
