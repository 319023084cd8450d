// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultJobTimeout bounds a single persistence job.
const DefaultJobTimeout = 30 * time.Second

// Queue errors.
var (
	ErrQueueFull   = errors.New("persistence queue is full")
	ErrQueueClosed = errors.New("persistence queue is closed")
)

// =============================================================================
// JOB
// =============================================================================

// Job is one unit of persistence work.
type Job struct {
	// Description is used in logs.
	Description string

	// Run performs the work. Its context is cancelled after the job timeout
	// or when the queue is aborted.
	Run func(ctx context.Context) error

	// Done, if set, receives Run's result on the worker goroutine.
	Done func(err error)
}

// =============================================================================
// QUEUE
// =============================================================================

// Queue runs jobs one at a time in submission order.
type Queue struct {
	mu           sync.Mutex
	jobs         []Job
	closed       bool
	maxQueueSize int
	jobTimeout   time.Duration

	wake   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger *zap.Logger
}

// NewQueue creates a queue. maxQueueSize caps pending jobs (0 = unlimited);
// jobTimeout bounds each job (0 = DefaultJobTimeout).
func NewQueue(maxQueueSize int, jobTimeout time.Duration, logger *zap.Logger) *Queue {
	if jobTimeout <= 0 {
		jobTimeout = DefaultJobTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		maxQueueSize: maxQueueSize,
		jobTimeout:   jobTimeout,
		wake:         make(chan struct{}, 1),
		ctx:          ctx,
		cancel:       cancel,
		logger:       logger,
	}
}

// Start launches the worker goroutine.
func (q *Queue) Start() {
	q.wg.Add(1)
	go q.worker()
}

// Add appends a job.
func (q *Queue) Add(job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}
	if q.maxQueueSize > 0 && len(q.jobs) >= q.maxQueueSize {
		return fmt.Errorf("%w: %d queued jobs (max: %d)", ErrQueueFull, len(q.jobs), q.maxQueueSize)
	}
	q.jobs = append(q.jobs, job)

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return nil
}

// Len returns the number of jobs waiting to run.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

// Flush blocks until every job added before the call has finished, or ctx
// is done.
func (q *Queue) Flush(ctx context.Context) error {
	done := make(chan struct{})
	err := q.Add(Job{
		Description: "flush",
		Run:         func(context.Context) error { close(done); return nil },
	})
	if err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting jobs, runs the ones already queued and waits for
// the worker to exit.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	q.wg.Wait()
	q.cancel()
}

// Abort cancels the running job, drops queued jobs and waits for the worker.
func (q *Queue) Abort() {
	q.mu.Lock()
	dropped := len(q.jobs)
	q.jobs = nil
	q.closed = true
	q.mu.Unlock()

	if dropped > 0 {
		q.logger.Warn("dropping queued persistence jobs", zap.Int("count", dropped))
	}
	q.cancel()
	select {
	case q.wake <- struct{}{}:
	default:
	}
	q.wg.Wait()
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for {
		job, ok, closed := q.next()
		if ok {
			q.run(job)
			continue
		}
		if closed {
			return
		}
		<-q.wake
	}
}

// next pops the head job. closed is reported only once the queue is empty.
func (q *Queue) next() (job Job, ok, closed bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.jobs) > 0 {
		job = q.jobs[0]
		q.jobs[0] = Job{}
		q.jobs = q.jobs[1:]
		return job, true, false
	}
	return Job{}, false, q.closed
}

func (q *Queue) run(job Job) {
	ctx, cancel := context.WithTimeout(q.ctx, q.jobTimeout)
	defer cancel()

	start := time.Now()
	err := q.safeRun(ctx, job)
	if err != nil {
		q.logger.Debug("persistence job failed",
			zap.String("job", job.Description),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err))
	}
	if job.Done != nil {
		job.Done(err)
	}
}

// safeRun converts a panicking job into an error so one bad job cannot stop
// the worker.
func (q *Queue) safeRun(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %q panicked: %v", job.Description, r)
		}
	}()
	return job.Run(ctx)
}
