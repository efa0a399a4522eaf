package downloader

import (
	"context"
	"sync"
	"time"
)

// DefaultIdleReset is how long the queue stays idle before Status is cleared.
const DefaultIdleReset = 250 * time.Millisecond

type fetcher interface {
	Fetch(ctx context.Context, job Job) (string, error)
}

// Result is the outcome of one queued job.
type Result struct {
	Job  Job
	Path string
	Err  error
}

// Status describes the job currently in flight.
type Status struct {
	Active  bool
	Title   string
	Percent uint8
}

type request struct {
	ctx context.Context
	job Job
}

// Queue runs download jobs one at a time, in the order they were enqueued.
type Queue struct {
	dl        fetcher
	idleReset time.Duration

	requests chan request
	results  chan Result
	done     chan struct{}

	mu     sync.Mutex
	status Status
}

// NewQueue starts a queue consumer backed by dl.
func NewQueue(dl *Downloader, idleReset time.Duration) *Queue {
	return newQueue(dl, idleReset)
}

func newQueue(dl fetcher, idleReset time.Duration) *Queue {
	if idleReset <= 0 {
		idleReset = DefaultIdleReset
	}
	q := &Queue{
		dl:        dl,
		idleReset: idleReset,
		requests:  make(chan request, 64),
		results:   make(chan Result, 64),
		done:      make(chan struct{}),
	}
	go q.run()
	return q
}

// Enqueue schedules job. ctx governs only this job. Enqueue blocks while
// the queue is full and must not be called after Close.
func (q *Queue) Enqueue(ctx context.Context, job Job) {
	q.requests <- request{ctx: ctx, job: job}
}

// Results delivers one Result per enqueued job, in order. It is closed
// after Close once every pending job has finished.
func (q *Queue) Results() <-chan Result {
	return q.results
}

// Status reports the job in flight. It is cleared once the queue has
// been idle for the reset interval.
func (q *Queue) Status() Status {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.status
}

// Close stops accepting jobs and waits for the pending ones to finish.
// Results must be drained by the caller or Close may block.
func (q *Queue) Close() {
	close(q.requests)
	<-q.done
}

func (q *Queue) run() {
	defer close(q.done)
	defer close(q.results)

	idle := time.NewTimer(q.idleReset)
	defer idle.Stop()

	for {
		select {
		case req, ok := <-q.requests:
			if !ok {
				return
			}
			q.results <- q.process(req)
			idle.Reset(q.idleReset)
		case <-idle.C:
			q.setStatus(Status{})
		}
	}
}

func (q *Queue) process(req request) Result {
	job := req.job
	if err := req.ctx.Err(); err != nil {
		return Result{Job: job, Err: err}
	}

	q.setStatus(Status{Active: true, Title: job.Name})
	inner := job.Progress
	job.Progress = func(pct uint8) {
		q.setStatus(Status{Active: true, Title: job.Name, Percent: pct})
		report(inner, pct)
	}

	path, err := q.dl.Fetch(req.ctx, job)
	job.Progress = inner
	return Result{Job: job, Path: path, Err: err}
}

func (q *Queue) setStatus(s Status) {
	q.mu.Lock()
	q.status = s
	q.mu.Unlock()
}
