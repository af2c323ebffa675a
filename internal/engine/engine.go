// Package engine schedules indexing runs as trackable jobs on a bounded
// worker pool. Jobs for the same repository never run concurrently; jobs for
// different repositories do.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"semcode/internal/config"
	"semcode/internal/logger"
	"semcode/internal/pipeline"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

var (
	ErrNotFound  = errors.New("job not found")
	ErrQueueFull = errors.New("job queue full")
	ErrStopped   = errors.New("engine stopped")
)

// Counters are cumulative per-stage item counts. They only ever grow.
type Counters struct {
	Copied   int `json:"copied"`
	Chunked  int `json:"chunked"`
	Embedded int `json:"embedded"`
	Upserted int `json:"upserted"`
}

// Job is a point-in-time snapshot of one indexing job.
type Job struct {
	ID         string           `json:"id"`
	Repo       string           `json:"repo"`
	Status     Status           `json:"status"`
	Stage      string           `json:"stage,omitempty"`
	Counters   Counters         `json:"counters"`
	Result     *pipeline.Result `json:"result,omitempty"`
	Error      string           `json:"error,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
	StartedAt  *time.Time       `json:"started_at,omitempty"`
	FinishedAt *time.Time       `json:"finished_at,omitempty"`
}

// Runner is the indexing flow a job executes.
type Runner interface {
	Run(ctx context.Context, req pipeline.Request, progress pipeline.Progress) (*pipeline.Result, error)
}

// Publisher emits job status events. *nsq.Producer satisfies it.
type Publisher interface {
	Publish(topic string, body []byte) error
}

type jobState struct {
	Job
	request pipeline.Request
	cancel  context.CancelFunc
	done    chan struct{}
}

type Engine struct {
	runner  Runner
	pub     Publisher
	logger  *slog.Logger
	workers int

	queue chan *jobState

	mu        sync.Mutex
	jobs      map[string]*jobState
	nameLocks map[string]*sync.Mutex
	stopped   bool

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New builds an engine with the given worker count and queue capacity.
// pub may be nil, in which case status events are not emitted.
func New(runner Runner, pub Publisher, logger *slog.Logger, workers, queueSize int) *Engine {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Engine{
		runner:    runner,
		pub:       pub,
		logger:    logger,
		workers:   workers,
		queue:     make(chan *jobState, queueSize),
		jobs:      make(map[string]*jobState),
		nameLocks: make(map[string]*sync.Mutex),
	}
}

// Start launches the worker pool.
func (e *Engine) Start() {
	e.baseCtx, e.cancel = context.WithCancel(context.Background())
	for i := 0; i < e.workers; i++ {
		e.wg.Add(1)
		go e.worker()
	}
}

// Stop rejects new submissions and waits for in-flight jobs, up to ctx.
// Jobs still running when ctx expires are cancelled.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	if e.stopped || e.cancel == nil {
		e.mu.Unlock()
		return nil
	}
	e.stopped = true
	close(e.queue)
	e.mu.Unlock()

	finished := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
	case <-ctx.Done():
		e.cancel()
		<-finished
	}
	e.cancel()
	return nil
}

// Submit enqueues an indexing job and returns its initial snapshot.
func (e *Engine) Submit(req pipeline.Request) (Job, error) {
	state := &jobState{
		Job: Job{
			ID:        uuid.NewString(),
			Repo:      req.Name,
			Status:    StatusPending,
			CreatedAt: time.Now().UTC(),
		},
		request: req,
		done:    make(chan struct{}),
	}

	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return Job{}, ErrStopped
	}
	select {
	case e.queue <- state:
	default:
		e.mu.Unlock()
		return Job{}, ErrQueueFull
	}
	e.jobs[state.ID] = state
	snapshot := state.Job
	e.mu.Unlock()

	e.publish(snapshot)
	return snapshot, nil
}

// Get returns a snapshot of the job, or ErrNotFound.
func (e *Engine) Get(id string) (Job, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	state, ok := e.jobs[id]
	if !ok {
		return Job{}, ErrNotFound
	}
	return state.Job, nil
}

// List returns snapshots of all known jobs, newest first.
func (e *Engine) List() []Job {
	e.mu.Lock()
	defer e.mu.Unlock()
	jobs := make([]Job, 0, len(e.jobs))
	for _, state := range e.jobs {
		jobs = append(jobs, state.Job)
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	return jobs
}

// Cancel stops a job. A pending job fails immediately; a running job is
// interrupted at its next stage boundary. Cancelling a finished job is a
// no-op.
func (e *Engine) Cancel(id string) error {
	e.mu.Lock()
	state, ok := e.jobs[id]
	if !ok {
		e.mu.Unlock()
		return ErrNotFound
	}

	switch state.Status {
	case StatusPending:
		e.finishLocked(state, StatusFailed, nil, context.Canceled)
		snapshot := state.Job
		e.mu.Unlock()
		e.publish(snapshot)
		return nil
	case StatusRunning:
		cancel := state.cancel
		e.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		return nil
	default:
		e.mu.Unlock()
		return nil
	}
}

// Wait blocks until the job reaches a terminal status or ctx expires.
func (e *Engine) Wait(ctx context.Context, id string) (Job, error) {
	e.mu.Lock()
	state, ok := e.jobs[id]
	e.mu.Unlock()
	if !ok {
		return Job{}, ErrNotFound
	}

	select {
	case <-state.done:
		return e.Get(id)
	case <-ctx.Done():
		return Job{}, ctx.Err()
	}
}

func (e *Engine) worker() {
	defer e.wg.Done()
	for state := range e.queue {
		e.run(state)
	}
}

func (e *Engine) run(state *jobState) {
	// Serialize jobs that target the same repository.
	lock := e.nameLock(state.Repo)
	lock.Lock()
	defer lock.Unlock()

	jobCtx, cancel := context.WithCancel(e.baseCtx)
	defer cancel()
	jobCtx = logger.WithJobID(jobCtx, state.ID)

	e.mu.Lock()
	if state.Status != StatusPending {
		// Cancelled while queued.
		e.mu.Unlock()
		return
	}
	now := time.Now().UTC()
	state.Status = StatusRunning
	state.StartedAt = &now
	state.cancel = cancel
	snapshot := state.Job
	e.mu.Unlock()
	e.publish(snapshot)

	result, err := e.runner.Run(jobCtx, state.request, &jobProgress{engine: e, state: state})

	e.mu.Lock()
	if err != nil {
		e.finishLocked(state, StatusFailed, nil, err)
	} else {
		e.finishLocked(state, StatusSucceeded, result, nil)
	}
	snapshot = state.Job
	e.mu.Unlock()
	e.publish(snapshot)
}

// finishLocked applies the single terminal transition. Callers hold e.mu.
func (e *Engine) finishLocked(state *jobState, status Status, result *pipeline.Result, err error) {
	if state.Status == StatusSucceeded || state.Status == StatusFailed {
		return
	}
	now := time.Now().UTC()
	state.Status = status
	state.Result = result
	state.FinishedAt = &now
	if err != nil {
		state.Error = err.Error()
	}
	close(state.done)
}

func (e *Engine) nameLock(name string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	lock, ok := e.nameLocks[name]
	if !ok {
		lock = &sync.Mutex{}
		e.nameLocks[name] = lock
	}
	return lock
}

type statusEvent struct {
	JobID     string    `json:"job_id"`
	Repo      string    `json:"repo"`
	Status    Status    `json:"status"`
	Stage     string    `json:"stage,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func (e *Engine) publish(job Job) {
	if e.pub == nil {
		return
	}
	body, err := json.Marshal(statusEvent{
		JobID:     job.ID,
		Repo:      job.Repo,
		Status:    job.Status,
		Stage:     job.Stage,
		Error:     job.Error,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return
	}
	if err := e.pub.Publish(config.TopicJobStatus, body); err != nil {
		e.logger.Warn("failed to publish job status", slog.String("job_id", job.ID), slog.Any("error", err))
	}
}

// jobProgress folds pipeline progress into the job snapshot.
type jobProgress struct {
	engine *Engine
	state  *jobState
}

func (p *jobProgress) Stage(name string) {
	p.engine.mu.Lock()
	p.state.Stage = name
	p.engine.mu.Unlock()
}

func (p *jobProgress) Copied(n int) { p.add(func(c *Counters) { c.Copied += n }) }

func (p *jobProgress) Chunked(n int) { p.add(func(c *Counters) { c.Chunked += n }) }

func (p *jobProgress) Embedded(n int) { p.add(func(c *Counters) { c.Embedded += n }) }

func (p *jobProgress) Upserted(n int) { p.add(func(c *Counters) { c.Upserted += n }) }

func (p *jobProgress) add(apply func(*Counters)) {
	p.engine.mu.Lock()
	apply(&p.state.Counters)
	p.engine.mu.Unlock()
}
