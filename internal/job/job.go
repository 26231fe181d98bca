// Package job implements the Job base class described in the
// replication design: a unit of work that fans out one Request per
// target worker through a control.Controller, tracks per-worker
// progress, and reaches FINISHED once every sub-request has.
//
// Concrete job types (SQL fleet administration, replica placement, ...)
// are built on top of Job in internal/sqljob; this package only knows
// about opaque opcodes and byte bodies.
package job

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lsst/qserv-sub016/internal/control"
)

// Re-exported so callers of this package don't need to import
// internal/control directly for the shared vocabulary.
type (
	State          = control.State
	ExtendedStatus = control.ExtendedStatus
	Priority       = control.Priority
)

const (
	CREATED     = control.CREATED
	IN_PROGRESS = control.IN_PROGRESS
	FINISHED    = control.FINISHED
)

const (
	NONE            = control.NONE
	SUCCESS         = control.SUCCESS
	TIMEOUT_EXPIRED = control.TIMEOUT_EXPIRED
	CANCELLED       = control.CANCELLED
	BAD_RESULT      = control.BAD_RESULT
	FAILED          = control.FAILED
)

const (
	LOW    = control.LOW
	NORMAL = control.NORMAL
	HIGH   = control.HIGH
	URGENT = control.URGENT
)

// WorkItem is one Request a Job needs to issue, bound to a worker.
type WorkItem struct {
	Worker string
	Opcode string
	Body   []byte
}

// Progress tracks per-worker completion counts for a running or
// completed Job. Safe for concurrent use.
type Progress struct {
	mu        sync.Mutex
	Total     int
	Succeeded int
	Failed    int
}

func (p *Progress) succeed() {
	p.mu.Lock()
	p.Succeeded++
	p.mu.Unlock()
}

func (p *Progress) fail() {
	p.mu.Lock()
	p.Failed++
	p.mu.Unlock()
}

// Snapshot returns a read-consistent copy of the counters.
func (p *Progress) Snapshot() Progress {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Progress{Total: p.Total, Succeeded: p.Succeeded, Failed: p.Failed}
}

// WorkerResult is one worker's outcome within a Job.
type WorkerResult struct {
	Worker string
	Status ExtendedStatus
	Body   []byte
	Err    error
}

// Job fans a set of WorkItems out across a Controller, one Request per
// item, optionally capping how many requests may be outstanding against
// a single worker at once (MaxRequestsPerWorker; 0 means unlimited).
type Job struct {
	ID                    uuid.UUID
	Type                  string
	Priority              Priority
	MaxRequestsPerWorker  int

	Progress *Progress

	mu      sync.Mutex
	state   State
	status  ExtendedStatus
	results map[int]*WorkerResult
	active  map[int]*control.Request
	done    chan struct{}

	onFinish func(*Job)
}

// New creates a Job in the CREATED state. jobType is a label such as
// "SqlCreateDbJob" used for logging and status reporting; it carries no
// behavior of its own.
func New(jobType string, priority Priority, maxRequestsPerWorker int) *Job {
	return &Job{
		ID:                   uuid.Must(uuid.NewV7()),
		Type:                 jobType,
		Priority:             priority,
		MaxRequestsPerWorker: maxRequestsPerWorker,
		Progress:             &Progress{},
		state:                CREATED,
		results:              make(map[int]*WorkerResult),
		active:               make(map[int]*control.Request),
		done:                 make(chan struct{}),
	}
}

// State returns the job's current lifecycle state.
func (j *Job) State() State {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// Status returns the job's extended status, meaningful once FINISHED.
func (j *Job) Status() ExtendedStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

// Results returns a copy of the per-item outcomes collected so far, in
// no particular order. A Job with multiple WorkItems against the same
// worker (e.g. one request per chunk) produces one entry per item, not
// one per worker.
func (j *Job) Results() []*WorkerResult {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]*WorkerResult, 0, len(j.results))
	for _, v := range j.results {
		out = append(out, v)
	}
	return out
}

// Start submits items to ctrl and returns immediately; the job reaches
// FINISHED once every item's Request has finished. onFinish, if
// non-nil, is invoked exactly once from whichever goroutine observes the
// last completion.
func (j *Job) Start(ctx context.Context, ctrl *control.Controller, items []WorkItem, expiration time.Duration, onFinish func(*Job)) error {
	j.mu.Lock()
	if j.state != CREATED {
		j.mu.Unlock()
		return control.ErrNotRunning
	}
	j.state = IN_PROGRESS
	j.Progress.Total = len(items)
	j.onFinish = onFinish
	remaining := len(items)
	j.mu.Unlock()

	if remaining == 0 {
		j.finish(SUCCESS)
		return nil
	}

	sems := j.perWorkerSemaphores(items)
	var wg sync.WaitGroup
	for i, item := range items {
		i, item := i, item
		wg.Add(1)
		sem := sems[item.Worker]
		go func() {
			defer wg.Done()
			if sem != nil {
				sem <- struct{}{}
				defer func() { <-sem }()
			}
			j.runOne(ctx, ctrl, i, item, expiration, &remaining)
		}()
	}
	// wg.Wait runs in the background: Start must not block the caller.
	go wg.Wait()
	return nil
}

func (j *Job) perWorkerSemaphores(items []WorkItem) map[string]chan struct{} {
	if j.MaxRequestsPerWorker <= 0 {
		return nil
	}
	sems := make(map[string]chan struct{})
	for _, item := range items {
		if _, ok := sems[item.Worker]; !ok {
			sems[item.Worker] = make(chan struct{}, j.MaxRequestsPerWorker)
		}
	}
	return sems
}

func (j *Job) runOne(ctx context.Context, ctrl *control.Controller, i int, item WorkItem, expiration time.Duration, remaining *int) {
	req, err := ctrl.Submit(ctx, item.Worker, item.Opcode, item.Body, j.Priority, j.ID, expiration, nil)
	if err != nil {
		j.record(i, item.Worker, FAILED, nil, err, remaining)
		return
	}

	j.mu.Lock()
	j.active[i] = req
	j.mu.Unlock()

	_ = req.Wait(ctx)
	body, err := req.Result()

	j.mu.Lock()
	delete(j.active, i)
	j.mu.Unlock()

	j.record(i, item.Worker, req.Status(), body, err, remaining)
}

// Cancel aborts every in-flight Request belonging to this job. Already
// completed requests are unaffected.
func (j *Job) Cancel() {
	j.mu.Lock()
	reqs := make([]*control.Request, 0, len(j.active))
	for _, r := range j.active {
		reqs = append(reqs, r)
	}
	j.mu.Unlock()
	for _, r := range reqs {
		r.Cancel()
	}
}

func (j *Job) record(i int, worker string, status ExtendedStatus, body []byte, err error, remaining *int) {
	if status == SUCCESS {
		j.Progress.succeed()
	} else {
		j.Progress.fail()
	}

	j.mu.Lock()
	j.results[i] = &WorkerResult{Worker: worker, Status: status, Body: body, Err: err}
	*remaining--
	done := *remaining == 0
	j.mu.Unlock()

	if done {
		j.finish(j.aggregateStatus())
	}
}

// aggregateStatus reduces per-worker outcomes to a single job-level
// status, taking the worst outcome across workers. Must be called after
// all results are in.
func (j *Job) aggregateStatus() ExtendedStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	worst := SUCCESS
	rank := map[ExtendedStatus]int{SUCCESS: 0, BAD_RESULT: 1, CANCELLED: 2, TIMEOUT_EXPIRED: 3, FAILED: 4}
	for _, r := range j.results {
		if rank[r.Status] > rank[worst] {
			worst = r.Status
		}
	}
	return worst
}

func (j *Job) finish(status ExtendedStatus) {
	j.mu.Lock()
	if j.state == FINISHED {
		j.mu.Unlock()
		return
	}
	j.state = FINISHED
	j.status = status
	onFinish := j.onFinish
	j.mu.Unlock()

	close(j.done)
	if onFinish != nil {
		onFinish(j)
	}
}

// Wait blocks until the job reaches FINISHED or ctx is cancelled.
func (j *Job) Wait(ctx context.Context) error {
	select {
	case <-j.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
