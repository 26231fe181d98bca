package control

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"

	"github.com/lsst/qserv-sub016/internal/logging"
	"github.com/lsst/qserv-sub016/internal/registry"
)

// WorkerSource polls the fleet for liveness. A Controller implementation
// backed by the real wire protocol would issue a lightweight status call
// to each configured worker/czar; that call is out of scope here, so
// Controller is handed an implementation of this interface instead.
type WorkerSource interface {
	LiveWorkers(ctx context.Context) ([]registry.HeartbeatEntry, error)
	LiveCzars(ctx context.Context) ([]registry.HeartbeatEntry, error)
}

// Controller is the per-node control-plane entry point described in the
// replication design: it mints and tracks Requests, drives a heartbeat
// loop that keeps the worker/czar directory in internal/registry in sync
// with fleet reality, and expires Requests that outlive their deadline.
//
// Completion of a Request is posted to Controller's single IO goroutine
// rather than invoked inline from the goroutine that performed the
// transport call. Two cases bypass the IO goroutine: when its 256-entry
// queue is full, post runs the completion inline on the posting
// goroutine; and Stop finishes the requests it cancels on its own
// goroutine. In those cases onFinish callbacks can run concurrently.
type Controller struct {
	ID        uuid.UUID
	Host      string
	PID       int
	StartTime time.Time

	transport Transport
	source    WorkerSource
	cfg       *registry.Configuration
	logger    *slog.Logger

	io chan func()

	mu       sync.Mutex
	running  bool
	requests map[uuid.UUID]*Request
	sched    gocron.Scheduler
	stop     context.CancelFunc
}

// New creates a Controller bound to cfg's worker/czar directory. source
// may be nil if the worker-tracking background task is not needed (e.g.
// in tests that drive Submit directly).
func New(transport Transport, source WorkerSource, cfg *registry.Configuration, logger *slog.Logger) *Controller {
	return &Controller{
		ID:        uuid.Must(uuid.NewV7()),
		Host:      hostname(),
		PID:       os.Getpid(),
		StartTime: time.Now(),
		transport: transport,
		source:    source,
		cfg:       cfg,
		logger:    logging.Default(logger).With("component", "control.controller"),
		io:        make(chan func(), 256),
		requests:  make(map[uuid.UUID]*Request),
	}
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return h
}

// Start launches the IO loop and the timer scheduler that expires
// requests, and, if a WorkerSource was provided, registers the periodic
// fleet heartbeat on that scheduler. Stop must be called to shut them
// down.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return fmt.Errorf("control: controller already running")
	}

	sched, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("control: create scheduler: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.sched = sched
	c.stop = cancel
	c.running = true

	go c.runIO(runCtx)

	if c.source != nil {
		interval := time.Duration(c.cfg.Settings().HeartbeatIvalSec) * time.Second
		_, err := sched.NewJob(
			gocron.DurationJob(interval),
			gocron.NewTask(func() { c.trackFleet(runCtx) }),
			gocron.WithName("fleet-heartbeat"),
		)
		if err != nil {
			cancel()
			return fmt.Errorf("control: schedule heartbeat: %w", err)
		}
		// DurationJob's first tick fires after interval elapses; run once
		// up front so the directory reflects fleet state immediately.
		go c.trackFleet(runCtx)
	}
	sched.Start()
	c.logger.Info("controller started", "id", c.ID, "host", c.Host, "pid", c.PID)
	return nil
}

// Stop cancels the heartbeat loop and every in-flight request, finishing
// each such request as CANCELLED on the calling goroutine, then stops the
// IO loop and the scheduler. Completions still queued on the IO loop are
// not run.
func (c *Controller) Stop() error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = false
	stop := c.stop
	sched := c.sched
	reqs := make([]*Request, 0, len(c.requests))
	for _, r := range c.requests {
		reqs = append(reqs, r)
	}
	c.mu.Unlock()

	for _, r := range reqs {
		r.Cancel()
		c.complete(r, CANCELLED, nil, context.Canceled)
	}
	stop()
	close(c.io)
	if sched != nil {
		return sched.Shutdown()
	}
	return nil
}

func (c *Controller) runIO(ctx context.Context) {
	for {
		select {
		case fn, ok := <-c.io:
			if !ok {
				return
			}
			fn()
		case <-ctx.Done():
			return
		}
	}
}

// post queues fn to run on the IO goroutine. Safe to call from any
// goroutine; a no-op once the controller has stopped.
func (c *Controller) post(fn func()) {
	c.mu.Lock()
	running := c.running
	c.mu.Unlock()
	if !running {
		return
	}
	select {
	case c.io <- fn:
	default:
		// IO queue saturated; run inline rather than drop the completion.
		fn()
	}
}

// Submit mints a Request, dispatches it to worker via Transport in a new
// goroutine, and returns immediately. If expiration > 0 the request is
// force-finished with TIMEOUT_EXPIRED if it has not completed by then.
// onFinish, if non-nil, runs once the request reaches FINISHED: on the IO
// goroutine, except in the two cases the Controller doc lists.
func (c *Controller) Submit(ctx context.Context, worker, opcode string, body []byte, priority Priority, jobID uuid.UUID, expiration time.Duration, onFinish func(*Request)) (*Request, error) {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil, ErrNotRunning
	}
	c.mu.Unlock()

	sendCtx, cancel := context.WithCancel(ctx)
	req := &Request{
		ID:        uuid.Must(uuid.NewV7()),
		Worker:    worker,
		Opcode:    opcode,
		Priority:  priority,
		JobID:     jobID,
		submitted: time.Now(),
		state:     IN_PROGRESS,
		beginTime: time.Now(),
		cancel:    cancel,
		done:      make(chan struct{}),
		onFinish:  onFinish,
	}

	c.mu.Lock()
	c.requests[req.ID] = req
	c.mu.Unlock()

	if expiration > 0 {
		c.scheduleExpiration(req, expiration)
	}

	go func() {
		result, err := c.transport.Send(sendCtx, worker, opcode, body)
		status := SUCCESS
		switch {
		case err != nil && sendCtx.Err() != nil:
			status = CANCELLED
		case err != nil:
			status = FAILED
		}
		c.post(func() { c.complete(req, status, result, err) })
	}()

	return req, nil
}

func (c *Controller) scheduleExpiration(req *Request, d time.Duration) {
	c.mu.Lock()
	sched := c.sched
	c.mu.Unlock()
	if sched == nil {
		return
	}
	sched.NewJob(
		gocron.OneTimeJob(gocron.OneTimeJobStartDateTime(time.Now().Add(d))),
		gocron.NewTask(func() {
			c.post(func() { c.complete(req, TIMEOUT_EXPIRED, nil, nil) })
		}),
		gocron.WithName("expire-"+req.ID.String()),
	)
}

// complete finishes req and drops it from the registry. It runs on the
// IO goroutine, except in the two cases the Controller doc lists.
func (c *Controller) complete(req *Request, status ExtendedStatus, result []byte, err error) {
	req.finish(time.Now(), status, result, err)
	c.mu.Lock()
	delete(c.requests, req.ID)
	c.mu.Unlock()
}

// Request looks up a tracked request by ID.
func (c *Controller) Request(id uuid.UUID) (*Request, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.requests[id]
	return r, ok
}

// Outstanding returns the number of requests currently IN_PROGRESS.
func (c *Controller) Outstanding() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.requests)
}
