package control

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Transport performs the actual round trip to a worker. Implementations
// own framing and connection management; Controller only needs the
// request/response bytes.
type Transport interface {
	Send(ctx context.Context, worker, opcode string, body []byte) ([]byte, error)
}

// Request is a single outstanding call to a worker, tracked by Controller
// from submission through completion. Fields set at construction are
// read-only after that; mutable state is guarded by mu.
type Request struct {
	ID       uuid.UUID
	Worker   string
	Opcode   string
	Priority Priority
	JobID    uuid.UUID // zero value if this request has no owning Job

	submitted time.Time

	mu        sync.Mutex
	state     State
	status    ExtendedStatus
	beginTime time.Time
	endTime   time.Time
	result    []byte
	err       error

	cancel context.CancelFunc
	done   chan struct{}

	onFinish func(*Request)
}

// State returns the request's current lifecycle state.
func (r *Request) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Status returns the request's extended status. Meaningful once State is
// FINISHED; NONE beforehand.
func (r *Request) Status() ExtendedStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Result returns the worker's response body and any error recorded at
// completion. Both are zero until the request finishes.
func (r *Request) Result() ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.result, r.err
}

// Duration returns the time spent IN_PROGRESS. Zero if not yet started,
// the time-so-far if still running.
func (r *Request) Duration() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.beginTime.IsZero() {
		return 0
	}
	if r.endTime.IsZero() {
		return time.Since(r.beginTime)
	}
	return r.endTime.Sub(r.beginTime)
}

// Cancel requests that the in-flight transport call be aborted. It is a
// no-op if the request has already finished. Cancellation is cooperative:
// Transport.Send must observe ctx.Done to actually stop work.
func (r *Request) Cancel() {
	r.mu.Lock()
	finished := r.state == FINISHED
	cancel := r.cancel
	r.mu.Unlock()
	if finished || cancel == nil {
		return
	}
	cancel()
}

// Wait blocks until the request reaches FINISHED or ctx is cancelled.
func (r *Request) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// finish transitions the request to FINISHED exactly once. Later calls
// are no-ops, which is what makes a fired expiration timer racing against
// a just-arrived transport response safe: whichever call observes CREATED
// or IN_PROGRESS first wins, the other does nothing.
func (r *Request) finish(now time.Time, status ExtendedStatus, result []byte, err error) {
	r.mu.Lock()
	if r.state == FINISHED {
		r.mu.Unlock()
		return
	}
	r.state = FINISHED
	r.status = status
	r.result = result
	r.err = err
	r.endTime = now
	onFinish := r.onFinish
	r.mu.Unlock()

	close(r.done)
	if onFinish != nil {
		onFinish(r)
	}
}
