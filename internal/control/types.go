// Package control implements the Controller component of the replication
// and SQL-fleet control plane: a per-request state machine, a request
// registry, and the heartbeat/expiration timer wheel that tracks worker
// and czar liveness against the directory held by internal/registry.
//
// The wire protocol workers speak is out of scope; Controller talks to
// them through the Transport interface, leaving framing and transport to
// the caller.
package control

import "fmt"

// State is a Request's position in its CREATED -> IN_PROGRESS -> FINISHED
// lifecycle.
type State int

const (
	CREATED State = iota
	IN_PROGRESS
	FINISHED
)

func (s State) String() string {
	switch s {
	case CREATED:
		return "CREATED"
	case IN_PROGRESS:
		return "IN_PROGRESS"
	case FINISHED:
		return "FINISHED"
	default:
		return "UNKNOWN"
	}
}

// ExtendedStatus refines a FINISHED Request's outcome.
type ExtendedStatus int

const (
	NONE ExtendedStatus = iota
	SUCCESS
	TIMEOUT_EXPIRED
	CANCELLED
	BAD_RESULT
	FAILED
)

func (s ExtendedStatus) String() string {
	switch s {
	case NONE:
		return "NONE"
	case SUCCESS:
		return "SUCCESS"
	case TIMEOUT_EXPIRED:
		return "TIMEOUT_EXPIRED"
	case CANCELLED:
		return "CANCELLED"
	case BAD_RESULT:
		return "BAD_RESULT"
	case FAILED:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Priority is recorded on each Request and Job; the Controller does not
// order or schedule requests by it.
type Priority int

const (
	LOW Priority = iota
	NORMAL
	HIGH
	URGENT
)

func (p Priority) String() string {
	switch p {
	case LOW:
		return "LOW"
	case NORMAL:
		return "NORMAL"
	case HIGH:
		return "HIGH"
	case URGENT:
		return "URGENT"
	default:
		return "UNKNOWN"
	}
}

// ErrNotRunning is returned by Controller methods invoked before Start or
// after Stop.
var ErrNotRunning = fmt.Errorf("control: controller not running")
