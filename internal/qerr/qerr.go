// Package qerr defines the error taxonomy shared by the partitioning
// pipeline and the replication control plane.
//
// Errors are plain sentinel values classified by Code. Callers use
// errors.Is against the sentinels, or Classify to recover the Code from
// an arbitrary wrapped error for logging/metrics purposes.
package qerr

import "errors"

// Code classifies an error for logging, metrics, and control-plane
// extended-status mapping. It does not replace Go error values; it is
// derived from them via Classify.
type Code int

const (
	CodeUnknown Code = iota
	CodeConfig
	CodeInvalidArgument
	CodeNotFound
	CodeInvalidFile
	CodeProtocol
	CodeWorker
	CodeTimeout
	CodeCancelled
	CodeNotImplemented
	CodeFatal
)

func (c Code) String() string {
	switch c {
	case CodeConfig:
		return "CONFIG_ERROR"
	case CodeInvalidArgument:
		return "INVALID_ARGUMENT"
	case CodeNotFound:
		return "NOT_FOUND"
	case CodeInvalidFile:
		return "INVALID_FILE"
	case CodeProtocol:
		return "PROTOCOL_ERROR"
	case CodeWorker:
		return "WORKER_ERROR"
	case CodeTimeout:
		return "TIMEOUT"
	case CodeCancelled:
		return "CANCELLED"
	case CodeNotImplemented:
		return "NOT_IMPLEMENTED"
	case CodeFatal:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// Sentinel errors. Component-specific errors (e.g. geom.ErrLonExtentTooLarge)
// wrap one of these via fmt.Errorf("...: %w", qerr.ErrWorker) so that
// errors.Is(err, qerr.ErrWorker) keeps working across package boundaries.
var (
	ErrConfig         = errors.New("qserv: configuration error")
	ErrInvalidArg     = errors.New("qserv: invalid argument")
	ErrNotFound       = errors.New("qserv: not found")
	ErrInvalidFile    = errors.New("qserv: invalid file")
	ErrProtocol       = errors.New("qserv: protocol error")
	ErrWorker         = errors.New("qserv: worker error")
	ErrTimeout        = errors.New("qserv: timeout")
	ErrCancelled      = errors.New("qserv: cancelled")
	ErrNotImplemented = errors.New("qserv: not implemented")
	ErrFatal          = errors.New("qserv: fatal error")
)

var classified = []struct {
	err  error
	code Code
}{
	{ErrConfig, CodeConfig},
	{ErrInvalidArg, CodeInvalidArgument},
	{ErrNotFound, CodeNotFound},
	{ErrInvalidFile, CodeInvalidFile},
	{ErrProtocol, CodeProtocol},
	{ErrWorker, CodeWorker},
	{ErrTimeout, CodeTimeout},
	{ErrCancelled, CodeCancelled},
	{ErrNotImplemented, CodeNotImplemented},
	{ErrFatal, CodeFatal},
}

// Classify inspects err with errors.Is against each sentinel and returns
// the matching Code, or CodeUnknown if err matches none of them.
func Classify(err error) Code {
	if err == nil {
		return CodeUnknown
	}
	for _, c := range classified {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return CodeUnknown
}
