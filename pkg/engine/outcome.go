package engine

import (
	"errors"

	"github.com/marmos91/dittosync/pkg/protocol"
	"github.com/marmos91/dittosync/pkg/store"
)

// Status classifies the result of one operation.
type Status int

const (
	// StatusOK means the operation was applied.
	StatusOK Status = iota

	// StatusNotFound means the target file does not exist.
	StatusNotFound

	// StatusAlreadyExists means the target name is taken.
	StatusAlreadyExists

	// StatusInvalidName means a name failed validation.
	StatusInvalidName

	// StatusIOFailure means the store failed unexpectedly.
	StatusIOFailure

	// StatusBadRequest means the frame could not be decoded into an operation.
	StatusBadRequest
)

// String returns the label used in logs and metrics.
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusNotFound:
		return "not_found"
	case StatusAlreadyExists:
		return "already_exists"
	case StatusInvalidName:
		return "invalid_name"
	case StatusIOFailure:
		return "io_failure"
	case StatusBadRequest:
		return "bad_request"
	default:
		return "unknown"
	}
}

// Code returns the protocol error code reported for the status.
func (s Status) Code() string {
	switch s {
	case StatusNotFound:
		return protocol.CodeNotFound
	case StatusAlreadyExists:
		return protocol.CodeAlreadyExists
	case StatusInvalidName:
		return protocol.CodeInvalidName
	case StatusBadRequest:
		return protocol.CodeBadRequest
	default:
		return protocol.CodeIOFailure
	}
}

// Expected reports whether the status is a precondition failure the client
// caused, as opposed to a server-side failure.
func (s Status) Expected() bool {
	switch s {
	case StatusNotFound, StatusAlreadyExists, StatusInvalidName, StatusBadRequest:
		return true
	default:
		return false
	}
}

// Outcome is what a handler reports back to the dispatcher.
type Outcome struct {
	Status Status

	// Err carries the underlying error for any status other than StatusOK.
	Err error
}

// OK reports whether the operation was applied.
func (o Outcome) OK() bool {
	return o.Status == StatusOK
}

func ok() Outcome {
	return Outcome{Status: StatusOK}
}

// outcomeFromError maps a store error onto an Outcome.
func outcomeFromError(err error) Outcome {
	switch {
	case err == nil:
		return ok()
	case errors.Is(err, store.ErrNotFound):
		return Outcome{Status: StatusNotFound, Err: err}
	case errors.Is(err, store.ErrAlreadyExists):
		return Outcome{Status: StatusAlreadyExists, Err: err}
	case errors.Is(err, store.ErrInvalidName):
		return Outcome{Status: StatusInvalidName, Err: err}
	default:
		return Outcome{Status: StatusIOFailure, Err: err}
	}
}
