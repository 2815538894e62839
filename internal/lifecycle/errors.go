package lifecycle

import (
	"errors"
	"fmt"

	"github.com/aonescu/shopkeeper/internal/capacity"
	k8s "github.com/aonescu/shopkeeper/internal/kubernetes"
)

var (
	// ErrInvalidName rejects an empty, malformed or oversized store name or id.
	ErrInvalidName = errors.New("invalid store name")
	// ErrAlreadyExists rejects creation of a store that exists or is being created.
	ErrAlreadyExists = errors.New("store already exists")
	// ErrRateLimited rejects a client that exceeded its request budget.
	ErrRateLimited = errors.New("too many requests, please try again later")
	// ErrCapacityExceeded rejects creation when the tenant cap is reached.
	ErrCapacityExceeded = capacity.ErrCapacityExceeded
)

// BackendError is a failure reported by the cluster or the deployment tool.
// Diagnostic carries the tool output verbatim.
type BackendError struct {
	Op         string
	Diagnostic string
	Err        error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Diagnostic)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

func newBackendError(op string, err error) *BackendError {
	return &BackendError{Op: op, Diagnostic: diagnostic(err), Err: err}
}

func diagnostic(err error) string {
	var cmdErr *k8s.CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr.Diagnostic()
	}
	return err.Error()
}
