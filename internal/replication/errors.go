// Copyright 2025 The Volmirror Authors.
// Licensed under the AGPLv3, see LICENCE file for details.

package replication

import (
	"fmt"

	"github.com/juju/errors"
)

// OperationError indicates that a replication operation failed
// against a backend's storage controller. Cleanup paths swallow
// not-found responses before wrapping, so an OperationError always
// reports a fault the caller must deal with.
type OperationError struct {
	errors.Err

	// Backend is the backend the operation ran against.
	Backend string

	// Op names the failed operation.
	Op string
}

// NewOperationError returns a new OperationError for the given
// operation and backend, wrapping reason.
func NewOperationError(backendName, op string, reason error) error {
	err := &OperationError{
		Err:     *errors.Mask(reason).(*errors.Err),
		Backend: backendName,
		Op:      op,
	}
	err.Err.SetLocation(1)
	return err
}

// Cause implements errors.Causer.
func (err *OperationError) Cause() error {
	return err
}

// Error implements error.
func (err OperationError) Error() string {
	return fmt.Sprintf("cannot %s on backend %q: %v", err.Op, err.Backend, &err.Err)
}

// IsOperationError reports whether the cause of err is an
// *OperationError.
func IsOperationError(err error) bool {
	_, ok := errors.Cause(err).(*OperationError)
	return ok
}
