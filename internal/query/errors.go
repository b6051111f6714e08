package query

import (
	"errors"
	"fmt"
)

var (
	// ErrNoTenant is returned when a query is built without an owner email.
	ErrNoTenant = errors.New("owner email is required")

	// ErrNotFound is returned when an account does not exist for the owner.
	ErrNotFound = errors.New("account not found")
)

// RemoteQueryError wraps a backend failure while reading accounts.
type RemoteQueryError struct {
	Op  string
	Err error
}

func (e *RemoteQueryError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *RemoteQueryError) Unwrap() error { return e.Err }

// RemoteMutationError wraps a backend failure while changing accounts.
// Nothing was committed when it is returned.
type RemoteMutationError struct {
	Op  string
	Err error
}

func (e *RemoteMutationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *RemoteMutationError) Unwrap() error { return e.Err }

// Cause returns the innermost error message, for user-facing notices
// that should not repeat the operation prefix.
func Cause(err error) string {
	var qe *RemoteQueryError
	if errors.As(err, &qe) {
		return qe.Err.Error()
	}
	var me *RemoteMutationError
	if errors.As(err, &me) {
		return me.Err.Error()
	}
	return err.Error()
}
