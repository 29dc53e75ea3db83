// Package pcperr defines the sentinel errors the state machine and
// connection facade surface to callers, grounded in the teacher's plain
// errors.New/fmt.Errorf style (no custom exception hierarchy).
package pcperr

import "errors"

var (
	// ErrDoesNotExist is returned when an operation targets a connection
	// or service that was never established (e.g. SEND on Closed).
	ErrDoesNotExist = errors.New("pcperr: connection does not exist")

	// ErrAlreadyExists is returned by OPEN on a connection that is
	// already open or opening.
	ErrAlreadyExists = errors.New("pcperr: connection already exists")

	// ErrClosing is returned by SEND/RECEIVE once teardown has begun.
	ErrClosing = errors.New("pcperr: connection is closing")

	// ErrInsufficientResources is returned when a queue has no room to
	// accept more data.
	ErrInsufficientResources = errors.New("pcperr: insufficient resources")

	// ErrConnectionReset is signalled when a peer RST tears down a
	// synchronized connection.
	ErrConnectionReset = errors.New("pcperr: connection reset by peer")

	// ErrConnectionRefused is signalled when a RST arrives in SynReceived
	// on a connection that originated from an active OPEN.
	ErrConnectionRefused = errors.New("pcperr: connection refused")

	// ErrForeignSocketUnspecified is returned by an active OPEN or a
	// Listen-state SEND attempted without a remote endpoint set.
	ErrForeignSocketUnspecified = errors.New("pcperr: foreign socket unspecified")
)
