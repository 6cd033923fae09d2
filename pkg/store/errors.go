// Package store provides the shared PostgreSQL plumbing for the dashboard
// data stores: the connection manager, schema migrations, and the error
// taxonomy every store reports through.
package store

import "errors"

var (
	// ErrNotFound indicates a lookup miss. An absent row is a valid result,
	// callers branch on it rather than treating it as a failure.
	ErrNotFound = errors.New("not found")

	// ErrIntegrityViolation indicates referential state that should be
	// impossible: a result whose site does not match its URL's site, or
	// more than one settings row. It aborts the enclosing operation.
	ErrIntegrityViolation = errors.New("data integrity violation")

	// ErrTransientStore indicates a connection or transaction failure.
	// Callers may safely retry the operation.
	ErrTransientStore = errors.New("transient store failure")
)
