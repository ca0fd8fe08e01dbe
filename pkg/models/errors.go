package models

import "fmt"

// ValidationError reports a malformed record that was rejected before
// being persisted.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

// WriteError reports a storage-medium failure on an append or atomic move.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write failed: %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// NotFoundError reports an unknown memory or session ID on a read-style
// operation.
type NotFoundError struct {
	Kind string // "memory", "session"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// ConsistencyWarning reports a recoverable mismatch between the index and
// the backing files. It is logged and self-healed by the next rebuild,
// never fatal.
type ConsistencyWarning struct {
	Detail string
}

func (e *ConsistencyWarning) Error() string {
	return "consistency warning: " + e.Detail
}
