package entity

import (
	"errors"
	"fmt"
)

var (
	// ErrObjectNotFound reports that a referenced object is absent from
	// object storage.
	ErrObjectNotFound = errors.New("object not found in storage")

	// ErrFileTooLarge reports that an object exceeds the configured
	// ingestion size limit.
	ErrFileTooLarge = errors.New("file exceeds maximum size")
)

// PreconditionError reports that a stage was requested before its
// prerequisite artifacts or status existed.
type PreconditionError struct {
	Reason string
}

func (e *PreconditionError) Error() string {
	return e.Reason
}

// Preconditionf builds a PreconditionError from a format string.
func Preconditionf(format string, args ...interface{}) *PreconditionError {
	return &PreconditionError{Reason: fmt.Sprintf(format, args...)}
}
