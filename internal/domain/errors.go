package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfiguration is returned for invalid startup configuration.
	// It is fatal: the process must halt before any ingest or query runs.
	ErrInvalidConfiguration = errors.New("invalid configuration")
	// ErrUnsupportedEncoding is returned when a source file is not valid UTF-8.
	// It is isolated per document and recorded in the ingest report.
	ErrUnsupportedEncoding = errors.New("unsupported encoding")
	// ErrEmbedding is returned when an embedding call fails. Retryable up to a
	// bounded count, then recorded as a per-document failure.
	ErrEmbedding = errors.New("embedding failure")
	// ErrStoreUnavailable is returned when the vector store cannot be reached
	// or its storage is corrupt. Fatal for the current operation, never retried.
	ErrStoreUnavailable = errors.New("vector store unavailable")
	// ErrInvalidArgument is returned for malformed caller input on the
	// retrieval path, surfaced synchronously.
	ErrInvalidArgument = errors.New("invalid argument")
)

// BatchError reports an embedding batch failure together with the index of
// the item that could not be embedded. The whole batch fails atomically:
// no item from a failed batch is ever written to the vector store.
type BatchError struct {
	Index int
	Err   error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("embedding failure at batch item %d: %v", e.Index, e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }

// Is makes BatchError match ErrEmbedding in errors.Is chains.
func (e *BatchError) Is(target error) bool { return target == ErrEmbedding }

// WrapError wraps an error with additional context.
func WrapError(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}
