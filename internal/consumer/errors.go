package consumer

import (
	"errors"

	"github.com/vnykmshr/vqueue/internal/cursor"
)

// Errors returned by consumer operations.
var (
	// ErrCursorNotFound indicates a read-only open of a cursor that was never created.
	ErrCursorNotFound = cursor.ErrNotFound

	// ErrCursorLocked indicates another handle holds the same cursor.
	ErrCursorLocked = errors.New("vqueue: cursor locked by another consumer")

	// ErrQueueMismatch indicates the cursor belongs to an earlier queue with the same name.
	ErrQueueMismatch = errors.New("vqueue: cursor belongs to a different queue")

	// ErrCursorAhead indicates a saved position past the end of the log.
	ErrCursorAhead = errors.New("vqueue: cursor position past end of log")

	// ErrNoHeader indicates a body read without a peeked header.
	ErrNoHeader = errors.New("vqueue: no record header peeked")

	// ErrBufferTooSmall indicates a body buffer shorter than the record.
	ErrBufferTooSmall = errors.New("vqueue: buffer too small for record body")

	// ErrTailIncomplete indicates the record body is not fully written yet.
	// It is a transient condition: retry later.
	ErrTailIncomplete = errors.New("vqueue: record tail incomplete")

	// ErrPersist indicates a commit whose cursor state could not be saved.
	// The position did not advance.
	ErrPersist = errors.New("vqueue: failed to persist cursor")

	// ErrClosed indicates the consumer has been closed.
	ErrClosed = errors.New("vqueue: consumer closed")
)

// IsTransient reports whether err is a poll result rather than a failure.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTailIncomplete)
}
