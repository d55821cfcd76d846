package queue

import "errors"

// Errors returned by queue operations.
var (
	// ErrInvalidName indicates a queue or consumer name that cannot be used as a directory entry.
	ErrInvalidName = errors.New("vqueue: invalid name")

	// ErrQueueNotFound indicates a read-only open of a queue that does not exist.
	ErrQueueNotFound = errors.New("vqueue: queue not found")

	// ErrQueueLocked indicates another writer holds the queue.
	ErrQueueLocked = errors.New("vqueue: queue locked by another writer")

	// ErrQueueClosed indicates the queue has been closed.
	ErrQueueClosed = errors.New("vqueue: queue closed")

	// ErrReadOnly indicates a write operation on a read-only queue.
	ErrReadOnly = errors.New("vqueue: queue is read-only")

	// ErrInvalidMsgType indicates a record type other than String or Object.
	ErrInvalidMsgType = errors.New("vqueue: invalid message type")

	// ErrMessageTooLarge indicates a body above the configured maximum.
	ErrMessageTooLarge = errors.New("vqueue: message too large")

	// ErrInsufficientSpace indicates free disk space fell below the configured minimum.
	ErrInsufficientSpace = errors.New("vqueue: insufficient disk space")

	// ErrCorrupted indicates the queue data is corrupted.
	ErrCorrupted = errors.New("vqueue: data corrupted")
)
