package queue

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/vnykmshr/vqueue/internal/format"
	"github.com/vnykmshr/vqueue/internal/segment"
)

const (
	// InfoFileName is the name of the queue info file
	InfoFileName = "queue.info"

	// LockFileName is the name of the writer lock file
	LockFileName = "queue.lock"
)

// Dir returns the directory of queue name under basePath.
func Dir(basePath, name string) string {
	return filepath.Join(basePath, name)
}

// Exists reports whether a queue has been created under basePath.
func Exists(basePath, name string) bool {
	_, err := os.Stat(filepath.Join(Dir(basePath, name), InfoFileName))
	return err == nil
}

// ReadInfo loads the info file of an existing queue.
func ReadInfo(basePath, name string) (*format.QueueInfo, error) {
	info, err := format.ReadQueueInfo(filepath.Join(Dir(basePath, name), InfoFileName))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrQueueNotFound, name)
		}
		return nil, fmt.Errorf("%w: %v", ErrCorrupted, err)
	}
	return info, nil
}

// ParseQueueID converts the textual queue id of an info file to segment header form.
func ParseQueueID(id string) ([16]byte, error) {
	u, err := uuid.Parse(id)
	if err != nil {
		return [16]byte{}, fmt.Errorf("%w: invalid queue id %q: %v", ErrCorrupted, id, err)
	}
	return u, nil
}

// loadOrCreateInfo returns the queue info, creating it for a new queue.
// Must be called while holding the writer lock.
func (q *Queue) loadOrCreateInfo() (*format.QueueInfo, bool, error) {
	info, err := ReadInfo(q.basePath, q.name)
	if err == nil {
		return info, false, nil
	}
	if !errors.Is(err, ErrQueueNotFound) {
		return nil, false, err
	}

	segments, err := segment.DiscoverSegments(q.dir)
	if err != nil {
		return nil, false, err
	}
	if len(segments) > 0 {
		return nil, false, fmt.Errorf("%w: %d segments without %s", ErrCorrupted, len(segments), InfoFileName)
	}

	info = format.NewQueueInfo(q.name, uuid.NewString())
	if err := format.WriteQueueInfo(q.infoPath(), info); err != nil {
		return nil, false, fmt.Errorf("failed to create queue info: %w", err)
	}
	return info, true, nil
}

// checkpoint records the durable log end in the info file.
// Must be called with lock held, after the log has been synced.
func (q *Queue) checkpoint() error {
	if q.info.CountPushed == q.countPushed && q.info.EndPosition == q.end {
		return nil
	}

	next := *q.info
	next.CountPushed = q.countPushed
	next.EndPosition = q.end
	next.UpdatedAt = time.Now().UnixNano()

	if err := format.WriteQueueInfo(q.infoPath(), &next); err != nil {
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	q.info = &next
	return nil
}

func (q *Queue) infoPath() string {
	return filepath.Join(q.dir, InfoFileName)
}
