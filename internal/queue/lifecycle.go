// Package queue provides lifecycle management for queue operations.
// This file contains sync, refresh, close and stats functionality.
package queue

import (
	"errors"
	"fmt"
	"time"

	"github.com/vnykmshr/vqueue/internal/format"
	"github.com/vnykmshr/vqueue/internal/logging"
)

// Sync fsyncs pending writes and checkpoints the log end in queue.info.
func (q *Queue) Sync() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}
	if !q.mode.Writable() {
		return ErrReadOnly
	}

	if err := q.segments.Sync(); err != nil {
		return fmt.Errorf("failed to sync segments: %w", err)
	}
	return q.checkpoint()
}

// Refresh rereads the log end for a read handle, picking up records the
// writer published since open. A writable handle is always current.
func (q *Queue) Refresh() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}
	if q.mode.Writable() {
		return nil
	}
	if err := q.refreshLocked(); err != nil {
		return err
	}
	q.updateMetricsLocked()
	return nil
}

// refreshLocked walks complete records past the known end.
// Must be called with lock held.
func (q *Queue) refreshLocked() error {
	res, err := q.reader.Scan(q.end, false, nil)
	if err != nil {
		if !errors.Is(err, format.ErrMalformed) {
			return fmt.Errorf("failed to scan log: %w", err)
		}
		// Never repaired from a read handle; the next writer open truncates it.
		q.opts.Logger.Warn("malformed record past log end",
			logging.F("queue", q.name),
			logging.F("position", res.End),
			logging.F("error", err.Error()),
		)
	}

	q.countPushed += res.Count
	q.end = res.End
	return nil
}

// Close syncs, checkpoints and releases the queue. Close is idempotent.
func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true

	if !q.mode.Writable() {
		return q.reader.Close()
	}

	var errs []error
	if err := q.segments.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close segments: %w", err))
	} else if err := q.checkpoint(); err != nil {
		errs = append(errs, err)
	}
	if err := q.lock.Unlock(); err != nil {
		errs = append(errs, fmt.Errorf("failed to release queue lock: %w", err))
	}

	if err := errors.Join(errs...); err != nil {
		q.opts.Logger.Error("queue close failed",
			logging.F("queue", q.name),
			logging.F("error", err.Error()),
		)
		return err
	}

	q.opts.Logger.Info("queue closed",
		logging.F("queue", q.name),
		logging.F("count_pushed", q.countPushed),
		logging.F("end_position", q.end),
	)
	return nil
}

// Stats is a point-in-time view of a queue.
type Stats struct {
	// Name and QueueID identify the queue
	Name    string
	QueueID string

	// Mode is the mode the handle was opened with
	Mode Mode

	// CountPushed is the number of complete records in the log
	CountPushed uint64

	// EndPosition is the logical position the next record will get
	EndPosition uint64

	// CheckpointCount and CheckpointEnd are the last values durably
	// recorded in queue.info
	CheckpointCount uint64
	CheckpointEnd   uint64

	// SegmentCount is the number of segment files
	SegmentCount int

	// ActiveSegmentBase, ActiveSegmentBytes and ActiveSegmentAge describe
	// the segment being appended to. Zero for read handles.
	ActiveSegmentBase  uint64
	ActiveSegmentBytes uint64
	ActiveSegmentAge   time.Duration

	// CreatedAt is when the queue was first created
	CreatedAt time.Time
}

// Stats returns current queue statistics.
func (q *Queue) Stats() *Stats {
	q.mu.RLock()
	defer q.mu.RUnlock()

	stats := &Stats{
		Name:            q.name,
		QueueID:         q.info.QueueID,
		Mode:            q.mode,
		CountPushed:     q.countPushed,
		EndPosition:     q.end,
		CheckpointCount: q.info.CountPushed,
		CheckpointEnd:   q.info.EndPosition,
		SegmentCount:    q.segmentCountLocked(),
		CreatedAt:       time.Unix(0, q.info.CreatedAt),
	}

	if q.segments != nil && !q.closed {
		if active := q.segments.GetActiveWriterStats(); active != nil {
			stats.ActiveSegmentBase = active.BaseOffset
			stats.ActiveSegmentBytes = active.BytesWritten
			stats.ActiveSegmentAge = active.Age
		}
	}

	return stats
}
