// Package queue provides the producer side of a vqueue: a durable,
// file-backed, append-only log of typed records.
//
// Queue provides:
//   - Persistent storage with automatic segment rotation
//   - Header-written-last appends, so a crash never publishes a torn record
//   - Monotonic logical positions that survive reopen and rotation
//   - A single writer per queue, enforced with a file lock
//   - Crash recovery from the last checkpoint in queue.info
//
// Basic usage:
//
//	q, err := queue.Open("/var/lib/vqueue", "orders", queue.ModeDefault, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer q.Close()
//
//	pos, err := q.Push([]byte("hello"), format.MsgTypeString)
//	if err != nil {
//	    log.Fatal(err)
//	}
package queue

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/vnykmshr/vqueue/internal/format"
	"github.com/vnykmshr/vqueue/internal/logging"
	"github.com/vnykmshr/vqueue/internal/segment"
)

// Queue is a persistent, disk-backed record log.
type Queue struct {
	name     string
	basePath string
	dir      string
	mode     Mode
	opts     *Options

	mu sync.RWMutex

	info    *format.QueueInfo
	queueID [16]byte

	// Writable handles only
	lock     *flock.Flock
	segments *segment.Manager

	// Read handles only
	reader *segment.LogReader

	countPushed uint64
	end         uint64

	ready  bool
	closed bool
}

// Open opens or creates the queue name under basePath.
//
// ModeRead requires an existing queue and never writes. ModeReadWrite and
// ModeDefault create missing structures, take the single-writer lock and
// discard any unpublished tail left by a crash.
func Open(basePath, name string, mode Mode, opts *Options) (*Queue, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	opts = opts.withDefaults()
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	base, err := ValidatePath(basePath, "base")
	if err != nil {
		return nil, err
	}

	q := &Queue{
		name:     name,
		basePath: base,
		dir:      Dir(base, name),
		mode:     mode,
		opts:     opts,
	}

	switch mode {
	case ModeRead:
		err = q.openReadOnly()
	case ModeReadWrite, ModeDefault:
		err = q.openWritable()
	default:
		err = fmt.Errorf("invalid mode: %d", mode)
	}
	if err != nil {
		return nil, err
	}

	q.ready = true
	q.updateMetrics()

	opts.Logger.Info("queue opened",
		logging.F("queue", name),
		logging.F("mode", mode.String()),
		logging.F("count_pushed", q.countPushed),
		logging.F("end_position", q.end),
	)

	return q, nil
}

// openReadOnly loads an existing queue without locking or repairing it.
func (q *Queue) openReadOnly() error {
	info, err := ReadInfo(q.basePath, q.name)
	if err != nil {
		return err
	}
	id, err := ParseQueueID(info.QueueID)
	if err != nil {
		return err
	}

	q.info = info
	q.queueID = id
	q.countPushed = info.CountPushed
	q.end = info.EndPosition
	q.reader = segment.NewLogReader(q.dir, id)

	if err := q.refreshLocked(); err != nil {
		_ = q.reader.Close()
		return err
	}
	return nil
}

// openWritable creates or recovers the queue and positions the writer.
func (q *Queue) openWritable() (err error) {
	if err := os.MkdirAll(q.dir, 0755); err != nil {
		return fmt.Errorf("failed to create queue directory: %w", err)
	}

	q.lock = flock.New(filepath.Join(q.dir, LockFileName))
	locked, err := q.lock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to lock queue: %w", err)
	}
	if !locked {
		return fmt.Errorf("%w: %s", ErrQueueLocked, q.name)
	}
	defer func() {
		if err != nil {
			_ = q.lock.Unlock()
		}
	}()

	info, created, err := q.loadOrCreateInfo()
	if err != nil {
		return err
	}
	id, err := ParseQueueID(info.QueueID)
	if err != nil {
		return err
	}
	q.info = info
	q.queueID = id

	if created {
		q.opts.Logger.Info("queue created",
			logging.F("queue", q.name),
			logging.F("queue_id", info.QueueID),
			logging.F("dir", q.dir),
		)
	}

	// Everything before the checkpoint was synced; verify what came after.
	reader := segment.NewLogReader(q.dir, id)
	res, scanErr := reader.Scan(info.EndPosition, true, nil)
	_ = reader.Close()
	if scanErr != nil {
		if !errors.Is(scanErr, format.ErrMalformed) {
			return fmt.Errorf("failed to recover log tail: %w", scanErr)
		}
		if err := q.checkTornTail(res.End, scanErr); err != nil {
			return err
		}
	}

	q.countPushed = info.CountPushed + res.Count
	q.end = res.End

	discarded, err := q.tailBytes(q.end)
	if err != nil {
		return err
	}
	if discarded > 0 {
		fields := []logging.Field{
			logging.F("queue", q.name),
			logging.F("end_position", q.end),
			logging.F("truncated_bytes", discarded),
		}
		if scanErr != nil {
			fields = append(fields, logging.F("error", scanErr.Error()))
		}
		q.opts.Logger.Warn("truncating unpublished log tail", fields...)
	}

	mopts := &segment.ManagerOptions{
		Directory:      q.dir,
		QueueID:        id,
		MaxSegmentSize: q.opts.MaxSegmentSize,
		WriterOptions: &segment.WriterOptions{
			SyncPolicy:   q.opts.SyncPolicy,
			SyncInterval: q.opts.SyncInterval,
		},
		Logger: q.opts.Logger,
	}
	q.segments, err = segment.NewManager(mopts, q.end)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCorrupted, err)
	}

	if err := q.checkpoint(); err != nil {
		_ = q.segments.Close()
		return err
	}

	return nil
}

// checkTornTail accepts a malformed record at pos only as the last thing in
// the log: it must sit in the final segment and no decodable record may
// follow its claimed extent. Anything else is corruption.
func (q *Queue) checkTornTail(pos uint64, cause error) error {
	segments, err := segment.DiscoverSegments(q.dir)
	if err != nil {
		return err
	}
	if len(segments) == 0 {
		return fmt.Errorf("%w: %v", ErrCorrupted, cause)
	}
	last := segments[len(segments)-1]
	if pos < last.BaseOffset {
		return fmt.Errorf("%w: malformed record at %d in a sealed segment: %v", ErrCorrupted, pos, cause)
	}

	r, err := segment.NewReader(last.Path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCorrupted, err)
	}
	defer func() { _ = r.Close() }()

	next := pos + format.RecordHeaderSize
	if h, err := r.ReadHeaderAt(pos); err == nil {
		next = pos + h.RecordSize()
	}
	if next >= last.End() {
		return nil
	}
	if _, err := r.ReadHeaderAt(next); err == nil {
		return fmt.Errorf("%w: malformed record at %d is followed by records: %v", ErrCorrupted, pos, cause)
	}
	return nil
}

// tailBytes returns how many bytes the last segment holds past end.
func (q *Queue) tailBytes(end uint64) (uint64, error) {
	segments, err := segment.DiscoverSegments(q.dir)
	if err != nil {
		return 0, err
	}
	if len(segments) == 0 {
		return 0, nil
	}
	last := segments[len(segments)-1]
	if last.End() <= end {
		return 0, nil
	}
	return last.End() - end, nil
}

// Push appends one record and returns its logical position.
func (q *Queue) Push(body []byte, t format.MsgType) (uint64, error) {
	start := time.Now()

	if err := q.validatePush(t, body); err != nil {
		return 0, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.checkWritableLocked(); err != nil {
		return 0, err
	}

	pos, err := q.segments.Append(body, t)
	if err != nil {
		q.opts.MetricsCollector.RecordPushError()
		q.opts.Logger.Error("push failed",
			logging.F("queue", q.name),
			logging.F("position", q.end),
			logging.F("error", err.Error()),
		)
		return 0, fmt.Errorf("failed to append record: %w", err)
	}

	q.countPushed++
	q.end = pos + format.RecordHeaderSize + uint64(len(body))

	q.opts.MetricsCollector.RecordPush(len(body), time.Since(start))
	q.updateMetricsLocked()

	return pos, nil
}

// PushBatch appends records of one type with a single body write and a
// single header pass. Returns the logical position of each record.
func (q *Queue) PushBatch(bodies [][]byte, t format.MsgType) ([]uint64, error) {
	start := time.Now()

	if len(bodies) == 0 {
		return nil, fmt.Errorf("empty batch")
	}
	total := 0
	for _, body := range bodies {
		if err := q.validatePush(t, body); err != nil {
			return nil, err
		}
		total += len(body)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.checkWritableLocked(); err != nil {
		return nil, err
	}

	positions, err := q.segments.AppendBatch(bodies, t)
	if err != nil {
		q.opts.MetricsCollector.RecordPushError()
		q.opts.Logger.Error("batch push failed",
			logging.F("queue", q.name),
			logging.F("batch_size", len(bodies)),
			logging.F("error", err.Error()),
		)
		return nil, fmt.Errorf("failed to append batch: %w", err)
	}

	q.countPushed += uint64(len(bodies))
	q.end = q.segments.End()

	q.opts.MetricsCollector.RecordPushBatch(len(bodies), total, time.Since(start))
	q.updateMetricsLocked()

	return positions, nil
}

func (q *Queue) validatePush(t format.MsgType, body []byte) error {
	if !q.mode.Writable() {
		return ErrReadOnly
	}
	if !t.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidMsgType, byte(t))
	}
	return validateMessageSize(body, q.opts.MaxMessageSize)
}

// checkWritableLocked must be called with lock held.
func (q *Queue) checkWritableLocked() error {
	if q.closed {
		q.opts.MetricsCollector.RecordPushError()
		return ErrQueueClosed
	}
	if err := checkDiskSpace(q.dir, q.opts.MinFreeDiskSpace); err != nil {
		q.opts.MetricsCollector.RecordPushError()
		return err
	}
	return nil
}

// Name returns the queue name.
func (q *Queue) Name() string {
	return q.name
}

// BasePath returns the resolved base path.
func (q *Queue) BasePath() string {
	return q.basePath
}

// Dir returns the queue directory.
func (q *Queue) Dir() string {
	return q.dir
}

// Mode returns the mode the queue was opened with.
func (q *Queue) Mode() Mode {
	return q.mode
}

// QueueID returns the id stamped at queue creation.
func (q *Queue) QueueID() string {
	return q.info.QueueID
}

// NewLogReader returns a reader over this queue's segments that rejects
// segments of any other queue. The caller closes it.
func (q *Queue) NewLogReader() *segment.LogReader {
	return segment.NewLogReader(q.dir, q.queueID)
}

// CountPushed returns the number of complete records in the log.
// For read handles this is the count as of open or the last Refresh.
func (q *Queue) CountPushed() uint64 {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.countPushed
}

// EndPosition returns the position the next record will get.
// For read handles this is the end as of open or the last Refresh.
func (q *Queue) EndPosition() uint64 {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.end
}

// IsReady reports whether the queue passed all open checks and is not closed.
func (q *Queue) IsReady() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.ready && !q.closed
}

// IsClosed returns whether the queue has been closed.
func (q *Queue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}

func (q *Queue) updateMetrics() {
	q.mu.RLock()
	defer q.mu.RUnlock()
	q.updateMetricsLocked()
}

func (q *Queue) updateMetricsLocked() {
	q.opts.MetricsCollector.UpdateQueueState(q.countPushed, q.end, q.segmentCountLocked())
}

func (q *Queue) segmentCountLocked() int {
	if q.segments != nil {
		return q.segments.SegmentCount()
	}
	segments, err := segment.DiscoverSegments(q.dir)
	if err != nil {
		return 0
	}
	return len(segments)
}
