package segment

import (
	"fmt"
	"sync"
	"time"

	"github.com/vnykmshr/vqueue/internal/format"
	"github.com/vnykmshr/vqueue/internal/logging"
)

// DefaultMaxSegmentSize is the record volume after which a segment is sealed.
const DefaultMaxSegmentSize = 64 * 1024 * 1024 // 64MB

// ManagerOptions configures segment manager behavior.
type ManagerOptions struct {
	// Directory where segments are stored
	Directory string

	// QueueID is stamped into every segment header
	QueueID [16]byte

	// MaxSegmentSize is the record volume in bytes before rotation.
	// A single record larger than this still fits in one segment.
	MaxSegmentSize uint64

	// WriterOptions for creating new segments
	WriterOptions *WriterOptions

	// Logger receives rotation events (nil = no logging)
	Logger logging.Logger
}

// DefaultManagerOptions returns sensible defaults for segment management.
func DefaultManagerOptions(dir string) *ManagerOptions {
	return &ManagerOptions{
		Directory:      dir,
		MaxSegmentSize: DefaultMaxSegmentSize,
		WriterOptions:  DefaultWriterOptions(),
		Logger:         logging.NoopLogger{},
	}
}

// Manager owns the writable end of a queue's log: the active segment writer,
// the list of sealed segments, and rotation between them.
type Manager struct {
	opts *ManagerOptions

	mu             sync.RWMutex
	activeWriter   *Writer
	segments       []*SegmentInfo // sealed segments, oldest first
	segmentCreated time.Time
	closed         bool
}

// NewManager prepares the log in opts.Directory for appending at position
// end, which must be the end of the last complete record. Bytes after end
// in the last segment are discarded. An empty directory gets its first
// segment at position 0.
func NewManager(opts *ManagerOptions, end uint64) (*Manager, error) {
	if opts == nil {
		return nil, fmt.Errorf("options cannot be nil")
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoopLogger{}
	}
	if opts.WriterOptions == nil {
		opts.WriterOptions = DefaultWriterOptions()
	}
	if opts.MaxSegmentSize == 0 {
		opts.MaxSegmentSize = DefaultMaxSegmentSize
	}

	if err := RemoveTempSegments(opts.Directory); err != nil {
		return nil, fmt.Errorf("failed to remove temporary segments: %w", err)
	}

	segments, err := DiscoverSegments(opts.Directory)
	if err != nil {
		return nil, fmt.Errorf("failed to discover segments: %w", err)
	}

	m := &Manager{
		opts:           opts,
		segmentCreated: time.Now(),
	}

	if len(segments) == 0 {
		if end != 0 {
			return nil, fmt.Errorf("no segments found for log end %d", end)
		}
		w, err := CreateWriter(opts.Directory, 0, opts.QueueID, opts.WriterOptions)
		if err != nil {
			return nil, fmt.Errorf("failed to create initial segment: %w", err)
		}
		m.activeWriter = w
		return m, nil
	}

	if err := ValidateSegmentSequence(segments); err != nil {
		return nil, fmt.Errorf("invalid segment sequence: %w", err)
	}

	last := segments[len(segments)-1]
	if end < last.BaseOffset || end > last.End() {
		return nil, fmt.Errorf("log end %d outside last segment [%d, %d]", end, last.BaseOffset, last.End())
	}

	w, err := OpenWriter(last.Path, end-last.BaseOffset, opts.WriterOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to open active segment: %w", err)
	}
	if !w.header.BelongsTo(opts.QueueID) {
		_ = w.Close()
		return nil, fmt.Errorf("%w: %s", ErrQueueIDMismatch, FormatSegmentName(last.BaseOffset))
	}

	m.activeWriter = w
	m.segments = segments[:len(segments)-1]
	return m, nil
}

// Append writes a record to the active segment, rotating first if the
// segment is full. Returns the record's logical position.
func (m *Manager) Append(body []byte, t format.MsgType) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, fmt.Errorf("manager is closed")
	}

	if err := m.maybeRotate(); err != nil {
		return 0, err
	}

	return m.activeWriter.Append(body, t)
}

// AppendBatch writes records to the active segment, rotating first if the
// segment is full. The whole batch lands in one segment.
func (m *Manager) AppendBatch(bodies [][]byte, t format.MsgType) ([]uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, fmt.Errorf("manager is closed")
	}

	if err := m.maybeRotate(); err != nil {
		return nil, err
	}

	return m.activeWriter.AppendBatch(bodies, t)
}

// maybeRotate seals the active segment when it reached the size limit.
// Must be called with lock held.
func (m *Manager) maybeRotate() error {
	if m.activeWriter.Size() < m.opts.MaxSegmentSize {
		return nil
	}
	if err := m.rotateSegment(); err != nil {
		return fmt.Errorf("failed to rotate segment: %w", err)
	}
	return nil
}

// rotateSegment closes the current segment and creates the next one at its end.
// Must be called with lock held.
func (m *Manager) rotateSegment() error {
	old := m.activeWriter
	end := old.End()

	if err := old.Close(); err != nil {
		return fmt.Errorf("failed to close active segment: %w", err)
	}

	sealed := &SegmentInfo{
		BaseOffset: old.BaseOffset(),
		Path:       old.Path(),
		Size:       int64(format.SegmentHeaderSize + old.Size()), //nolint:gosec // G115: segment sizes fit int64
	}
	m.segments = append(m.segments, sealed)

	w, err := CreateWriter(m.opts.Directory, end, m.opts.QueueID, m.opts.WriterOptions)
	if err != nil {
		return fmt.Errorf("failed to create new segment writer: %w", err)
	}

	m.activeWriter = w
	m.segmentCreated = time.Now()

	m.opts.Logger.Info("segment rotated",
		logging.F("sealed", FormatSegmentName(sealed.BaseOffset)),
		logging.F("sealed_bytes", old.Size()),
		logging.F("next_base", end),
	)

	return nil
}

// Sync syncs the active segment to disk.
func (m *Manager) Sync() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return fmt.Errorf("manager is closed")
	}

	return m.activeWriter.Sync()
}

// End returns the logical position the next record will get.
func (m *Manager) End() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.activeWriter.End()
}

// GetSegments returns information about the sealed segments.
func (m *Manager) GetSegments() []*SegmentInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*SegmentInfo, len(m.segments))
	copy(result, m.segments)
	return result
}

// GetActiveSegment returns the currently active segment for writing.
func (m *Manager) GetActiveSegment() *SegmentInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.activeWriter == nil {
		return nil
	}

	return &SegmentInfo{
		BaseOffset: m.activeWriter.BaseOffset(),
		Path:       m.activeWriter.Path(),
		Size:       int64(format.SegmentHeaderSize + m.activeWriter.Size()), //nolint:gosec // G115: segment sizes fit int64
	}
}

// SegmentCount returns the number of segments including the active one.
func (m *Manager) SegmentCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := len(m.segments)
	if m.activeWriter != nil {
		n++
	}
	return n
}

// Close closes the manager and the active segment.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}

	if m.activeWriter != nil {
		if err := m.activeWriter.Close(); err != nil {
			return err
		}
	}

	m.closed = true
	return nil
}

// IsClosed returns whether the manager has been closed.
func (m *Manager) IsClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}

// ActiveWriterStats returns statistics about the active writer.
type ActiveWriterStats struct {
	BaseOffset     uint64
	BytesWritten   uint64
	RecordsWritten uint64
	Age            time.Duration
}

// GetActiveWriterStats returns statistics about the active writer.
func (m *Manager) GetActiveWriterStats() *ActiveWriterStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.activeWriter == nil {
		return nil
	}

	return &ActiveWriterStats{
		BaseOffset:     m.activeWriter.BaseOffset(),
		BytesWritten:   m.activeWriter.Size(),
		RecordsWritten: m.activeWriter.RecordsWritten(),
		Age:            time.Since(m.segmentCreated),
	}
}
