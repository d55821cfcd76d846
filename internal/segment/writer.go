package segment

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vnykmshr/vqueue/internal/format"
)

// SyncPolicy defines when to fsync data to disk.
type SyncPolicy int

const (
	// SyncImmediate fsyncs the body before publishing the header and the
	// header after (safest, two fsyncs per append)
	SyncImmediate SyncPolicy = iota

	// SyncInterval fsyncs at regular intervals (balanced)
	SyncInterval

	// SyncManual requires explicit Sync() calls (fastest, riskiest)
	SyncManual
)

// String returns the policy name.
func (p SyncPolicy) String() string {
	switch p {
	case SyncImmediate:
		return "immediate"
	case SyncInterval:
		return "interval"
	case SyncManual:
		return "manual"
	default:
		return fmt.Sprintf("SyncPolicy(%d)", int(p))
	}
}

// ParseSyncPolicy converts a policy name back to a SyncPolicy.
func ParseSyncPolicy(s string) (SyncPolicy, error) {
	switch s {
	case "", "immediate":
		return SyncImmediate, nil
	case "interval":
		return SyncInterval, nil
	case "manual":
		return SyncManual, nil
	default:
		return 0, fmt.Errorf("unknown sync policy %q", s)
	}
}

// WriterOptions configures segment writer behavior.
type WriterOptions struct {
	// SyncPolicy determines when data is fsynced to disk
	SyncPolicy SyncPolicy

	// SyncInterval is the duration between automatic fsyncs (for SyncInterval policy)
	SyncInterval time.Duration
}

// DefaultWriterOptions returns sensible defaults for segment writers.
func DefaultWriterOptions() *WriterOptions {
	return &WriterOptions{
		SyncPolicy:   SyncImmediate,
		SyncInterval: 1 * time.Second,
	}
}

// Writer appends records to a single segment file.
//
// Every append follows the same protocol: a zeroed header slot and the body
// are written first, then the real header is written over the slot. Under
// SyncImmediate each step is followed by an fsync, so a crash can leave an
// unpublished slot but never a published header in front of a lost body.
type Writer struct {
	baseOffset uint64
	path       string

	file   *os.File
	header *format.SegmentHeader

	// Tracking
	size           uint64 // Record bytes after the segment header
	recordsWritten uint64

	opts *WriterOptions

	// Sync management
	mu              sync.Mutex
	syncTimer       *time.Timer
	lastSyncTime    time.Time
	needsSync       bool
	syncTimerActive bool

	closed bool
}

// CreateWriter creates a new, empty segment and returns a writer for it.
//
// The file is built under a temporary name, its header is synced, and only
// then is it renamed into place, so readers never observe a segment without
// a valid header.
func CreateWriter(dir string, baseOffset uint64, queueID [16]byte, opts *WriterOptions) (*Writer, error) {
	if opts == nil {
		opts = DefaultWriterOptions()
	}

	path := filepath.Join(dir, FormatSegmentName(baseOffset))
	if _, err := os.Lstat(path); err == nil {
		return nil, fmt.Errorf("segment %s already exists", filepath.Base(path))
	}

	tmpPath := path + TempFileExtension
	file, err := os.OpenFile(tmpPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644) //nolint:gosec // G304: Path is user-provided
	if err != nil {
		return nil, fmt.Errorf("failed to create segment file: %w", err)
	}

	header := format.NewSegmentHeader(baseOffset, queueID)

	fail := func(err error) (*Writer, error) {
		_ = file.Close()
		_ = os.Remove(tmpPath)
		return nil, err
	}

	if _, err := file.Write(header.Marshal()); err != nil {
		return fail(fmt.Errorf("failed to write segment header: %w", err))
	}
	if err := file.Sync(); err != nil {
		return fail(fmt.Errorf("failed to sync segment header: %w", err))
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fail(fmt.Errorf("failed to publish segment: %w", err))
	}
	if err := format.SyncDir(dir); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to sync directory: %w", err)
	}

	return newWriter(file, path, header, 0, opts), nil
}

// OpenWriter reopens an existing segment for appending after dataSize bytes
// of records. Anything past that point is discarded.
func OpenWriter(path string, dataSize uint64, opts *WriterOptions) (*Writer, error) {
	if opts == nil {
		opts = DefaultWriterOptions()
	}

	file, err := os.OpenFile(path, os.O_RDWR, 0) //nolint:gosec // G304: Path is user-provided
	if err != nil {
		return nil, fmt.Errorf("failed to open segment file: %w", err)
	}

	header, err := format.ReadSegmentHeader(file)
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}

	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to stat segment file: %w", err)
	}

	want := int64(format.SegmentHeaderSize + dataSize) //nolint:gosec // G115: segment sizes fit int64
	switch {
	case info.Size() < want:
		_ = file.Close()
		return nil, fmt.Errorf("segment %s holds %d bytes, expected at least %d",
			filepath.Base(path), info.Size(), want)
	case info.Size() > want:
		if err := file.Truncate(want); err != nil {
			_ = file.Close()
			return nil, fmt.Errorf("failed to truncate segment tail: %w", err)
		}
		if err := file.Sync(); err != nil {
			_ = file.Close()
			return nil, fmt.Errorf("failed to sync truncated segment: %w", err)
		}
	}

	return newWriter(file, path, header, dataSize, opts), nil
}

func newWriter(file *os.File, path string, header *format.SegmentHeader, size uint64, opts *WriterOptions) *Writer {
	w := &Writer{
		baseOffset:   header.BaseOffset,
		path:         path,
		file:         file,
		header:       header,
		size:         size,
		opts:         opts,
		lastSyncTime: time.Now(),
	}

	if opts.SyncPolicy == SyncInterval && opts.SyncInterval > 0 {
		w.startSyncTimer()
	}

	return w
}

// syncFile flushes a segment file to stable storage.
var syncFile = (*os.File).Sync

// Append writes one record and returns its logical position.
func (w *Writer) Append(body []byte, t format.MsgType) (uint64, error) {
	positions, err := w.AppendBatch([][]byte{body}, t)
	if err != nil {
		return 0, err
	}
	return positions[0], nil
}

// AppendBatch writes several records of the same type with one body write
// and one header pass. Returns the logical position of each record.
func (w *Writer) AppendBatch(bodies [][]byte, t format.MsgType) ([]uint64, error) {
	if len(bodies) == 0 {
		return nil, fmt.Errorf("empty batch")
	}

	headers := make([]format.RecordHeader, len(bodies))
	total := 0
	for i, body := range bodies {
		h, err := format.NewRecordHeader(t, body)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		headers[i] = h
		total += format.RecordHeaderSize + len(body)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil, fmt.Errorf("writer is closed")
	}

	// Header slots stay zero until the bodies are down.
	buf := make([]byte, total)
	fileOffsets := make([]int64, len(bodies))
	positions := make([]uint64, len(bodies))
	start := w.fileOffset()
	off := 0
	for i, body := range bodies {
		fileOffsets[i] = start + int64(off)
		positions[i] = w.baseOffset + w.size + uint64(off) //nolint:gosec // G115: off is non-negative
		copy(buf[off+format.RecordHeaderSize:], body)
		off += format.RecordHeaderSize + len(body)
	}

	if _, err := w.file.WriteAt(buf, start); err != nil {
		w.discardTail(start)
		return nil, fmt.Errorf("failed to write record bodies: %w", err)
	}
	if w.opts.SyncPolicy == SyncImmediate {
		if err := syncFile(w.file); err != nil {
			w.discardTail(start)
			return nil, fmt.Errorf("failed to sync record bodies: %w", err)
		}
	}

	hdr := make([]byte, format.RecordHeaderSize)
	for i, h := range headers {
		h.MarshalTo(hdr)
		if _, err := w.file.WriteAt(hdr, fileOffsets[i]); err != nil {
			w.discardTail(start)
			return nil, fmt.Errorf("failed to publish record header: %w", err)
		}
	}

	if w.opts.SyncPolicy == SyncImmediate {
		if err := syncFile(w.file); err != nil {
			w.unpublish(fileOffsets, start)
			return nil, fmt.Errorf("failed to sync record headers: %w", err)
		}
		w.lastSyncTime = time.Now()
	} else {
		w.needsSync = true
	}

	w.size += uint64(total) //nolint:gosec // G115: total is non-negative
	w.recordsWritten += uint64(len(bodies))

	return positions, nil
}

// unpublish zeroes the header slots of a failed append before dropping its
// bytes, so a reader holding the file never sees those records as complete.
// Must be called with lock held.
func (w *Writer) unpublish(fileOffsets []int64, start int64) {
	zero := make([]byte, format.RecordHeaderSize)
	for _, off := range fileOffsets {
		_, _ = w.file.WriteAt(zero, off)
	}
	w.discardTail(start)
}

// discardTail drops bytes of a failed append so the next append starts clean.
// Must be called with lock held.
func (w *Writer) discardTail(fileOffset int64) {
	_ = w.file.Truncate(fileOffset)
}

func (w *Writer) fileOffset() int64 {
	return int64(format.SegmentHeaderSize + w.size) //nolint:gosec // G115: segment sizes fit int64
}

// Sync fsyncs data to disk.
func (w *Writer) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.syncLocked()
}

// syncLocked performs sync with lock already held.
func (w *Writer) syncLocked() error {
	if w.closed {
		return fmt.Errorf("writer is closed")
	}

	if err := syncFile(w.file); err != nil {
		return fmt.Errorf("failed to sync file: %w", err)
	}

	w.lastSyncTime = time.Now()
	w.needsSync = false

	return nil
}

// Close syncs outstanding data and closes the segment file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}

	if w.syncTimerActive {
		w.syncTimer.Stop()
		w.syncTimerActive = false
	}

	if w.needsSync {
		if err := w.syncLocked(); err != nil {
			return err
		}
	}

	if err := w.file.Close(); err != nil {
		return fmt.Errorf("failed to close segment file: %w", err)
	}

	w.closed = true
	return nil
}

// startSyncTimer starts the automatic sync timer.
func (w *Writer) startSyncTimer() {
	w.syncTimer = time.AfterFunc(w.opts.SyncInterval, func() {
		w.mu.Lock()
		defer w.mu.Unlock()

		if !w.closed && w.needsSync {
			_ = w.syncLocked() // Ignore error in background sync
		}

		if !w.closed {
			w.syncTimer.Reset(w.opts.SyncInterval)
		}
	})
	w.syncTimerActive = true
}

// BaseOffset returns the base offset of this segment.
func (w *Writer) BaseOffset() uint64 {
	return w.baseOffset
}

// Path returns the segment file path.
func (w *Writer) Path() string {
	return w.path
}

// Size returns the number of record bytes written (excluding the segment header).
func (w *Writer) Size() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.size
}

// End returns the logical position the next record will get.
func (w *Writer) End() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.baseOffset + w.size
}

// RecordsWritten returns the number of records appended through this writer.
func (w *Writer) RecordsWritten() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.recordsWritten
}

// NeedsSync reports whether appended data has not been fsynced yet.
func (w *Writer) NeedsSync() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.needsSync
}

// IsClosed returns whether the writer has been closed.
func (w *Writer) IsClosed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}
