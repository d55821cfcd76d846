package segment

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/vnykmshr/vqueue/internal/format"
)

// ErrQueueIDMismatch is returned when a segment carries another queue's id.
var ErrQueueIDMismatch = errors.New("segment belongs to a different queue")

// Reader provides positional reads from a single segment file.
//
// Readers never write and tolerate a concurrent writer appending to the
// same file: short reads at the tail surface as format.ErrNoRecord or
// format.ErrIncomplete rather than errors.
type Reader struct {
	baseOffset uint64
	path       string

	file   *os.File
	header *format.SegmentHeader

	// Cached file size; refreshed whenever a read needs more
	fileSize int64
}

// NewReader opens a segment file for reading and validates its header.
func NewReader(path string) (*Reader, error) {
	file, err := os.Open(path) //nolint:gosec // G304: Path is user-provided
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

	return &Reader{
		baseOffset: header.BaseOffset,
		path:       path,
		file:       file,
		header:     header,
		fileSize:   info.Size(),
	}, nil
}

// ReadHeaderAt decodes the record header at logical position pos.
func (r *Reader) ReadHeaderAt(pos uint64) (format.RecordHeader, error) {
	h, _, err := r.headerAt(pos)
	return h, err
}

// headerAt returns the decoded header and how many header bytes were on disk.
func (r *Reader) headerAt(pos uint64) (format.RecordHeader, int, error) {
	off, err := r.fileOffset(pos)
	if err != nil {
		return format.RecordHeader{}, 0, err
	}

	buf := make([]byte, format.RecordHeaderSize)
	n, err := r.file.ReadAt(buf, off)
	if err != nil && !errors.Is(err, io.EOF) {
		return format.RecordHeader{}, n, fmt.Errorf("failed to read record header at %d: %w", pos, err)
	}

	r.observe(off, n)

	h, err := format.DecodeRecordHeader(buf[:n])
	return h, n, err
}

// ReadBodyAt reads and verifies the body of the record at pos described by h.
// The body is read into buf when it is large enough; the returned slice
// aliases buf in that case.
func (r *Reader) ReadBodyAt(pos uint64, h format.RecordHeader, buf []byte) ([]byte, error) {
	off, err := r.fileOffset(pos)
	if err != nil {
		return nil, err
	}

	if uint64(cap(buf)) < uint64(h.Length) {
		buf = make([]byte, h.Length)
	}
	buf = buf[:h.Length]

	n, err := r.file.ReadAt(buf, off+format.RecordHeaderSize)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to read record body at %d: %w", pos, err)
	}
	r.observe(off+format.RecordHeaderSize, n)

	return format.DecodeRecordBody(h, buf[:n])
}

// Available reports whether the whole record at pos described by h is on
// disk, without reading the body.
func (r *Reader) Available(pos uint64, h format.RecordHeader) (bool, error) {
	off, err := r.fileOffset(pos)
	if err != nil {
		return false, err
	}

	need := off + int64(h.RecordSize()) //nolint:gosec // G115: record sizes fit int64
	if r.fileSize >= need {
		return true, nil
	}

	info, err := r.file.Stat()
	if err != nil {
		return false, fmt.Errorf("failed to stat segment file: %w", err)
	}
	r.fileSize = info.Size()

	return r.fileSize >= need, nil
}

// observe raises the cached file size to cover n bytes read at off.
func (r *Reader) observe(off int64, n int) {
	if end := off + int64(n); end > r.fileSize {
		r.fileSize = end
	}
}

// knownEnd returns the logical end of the data seen so far, without a stat.
func (r *Reader) knownEnd() uint64 {
	if r.fileSize <= format.SegmentHeaderSize {
		return r.baseOffset
	}
	return r.baseOffset + uint64(r.fileSize-format.SegmentHeaderSize) //nolint:gosec // G115: positive by check above
}

// DataSize returns the number of record bytes currently in the file.
func (r *Reader) DataSize() (uint64, error) {
	info, err := r.file.Stat()
	if err != nil {
		return 0, fmt.Errorf("failed to stat segment file: %w", err)
	}
	r.fileSize = info.Size()

	if r.fileSize <= format.SegmentHeaderSize {
		return 0, nil
	}
	return uint64(r.fileSize - format.SegmentHeaderSize), nil //nolint:gosec // G115: positive by check above
}

func (r *Reader) fileOffset(pos uint64) (int64, error) {
	if pos < r.baseOffset {
		return 0, fmt.Errorf("position %d precedes segment base %d", pos, r.baseOffset)
	}
	return int64(format.SegmentHeaderSize + (pos - r.baseOffset)), nil //nolint:gosec // G115: segment sizes fit int64
}

// BaseOffset returns the base offset of this segment.
func (r *Reader) BaseOffset() uint64 {
	return r.baseOffset
}

// Header returns the segment header.
func (r *Reader) Header() *format.SegmentHeader {
	return r.header
}

// Path returns the segment file path.
func (r *Reader) Path() string {
	return r.path
}

// Close closes the segment reader.
func (r *Reader) Close() error {
	if r.file != nil {
		err := r.file.Close()
		r.file = nil // Prevent double close
		return err
	}
	return nil
}
