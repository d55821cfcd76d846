package segment

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/vnykmshr/vqueue/internal/format"
)

// discoverSegments lists segment files; replaced in tests.
var discoverSegments = DiscoverSegments

// LogReader reads records by logical position across all segments of a
// queue directory, following rotation as the writer creates new segments.
type LogReader struct {
	dir     string
	queueID [16]byte

	mu  sync.Mutex
	cur *Reader

	// Name the writer would give a segment starting at nextPos
	nextPos  uint64
	nextPath string

	scratch []byte
}

// NewLogReader creates a reader over the segments in dir. Segments whose
// header carries an id other than queueID are rejected; a zero queueID
// disables the check.
func NewLogReader(dir string, queueID [16]byte) *LogReader {
	return &LogReader{dir: dir, queueID: queueID}
}

// HeaderAt decodes the record header at pos.
//
// format.ErrNoRecord and format.ErrIncomplete mean the writer has not
// published a complete header there yet. format.ErrMalformed is corruption.
func (l *LogReader) HeaderAt(pos uint64) (format.RecordHeader, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.headerAtLocked(pos)
}

func (l *LogReader) headerAtLocked(pos uint64) (format.RecordHeader, error) {
	r, err := l.readerFor(pos)
	if err != nil {
		return format.RecordHeader{}, err
	}

	h, n, err := r.headerAt(pos)
	if n > 0 || !errors.Is(err, format.ErrNoRecord) {
		return h, err
	}

	// Nothing on disk at pos in this segment: the writer may have rotated.
	next, err := l.switchTo(pos)
	if err != nil || next == nil {
		if err == nil {
			err = format.ErrNoRecord
		}
		return format.RecordHeader{}, err
	}

	h, _, err = next.headerAt(pos)
	return h, err
}

// BodyAt reads and verifies the body of the record at pos described by h.
// buf is used when large enough.
func (l *LogReader) BodyAt(pos uint64, h format.RecordHeader, buf []byte) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	r, err := l.readerFor(pos)
	if err != nil {
		return nil, err
	}
	return r.ReadBodyAt(pos, h, buf)
}

// ScanResult summarizes a forward walk over complete records.
type ScanResult struct {
	// End is the position just past the last complete record
	End uint64

	// Count is the number of complete records walked
	Count uint64
}

// Scan walks complete records from pos forward, calling fn (which may be
// nil) for each one. It stops at the first position without a complete
// record. With verifyBodies set, bodies are read and checksummed; otherwise
// only their presence on disk is checked. fn runs with the reader locked and
// must not call back into it.
//
// A malformed record stops the walk with an error wrapping
// format.ErrMalformed; the result still describes the records before it.
func (l *LogReader) Scan(pos uint64, verifyBodies bool, fn func(pos uint64, h format.RecordHeader) error) (ScanResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	res := ScanResult{End: pos}
	for {
		h, err := l.headerAtLocked(res.End)
		if err != nil {
			if errors.Is(err, format.ErrNoRecord) || errors.Is(err, format.ErrIncomplete) {
				return res, nil
			}
			return res, err
		}

		r := l.cur
		if verifyBodies {
			body, err := r.ReadBodyAt(res.End, h, l.scratch)
			if err != nil {
				if errors.Is(err, format.ErrIncomplete) {
					return res, nil
				}
				return res, err
			}
			l.scratch = body[:0]
		} else {
			ok, err := r.Available(res.End, h)
			if err != nil {
				return res, err
			}
			if !ok {
				return res, nil
			}
		}

		if fn != nil {
			if err := fn(res.End, h); err != nil {
				return res, err
			}
		}

		res.End += h.RecordSize()
		res.Count++
	}
}

// readerFor returns a reader for the segment expected to hold pos.
// Must be called with lock held.
func (l *LogReader) readerFor(pos uint64) (*Reader, error) {
	if l.cur != nil && l.cur.BaseOffset() <= pos {
		return l.cur, nil
	}

	segments, err := discoverSegments(l.dir)
	if err != nil {
		return nil, err
	}
	seg := FindSegment(segments, pos)
	if seg == nil {
		return nil, fmt.Errorf("no segment holds position %d: %w", pos, format.ErrNoRecord)
	}
	return l.open(seg.Path)
}

// switchTo moves to the segment holding pos if it differs from the current
// one. Returns nil when there is none.
//
// Polling at the end of the current segment costs one stat of the name a
// rotation would create; the directory is only listed when pos lies past
// the current segment.
// Must be called with lock held.
func (l *LogReader) switchTo(pos uint64) (*Reader, error) {
	if l.nextPath == "" || l.nextPos != pos {
		l.nextPos = pos
		l.nextPath = filepath.Join(l.dir, FormatSegmentName(pos))
	}

	_, err := os.Stat(l.nextPath)
	switch {
	case err == nil:
		if l.cur != nil && l.cur.Path() == l.nextPath {
			return nil, nil
		}
		return l.open(l.nextPath)
	case !os.IsNotExist(err):
		return nil, fmt.Errorf("failed to stat segment: %w", err)
	}

	if l.cur != nil && l.cur.BaseOffset() <= pos {
		if pos <= l.cur.knownEnd() {
			return nil, nil
		}
		size, err := l.cur.DataSize()
		if err != nil {
			return nil, err
		}
		if pos <= l.cur.BaseOffset()+size {
			return nil, nil
		}
	}

	segments, err := discoverSegments(l.dir)
	if err != nil {
		return nil, err
	}
	seg := FindSegment(segments, pos)
	if seg == nil || (l.cur != nil && l.cur.Path() == seg.Path) {
		return nil, nil
	}
	return l.open(seg.Path)
}

// open replaces the current reader with one for path.
// Must be called with lock held.
func (l *LogReader) open(path string) (*Reader, error) {
	r, err := NewReader(path)
	if err != nil {
		return nil, err
	}

	if !r.Header().BelongsTo(l.queueID) {
		_ = r.Close()
		return nil, fmt.Errorf("%w: %s", ErrQueueIDMismatch, filepath.Base(path))
	}

	if l.cur != nil {
		_ = l.cur.Close()
	}
	l.cur = r
	return r, nil
}

// Close releases the open segment file.
func (l *LogReader) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cur == nil {
		return nil
	}
	err := l.cur.Close()
	l.cur = nil
	return err
}
