// Package segment provides segment file management for vqueue.
//
// A queue's log is a sequence of append-only segment files. Each segment has:
//   - A fixed 64-byte header stamped with the queue id and its base offset
//   - Records packed back to back after the header
//   - A base offset: the logical queue position of its first record
//
// Logical positions are byte offsets into the concatenation of all segment
// bodies, so a record at position p in a segment with base b lives at file
// offset SegmentHeaderSize + (p - b). Records never span segments, and the
// segment following one whose data ends at position e is named after e.
//
// File naming convention:
//   - Segment: {baseOffset:020d}.log (e.g., 00000000000000001000.log)
//
// The 20-digit zero-padding ensures lexicographic sorting matches numeric ordering.
package segment

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/vnykmshr/vqueue/internal/format"
)

const (
	// SegmentFileExtension is the file extension for segment files
	SegmentFileExtension = ".log"

	// TempFileExtension marks segments that are still being created
	TempFileExtension = ".tmp"

	// SegmentNameWidth is the number of digits in segment filenames (20 digits for uint64)
	SegmentNameWidth = 20
)

// FormatSegmentName creates a segment filename from a base offset.
// Returns a zero-padded 20-digit filename (e.g., "00000000000000001000.log").
func FormatSegmentName(baseOffset uint64) string {
	return fmt.Sprintf("%020d%s", baseOffset, SegmentFileExtension)
}

// ParseSegmentName extracts the base offset from a segment filename.
// Returns an error if the filename doesn't match the expected format.
func ParseSegmentName(filename string) (uint64, error) {
	if !strings.HasSuffix(filename, SegmentFileExtension) {
		return 0, fmt.Errorf("invalid segment filename: %s (missing %s extension)", filename, SegmentFileExtension)
	}

	base := strings.TrimSuffix(filename, SegmentFileExtension)
	if len(base) != SegmentNameWidth {
		return 0, fmt.Errorf("invalid segment filename: %s (want %d digits)", filename, SegmentNameWidth)
	}

	offset, err := strconv.ParseUint(base, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid segment filename: %s (invalid base offset)", filename)
	}

	return offset, nil
}

// SegmentInfo holds information about a discovered segment file.
type SegmentInfo struct {
	// BaseOffset is the logical position of the first record in this segment
	BaseOffset uint64

	// Path is the path to the segment file
	Path string

	// Size is the segment file size in bytes, header included
	Size int64
}

// DataSize returns the number of record bytes in the segment.
func (s *SegmentInfo) DataSize() uint64 {
	if s.Size <= format.SegmentHeaderSize {
		return 0
	}
	return uint64(s.Size - format.SegmentHeaderSize) //nolint:gosec // G115: positive by check above
}

// End returns the logical position just past the segment's data.
func (s *SegmentInfo) End() uint64 {
	return s.BaseOffset + s.DataSize()
}

// DiscoverSegments finds all segment files in a directory and returns them sorted by base offset.
// Only returns segments with valid naming format; half-created temp files are ignored.
func DiscoverSegments(dir string) ([]*SegmentInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	var segments []*SegmentInfo

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), SegmentFileExtension) {
			continue
		}

		baseOffset, err := ParseSegmentName(entry.Name())
		if err != nil {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		segments = append(segments, &SegmentInfo{
			BaseOffset: baseOffset,
			Path:       filepath.Join(dir, entry.Name()),
			Size:       info.Size(),
		})
	}

	sort.Slice(segments, func(i, j int) bool {
		return segments[i].BaseOffset < segments[j].BaseOffset
	})

	return segments, nil
}

// ValidateSegmentSequence checks that segments form a contiguous sequence.
// Every segment but the last must end exactly where the next one begins.
func ValidateSegmentSequence(segments []*SegmentInfo) error {
	for i, seg := range segments {
		if seg.Size < format.SegmentHeaderSize {
			return fmt.Errorf("segment %s is shorter than its header", filepath.Base(seg.Path))
		}
		if i == 0 {
			continue
		}
		prev := segments[i-1]
		if prev.BaseOffset == seg.BaseOffset {
			return fmt.Errorf("duplicate segment with base offset %d", seg.BaseOffset)
		}
		if prev.End() != seg.BaseOffset {
			return fmt.Errorf("segment gap: %s ends at %d, next segment starts at %d",
				filepath.Base(prev.Path), prev.End(), seg.BaseOffset)
		}
	}
	return nil
}

// FindSegment returns the segment holding position pos: the one with the
// largest base offset not greater than pos. Returns nil if none qualifies.
func FindSegment(segments []*SegmentInfo, pos uint64) *SegmentInfo {
	i := sort.Search(len(segments), func(i int) bool {
		return segments[i].BaseOffset > pos
	})
	if i == 0 {
		return nil
	}
	return segments[i-1]
}

// RemoveTempSegments deletes leftovers of interrupted segment creation.
func RemoveTempSegments(dir string) error {
	matches, err := filepath.Glob(filepath.Join(dir, "*"+SegmentFileExtension+TempFileExtension))
	if err != nil {
		return err
	}
	for _, m := range matches {
		if err := os.Remove(m); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove %s: %w", m, err)
		}
	}
	return nil
}
