package format

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"
)

// SegmentMagic identifies a vqueue segment file ("VQSG").
const SegmentMagic uint32 = 0x56515347

// Format versions shared by segment headers and metadata files.
const (
	FormatVersion1 uint16 = 1
	CurrentVersion uint16 = FormatVersion1
)

// SegmentHeaderSize is the fixed size of the segment header.
// Layout: Magic(4) + Version(2) + Flags(2) + BaseOffset(8) + CreatedAt(8) +
// QueueID(16) + Reserved(20) + HeaderCRC(4)
const SegmentHeaderSize = 64

const segmentCRCOffset = SegmentHeaderSize - 4

// ErrBadSegment means a segment file does not start with a valid header.
var ErrBadSegment = errors.New("invalid segment header")

// SegmentHeader is the fixed prefix of every segment file. It is written
// and synced before the segment becomes visible and is never rewritten.
type SegmentHeader struct {
	Version uint16
	Flags   uint16

	// BaseOffset is the logical queue position of the first record in the segment
	BaseOffset uint64

	// CreatedAt is the Unix time in nanoseconds the segment was created
	CreatedAt int64

	// QueueID identifies the queue the segment belongs to
	QueueID [16]byte
}

// NewSegmentHeader returns a header for a segment starting at baseOffset.
func NewSegmentHeader(baseOffset uint64, queueID [16]byte) *SegmentHeader {
	return &SegmentHeader{
		Version:    CurrentVersion,
		BaseOffset: baseOffset,
		CreatedAt:  time.Now().UnixNano(),
		QueueID:    queueID,
	}
}

// Marshal encodes the header. Reserved bytes are zero.
func (h *SegmentHeader) Marshal() []byte {
	buf := make([]byte, SegmentHeaderSize)
	binary.LittleEndian.PutUint32(buf[0:], SegmentMagic)
	binary.LittleEndian.PutUint16(buf[4:], h.Version)
	binary.LittleEndian.PutUint16(buf[6:], h.Flags)
	binary.LittleEndian.PutUint64(buf[8:], h.BaseOffset)
	binary.LittleEndian.PutUint64(buf[16:], uint64(h.CreatedAt)) //nolint:gosec // G115: round-trips through int64
	copy(buf[24:40], h.QueueID[:])
	binary.LittleEndian.PutUint32(buf[segmentCRCOffset:], ComputeCRC32C(buf[:segmentCRCOffset]))
	return buf
}

// DecodeSegmentHeader parses and checks a segment header. Every failure
// wraps ErrBadSegment.
func DecodeSegmentHeader(b []byte) (*SegmentHeader, error) {
	if len(b) < SegmentHeaderSize {
		return nil, fmt.Errorf("%w: %d bytes, want %d", ErrBadSegment, len(b), SegmentHeaderSize)
	}

	if magic := binary.LittleEndian.Uint32(b[0:]); magic != SegmentMagic {
		return nil, fmt.Errorf("%w: magic %08x", ErrBadSegment, magic)
	}
	stored := binary.LittleEndian.Uint32(b[segmentCRCOffset:])
	if computed := ComputeCRC32C(b[:segmentCRCOffset]); stored != computed {
		return nil, fmt.Errorf("%w: CRC mismatch: stored=%08x computed=%08x", ErrBadSegment, stored, computed)
	}

	h := &SegmentHeader{
		Version:    binary.LittleEndian.Uint16(b[4:]),
		Flags:      binary.LittleEndian.Uint16(b[6:]),
		BaseOffset: binary.LittleEndian.Uint64(b[8:]),
		CreatedAt:  int64(binary.LittleEndian.Uint64(b[16:])), //nolint:gosec // G115: round-trips through int64
	}
	copy(h.QueueID[:], b[24:40])

	if h.Version == 0 || h.Version > CurrentVersion {
		return nil, fmt.Errorf("%w: unsupported version %d (current=%d)", ErrBadSegment, h.Version, CurrentVersion)
	}
	return h, nil
}

// ReadSegmentHeader reads and decodes the header at the start of r.
func ReadSegmentHeader(r io.ReaderAt) (*SegmentHeader, error) {
	buf := make([]byte, SegmentHeaderSize)
	n, err := r.ReadAt(buf, 0)
	if n < SegmentHeaderSize && err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to read segment header: %w", err)
	}
	return DecodeSegmentHeader(buf[:n])
}

// BelongsTo reports whether the segment was written for queueID. A zero
// queueID matches any segment.
func (h *SegmentHeader) BelongsTo(queueID [16]byte) bool {
	var zero [16]byte
	return queueID == zero || h.QueueID == queueID
}
