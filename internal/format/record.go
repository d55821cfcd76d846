package format

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"
)

// MsgType tags the payload kind of a record. The queue never interprets the
// body beyond this tag.
type MsgType byte

const (
	// MsgTypeString marks text payloads.
	MsgTypeString MsgType = 'S'

	// MsgTypeObject marks binary-encoded structured payloads (individuals).
	MsgTypeObject MsgType = 'O'
)

// Valid reports whether t is one of the known message types.
func (t MsgType) Valid() bool {
	return t == MsgTypeString || t == MsgTypeObject
}

// String returns the string representation of the message type.
func (t MsgType) String() string {
	switch t {
	case MsgTypeString:
		return "STRING"
	case MsgTypeObject:
		return "OBJECT"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", byte(t))
	}
}

// ParseMsgType accepts "S", "O", "string" or "object" (case-insensitive).
func ParseMsgType(s string) (MsgType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "s", "string":
		return MsgTypeString, nil
	case "o", "object":
		return MsgTypeObject, nil
	default:
		return 0, fmt.Errorf("unknown message type %q", s)
	}
}

// Record header constants.
const (
	// RecordMagic is the first byte of every published record header.
	// A zero byte in its place means the slot is reserved but not yet published.
	RecordMagic byte = 'V'

	// RecordVersion is the current record layout version.
	RecordVersion byte = 1

	// RecordHeaderSize is the fixed size of a record header in bytes.
	// Layout: Magic(1) + Type(1) + Version(1) + Reserved(1) + Length(4) + BodyCRC(4) + HeaderCRC(4)
	RecordHeaderSize = 16

	// MaxRecordLength is the largest body a record header can describe.
	MaxRecordLength = math.MaxUint32
)

// Decoding conditions. ErrNoRecord and ErrIncomplete are normal while a
// writer is active; ErrMalformed is corruption.
var (
	// ErrNoRecord means there is no published record at the offset.
	ErrNoRecord = errors.New("no record at offset")

	// ErrIncomplete means a record is present but not all of its bytes are.
	ErrIncomplete = errors.New("record incomplete")

	// ErrMalformed means the bytes at the offset cannot be a valid record.
	ErrMalformed = errors.New("malformed record")
)

// RecordHeader describes one record in the log.
//
// Binary format (little-endian, 16 bytes):
//
//	[Magic:1][Type:1][Version:1][Reserved:1][Length:4][BodyCRC:4][HeaderCRC:4]
//
// HeaderCRC covers the first 12 bytes. BodyCRC covers the body.
type RecordHeader struct {
	// Type is the payload kind
	Type MsgType

	// Length is the body size in bytes
	Length uint32

	// BodyCRC is the CRC32C of the body
	BodyCRC uint32
}

// NewRecordHeader builds the header for body.
func NewRecordHeader(t MsgType, body []byte) (RecordHeader, error) {
	if !t.Valid() {
		return RecordHeader{}, fmt.Errorf("invalid message type: %d", byte(t))
	}
	if uint64(len(body)) > MaxRecordLength {
		return RecordHeader{}, fmt.Errorf("record body too large: %d bytes", len(body))
	}
	return RecordHeader{
		Type:    t,
		Length:  uint32(len(body)), //nolint:gosec // G115: bounded above
		BodyCRC: ComputeCRC32C(body),
	}, nil
}

// RecordSize returns the on-disk size of the record (header + body).
func (h RecordHeader) RecordSize() uint64 {
	return RecordHeaderSize + uint64(h.Length)
}

// MarshalTo writes the header into buf, which must hold RecordHeaderSize bytes.
func (h RecordHeader) MarshalTo(buf []byte) {
	_ = buf[RecordHeaderSize-1]
	buf[0] = RecordMagic
	buf[1] = byte(h.Type)
	buf[2] = RecordVersion
	buf[3] = 0
	binary.LittleEndian.PutUint32(buf[4:8], h.Length)
	binary.LittleEndian.PutUint32(buf[8:12], h.BodyCRC)
	binary.LittleEndian.PutUint32(buf[12:16], ComputeCRC32C(buf[:12]))
}

// Marshal encodes the header.
func (h RecordHeader) Marshal() []byte {
	buf := make([]byte, RecordHeaderSize)
	h.MarshalTo(buf)
	return buf
}

// EncodeRecord returns header ++ body for a record of type t.
func EncodeRecord(body []byte, t MsgType) ([]byte, error) {
	h, err := NewRecordHeader(t, body)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, RecordHeaderSize+len(body))
	h.MarshalTo(buf)
	copy(buf[RecordHeaderSize:], body)
	return buf, nil
}

// DecodeRecordHeader decodes the header at the start of b.
//
// b holds whatever bytes are currently available at the offset, so a short
// slice is expected at the tail of a live log.
func DecodeRecordHeader(b []byte) (RecordHeader, error) {
	if len(b) == 0 || b[0] == 0 {
		return RecordHeader{}, ErrNoRecord
	}
	if len(b) < RecordHeaderSize {
		return RecordHeader{}, ErrIncomplete
	}
	b = b[:RecordHeaderSize]

	if b[0] != RecordMagic {
		return RecordHeader{}, fmt.Errorf("%w: bad magic %#02x", ErrMalformed, b[0])
	}
	stored := binary.LittleEndian.Uint32(b[12:16])
	if computed := ComputeCRC32C(b[:12]); stored != computed {
		return RecordHeader{}, fmt.Errorf("%w: header CRC mismatch: stored=%08x computed=%08x", ErrMalformed, stored, computed)
	}
	if b[2] != RecordVersion {
		return RecordHeader{}, fmt.Errorf("%w: unsupported version %d", ErrMalformed, b[2])
	}

	h := RecordHeader{
		Type:    MsgType(b[1]),
		Length:  binary.LittleEndian.Uint32(b[4:8]),
		BodyCRC: binary.LittleEndian.Uint32(b[8:12]),
	}
	if !h.Type.Valid() {
		return RecordHeader{}, fmt.Errorf("%w: unknown message type %#02x", ErrMalformed, b[1])
	}
	return h, nil
}

// DecodeRecordBody returns the body described by h from the start of b.
// The returned slice aliases b.
func DecodeRecordBody(h RecordHeader, b []byte) ([]byte, error) {
	if uint64(len(b)) < uint64(h.Length) {
		return nil, ErrIncomplete
	}
	body := b[:h.Length]
	if computed := ComputeCRC32C(body); computed != h.BodyCRC {
		return nil, fmt.Errorf("%w: body CRC mismatch: stored=%08x computed=%08x", ErrMalformed, h.BodyCRC, computed)
	}
	return body, nil
}
