package segment

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/vnykmshr/vqueue/internal/format"
)

func TestFormatSegmentName(t *testing.T) {
	tests := []struct {
		name       string
		baseOffset uint64
		want       string
	}{
		{"zero offset", 0, "00000000000000000000.log"},
		{"small offset", 1000, "00000000000000001000.log"},
		{"large offset", 1234567890123456789, "01234567890123456789.log"},
		{"max uint64", ^uint64(0), "18446744073709551615.log"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FormatSegmentName(tt.baseOffset)
			if got != tt.want {
				t.Errorf("FormatSegmentName(%d) = %s, want %s", tt.baseOffset, got, tt.want)
			}
		})
	}
}

func TestParseSegmentName(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		want     uint64
		wantErr  bool
	}{
		{"valid zero", "00000000000000000000.log", 0, false},
		{"valid small", "00000000000000001000.log", 1000, false},
		{"valid large", "01234567890123456789.log", 1234567890123456789, false},
		{"missing extension", "00000000000000001000", 0, true},
		{"wrong extension", "00000000000000001000.txt", 0, true},
		{"short name", "1000.log", 0, true},
		{"invalid number", "abcdefghijklmnopqrst.log", 0, true},
		{"empty", "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSegmentName(tt.filename)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseSegmentName(%s) error = %v, wantErr %v", tt.filename, err, tt.wantErr)
				return
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseSegmentName(%s) = %d, want %d", tt.filename, got, tt.want)
			}
		})
	}
}

func TestDiscoverSegments(t *testing.T) {
	tmpDir := t.TempDir()

	segments := []uint64{0, 1000, 2000, 5000}
	for _, offset := range segments {
		segPath := filepath.Join(tmpDir, FormatSegmentName(offset))
		if err := os.WriteFile(segPath, []byte("test data"), 0644); err != nil {
			t.Fatalf("failed to create test segment: %v", err)
		}
	}

	// Non-segment files and half-created segments are ignored
	_ = os.WriteFile(filepath.Join(tmpDir, "queue.info"), []byte("{}"), 0644)
	_ = os.WriteFile(filepath.Join(tmpDir, FormatSegmentName(9000)+TempFileExtension), []byte("x"), 0644)

	found, err := DiscoverSegments(tmpDir)
	if err != nil {
		t.Fatalf("DiscoverSegments() error = %v", err)
	}

	if len(found) != len(segments) {
		t.Fatalf("found %d segments, want %d", len(found), len(segments))
	}

	for i, seg := range found {
		if seg.BaseOffset != segments[i] {
			t.Errorf("segment[%d].BaseOffset = %d, want %d", i, seg.BaseOffset, segments[i])
		}
		if seg.Size != 9 {
			t.Errorf("segment[%d].Size = %d, want 9", i, seg.Size)
		}
	}
}

func TestDiscoverSegments_NonExistent(t *testing.T) {
	if _, err := DiscoverSegments("/nonexistent/directory"); err == nil {
		t.Error("DiscoverSegments() should fail for non-existent directory")
	}
}

func TestValidateSegmentSequence(t *testing.T) {
	full := int64(format.SegmentHeaderSize + 100)
	empty := int64(format.SegmentHeaderSize)

	tests := []struct {
		name     string
		segments []*SegmentInfo
		wantErr  bool
	}{
		{"empty", nil, false},
		{"single segment", []*SegmentInfo{{BaseOffset: 0, Size: empty}}, false},
		{
			name: "contiguous",
			segments: []*SegmentInfo{
				{BaseOffset: 0, Size: full},
				{BaseOffset: 100, Size: full},
				{BaseOffset: 200, Size: empty},
			},
		},
		{
			name: "gap",
			segments: []*SegmentInfo{
				{BaseOffset: 0, Size: full},
				{BaseOffset: 150, Size: full},
			},
			wantErr: true,
		},
		{
			name: "duplicate offset",
			segments: []*SegmentInfo{
				{BaseOffset: 0, Size: empty},
				{BaseOffset: 0, Size: empty},
			},
			wantErr: true,
		},
		{"headerless", []*SegmentInfo{{BaseOffset: 0, Size: 10}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSegmentSequence(tt.segments)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateSegmentSequence() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestFindSegment(t *testing.T) {
	segments := []*SegmentInfo{{BaseOffset: 0}, {BaseOffset: 100}, {BaseOffset: 250}}

	tests := []struct {
		pos  uint64
		want uint64
	}{
		{0, 0},
		{99, 0},
		{100, 100},
		{249, 100},
		{250, 250},
		{10000, 250},
	}

	for _, tt := range tests {
		got := FindSegment(segments, tt.pos)
		if got == nil || got.BaseOffset != tt.want {
			t.Errorf("FindSegment(%d) = %v, want base %d", tt.pos, got, tt.want)
		}
	}

	if FindSegment(segments[1:], 50) != nil {
		t.Error("FindSegment() should return nil before the first segment")
	}
}

func TestRemoveTempSegments(t *testing.T) {
	tmpDir := t.TempDir()
	tmp := filepath.Join(tmpDir, FormatSegmentName(64)+TempFileExtension)
	keep := filepath.Join(tmpDir, FormatSegmentName(0))
	for _, p := range []string{tmp, keep} {
		if err := os.WriteFile(p, []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	if err := RemoveTempSegments(tmpDir); err != nil {
		t.Fatalf("RemoveTempSegments() error = %v", err)
	}
	if _, err := os.Stat(tmp); !os.IsNotExist(err) {
		t.Error("temporary segment should be removed")
	}
	if _, err := os.Stat(keep); err != nil {
		t.Error("published segment should be kept")
	}
}
