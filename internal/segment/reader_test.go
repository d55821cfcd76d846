package segment

import (
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/vnykmshr/vqueue/internal/format"
)

// writeRecords creates a segment at base holding the given bodies.
func writeRecords(t *testing.T, dir string, base uint64, bodies ...string) (*Writer, []uint64) {
	t.Helper()

	w, err := CreateWriter(dir, base, testQueueID, nil)
	if err != nil {
		t.Fatalf("CreateWriter() error = %v", err)
	}

	positions := make([]uint64, len(bodies))
	for i, b := range bodies {
		pos, err := w.Append([]byte(b), format.MsgTypeString)
		if err != nil {
			t.Fatalf("Append(%q) error = %v", b, err)
		}
		positions[i] = pos
	}
	return w, positions
}

func TestReader_ReadAt(t *testing.T) {
	tmpDir := t.TempDir()
	w, positions := writeRecords(t, tmpDir, 0, "alpha", "beta")
	defer w.Close()

	r, err := NewReader(w.Path())
	if err != nil {
		t.Fatalf("NewReader() error = %v", err)
	}
	defer r.Close()

	if r.Header().QueueID != testQueueID {
		t.Error("reader header does not carry the queue id")
	}

	for i, want := range []string{"alpha", "beta"} {
		h, err := r.ReadHeaderAt(positions[i])
		if err != nil {
			t.Fatalf("ReadHeaderAt(%d) error = %v", positions[i], err)
		}
		body, err := r.ReadBodyAt(positions[i], h, nil)
		if err != nil {
			t.Fatalf("ReadBodyAt(%d) error = %v", positions[i], err)
		}
		if string(body) != want {
			t.Errorf("body = %q, want %q", body, want)
		}
	}

	if _, err := r.ReadHeaderAt(w.End()); !errors.Is(err, format.ErrNoRecord) {
		t.Errorf("ReadHeaderAt(end) error = %v, want ErrNoRecord", err)
	}

	size, err := r.DataSize()
	if err != nil {
		t.Fatal(err)
	}
	if size != w.Size() {
		t.Errorf("DataSize() = %d, want %d", size, w.Size())
	}
}

func TestReader_TornTail(t *testing.T) {
	tmpDir := t.TempDir()
	w, _ := writeRecords(t, tmpDir, 0, "whole")
	end := w.End()
	path := w.Path()
	_ = w.Close()

	rec, err := format.EncodeRecord([]byte("partial body"), format.MsgTypeString)
	if err != nil {
		t.Fatal(err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = f.Write(rec[:format.RecordHeaderSize+4])
	_ = f.Close()

	r, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader() error = %v", err)
	}
	defer r.Close()

	h, err := r.ReadHeaderAt(end)
	if err != nil {
		t.Fatalf("ReadHeaderAt() error = %v", err)
	}
	if _, err := r.ReadBodyAt(end, h, make([]byte, 64)); !errors.Is(err, format.ErrIncomplete) {
		t.Errorf("ReadBodyAt() error = %v, want ErrIncomplete", err)
	}
	ok, err := r.Available(end, h)
	if err != nil || ok {
		t.Errorf("Available() = %v, %v; want false", ok, err)
	}
}

func TestReader_InvalidHeader(t *testing.T) {
	path := t.TempDir() + "/" + FormatSegmentName(0)
	if err := os.WriteFile(path, make([]byte, format.SegmentHeaderSize), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewReader(path); err == nil {
		t.Error("NewReader() should reject a zeroed segment header")
	}
}

func TestLogReader_AcrossSegments(t *testing.T) {
	tmpDir := t.TempDir()

	w1, p1 := writeRecords(t, tmpDir, 0, "one", "two")
	end1 := w1.End()
	_ = w1.Close()
	w2, p2 := writeRecords(t, tmpDir, end1, "three")
	defer w2.Close()

	l := NewLogReader(tmpDir, testQueueID)
	defer l.Close()

	var got []string
	res, err := l.Scan(0, true, func(pos uint64, h format.RecordHeader) error {
		body, err := l.cur.ReadBodyAt(pos, h, nil)
		if err != nil {
			return err
		}
		got = append(got, string(body))
		return nil
	})
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if res.Count != 3 || res.End != w2.End() {
		t.Errorf("Scan() = %+v, want count 3 end %d", res, w2.End())
	}
	if fmt.Sprint(got) != "[one two three]" {
		t.Errorf("records = %v", got)
	}

	// Random access in either direction
	for _, pos := range []uint64{p2[0], p1[1], p1[0]} {
		if _, err := l.HeaderAt(pos); err != nil {
			t.Errorf("HeaderAt(%d) error = %v", pos, err)
		}
	}

	if _, err := l.HeaderAt(w2.End()); !errors.Is(err, format.ErrNoRecord) {
		t.Errorf("HeaderAt(end) error = %v, want ErrNoRecord", err)
	}
}

func TestLogReader_FollowsWriter(t *testing.T) {
	tmpDir := t.TempDir()
	w, _ := writeRecords(t, tmpDir, 0)
	defer w.Close()

	l := NewLogReader(tmpDir, testQueueID)
	defer l.Close()

	if _, err := l.HeaderAt(0); !errors.Is(err, format.ErrNoRecord) {
		t.Fatalf("HeaderAt(0) on empty log error = %v, want ErrNoRecord", err)
	}

	pos, err := w.Append([]byte("late"), format.MsgTypeObject)
	if err != nil {
		t.Fatal(err)
	}

	h, err := l.HeaderAt(pos)
	if err != nil {
		t.Fatalf("HeaderAt() after append error = %v", err)
	}
	body, err := l.BodyAt(pos, h, nil)
	if err != nil {
		t.Fatalf("BodyAt() error = %v", err)
	}
	if string(body) != "late" || h.Type != format.MsgTypeObject {
		t.Errorf("record = %s %q", h.Type, body)
	}
}

func TestLogReader_TailPollSkipsDirectoryListing(t *testing.T) {
	tmpDir := t.TempDir()
	w, positions := writeRecords(t, tmpDir, 0, "a", "b")
	defer w.Close()

	l := NewLogReader(tmpDir, testQueueID)
	defer l.Close()

	res, err := l.Scan(positions[0], true, nil)
	if err != nil || res.Count != 2 {
		t.Fatalf("Scan() = %+v, %v", res, err)
	}

	listings := 0
	discoverSegments = func(dir string) ([]*SegmentInfo, error) {
		listings++
		return DiscoverSegments(dir)
	}
	t.Cleanup(func() { discoverSegments = DiscoverSegments })

	for i := 0; i < 10; i++ {
		if _, err := l.HeaderAt(res.End); !errors.Is(err, format.ErrNoRecord) {
			t.Fatalf("HeaderAt(end) error = %v, want ErrNoRecord", err)
		}
	}
	if listings != 0 {
		t.Errorf("tail polls listed the directory %d times", listings)
	}

	// Rotation is still picked up through the successor's name.
	w2, _ := writeRecords(t, tmpDir, w.End(), "c")
	defer w2.Close()

	h, err := l.HeaderAt(res.End)
	if err != nil {
		t.Fatalf("HeaderAt() after rotation error = %v", err)
	}
	body, err := l.BodyAt(res.End, h, nil)
	if err != nil || string(body) != "c" {
		t.Errorf("BodyAt() = %q, %v", body, err)
	}
	if listings != 0 {
		t.Errorf("rotation listed the directory %d times", listings)
	}
}

func TestLogReader_QueueIDMismatch(t *testing.T) {
	tmpDir := t.TempDir()
	w, _ := writeRecords(t, tmpDir, 0, "x")
	defer w.Close()

	l := NewLogReader(tmpDir, [16]byte{0xff})
	defer l.Close()

	if _, err := l.HeaderAt(0); !errors.Is(err, ErrQueueIDMismatch) {
		t.Errorf("HeaderAt() error = %v, want ErrQueueIDMismatch", err)
	}
}

func TestLogReader_MalformedStopsScan(t *testing.T) {
	tmpDir := t.TempDir()
	w, _ := writeRecords(t, tmpDir, 0, "good")
	end := w.End()
	path := w.Path()
	_ = w.Close()

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = f.Write([]byte("garbage-garbage-garbage"))
	_ = f.Close()

	l := NewLogReader(tmpDir, testQueueID)
	defer l.Close()

	res, err := l.Scan(0, false, nil)
	if !errors.Is(err, format.ErrMalformed) {
		t.Fatalf("Scan() error = %v, want ErrMalformed", err)
	}
	if res.Count != 1 || res.End != end {
		t.Errorf("Scan() = %+v, want count 1 end %d", res, end)
	}
}
