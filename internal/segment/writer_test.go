package segment

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/vnykmshr/vqueue/internal/format"
)

var testQueueID = [16]byte{0x51, 0x75, 0x65, 0x75, 0x65}

func TestCreateWriter(t *testing.T) {
	tmpDir := t.TempDir()

	w, err := CreateWriter(tmpDir, 1000, testQueueID, nil)
	if err != nil {
		t.Fatalf("CreateWriter() error = %v", err)
	}
	defer w.Close()

	if w.BaseOffset() != 1000 {
		t.Errorf("BaseOffset() = %d, want 1000", w.BaseOffset())
	}
	if w.Size() != 0 || w.End() != 1000 {
		t.Errorf("Size() = %d End() = %d, want 0 and 1000", w.Size(), w.End())
	}

	segPath := filepath.Join(tmpDir, FormatSegmentName(1000))
	info, err := os.Stat(segPath)
	if err != nil {
		t.Fatalf("segment file was not created: %v", err)
	}
	if info.Size() != format.SegmentHeaderSize {
		t.Errorf("segment size = %d, want %d", info.Size(), format.SegmentHeaderSize)
	}
	if _, err := os.Stat(segPath + TempFileExtension); !os.IsNotExist(err) {
		t.Error("temporary file should have been renamed")
	}

	f, err := os.Open(segPath)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = f.Close() }()

	h, err := format.ReadSegmentHeader(f)
	if err != nil {
		t.Fatalf("ReadSegmentHeader() error = %v", err)
	}
	if h.QueueID != testQueueID || h.BaseOffset != 1000 {
		t.Errorf("segment header = %+v", h)
	}
}

func TestCreateWriter_AlreadyExists(t *testing.T) {
	tmpDir := t.TempDir()

	w1, err := CreateWriter(tmpDir, 1000, testQueueID, nil)
	if err != nil {
		t.Fatalf("CreateWriter() first error = %v", err)
	}
	_ = w1.Close()

	if _, err := CreateWriter(tmpDir, 1000, testQueueID, nil); err == nil {
		t.Error("CreateWriter() should fail when segment already exists")
	}
}

func TestWriter_Append(t *testing.T) {
	tmpDir := t.TempDir()

	w, err := CreateWriter(tmpDir, 500, testQueueID, nil)
	if err != nil {
		t.Fatalf("CreateWriter() error = %v", err)
	}
	defer w.Close()

	pos1, err := w.Append([]byte("first"), format.MsgTypeString)
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	pos2, err := w.Append([]byte("second"), format.MsgTypeObject)
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	if pos1 != 500 {
		t.Errorf("first position = %d, want 500", pos1)
	}
	if want := uint64(500 + format.RecordHeaderSize + 5); pos2 != want {
		t.Errorf("second position = %d, want %d", pos2, want)
	}
	if w.RecordsWritten() != 2 {
		t.Errorf("RecordsWritten() = %d, want 2", w.RecordsWritten())
	}
	if w.NeedsSync() {
		t.Error("immediate policy should leave nothing to sync")
	}

	data, err := os.ReadFile(w.Path())
	if err != nil {
		t.Fatal(err)
	}
	rec := data[format.SegmentHeaderSize:]
	h, err := format.DecodeRecordHeader(rec)
	if err != nil {
		t.Fatalf("DecodeRecordHeader() error = %v", err)
	}
	body, err := format.DecodeRecordBody(h, rec[format.RecordHeaderSize:])
	if err != nil {
		t.Fatalf("DecodeRecordBody() error = %v", err)
	}
	if string(body) != "first" || h.Type != format.MsgTypeString {
		t.Errorf("record = %s %q", h.Type, body)
	}
}

func TestWriter_AppendRollsBackOnHeaderSyncFailure(t *testing.T) {
	tmpDir := t.TempDir()

	w, err := CreateWriter(tmpDir, 0, testQueueID, nil)
	if err != nil {
		t.Fatalf("CreateWriter() error = %v", err)
	}
	defer w.Close()

	if _, err := w.Append([]byte("first"), format.MsgTypeString); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	// Bodies sync fine, the sync after publishing headers fails.
	calls := 0
	syncFile = func(f *os.File) error {
		calls++
		if calls == 2 {
			return errors.New("device gone")
		}
		return f.Sync()
	}
	t.Cleanup(func() { syncFile = (*os.File).Sync })

	if _, err := w.Append([]byte("second"), format.MsgTypeString); err == nil {
		t.Fatal("Append() should fail when the header sync fails")
	}
	syncFile = (*os.File).Sync

	first := uint64(format.RecordHeaderSize + 5)
	if w.Size() != first || w.RecordsWritten() != 1 {
		t.Errorf("Size() = %d RecordsWritten() = %d, want %d and 1", w.Size(), w.RecordsWritten(), first)
	}

	info, err := os.Stat(w.Path())
	if err != nil {
		t.Fatal(err)
	}
	if want := int64(format.SegmentHeaderSize + first); info.Size() != want {
		t.Errorf("segment size = %d, want %d", info.Size(), want)
	}

	r, err := NewReader(w.Path())
	if err != nil {
		t.Fatalf("NewReader() error = %v", err)
	}
	defer r.Close()
	if _, err := r.ReadHeaderAt(first); !errors.Is(err, format.ErrNoRecord) {
		t.Errorf("ReadHeaderAt(%d) error = %v, want ErrNoRecord", first, err)
	}

	pos, err := w.Append([]byte("third"), format.MsgTypeString)
	if err != nil {
		t.Fatalf("Append() after failure error = %v", err)
	}
	if pos != first {
		t.Errorf("position after failure = %d, want %d", pos, first)
	}
}

func TestWriter_AppendBatch(t *testing.T) {
	tmpDir := t.TempDir()

	w, err := CreateWriter(tmpDir, 0, testQueueID, nil)
	if err != nil {
		t.Fatalf("CreateWriter() error = %v", err)
	}
	defer w.Close()

	bodies := [][]byte{[]byte("a"), []byte("bb"), []byte("ccc")}
	positions, err := w.AppendBatch(bodies, format.MsgTypeString)
	if err != nil {
		t.Fatalf("AppendBatch() error = %v", err)
	}

	want := []uint64{0, 17, 35}
	for i := range want {
		if positions[i] != want[i] {
			t.Errorf("positions[%d] = %d, want %d", i, positions[i], want[i])
		}
	}
	if w.End() != 54 {
		t.Errorf("End() = %d, want 54", w.End())
	}

	if _, err := w.AppendBatch(nil, format.MsgTypeString); err == nil {
		t.Error("AppendBatch() should reject an empty batch")
	}
	if _, err := w.Append([]byte("x"), format.MsgType(0)); err == nil {
		t.Error("Append() should reject an invalid type")
	}
}

func TestWriter_ManualSync(t *testing.T) {
	tmpDir := t.TempDir()

	w, err := CreateWriter(tmpDir, 0, testQueueID, &WriterOptions{SyncPolicy: SyncManual})
	if err != nil {
		t.Fatalf("CreateWriter() error = %v", err)
	}
	defer w.Close()

	if _, err := w.Append([]byte("x"), format.MsgTypeString); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if !w.NeedsSync() {
		t.Error("manual policy should defer sync")
	}
	if err := w.Sync(); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if w.NeedsSync() {
		t.Error("Sync() should clear pending state")
	}
}

func TestOpenWriter_TruncatesTail(t *testing.T) {
	tmpDir := t.TempDir()

	w, err := CreateWriter(tmpDir, 0, testQueueID, nil)
	if err != nil {
		t.Fatalf("CreateWriter() error = %v", err)
	}
	if _, err := w.Append([]byte("keep"), format.MsgTypeString); err != nil {
		t.Fatal(err)
	}
	end := w.Size()
	path := w.Path()
	_ = w.Close()

	// Simulate a crash after the body write: zero slot plus body, never published
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = f.Write(make([]byte, format.RecordHeaderSize))
	_, _ = f.Write([]byte("lost"))
	_ = f.Close()

	w, err = OpenWriter(path, end, nil)
	if err != nil {
		t.Fatalf("OpenWriter() error = %v", err)
	}
	defer w.Close()

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if uint64(info.Size()) != format.SegmentHeaderSize+end {
		t.Errorf("file size = %d, want %d", info.Size(), format.SegmentHeaderSize+end)
	}

	pos, err := w.Append([]byte("next"), format.MsgTypeString)
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if pos != end {
		t.Errorf("position after reopen = %d, want %d", pos, end)
	}
}

func TestOpenWriter_ShortFile(t *testing.T) {
	tmpDir := t.TempDir()

	w, err := CreateWriter(tmpDir, 0, testQueueID, nil)
	if err != nil {
		t.Fatal(err)
	}
	path := w.Path()
	_ = w.Close()

	if _, err := OpenWriter(path, 100, nil); err == nil {
		t.Error("OpenWriter() should fail when the file is shorter than the expected data")
	}
}

func TestWriter_Close(t *testing.T) {
	w, err := CreateWriter(t.TempDir(), 0, testQueueID, &WriterOptions{SyncPolicy: SyncInterval, SyncInterval: 10_000_000})
	if err != nil {
		t.Fatal(err)
	}

	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !w.IsClosed() {
		t.Error("IsClosed() = false after Close()")
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if _, err := w.Append([]byte("x"), format.MsgTypeString); err == nil {
		t.Error("Append() should fail after Close()")
	}
}

func TestParseSyncPolicy(t *testing.T) {
	for _, p := range []SyncPolicy{SyncImmediate, SyncInterval, SyncManual} {
		got, err := ParseSyncPolicy(p.String())
		if err != nil || got != p {
			t.Errorf("ParseSyncPolicy(%q) = %v, %v", p.String(), got, err)
		}
	}
	if _, err := ParseSyncPolicy("sometimes"); err == nil {
		t.Error("ParseSyncPolicy() should reject unknown names")
	}
}
