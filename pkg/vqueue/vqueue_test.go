package vqueue_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/tinylib/msgp/msgp"

	"github.com/vnykmshr/vqueue/pkg/vqueue"
)

func testQueueOptions() *vqueue.QueueOptions {
	opts := vqueue.DefaultQueueOptions()
	opts.MinFreeDiskSpace = 0
	return opts
}

func testConsumerOptions() *vqueue.ConsumerOptions {
	opts := vqueue.DefaultConsumerOptions()
	opts.QueueOptions = testQueueOptions()
	opts.PollInterval = time.Millisecond
	opts.MaxPollInterval = 5 * time.Millisecond
	return opts
}

// TestBasicOperations pushes, pops and commits through the public API
func TestBasicOperations(t *testing.T) {
	base := t.TempDir()

	q, err := vqueue.OpenQueue(base, "events", vqueue.ModeDefault, testQueueOptions())
	if err != nil {
		t.Fatalf("OpenQueue() error = %v", err)
	}
	defer func() { _ = q.Close() }()

	pos, err := q.Push([]byte("Hello, World!"), vqueue.MsgTypeString)
	if err != nil {
		t.Fatalf("Push() error = %v", err)
	}
	if pos != 0 {
		t.Errorf("first position = %d, want 0", pos)
	}
	if q.CountPushed() != 1 {
		t.Errorf("CountPushed() = %d, want 1", q.CountPushed())
	}

	c, err := vqueue.NewConsumer(base, "reader", "events", testConsumerOptions())
	if err != nil {
		t.Fatalf("NewConsumer() error = %v", err)
	}
	defer func() { _ = c.Close() }()

	msg, err := c.Pop()
	if err != nil {
		t.Fatalf("Pop() error = %v", err)
	}
	if msg == nil {
		t.Fatal("Pop() returned no message")
	}
	if string(msg.Body) != "Hello, World!" || msg.Type != vqueue.MsgTypeString || msg.Position != 0 {
		t.Errorf("Pop() = %+v", msg)
	}

	ok, err := c.Commit()
	if err != nil || !ok {
		t.Fatalf("Commit() = %v, %v", ok, err)
	}

	msg, err = c.Pop()
	if err != nil || msg != nil {
		t.Fatalf("Pop() on drained queue = %v, %v", msg, err)
	}
	if c.CountPopped() != 1 {
		t.Errorf("CountPopped() = %d, want 1", c.CountPopped())
	}
}

// TestBatchOperations tests batch push and backlog accounting
func TestBatchOperations(t *testing.T) {
	base := t.TempDir()

	q, err := vqueue.OpenQueue(base, "events", vqueue.ModeReadWrite, testQueueOptions())
	if err != nil {
		t.Fatalf("OpenQueue() error = %v", err)
	}
	defer func() { _ = q.Close() }()

	positions, err := q.PushBatch([][]byte{[]byte("message 1"), []byte("message 2"), []byte("message 3")}, vqueue.MsgTypeString)
	if err != nil {
		t.Fatalf("PushBatch() error = %v", err)
	}
	if len(positions) != 3 {
		t.Fatalf("PushBatch() returned %d positions, want 3", len(positions))
	}
	for i := 1; i < len(positions); i++ {
		if positions[i] <= positions[i-1] {
			t.Errorf("positions not increasing: %v", positions)
		}
	}

	c, err := vqueue.NewConsumer(base, "reader", "events", testConsumerOptions())
	if err != nil {
		t.Fatalf("NewConsumer() error = %v", err)
	}
	defer func() { _ = c.Close() }()

	n, err := c.BatchSize()
	if err != nil {
		t.Fatalf("BatchSize() error = %v", err)
	}
	if n != 3 {
		t.Errorf("BatchSize() = %d, want 3", n)
	}
}

// TestConsumerModes checks the facade passes modes and errors through
func TestConsumerModes(t *testing.T) {
	base := t.TempDir()

	if _, err := vqueue.NewConsumer(base, "reader", "missing", testConsumerOptions()); !errors.Is(err, vqueue.ErrQueueNotFound) {
		t.Errorf("NewConsumer() on missing queue error = %v, want ErrQueueNotFound", err)
	}

	c, err := vqueue.NewConsumerWithMode(base, "reader", "created", vqueue.ModeReadWrite, testConsumerOptions())
	if err != nil {
		t.Fatalf("NewConsumerWithMode(ReadWrite) error = %v", err)
	}
	_ = c.Close()

	if _, err := vqueue.NewConsumerWithMode(base, "other", "created", vqueue.ModeRead, testConsumerOptions()); !errors.Is(err, vqueue.ErrCursorNotFound) {
		t.Errorf("NewConsumerWithMode(Read) error = %v, want ErrCursorNotFound", err)
	}

	c, err = vqueue.NewConsumerWithMode(base, "reader", "created", vqueue.ModeRead, testConsumerOptions())
	if err != nil {
		t.Fatalf("NewConsumerWithMode(Read) on existing cursor error = %v", err)
	}
	defer func() { _ = c.Close() }()

	if _, err := vqueue.NewConsumer(base, "reader", "created", testConsumerOptions()); !errors.Is(err, vqueue.ErrCursorLocked) {
		t.Errorf("second handle error = %v, want ErrCursorLocked", err)
	}
}

// TestStream delivers records through Stream and stops on cancel
func TestStream(t *testing.T) {
	base := t.TempDir()

	q, err := vqueue.OpenQueue(base, "events", vqueue.ModeDefault, testQueueOptions())
	if err != nil {
		t.Fatalf("OpenQueue() error = %v", err)
	}
	defer func() { _ = q.Close() }()

	for _, body := range []string{"a", "b", "c"} {
		if _, err := q.Push([]byte(body), vqueue.MsgTypeString); err != nil {
			t.Fatalf("Push() error = %v", err)
		}
	}

	c, err := vqueue.NewConsumer(base, "reader", "events", testConsumerOptions())
	if err != nil {
		t.Fatalf("NewConsumer() error = %v", err)
	}
	defer func() { _ = c.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var got []string
	err = c.Stream(ctx, func(rec *vqueue.Message) error {
		got = append(got, string(rec.Body))
		if len(got) == 3 {
			cancel()
		}
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Stream() error = %v, want context.Canceled", err)
	}
	if strings.Join(got, ",") != "a,b,c" {
		t.Errorf("Stream() delivered %v", got)
	}
}

// TestReadOnlyQueue checks read handles refuse pushes
func TestReadOnlyQueue(t *testing.T) {
	base := t.TempDir()

	if _, err := vqueue.OpenQueue(base, "events", vqueue.ModeRead, testQueueOptions()); !errors.Is(err, vqueue.ErrQueueNotFound) {
		t.Fatalf("OpenQueue(Read) on missing queue error = %v", err)
	}

	w, err := vqueue.OpenQueue(base, "events", vqueue.ModeDefault, testQueueOptions())
	if err != nil {
		t.Fatalf("OpenQueue() error = %v", err)
	}
	defer func() { _ = w.Close() }()

	r, err := vqueue.OpenQueue(base, "events", vqueue.ModeRead, testQueueOptions())
	if err != nil {
		t.Fatalf("OpenQueue(Read) error = %v", err)
	}
	defer func() { _ = r.Close() }()

	if _, err := r.Push([]byte("x"), vqueue.MsgTypeString); !errors.Is(err, vqueue.ErrReadOnly) {
		t.Errorf("Push() on read handle error = %v, want ErrReadOnly", err)
	}

	if _, err := w.Push([]byte("x"), vqueue.MsgTypeString); err != nil {
		t.Fatalf("Push() error = %v", err)
	}
	if err := r.Refresh(); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if r.CountPushed() != 1 {
		t.Errorf("CountPushed() after Refresh = %d, want 1", r.CountPushed())
	}
}

func TestConvertIndividualToJSON(t *testing.T) {
	raw := msgp.AppendArrayHeader(nil, 2)
	raw = msgp.AppendString(raw, "d:doc")
	raw = msgp.AppendMapHeader(raw, 1)
	raw = msgp.AppendString(raw, "rdfs:label")
	raw = msgp.AppendArrayHeader(raw, 1)
	raw = msgp.AppendArrayHeader(raw, 3)
	raw = msgp.AppendInt64(raw, 2)
	raw = msgp.AppendString(raw, "hello")
	raw = msgp.AppendInt64(raw, 2)

	out, err := vqueue.ConvertIndividualToJSON(raw)
	if err != nil {
		t.Fatalf("ConvertIndividualToJSON() error = %v", err)
	}
	want := `{"@":"d:doc","rdfs:label":[{"type":"String","data":"hello","lang":"EN"}]}`
	if out != want {
		t.Errorf("ConvertIndividualToJSON() = %s, want %s", out, want)
	}

	out, err = vqueue.ConvertIndividualToJSON([]byte("not an individual"))
	if !errors.Is(err, vqueue.ErrParse) || out != "" {
		t.Errorf("ConvertIndividualToJSON(garbage) = %q, %v", out, err)
	}
}

func TestIsTransient(t *testing.T) {
	if !vqueue.IsTransient(vqueue.ErrTailIncomplete) {
		t.Error("ErrTailIncomplete should be transient")
	}
	if vqueue.IsTransient(vqueue.ErrMalformed) {
		t.Error("ErrMalformed should not be transient")
	}
	if vqueue.IsTransient(nil) {
		t.Error("nil should not be transient")
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := vqueue.NewLogger(&buf, vqueue.LogLevelInfo, true)

	opts := testQueueOptions()
	opts.Logger = logger

	q, err := vqueue.OpenQueue(t.TempDir(), "events", vqueue.ModeDefault, opts)
	if err != nil {
		t.Fatalf("OpenQueue() error = %v", err)
	}
	_ = q.Close()

	if !strings.Contains(buf.String(), `"msg":"queue opened"`) {
		t.Errorf("expected JSON open log, got %q", buf.String())
	}
}
