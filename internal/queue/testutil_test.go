package queue

import (
	"errors"
	"fmt"
	"testing"

	"github.com/vnykmshr/vqueue/internal/format"
)

const testQueueName = "test"

// testOptions returns default options with the disk space check disabled,
// since test temp dirs may live on small filesystems.
func testOptions() *Options {
	opts := DefaultOptions()
	opts.MinFreeDiskSpace = 0
	return opts
}

// setupQueue creates a writable test queue in a fresh temp dir.
// The queue is automatically closed when the test completes.
func setupQueue(t *testing.T, opts *Options) *Queue {
	t.Helper()

	if opts == nil {
		opts = testOptions()
	}

	return openQueue(t, t.TempDir(), ModeDefault, opts)
}

// openQueue opens testQueueName under basePath and closes it on cleanup.
func openQueue(t *testing.T, basePath string, mode Mode, opts *Options) *Queue {
	t.Helper()

	if opts == nil {
		opts = testOptions()
	}

	q, err := Open(basePath, testQueueName, mode, opts)
	if err != nil {
		t.Fatalf("failed to open queue: %v", err)
	}

	t.Cleanup(func() { _ = q.Close() })

	return q
}

// pushN pushes n string records and returns their positions.
// Bodies are in the format "msg-0", "msg-1", etc.
func pushN(t *testing.T, q *Queue, n int) []uint64 {
	t.Helper()

	positions := make([]uint64, n)
	for i := 0; i < n; i++ {
		pos, err := q.Push([]byte(fmt.Sprintf("msg-%d", i)), format.MsgTypeString)
		if err != nil {
			t.Fatalf("push %d failed: %v", i, err)
		}
		positions[i] = pos
	}

	return positions
}

// readAll reads every complete record of q from position 0.
func readAll(t *testing.T, q *Queue) []string {
	t.Helper()

	r := q.NewLogReader()
	defer func() { _ = r.Close() }()

	var bodies []string
	var pos uint64
	for {
		h, err := r.HeaderAt(pos)
		if errors.Is(err, format.ErrNoRecord) || errors.Is(err, format.ErrIncomplete) {
			break
		}
		if err != nil {
			t.Fatalf("HeaderAt(%d) failed: %v", pos, err)
		}
		body, err := r.BodyAt(pos, h, nil)
		if err != nil {
			t.Fatalf("BodyAt(%d) failed: %v", pos, err)
		}
		bodies = append(bodies, string(body))
		pos += h.RecordSize()
	}

	return bodies
}

// assertState validates the record count and log end of q.
func assertState(t *testing.T, q *Queue, count, end uint64) {
	t.Helper()

	if got := q.CountPushed(); got != count {
		t.Errorf("CountPushed() = %d, want %d", got, count)
	}
	if got := q.EndPosition(); got != end {
		t.Errorf("EndPosition() = %d, want %d", got, end)
	}
}

// assertNoError fails the test if err is not nil.
func assertNoError(t *testing.T, err error) {
	t.Helper()

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
