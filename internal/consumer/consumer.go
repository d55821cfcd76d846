// Package consumer provides named, persisted read cursors over a queue.
//
// A Consumer reads records with a two-phase protocol: PopHeader peeks the
// header at the cursor position, PopBody reads the body, and Commit durably
// advances the position past the record. Nothing moves the position except
// Commit, so a process that dies between PopBody and Commit reads the same
// record again after restart.
//
// Basic usage:
//
//	c, err := consumer.New("/var/lib/vqueue", "billing", "orders", nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer c.Close()
//
//	for {
//	    ok, err := c.PopHeader()
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    if !ok {
//	        break
//	    }
//	    body, err := c.Body()
//	    if consumer.IsTransient(err) {
//	        break
//	    }
//	    ...
//	    c.Commit()
//	}
package consumer

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/vnykmshr/vqueue/internal/cursor"
	"github.com/vnykmshr/vqueue/internal/format"
	"github.com/vnykmshr/vqueue/internal/logging"
	"github.com/vnykmshr/vqueue/internal/queue"
	"github.com/vnykmshr/vqueue/internal/segment"
)

// State is the position of a consumer in the read protocol.
type State int

const (
	// StateIdle means no header is cached.
	StateIdle State = iota

	// StateHeaderPeeked means the header at the position is cached.
	StateHeaderPeeked

	// StateBodyRead means the body was read and the record can be committed.
	StateBodyRead
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateHeaderPeeked:
		return "header_peeked"
	case StateBodyRead:
		return "body_read"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Consumer is a named cursor over one queue.
type Consumer struct {
	name      string
	queueName string
	basePath  string
	mode      queue.Mode
	opts      *Options
	key       cursor.Key

	mu sync.Mutex

	log       *segment.LogReader
	store     cursor.Store
	ownsStore bool
	lock      *flock.Flock

	saved       *format.CursorState
	position    uint64
	state       State
	header      format.RecordHeader
	countPopped uint64

	closed bool
}

// New opens consumerName over queueName in ModeDefault: the queue must
// exist and the cursor is created at position 0 when missing.
func New(basePath, consumerName, queueName string, opts *Options) (*Consumer, error) {
	return NewWithMode(basePath, consumerName, queueName, queue.ModeDefault, opts)
}

// NewWithMode opens consumerName over queueName.
//
// ModeRead requires both the queue and the cursor to exist. ModeDefault
// requires the queue and creates the cursor. ModeReadWrite also creates an
// empty queue when none exists.
func NewWithMode(basePath, consumerName, queueName string, mode queue.Mode, opts *Options) (*Consumer, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	opts = opts.withDefaults()
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}
	if err := queue.ValidateName(consumerName); err != nil {
		return nil, err
	}
	if err := queue.ValidateName(queueName); err != nil {
		return nil, err
	}
	base, err := queue.ValidatePath(basePath, "base")
	if err != nil {
		return nil, err
	}

	c := &Consumer{
		name:      consumerName,
		queueName: queueName,
		basePath:  base,
		mode:      mode,
		opts:      opts,
		key:       cursor.Key{Queue: queueName, Consumer: consumerName},
	}

	switch mode {
	case queue.ModeRead, queue.ModeDefault:
	case queue.ModeReadWrite:
		if err := c.ensureQueue(); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("invalid mode: %d", mode)
	}

	if err := c.open(); err != nil {
		return nil, err
	}

	opts.Logger.Info("consumer opened",
		logging.F("consumer", consumerName),
		logging.F("queue", queueName),
		logging.F("mode", mode.String()),
		logging.F("position", c.position),
	)

	return c, nil
}

// ensureQueue creates empty queue structures when none exist.
func (c *Consumer) ensureQueue() error {
	if queue.Exists(c.basePath, c.queueName) {
		return nil
	}

	q, err := queue.Open(c.basePath, c.queueName, queue.ModeReadWrite, c.opts.QueueOptions)
	if err != nil {
		return fmt.Errorf("failed to create queue: %w", err)
	}
	return q.Close()
}

// open verifies the queue and the cursor and positions the reader.
func (c *Consumer) open() (err error) {
	q, err := queue.Open(c.basePath, c.queueName, queue.ModeRead, c.opts.QueueOptions)
	if err != nil {
		return err
	}
	defer func() { _ = q.Close() }()

	if err := os.MkdirAll(cursor.Dir(c.basePath, c.queueName), 0755); err != nil {
		return fmt.Errorf("failed to create cursor directory: %w", err)
	}
	c.lock = flock.New(cursor.LockPath(c.basePath, c.key))
	locked, err := c.lock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to lock cursor: %w", err)
	}
	if !locked {
		return fmt.Errorf("%w: %s", ErrCursorLocked, c.key)
	}
	defer func() {
		if err != nil {
			_ = c.lock.Unlock()
		}
	}()

	c.store = c.opts.Store
	if c.store == nil {
		c.store = cursor.NewFileStore(c.basePath, true)
		c.ownsStore = true
	}

	saved, err := c.loadOrCreateCursor(q.QueueID())
	if err != nil {
		return err
	}

	if saved.QueueID != q.QueueID() {
		return fmt.Errorf("%w: cursor %s has queue id %s, queue has %s",
			ErrQueueMismatch, c.key, saved.QueueID, q.QueueID())
	}
	if saved.Position > q.EndPosition() {
		return fmt.Errorf("%w: cursor %s at %d, log ends at %d",
			ErrCursorAhead, c.key, saved.Position, q.EndPosition())
	}

	c.saved = saved
	c.position = saved.Position
	c.log = q.NewLogReader()
	return nil
}

func (c *Consumer) loadOrCreateCursor(queueID string) (*format.CursorState, error) {
	saved, err := c.store.Load(c.key)
	if err == nil {
		return saved, nil
	}
	if !errors.Is(err, cursor.ErrNotFound) {
		return nil, err
	}
	if c.mode == queue.ModeRead {
		return nil, fmt.Errorf("%w: %s", ErrCursorNotFound, c.key)
	}

	saved = &format.CursorState{
		Version:   format.CurrentVersion,
		Consumer:  c.name,
		Queue:     c.queueName,
		QueueID:   queueID,
		UpdatedAt: time.Now().UnixNano(),
	}
	if err := c.store.Save(c.key, saved); err != nil {
		return nil, fmt.Errorf("failed to create cursor: %w", err)
	}

	c.opts.Logger.Info("cursor created",
		logging.F("consumer", c.name),
		logging.F("queue", c.queueName),
	)
	return saved, nil
}

// PopHeader peeks the record header at the cursor position.
//
// It returns true once a complete header is cached, and false with a nil
// error when no record has been published there yet. A malformed header is
// returned as an error wrapping format.ErrMalformed; it is never treated as
// the end of the log.
func (c *Consumer) PopHeader() (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false, ErrClosed
	}
	if c.state != StateIdle {
		return true, nil
	}

	h, err := c.log.HeaderAt(c.position)
	if err != nil {
		if errors.Is(err, format.ErrNoRecord) || errors.Is(err, format.ErrIncomplete) {
			return false, nil
		}
		return false, c.fatal("failed to read record header", err)
	}

	c.header = h
	c.state = StateHeaderPeeked
	return true, nil
}

// PopBody reads the body of the peeked record into buf and returns its
// length. The position does not move; the body can be read again until
// Commit or Abandon.
//
// ErrTailIncomplete means the body is not fully written yet and the call
// should be retried later.
func (c *Consumer) PopBody(buf []byte) (int, error) {
	start := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return 0, ErrClosed
	}
	if c.state == StateIdle {
		return 0, ErrNoHeader
	}
	if uint64(len(buf)) < uint64(c.header.Length) {
		return 0, fmt.Errorf("%w: need %d bytes, have %d", ErrBufferTooSmall, c.header.Length, len(buf))
	}

	if _, err := c.log.BodyAt(c.position, c.header, buf[:c.header.Length]); err != nil {
		if errors.Is(err, format.ErrIncomplete) {
			return 0, fmt.Errorf("%w: record at %d", ErrTailIncomplete, c.position)
		}
		return 0, c.fatal("failed to read record body", err)
	}

	c.state = StateBodyRead
	c.opts.MetricsCollector.RecordPop(c.name, int(c.header.Length), time.Since(start))
	return int(c.header.Length), nil
}

// Body reads the body of the peeked record into a new buffer.
func (c *Consumer) Body() ([]byte, error) {
	c.mu.Lock()
	length := c.header.Length
	c.mu.Unlock()

	buf := make([]byte, length)
	n, err := c.PopBody(buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

// Commit durably advances the position past the record whose body was read.
//
// It returns false with a nil error when there is nothing to commit. When
// the cursor cannot be saved it returns an error wrapping ErrPersist and
// leaves the state unchanged so the commit can be retried.
func (c *Consumer) Commit() (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false, ErrClosed
	}
	if c.state != StateBodyRead {
		return false, nil
	}

	next := *c.saved
	next.Position = c.position + c.header.RecordSize()
	next.Committed++
	next.UpdatedAt = time.Now().UnixNano()

	if err := c.store.Save(c.key, &next); err != nil {
		c.opts.MetricsCollector.RecordCommitError(c.name)
		c.opts.Logger.Error("cursor persist failed",
			logging.F("consumer", c.name),
			logging.F("queue", c.queueName),
			logging.F("position", next.Position),
			logging.F("error", err.Error()),
		)
		return false, fmt.Errorf("%w: %w", ErrPersist, err)
	}

	c.saved = &next
	c.position = next.Position
	c.countPopped++
	c.resetLocked()

	c.opts.MetricsCollector.RecordCommit(c.name)
	return true, nil
}

// Abandon drops the peeked record without moving the position.
func (c *Consumer) Abandon() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLocked()
}

func (c *Consumer) resetLocked() {
	c.state = StateIdle
	c.header = format.RecordHeader{}
}

// BatchSize returns the number of complete records between the position
// and the end of the log. A record still being written is not counted.
func (c *Consumer) BatchSize() (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return 0, ErrClosed
	}

	res, err := c.log.Scan(c.position, false, nil)
	if err != nil {
		return 0, c.fatal("failed to scan log", err)
	}

	c.opts.MetricsCollector.UpdateBacklog(c.name, res.Count)
	return res.Count, nil
}

// fatal logs and counts an unrecoverable read error.
// Must be called with lock held.
func (c *Consumer) fatal(msg string, err error) error {
	c.opts.MetricsCollector.RecordPopError(c.name)
	c.opts.Logger.Error(msg,
		logging.F("consumer", c.name),
		logging.F("queue", c.queueName),
		logging.F("position", c.position),
		logging.F("error", err.Error()),
	)
	return fmt.Errorf("%s at %d: %w", msg, c.position, err)
}

// Name returns the consumer name.
func (c *Consumer) Name() string {
	return c.name
}

// QueueName returns the name of the queue being read.
func (c *Consumer) QueueName() string {
	return c.queueName
}

// BasePath returns the resolved base path.
func (c *Consumer) BasePath() string {
	return c.basePath
}

// Mode returns the mode the consumer was opened with.
func (c *Consumer) Mode() queue.Mode {
	return c.mode
}

// Position returns the durable position of the next unread record.
func (c *Consumer) Position() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.position
}

// CountPopped returns the number of records committed through this handle.
func (c *Consumer) CountPopped() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.countPopped
}

// Header returns the peeked header and whether one is cached.
func (c *Consumer) Header() (format.RecordHeader, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.header, c.state != StateIdle
}

// State returns the current protocol state.
func (c *Consumer) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsReady reports whether the consumer is open.
func (c *Consumer) IsReady() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

// Close releases the cursor lock and the segment readers. Close is idempotent.
func (c *Consumer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	c.resetLocked()

	var errs []error
	if err := c.log.Close(); err != nil {
		errs = append(errs, err)
	}
	if c.ownsStore {
		if err := c.store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := c.lock.Unlock(); err != nil {
		errs = append(errs, fmt.Errorf("failed to release cursor lock: %w", err))
	}

	c.opts.Logger.Info("consumer closed",
		logging.F("consumer", c.name),
		logging.F("queue", c.queueName),
		logging.F("position", c.position),
		logging.F("count_popped", c.countPopped),
	)
	return errors.Join(errs...)
}
