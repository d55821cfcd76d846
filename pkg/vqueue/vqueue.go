// Package vqueue provides a persistent, single-writer, multi-reader queue
// with independent per-consumer cursors.
//
// A queue is an append-only log on disk. One process pushes records; any
// number of named consumers read them in order and durably commit their
// own progress, so every record is delivered at least once per consumer.
//
// Example usage:
//
//	q, err := vqueue.OpenQueue("/var/lib/vqueue", "events", vqueue.ModeDefault, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer q.Close()
//
//	if _, err := q.Push([]byte("Hello, World!"), vqueue.MsgTypeString); err != nil {
//	    log.Fatal(err)
//	}
//
//	c, err := vqueue.NewConsumer("/var/lib/vqueue", "indexer", "events", nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer c.Close()
//
//	msg, err := c.Pop()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if msg != nil {
//	    fmt.Printf("Message: %s\n", msg.Body)
//	    _, _ = c.Commit()
//	}
package vqueue

import (
	"context"
	"io"

	"github.com/vnykmshr/vqueue/internal/consumer"
	"github.com/vnykmshr/vqueue/internal/cursor"
	"github.com/vnykmshr/vqueue/internal/format"
	"github.com/vnykmshr/vqueue/internal/individual"
	"github.com/vnykmshr/vqueue/internal/logging"
	"github.com/vnykmshr/vqueue/internal/metrics"
	"github.com/vnykmshr/vqueue/internal/queue"
	"github.com/vnykmshr/vqueue/internal/segment"
)

// Version is the current version of vqueue.
const Version = "1.0.0"

// Mode controls what a handle may do and whether missing structures are created.
type Mode = queue.Mode

const (
	// ModeRead opens existing structures only.
	ModeRead = queue.ModeRead

	// ModeReadWrite creates missing structures.
	ModeReadWrite = queue.ModeReadWrite

	// ModeDefault is writable for producers; consumers read an existing
	// queue and create their cursor.
	ModeDefault = queue.ModeDefault
)

// MsgType tags the payload kind of a record.
type MsgType = format.MsgType

const (
	// MsgTypeString marks text payloads.
	MsgTypeString = format.MsgTypeString

	// MsgTypeObject marks binary-encoded individuals.
	MsgTypeObject = format.MsgTypeObject
)

// SyncPolicy determines when pushed records are fsynced.
type SyncPolicy = segment.SyncPolicy

const (
	SyncImmediate = segment.SyncImmediate
	SyncInterval  = segment.SyncInterval
	SyncManual    = segment.SyncManual
)

type (
	// QueueOptions configures a queue handle.
	QueueOptions = queue.Options

	// ConsumerOptions configures a consumer.
	ConsumerOptions = consumer.Options

	// QueueStats is a point-in-time view of a queue.
	QueueStats = queue.Stats

	// Message is one record read by a consumer.
	Message = consumer.Record

	// StreamHandler is called for each record delivered by Stream.
	StreamHandler = consumer.StreamHandler

	// CursorStore persists consumer positions.
	CursorStore = cursor.Store

	// Logger is the structured logging interface used by queues and consumers.
	Logger = logging.Logger

	// LogField is a structured logging field.
	LogField = logging.Field

	// LogLevel is the minimum severity a DefaultLogger writes.
	LogLevel = logging.Level
)

const (
	LogLevelDebug = logging.LevelDebug
	LogLevelInfo  = logging.LevelInfo
	LogLevelWarn  = logging.LevelWarn
	LogLevelError = logging.LevelError
)

// Errors returned by vqueue operations.
var (
	ErrInvalidName       = queue.ErrInvalidName
	ErrQueueNotFound     = queue.ErrQueueNotFound
	ErrQueueLocked       = queue.ErrQueueLocked
	ErrQueueClosed       = queue.ErrQueueClosed
	ErrReadOnly          = queue.ErrReadOnly
	ErrInvalidMsgType    = queue.ErrInvalidMsgType
	ErrMessageTooLarge   = queue.ErrMessageTooLarge
	ErrInsufficientSpace = queue.ErrInsufficientSpace
	ErrCorrupted         = queue.ErrCorrupted
	ErrMalformed         = format.ErrMalformed

	ErrCursorNotFound = consumer.ErrCursorNotFound
	ErrCursorLocked   = consumer.ErrCursorLocked
	ErrQueueMismatch  = consumer.ErrQueueMismatch
	ErrCursorAhead    = consumer.ErrCursorAhead
	ErrNoHeader       = consumer.ErrNoHeader
	ErrBufferTooSmall = consumer.ErrBufferTooSmall
	ErrTailIncomplete = consumer.ErrTailIncomplete
	ErrPersist        = consumer.ErrPersist
	ErrConsumerClosed = consumer.ErrClosed

	ErrParse      = individual.ErrParse
	ErrConversion = individual.ErrConversion
)

// DefaultQueueOptions returns the default queue configuration.
func DefaultQueueOptions() *QueueOptions {
	return queue.DefaultOptions()
}

// DefaultConsumerOptions returns the default consumer configuration.
func DefaultConsumerOptions() *ConsumerOptions {
	return consumer.DefaultOptions()
}

// NewFileCursorStore returns the default JSON-file cursor store.
func NewFileCursorStore(basePath string, sync bool) CursorStore {
	return cursor.NewFileStore(basePath, sync)
}

// OpenPebbleCursorStore opens a cursor store backed by a pebble database in dir.
func OpenPebbleCursorStore(dir string) (CursorStore, error) {
	return cursor.OpenPebbleStore(dir)
}

// NewLogger returns a structured logger writing text or JSON lines to w.
func NewLogger(w io.Writer, level LogLevel, json bool) Logger {
	f := logging.FormatText
	if json {
		f = logging.FormatJSON
	}
	return logging.NewLogger(w, level, f)
}

// NewMetricsCollector returns a Prometheus collector for one queue. It can
// be set on both QueueOptions and ConsumerOptions and registered with a
// prometheus.Registerer.
func NewMetricsCollector(queueName string) *metrics.Collector {
	return metrics.NewCollector(queueName)
}

// Queue is a handle on one named queue.
type Queue struct {
	q *queue.Queue
}

// OpenQueue opens the queue name under basePath.
func OpenQueue(basePath, name string, mode Mode, opts *QueueOptions) (*Queue, error) {
	q, err := queue.Open(basePath, name, mode, opts)
	if err != nil {
		return nil, err
	}
	return &Queue{q: q}, nil
}

// Push appends one record and returns its position.
func (q *Queue) Push(body []byte, t MsgType) (uint64, error) {
	return q.q.Push(body, t)
}

// PushBatch appends records of one type and returns their positions.
func (q *Queue) PushBatch(bodies [][]byte, t MsgType) ([]uint64, error) {
	return q.q.PushBatch(bodies, t)
}

// Sync flushes pending writes and checkpoints the queue.
func (q *Queue) Sync() error {
	return q.q.Sync()
}

// Refresh picks up records published since the last call on a read handle.
func (q *Queue) Refresh() error {
	return q.q.Refresh()
}

// Close syncs and releases the queue. It is safe to call more than once.
func (q *Queue) Close() error {
	return q.q.Close()
}

// Name returns the queue name.
func (q *Queue) Name() string {
	return q.q.Name()
}

// Mode returns the mode the queue was opened with.
func (q *Queue) Mode() Mode {
	return q.q.Mode()
}

// CountPushed returns the number of complete records in the log.
func (q *Queue) CountPushed() uint64 {
	return q.q.CountPushed()
}

// EndPosition returns the position the next record will get.
func (q *Queue) EndPosition() uint64 {
	return q.q.EndPosition()
}

// IsReady reports whether the queue was opened and not yet closed.
func (q *Queue) IsReady() bool {
	return q.q.IsReady()
}

// Stats returns queue statistics.
func (q *Queue) Stats() *QueueStats {
	return q.q.Stats()
}

// Consumer reads one queue through a named, persistent cursor.
type Consumer struct {
	c *consumer.Consumer
}

// NewConsumer opens consumerName on queueName in ModeDefault.
func NewConsumer(basePath, consumerName, queueName string, opts *ConsumerOptions) (*Consumer, error) {
	return NewConsumerWithMode(basePath, consumerName, queueName, ModeDefault, opts)
}

// NewConsumerWithMode opens consumerName on queueName with the given mode.
func NewConsumerWithMode(basePath, consumerName, queueName string, mode Mode, opts *ConsumerOptions) (*Consumer, error) {
	c, err := consumer.NewWithMode(basePath, consumerName, queueName, mode, opts)
	if err != nil {
		return nil, err
	}
	return &Consumer{c: c}, nil
}

// PopHeader peeks the next record header. See consumer.Consumer.PopHeader.
func (c *Consumer) PopHeader() (bool, error) {
	return c.c.PopHeader()
}

// PopBody reads the peeked record body into buf and returns its length.
func (c *Consumer) PopBody(buf []byte) (int, error) {
	return c.c.PopBody(buf)
}

// Pop peeks the next record and reads its body. It returns nil with a nil
// error when no record is available. The record must be committed or
// abandoned before the next one is read.
func (c *Consumer) Pop() (*Message, error) {
	ok, err := c.c.PopHeader()
	if err != nil || !ok {
		return nil, err
	}

	h, _ := c.c.Header()
	pos := c.c.Position()

	body, err := c.c.Body()
	if err != nil {
		return nil, err
	}
	return &Message{Position: pos, Type: h.Type, Body: body}, nil
}

// Commit durably advances the cursor past the record that was read.
func (c *Consumer) Commit() (bool, error) {
	return c.c.Commit()
}

// Abandon forgets the peeked record without moving the cursor.
func (c *Consumer) Abandon() {
	c.c.Abandon()
}

// BatchSize returns the number of complete records not yet committed.
func (c *Consumer) BatchSize() (uint64, error) {
	return c.c.BatchSize()
}

// Stream delivers records to handler until ctx is done or an error occurs.
func (c *Consumer) Stream(ctx context.Context, handler StreamHandler) error {
	return c.c.Stream(ctx, handler)
}

// Name returns the consumer name.
func (c *Consumer) Name() string {
	return c.c.Name()
}

// QueueName returns the name of the queue being read.
func (c *Consumer) QueueName() string {
	return c.c.QueueName()
}

// Position returns the committed position.
func (c *Consumer) Position() uint64 {
	return c.c.Position()
}

// CountPopped returns the number of records committed by this handle.
func (c *Consumer) CountPopped() uint64 {
	return c.c.CountPopped()
}

// IsReady reports whether the consumer was opened and not yet closed.
func (c *Consumer) IsReady() bool {
	return c.c.IsReady()
}

// Close releases the cursor lock. It is safe to call more than once.
func (c *Consumer) Close() error {
	return c.c.Close()
}

// ConvertIndividualToJSON decodes a msgpack-encoded individual and renders
// it as JSON. It never returns an empty string with a nil error.
func ConvertIndividualToJSON(raw []byte) (string, error) {
	return individual.ToJSON(raw)
}

// IsTransient reports whether err only means "try again later".
func IsTransient(err error) bool {
	return consumer.IsTransient(err)
}
