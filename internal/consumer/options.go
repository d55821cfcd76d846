package consumer

import (
	"fmt"
	"time"

	"github.com/vnykmshr/vqueue/internal/cursor"
	"github.com/vnykmshr/vqueue/internal/logging"
	"github.com/vnykmshr/vqueue/internal/metrics"
	"github.com/vnykmshr/vqueue/internal/queue"
)

// Options configures consumer behavior.
type Options struct {
	// Store persists the cursor. nil uses a FileStore under the queue
	// directory with fsync on every commit.
	Store cursor.Store

	// QueueOptions is used when the consumer opens (or, in ModeReadWrite,
	// creates) the queue. nil uses queue.DefaultOptions.
	QueueOptions *queue.Options

	// PollInterval is the initial Stream wait when no record is available.
	// Default: 10ms
	PollInterval time.Duration

	// MaxPollInterval caps the Stream backoff.
	// Default: 1 second
	MaxPollInterval time.Duration

	// Logger for structured logging (nil = no logging)
	Logger logging.Logger

	// MetricsCollector for collecting consumer metrics (nil = no metrics)
	MetricsCollector MetricsCollector
}

// MetricsCollector defines the interface for recording consumer metrics.
type MetricsCollector interface {
	RecordPop(consumer string, payloadSize int, duration time.Duration)
	RecordPopError(consumer string)
	RecordCommit(consumer string)
	RecordCommitError(consumer string)
	UpdateBacklog(consumer string, records uint64)
}

// DefaultOptions returns sensible defaults for consumer configuration.
func DefaultOptions() *Options {
	return &Options{
		PollInterval:     10 * time.Millisecond,
		MaxPollInterval:  time.Second,
		Logger:           logging.NoopLogger{},
		MetricsCollector: metrics.NoopCollector{},
	}
}

// Validate checks if the options are valid.
func (o *Options) Validate() error {
	if o.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}
	if o.MaxPollInterval < o.PollInterval {
		return fmt.Errorf("max poll interval (%v) below poll interval (%v)", o.MaxPollInterval, o.PollInterval)
	}
	if o.QueueOptions != nil {
		if err := o.QueueOptions.Validate(); err != nil {
			return fmt.Errorf("queue options: %w", err)
		}
	}
	return nil
}

// withDefaults fills unset fields so callers can pass partial options.
func (o *Options) withDefaults() *Options {
	c := *o
	if c.PollInterval == 0 {
		c.PollInterval = 10 * time.Millisecond
	}
	if c.MaxPollInterval == 0 {
		c.MaxPollInterval = time.Second
	}
	if c.Logger == nil {
		c.Logger = logging.NoopLogger{}
	}
	if c.MetricsCollector == nil {
		c.MetricsCollector = metrics.NoopCollector{}
	}
	if c.QueueOptions == nil {
		c.QueueOptions = queue.DefaultOptions()
	}
	qo := *c.QueueOptions
	if qo.Logger == nil {
		qo.Logger = c.Logger
	}
	c.QueueOptions = &qo
	return &c
}
