package config

import (
	"errors"
	"fmt"

	"github.com/vnykmshr/vqueue/internal/logging"
	"github.com/vnykmshr/vqueue/internal/segment"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateQueue(); err != nil {
		return err
	}
	if err := c.validateConsumer(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateQueue() error {
	if c.Queue.BasePath == "" {
		return errors.New("queue.base_path must be set")
	}
	policy, err := segment.ParseSyncPolicy(c.Queue.SyncPolicy)
	if err != nil {
		return fmt.Errorf("queue.sync_policy: %w", err)
	}
	if policy == segment.SyncInterval && c.Queue.SyncIntervalMS <= 0 {
		return errors.New("queue.sync_interval_ms must be positive for the interval sync policy")
	}
	if c.Queue.MaxSegmentSize == 0 {
		return errors.New("queue.max_segment_size must be positive")
	}
	if c.Queue.MaxMessageSize < 0 {
		return errors.New("queue.max_message_size cannot be negative")
	}
	if c.Queue.MinFreeDiskSpace < 0 {
		return errors.New("queue.min_free_disk_space cannot be negative")
	}
	return nil
}

func (c *Config) validateConsumer() error {
	switch c.Consumer.CursorStore {
	case CursorStoreFile, CursorStorePebble:
	default:
		return fmt.Errorf("consumer.cursor_store must be %q or %q, got %q", CursorStoreFile, CursorStorePebble, c.Consumer.CursorStore)
	}
	if c.Consumer.PollIntervalMS <= 0 {
		return errors.New("consumer.poll_interval_ms must be positive")
	}
	if c.Consumer.MaxPollIntervalMS < c.Consumer.PollIntervalMS {
		return errors.New("consumer.max_poll_interval_ms must not be below consumer.poll_interval_ms")
	}
	return nil
}

func (c *Config) validateLogging() error {
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be \"text\" or \"json\", got %q", c.Logging.Format)
	}
	return nil
}
