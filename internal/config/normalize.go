package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizeQueue(); err != nil {
		return err
	}
	if err := c.normalizeConsumer(); err != nil {
		return err
	}
	c.normalizeLogging()
	c.Metrics.ListenAddr = strings.TrimSpace(c.Metrics.ListenAddr)
	return nil
}

func (c *Config) normalizeQueue() error {
	if value, ok := os.LookupEnv(EnvBasePath); ok && strings.TrimSpace(value) != "" {
		c.Queue.BasePath = value
	}
	if strings.TrimSpace(c.Queue.BasePath) == "" {
		c.Queue.BasePath = defaultBasePath
	}

	var err error
	if c.Queue.BasePath, err = expandPath(c.Queue.BasePath); err != nil {
		return fmt.Errorf("queue.base_path: %w", err)
	}

	c.Queue.SyncPolicy = strings.ToLower(strings.TrimSpace(c.Queue.SyncPolicy))
	if c.Queue.SyncPolicy == "" {
		c.Queue.SyncPolicy = defaultSyncPolicy
	}
	return nil
}

func (c *Config) normalizeConsumer() error {
	c.Consumer.CursorStore = strings.ToLower(strings.TrimSpace(c.Consumer.CursorStore))
	if c.Consumer.CursorStore == "" {
		c.Consumer.CursorStore = defaultCursorStore
	}

	var err error
	if c.Consumer.PebblePath, err = expandPath(c.Consumer.PebblePath); err != nil {
		return fmt.Errorf("consumer.pebble_path: %w", err)
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
}
