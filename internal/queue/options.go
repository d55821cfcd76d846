// Package queue provides configuration and validation for queue options.
// This file contains the Mode and Options types and related functions.
package queue

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/vnykmshr/vqueue/internal/logging"
	"github.com/vnykmshr/vqueue/internal/metrics"
	"github.com/vnykmshr/vqueue/internal/segment"
)

// Mode controls what an open handle may do and whether missing structures are created.
type Mode int

const (
	// ModeRead opens an existing queue without taking the writer lock.
	ModeRead Mode = iota

	// ModeReadWrite creates missing structures and takes the writer lock.
	ModeReadWrite

	// ModeDefault behaves like ModeReadWrite for producers. Consumers read
	// an existing queue and create their cursor.
	ModeDefault
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case ModeRead:
		return "read"
	case ModeReadWrite:
		return "readwrite"
	case ModeDefault:
		return "default"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Writable reports whether a queue opened in this mode accepts pushes.
func (m Mode) Writable() bool {
	return m == ModeReadWrite || m == ModeDefault
}

// ParseMode converts a mode name back to a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "read", "r":
		return ModeRead, nil
	case "readwrite", "read-write", "rw":
		return ModeReadWrite, nil
	case "", "default":
		return ModeDefault, nil
	default:
		return ModeDefault, fmt.Errorf("unknown mode %q", s)
	}
}

// Options configures queue behavior.
type Options struct {
	// SyncPolicy determines when appended records are fsynced.
	// Default: SyncImmediate (body fsync, then header fsync)
	SyncPolicy segment.SyncPolicy

	// SyncInterval is the background fsync period for SyncInterval.
	// Default: 1 second
	SyncInterval time.Duration

	// MaxSegmentSize is the record volume in bytes after which a new segment file is started.
	// Default: 64 MB
	MaxSegmentSize uint64

	// MaxMessageSize is the maximum size in bytes for a single record body.
	// Set to 0 for unlimited message size (not recommended for production).
	// Default: 10 MB
	MaxMessageSize int64

	// MinFreeDiskSpace is the minimum required free disk space in bytes.
	// Push operations will fail if available disk space falls below this threshold.
	// Set to 0 to disable disk space checking.
	// Default: 100 MB
	MinFreeDiskSpace int64

	// Logger for structured logging (nil = no logging)
	Logger logging.Logger

	// MetricsCollector for collecting queue metrics (nil = no metrics)
	MetricsCollector MetricsCollector
}

// MetricsCollector defines the interface for recording queue metrics.
type MetricsCollector interface {
	RecordPush(payloadSize int, duration time.Duration)
	RecordPushBatch(count, totalPayloadSize int, duration time.Duration)
	RecordPushError()
	UpdateQueueState(countPushed, endPosition uint64, segments int)
}

// DefaultOptions returns sensible defaults for queue configuration.
func DefaultOptions() *Options {
	return &Options{
		SyncPolicy:       segment.SyncImmediate,
		SyncInterval:     1 * time.Second,
		MaxSegmentSize:   segment.DefaultMaxSegmentSize,
		MaxMessageSize:   10 * 1024 * 1024,        // 10 MB max message size
		MinFreeDiskSpace: 100 * 1024 * 1024,       // 100 MB minimum free space
		Logger:           logging.NoopLogger{},    // No logging by default
		MetricsCollector: metrics.NoopCollector{}, // No metrics by default
	}
}

// Validate checks if the options are valid and safe to use.
func (o *Options) Validate() error {
	switch o.SyncPolicy {
	case segment.SyncImmediate, segment.SyncManual:
	case segment.SyncInterval:
		if o.SyncInterval <= 0 {
			return fmt.Errorf("sync interval must be positive for interval sync policy")
		}
	default:
		return fmt.Errorf("invalid sync policy: %d", o.SyncPolicy)
	}

	if o.MaxSegmentSize == 0 {
		return fmt.Errorf("max segment size must be positive")
	}
	if o.MaxMessageSize < 0 {
		return fmt.Errorf("max message size cannot be negative")
	}
	if o.MinFreeDiskSpace < 0 {
		return fmt.Errorf("min free disk space cannot be negative")
	}
	return nil
}

// withDefaults fills unset collaborators so callers can pass partial options.
func (o *Options) withDefaults() *Options {
	c := *o
	if c.Logger == nil {
		c.Logger = logging.NoopLogger{}
	}
	if c.MetricsCollector == nil {
		c.MetricsCollector = metrics.NoopCollector{}
	}
	return &c
}

// ValidatePath validates a base path for security issues and returns its clean absolute form.
func ValidatePath(path, pathType string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("%s path cannot be empty", pathType)
	}
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == ".." {
			return "", fmt.Errorf("path traversal not allowed in %s: %s", pathType, path)
		}
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve absolute path for %s: %w", pathType, err)
	}

	return filepath.Clean(absPath), nil
}
