package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/vnykmshr/vqueue/internal/consumer"
	"github.com/vnykmshr/vqueue/internal/cursor"
	"github.com/vnykmshr/vqueue/internal/logging"
	"github.com/vnykmshr/vqueue/internal/queue"
	"github.com/vnykmshr/vqueue/internal/segment"
)

//go:embed sample_config.toml
var sampleConfig string

// EnvBasePath overrides queue.base_path when set.
const EnvBasePath = "VQUEUE_BASE_PATH"

// Cursor store backends.
const (
	CursorStoreFile   = "file"
	CursorStorePebble = "pebble"
)

// Queue contains storage and durability settings.
type Queue struct {
	BasePath         string `toml:"base_path"`
	SyncPolicy       string `toml:"sync_policy"`
	SyncIntervalMS   int    `toml:"sync_interval_ms"`
	MaxSegmentSize   uint64 `toml:"max_segment_size"`
	MaxMessageSize   int64  `toml:"max_message_size"`
	MinFreeDiskSpace int64  `toml:"min_free_disk_space"`
}

// Consumer contains cursor storage and polling settings.
type Consumer struct {
	CursorStore       string `toml:"cursor_store"`
	PebblePath        string `toml:"pebble_path"` // Default: <base_path>/cursors.db
	PollIntervalMS    int    `toml:"poll_interval_ms"`
	MaxPollIntervalMS int    `toml:"max_poll_interval_ms"`
}

// Logging contains configuration for log output.
type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Metrics contains the Prometheus endpoint settings.
type Metrics struct {
	ListenAddr string `toml:"listen_addr"` // empty disables the endpoint
}

// Config encapsulates all configuration values for the vqueue CLI.
type Config struct {
	Queue    Queue    `toml:"queue"`
	Consumer Consumer `toml:"consumer"`
	Logging  Logging  `toml:"logging"`
	Metrics  Metrics  `toml:"metrics"`
}

// DefaultConfigPath returns the absolute path of the default configuration file.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded. It also reports the resolved path and
// whether a file existed there.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		info, err := os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return "", false, fmt.Errorf("config file %s does not exist", expanded)
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		if info.IsDir() {
			return "", false, fmt.Errorf("config path %s is a directory", expanded)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs(defaultProjectConfig)
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// SampleConfig returns the annotated default configuration.
func SampleConfig() string {
	return sampleConfig
}

// CreateSample writes the sample configuration to path.
func CreateSample(path string) error {
	return os.WriteFile(path, []byte(sampleConfig), 0o644)
}

// QueueOptions builds queue options from the configuration.
func (c *Config) QueueOptions(logger logging.Logger, collector queue.MetricsCollector) (*queue.Options, error) {
	policy, err := segment.ParseSyncPolicy(c.Queue.SyncPolicy)
	if err != nil {
		return nil, fmt.Errorf("queue.sync_policy: %w", err)
	}

	opts := queue.DefaultOptions()
	opts.SyncPolicy = policy
	opts.SyncInterval = time.Duration(c.Queue.SyncIntervalMS) * time.Millisecond
	opts.MaxSegmentSize = c.Queue.MaxSegmentSize
	opts.MaxMessageSize = c.Queue.MaxMessageSize
	opts.MinFreeDiskSpace = c.Queue.MinFreeDiskSpace
	if logger != nil {
		opts.Logger = logger
	}
	if collector != nil {
		opts.MetricsCollector = collector
	}
	return opts, nil
}

// ConsumerOptions builds consumer options around an already opened cursor store.
func (c *Config) ConsumerOptions(store cursor.Store, logger logging.Logger, collector consumer.MetricsCollector) *consumer.Options {
	opts := consumer.DefaultOptions()
	opts.Store = store
	opts.PollInterval = time.Duration(c.Consumer.PollIntervalMS) * time.Millisecond
	opts.MaxPollInterval = time.Duration(c.Consumer.MaxPollIntervalMS) * time.Millisecond
	if logger != nil {
		opts.Logger = logger
	}
	if collector != nil {
		opts.MetricsCollector = collector
	}
	return opts
}

// OpenCursorStore opens the configured cursor store. The caller closes it.
func (c *Config) OpenCursorStore() (cursor.Store, error) {
	switch c.Consumer.CursorStore {
	case CursorStorePebble:
		if err := os.MkdirAll(c.Queue.BasePath, 0o755); err != nil {
			return nil, fmt.Errorf("create base directory %q: %w", c.Queue.BasePath, err)
		}
		return cursor.OpenPebbleStore(c.PebblePath())
	default:
		return cursor.NewFileStore(c.Queue.BasePath, true), nil
	}
}

// Logger builds the configured logger writing to stderr.
func (c *Config) Logger() logging.Logger {
	level, _ := logging.ParseLevel(c.Logging.Level)
	format := logging.FormatText
	if c.Logging.Format == "json" {
		format = logging.FormatJSON
	}
	return logging.NewLogger(os.Stderr, level, format)
}

// SetBasePath replaces the queue base path, expanding "~".
func (c *Config) SetBasePath(path string) error {
	expanded, err := expandPath(path)
	if err != nil {
		return fmt.Errorf("base path: %w", err)
	}
	c.Queue.BasePath = expanded
	return nil
}

// PebblePath returns the pebble cursor database directory.
func (c *Config) PebblePath() string {
	if c.Consumer.PebblePath != "" {
		return c.Consumer.PebblePath
	}
	return filepath.Join(c.Queue.BasePath, defaultPebbleDir)
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}
