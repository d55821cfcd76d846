package config

import "github.com/vnykmshr/vqueue/internal/segment"

const (
	defaultBasePath          = "~/.local/share/vqueue"
	defaultConfigPath        = "~/.config/vqueue/config.toml"
	defaultProjectConfig     = "vqueue.toml"
	defaultSyncPolicy        = "immediate"
	defaultSyncIntervalMS    = 1000
	defaultMaxMessageSize    = 10 * 1024 * 1024
	defaultMinFreeDiskSpace  = 100 * 1024 * 1024
	defaultCursorStore       = CursorStoreFile
	defaultPollIntervalMS    = 10
	defaultMaxPollIntervalMS = 1000
	defaultLogLevel          = "info"
	defaultLogFormat         = "text"
	defaultPebbleDir         = "cursors.db"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Queue: Queue{
			BasePath:         defaultBasePath,
			SyncPolicy:       defaultSyncPolicy,
			SyncIntervalMS:   defaultSyncIntervalMS,
			MaxSegmentSize:   segment.DefaultMaxSegmentSize,
			MaxMessageSize:   defaultMaxMessageSize,
			MinFreeDiskSpace: defaultMinFreeDiskSpace,
		},
		Consumer: Consumer{
			CursorStore:       defaultCursorStore,
			PollIntervalMS:    defaultPollIntervalMS,
			MaxPollIntervalMS: defaultMaxPollIntervalMS,
		},
		Logging: Logging{
			Level:  defaultLogLevel,
			Format: defaultLogFormat,
		},
	}
}
