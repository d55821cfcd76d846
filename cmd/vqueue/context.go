package main

import (
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/vnykmshr/vqueue/internal/config"
	"github.com/vnykmshr/vqueue/internal/cursor"
	"github.com/vnykmshr/vqueue/internal/logging"
	"github.com/vnykmshr/vqueue/internal/metrics"
	"github.com/vnykmshr/vqueue/pkg/vqueue"
)

type commandContext struct {
	configFlag   *string
	basePathFlag *string
	logLevelFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	logger     logging.Logger
}

func newCommandContext(configFlag, basePathFlag, logLevelFlag *string) *commandContext {
	return &commandContext{
		configFlag:   configFlag,
		basePathFlag: basePathFlag,
		logLevelFlag: logLevelFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if c.basePathFlag != nil && strings.TrimSpace(*c.basePathFlag) != "" {
			if err := cfg.SetBasePath(strings.TrimSpace(*c.basePathFlag)); err != nil {
				c.configErr = err
				return
			}
		}
		if c.logLevelFlag != nil && strings.TrimSpace(*c.logLevelFlag) != "" {
			if _, err := logging.ParseLevel(*c.logLevelFlag); err != nil {
				c.configErr = fmt.Errorf("--log-level: %w", err)
				return
			}
			cfg.Logging.Level = strings.ToLower(strings.TrimSpace(*c.logLevelFlag))
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) loggerValue() logging.Logger {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.logger = logging.NoopLogger{}
			return
		}
		c.logger = cfg.Logger()
	})
	return c.logger
}

func (c *commandContext) basePath() (string, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return "", err
	}
	return cfg.Queue.BasePath, nil
}

// openQueue opens name with options from the configuration. collector may be nil.
func (c *commandContext) openQueue(name string, mode vqueue.Mode, collector *metrics.Collector) (*vqueue.Queue, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	opts, err := c.queueOptions(collector)
	if err != nil {
		return nil, err
	}
	return vqueue.OpenQueue(cfg.Queue.BasePath, name, mode, opts)
}

func (c *commandContext) queueOptions(collector *metrics.Collector) (*vqueue.QueueOptions, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	if collector == nil {
		return cfg.QueueOptions(c.loggerValue(), nil)
	}
	return cfg.QueueOptions(c.loggerValue(), collector)
}

// openConsumer opens a consumer over the configured cursor store. The
// returned release func closes the consumer and then the store.
func (c *commandContext) openConsumer(name, queueName string, mode vqueue.Mode, collector *metrics.Collector) (*vqueue.Consumer, func(), error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, nil, err
	}
	store, err := cfg.OpenCursorStore()
	if err != nil {
		return nil, nil, fmt.Errorf("open cursor store: %w", err)
	}

	qopts, err := c.queueOptions(collector)
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}

	var opts *vqueue.ConsumerOptions
	if collector == nil {
		opts = cfg.ConsumerOptions(store, c.loggerValue(), nil)
	} else {
		opts = cfg.ConsumerOptions(store, c.loggerValue(), collector)
	}
	opts.QueueOptions = qopts

	cons, err := vqueue.NewConsumerWithMode(cfg.Queue.BasePath, name, queueName, mode, opts)
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}

	release := func() {
		_ = cons.Close()
		_ = store.Close()
	}
	return cons, release, nil
}

func (c *commandContext) openCursorStore() (cursor.Store, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return cfg.OpenCursorStore()
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
