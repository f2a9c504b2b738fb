package main

import (
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/mbonchek/patterning-web-v2/internal/client"
	"github.com/mbonchek/patterning-web-v2/internal/config"
	"github.com/mbonchek/patterning-web-v2/internal/logger"
)

// commandContext лениво создает конфигурацию, логгер и клиент бэкенда для подкоманд.
type commandContext struct {
	apiFlag *string
	verbose *bool

	once    sync.Once
	config  *config.Config
	logger  *zap.Logger
	backend client.Backend
	err     error
}

func newCommandContext(apiFlag *string, verbose *bool) *commandContext {
	return &commandContext{apiFlag: apiFlag, verbose: verbose}
}

func (c *commandContext) ensure() error {
	c.once.Do(func() {
		cfg, err := config.Load()
		if err != nil {
			c.err = err
			return
		}
		// stdout занят таблицами, логи идут в stderr
		logCfg := logger.Config{Level: "warn", Encoding: "console", OutputPath: "stderr"}
		if c.verbose != nil && *c.verbose {
			logCfg.Level = "debug"
		}
		log, err := logger.New(logCfg)
		if err != nil {
			c.err = err
			return
		}

		baseURL := cfg.BackendURL()
		if c.apiFlag != nil && strings.TrimSpace(*c.apiFlag) != "" {
			baseURL = strings.TrimSpace(*c.apiFlag)
		}
		backend, err := client.NewBackendClient(baseURL, cfg.Backend.Timeout, log)
		if err != nil {
			c.err = err
			return
		}
		c.config = cfg
		c.logger = log
		c.backend = backend
	})
	return c.err
}

func (c *commandContext) backendClient() (client.Backend, error) {
	if err := c.ensure(); err != nil {
		return nil, err
	}
	return c.backend, nil
}
