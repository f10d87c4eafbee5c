package main

import (
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/lk2023060901/auto-archiver/internal/conf"
	"github.com/lk2023060901/auto-archiver/internal/pkg/injector"
	"github.com/lk2023060901/auto-archiver/internal/pkg/logger"
)

type commandContext struct {
	configFlag  *string
	verboseFlag *bool
	json        bool

	appOnce sync.Once
	app     *injector.App
	cleanup func()
	appErr  error
}

func newCommandContext(configFlag *string, verboseFlag *bool) *commandContext {
	return &commandContext{
		configFlag:  configFlag,
		verboseFlag: verboseFlag,
	}
}

// ensureApp builds the application graph once. The scheduler is never
// started here; commands run tasks synchronously through it.
func (c *commandContext) ensureApp() (*injector.App, error) {
	c.appOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, err := conf.LoadConfig(path)
		if err != nil {
			c.appErr = err
			return
		}
		if c.verboseFlag == nil || !*c.verboseFlag {
			cfg.Log.Output = "discard"
		}

		log, err := logger.New(&cfg.Log)
		if err != nil {
			c.appErr = fmt.Errorf("init logger: %w", err)
			return
		}
		app, cleanup, err := injector.InitializeApp(cfg, log)
		if err != nil {
			c.appErr = fmt.Errorf("init app: %w", err)
			return
		}
		c.app = app
		c.cleanup = cleanup
	})
	return c.app, c.appErr
}

func (c *commandContext) close() {
	if c.cleanup != nil {
		c.cleanup()
		c.cleanup = nil
	}
}

func shouldSkipApp(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipApp"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
