package main

import (
	"fmt"
	"os"
	"sync"

	"github.com/spf13/cobra"

	u "proxysheet/internal/utils"
)

// commandContext loads configuration once per invocation.
type commandContext struct {
	configFlag *string

	once sync.Once
	cfg  u.Config
	err  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

// ensureConfig loads the config file named by --config, CONFIG_PATH or
// config.yaml, in that order, and initialises logging from it.
func (c *commandContext) ensureConfig() (u.Config, error) {
	c.once.Do(func() {
		path := *c.configFlag
		if path == "" {
			path = os.Getenv("CONFIG_PATH")
		}
		if path == "" {
			path = u.DefaultConfigPath
		}
		c.cfg, c.err = loadConfig(path)
		if c.err != nil {
			return
		}
		u.InitLogger(
			c.cfg.Logger.File,
			c.cfg.Logger.MaxSizeMB,
			c.cfg.Logger.MaxBackups,
			c.cfg.Logger.MaxAgeDays,
			c.cfg.Logger.Compress,
			c.cfg.Logger.Level,
		)
		u.SetLogLevel(c.cfg.Logger.Level)
	})
	return c.cfg, c.err
}

// loadConfig turns the loader's panics into errors.
func loadConfig(path string) (cfg u.Config, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v", r)
		}
	}()
	return u.LoadFrom(path), nil
}

func newRootCommand() *cobra.Command {
	var configFlag string
	ctx := newCommandContext(&configFlag)

	rootCmd := &cobra.Command{
		Use:           "proxysheet",
		Short:         "Print cut-ready proxy sheets from card artwork",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")

	rootCmd.AddCommand(newServeCommand(ctx))
	rootCmd.AddCommand(newPrintCommand(ctx))

	return rootCmd
}
