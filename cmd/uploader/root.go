package main

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/kirillkom/docflow/internal/config"
	"github.com/kirillkom/docflow/internal/infrastructure/ledger/sqlite"
	"github.com/kirillkom/docflow/internal/infrastructure/processing/remote"
	"github.com/kirillkom/docflow/internal/observability/logging"
)

type commandContext struct {
	configFlag   *string
	endpointFlag *string

	configOnce sync.Once
	config     config.Uploader
	configErr  error
}

func newCommandContext(configFlag, endpointFlag *string) *commandContext {
	return &commandContext{
		configFlag:   configFlag,
		endpointFlag: endpointFlag,
	}
}

func (c *commandContext) ensureConfig() (config.Uploader, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, err := config.LoadUploader(path)
		if err != nil {
			c.configErr = err
			return
		}
		if c.endpointFlag != nil && strings.TrimSpace(*c.endpointFlag) != "" {
			cfg.Endpoint = strings.TrimRight(strings.TrimSpace(*c.endpointFlag), "/")
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) logger(cmd *cobra.Command) *slog.Logger {
	cfg, _ := c.ensureConfig()
	return logging.NewTextLogger(cmd.ErrOrStderr(), cfg.LogLevel)
}

func (c *commandContext) client(timeout time.Duration) (*remote.Client, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return remote.New(cfg.Endpoint, remote.Options{Timeout: timeout}), nil
}

func (c *commandContext) withLedger(fn func(*sqlite.Ledger) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	ledger, err := sqlite.Open(cfg.DataDir)
	if err != nil {
		return err
	}
	defer ledger.Close()
	return fn(ledger)
}

func newRootCommand() *cobra.Command {
	var configFlag string
	var endpointFlag string

	ctx := newCommandContext(&configFlag, &endpointFlag)

	rootCmd := &cobra.Command{
		Use:           "docflow-upload",
		Short:         "Bulk document uploader for the docflow processing API",
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
	rootCmd.PersistentFlags().StringVar(&endpointFlag, "endpoint", "", "Processing API base URL")

	rootCmd.AddCommand(newUploadCommand(ctx))
	rootCmd.AddCommand(newReprocessCommand(ctx))
	rootCmd.AddCommand(newHistoryCommand(ctx))
	rootCmd.AddCommand(newStatusCommand(ctx))

	return rootCmd
}
