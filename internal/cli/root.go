// Package cli implements the parlsync command line.
package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/timmy/parlsync/internal/app"
	"github.com/timmy/parlsync/internal/config"
	"github.com/timmy/parlsync/internal/logger"
)

// ErrSyncFailed is returned when a sync finished but some table failed.
var ErrSyncFailed = errors.New("sync finished with failures")

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Format     string // "json" | "text"
	Verbose    bool

	cfg *config.Config
	log *logger.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "parlsync",
		Short:         "Czech Parliament open-data ingestion",
		Long:          "Downloads the Chamber of Deputies open-data archives and reconciles them into the database.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			cfg, err := config.Load(opts.ConfigPath)
			if err != nil {
				return err
			}
			opts.cfg = cfg

			logCfg := logger.LoadFromEnv()
			if logCfg.Environment == "local" {
				// keep stdout for command output
				logCfg.Output = cmd.ErrOrStderr()
			}
			if opts.Verbose {
				logCfg.Level = "debug"
			}
			opts.log = logger.New(logCfg)
			logger.SetDefaultLogger(opts.log)
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "path to config file (default ./configs/config.yaml)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging")

	cmd.AddCommand(NewFullSyncCommand(opts))
	cmd.AddCommand(NewIncrementalSyncCommand(opts))
	cmd.AddCommand(NewTestSyncCommand(opts))
	cmd.AddCommand(NewInspectCommand(opts))
	cmd.AddCommand(NewSchemasCommand(opts))
	cmd.AddCommand(NewMonitorCommand(opts))
	cmd.AddCommand(NewSchedulerCommand(opts))

	return cmd
}

// open builds the services; callers must Close the result.
func (o *RootOptions) open(cmd *cobra.Command) (*app.App, error) {
	return app.New(cmd.Context(), o.cfg, o.log)
}

func (o *RootOptions) output(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{Format: o.Format, Writer: cmd.OutOrStdout()}
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
