package cli

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/timmy/parlsync/internal/service"
)

// NewFullSyncCommand creates the full-sync command.
func NewFullSyncCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "full-sync",
		Short: "Load reference data and every archive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, rootOpts, func(ctx context.Context, s *service.SyncService) (*service.SyncReport, error) {
				return s.RunFull(ctx)
			})
		},
	}
}

// NewIncrementalSyncCommand creates the incremental-sync command.
func NewIncrementalSyncCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "incremental-sync",
		Short: "Refresh MPs, votes and bills",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, rootOpts, func(ctx context.Context, s *service.SyncService) (*service.SyncReport, error) {
				return s.RunIncremental(ctx)
			})
		},
	}
}

// NewTestSyncCommand creates the test-sync command.
func NewTestSyncCommand(rootOpts *RootOptions) *cobra.Command {
	var tables []string

	cmd := &cobra.Command{
		Use:   "test-sync <mp|voting|bills>",
		Short: "Sync a single source, optionally limited to some tables",
		Long: `Sync one data source without reference data.

Use --tables to restrict the sync to archive tables, e.g.
  parlsync test-sync mp --tables osoby`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{service.SourceMP, service.SourceVoting, service.SourceBills},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, rootOpts, func(ctx context.Context, s *service.SyncService) (*service.SyncReport, error) {
				return s.RunTest(ctx, args[0], tables)
			})
		},
	}
	cmd.Flags().StringSliceVar(&tables, "tables", nil, "archive tables to sync (comma separated)")
	return cmd
}

func runSync(cmd *cobra.Command, opts *RootOptions, fn func(context.Context, *service.SyncService) (*service.SyncReport, error)) error {
	a, err := opts.open(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := fn(cmd.Context(), a.Sync)
	if report != nil {
		if perr := opts.output(cmd).Report(report); perr != nil {
			return perr
		}
	}
	if err != nil {
		return err
	}
	if report.Failed() {
		return ErrSyncFailed
	}
	return nil
}
