package cli

import (
	"errors"

	"github.com/spf13/cobra"
	"github.com/timmy/parlsync/internal/service"
)

// NewMonitorCommand creates the monitor command group.
func NewMonitorCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Inspect sync history and data freshness",
	}
	cmd.AddCommand(newMonitorStatusCommand(rootOpts))
	cmd.AddCommand(newMonitorFreshnessCommand(rootOpts))
	cmd.AddCommand(newMonitorHealthCommand(rootOpts))
	return cmd
}

func newMonitorStatusCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		kind  string
		limit int
	)
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show recent sync runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := rootOpts.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			runs, err := a.Monitor.Recent(cmd.Context(), kind, limit)
			if err != nil {
				return err
			}
			return rootOpts.output(cmd).Runs(runs)
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "only runs of this kind, e.g. persons")
	cmd.Flags().IntVar(&limit, "limit", 0, "number of runs (default 10 per kind, 20 overall)")
	return cmd
}

func newMonitorFreshnessCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "freshness",
		Short: "Show data freshness indicators",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := rootOpts.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			fresh, err := a.Monitor.Freshness(cmd.Context())
			if err != nil {
				return err
			}
			return rootOpts.output(cmd).Freshness(fresh)
		},
	}
}

func newMonitorHealthCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Run the health check; exits non-zero when unhealthy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := rootOpts.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			h := a.Monitor.Health(cmd.Context())
			if err := rootOpts.output(cmd).Health(h); err != nil {
				return err
			}
			if h.Status == service.HealthUnhealthy {
				return errors.New("unhealthy")
			}
			return nil
		},
	}
}
