package cli

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// NewSchedulerCommand creates the scheduler command.
func NewSchedulerCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "scheduler",
		Short: "Run periodic syncs until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := rootOpts.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			return a.Scheduler.Run(ctx)
		},
	}
}
