package cli

import (
	"errors"

	"github.com/spf13/cobra"
	"github.com/timmy/parlsync/internal/service"
	"github.com/timmy/parlsync/internal/source/local"
)

// NewInspectCommand creates the inspect command.
func NewInspectCommand(rootOpts *RootOptions) *cobra.Command {
	var list bool

	cmd := &cobra.Command{
		Use:   "inspect [archive|mp|voting|bills]",
		Short: "Show the files and schemas of an archive without syncing it",
		Args: func(cmd *cobra.Command, args []string) error {
			if list {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(1)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := rootOpts.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			out := rootOpts.output(cmd)
			if list {
				lf, ok := a.Fetcher.(*local.Fetcher)
				if !ok {
					return errors.New("--list needs source.type local")
				}
				names, err := lf.List()
				if err != nil {
					return err
				}
				return out.Lines(names)
			}

			ins, err := a.Sync.Inspect(cmd.Context(), a.ArchiveFor(args[0]))
			if err != nil {
				return err
			}
			return out.Inspection(ins)
		},
	}
	cmd.Flags().BoolVar(&list, "list", false, "list archives in the local source directory")
	return cmd
}

// NewSchemasCommand creates the schemas command.
func NewSchemasCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "schemas [table]",
		Short: "List registered table schemas",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			schemas := service.Schemas()
			if len(args) == 1 {
				fields, ok := schemas[args[0]]
				if !ok {
					return errors.New("no schema for table " + args[0])
				}
				schemas = map[string][]string{args[0]: fields}
			}
			return rootOpts.output(cmd).Schemas(schemas)
		},
	}
}
