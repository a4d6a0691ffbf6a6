package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

const longDescription = `bookforge is a generation gateway for long-form book writing.

It fronts one streaming and two batch model backends behind a single
request shape, relays generations as server-sent events or JSON, and
recovers truncated table-of-contents answers.`

// Execute runs the CLI dispatcher with the provided arguments.
func Execute(ctx context.Context, args []string) error {
	root := newRootCmd()
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "bookforge",
		Short:         "Generation gateway for book writing",
		Long:          longDescription,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newServeCmd())
	root.AddCommand(newGenerateCmd())
	root.AddCommand(newRepairCmd())
	return root
}
