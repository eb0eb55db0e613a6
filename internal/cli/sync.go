package cli

import (
	"github.com/spf13/cobra"

	"github.com/charmed-kubernetes/jenkins-sub000/batch"
)

// NewSyncCommand creates the sync-upstream command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync-upstream",
		Short: "Create missing release branches from upstream tags",
		Long: `For every selected artifact with an upstream repository, create a
downstream branch for each stable upstream tag newer than its starting
version that has no branch yet. Nothing is built.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := rootOpts.Wire(ctx, rootOpts.cfg, rootOpts.logger)
			if err != nil {
				return err
			}
			summary, err := app.Batch.Sync(ctx, app.Artifacts, newRequest(rootOpts.cfg, batch.CommandSync))
			printSummary(cmd.OutOrStdout(), summary)
			return err
		},
	}
}
