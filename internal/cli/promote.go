package cli

import (
	"github.com/spf13/cobra"

	"github.com/charmed-kubernetes/jenkins-sub000/batch"
)

// NewPromoteCommand creates the promote command.
func NewPromoteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "promote",
		Short: "Promote released revisions to a more mature channel",
		Long: `Release the revisions currently in --from-channel to every --to-channel
for each selected artifact and architecture. Channels outside an
artifact's channel range are skipped.`,
		Example: "  cibuild promote --filter-by-tag k8s --from-channel 1.31/candidate --to-channel 1.31/stable",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := rootOpts.cfg.RequirePromotion(); err != nil {
				return err
			}
			ctx := cmd.Context()
			app, err := rootOpts.Wire(ctx, rootOpts.cfg, rootOpts.logger)
			if err != nil {
				return err
			}
			from, _ := rootOpts.cfg.FromChannel()
			summary, err := app.Batch.Promote(ctx, app.Artifacts, from, rootOpts.cfg.ToChannels(),
				newRequest(rootOpts.cfg, batch.CommandPromote))
			printSummary(cmd.OutOrStdout(), summary)
			return err
		},
	}
}
