package cli

import (
	"github.com/spf13/cobra"

	"github.com/charmed-kubernetes/jenkins-sub000/batch"
	"github.com/charmed-kubernetes/jenkins-sub000/config"
	"github.com/charmed-kubernetes/jenkins-sub000/domain"
)

// NewBuildCommand creates the build command.
func NewBuildCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "build",
		Short: "Build and release charms, snaps and debs that are behind upstream",
		Long: `Sync upstream release branches, then build and release every selected
charm, snap and deb whose published version on a requested track is older
than upstream. Bundles are built by build-bundles.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(cmd, rootOpts, batch.CommandBuild, func(a domain.Artifact) bool {
				return a.Kind != domain.KindBundle
			})
		},
	}
}

// NewBuildBundlesCommand creates the build-bundles command.
func NewBuildBundlesCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "build-bundles",
		Short: "Build and release bundles",
		Long: `Build every selected bundle for the requested tracks, pin its charms to
the track's channel and release it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(cmd, rootOpts, batch.CommandBundles, func(a domain.Artifact) bool {
				return a.Kind == domain.KindBundle
			})
		},
	}
}

func runBuild(cmd *cobra.Command, opts *RootOptions, command string, keep func(domain.Artifact) bool) error {
	ctx := cmd.Context()
	app, err := opts.Wire(ctx, opts.cfg, opts.logger)
	if err != nil {
		return err
	}
	summary, err := app.Batch.Build(ctx, selectArtifacts(app.Artifacts, keep), newRequest(opts.cfg, command))
	printSummary(cmd.OutOrStdout(), summary)
	return err
}

func newRequest(cfg config.Config, command string) batch.Request {
	return batch.Request{
		Command:  command,
		Args:     cfg.Args(),
		Tags:     cfg.FilterTags(),
		Tracks:   cfg.Tracks(),
		Channels: cfg.ToChannels(),
		Arches:   cfg.Arches(),
	}
}

func selectArtifacts(artifacts []domain.Artifact, keep func(domain.Artifact) bool) []domain.Artifact {
	var out []domain.Artifact
	for _, a := range artifacts {
		if keep(a) {
			out = append(out, a)
		}
	}
	return out
}
