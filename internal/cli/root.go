package cli

import (
	"context"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/charmed-kubernetes/jenkins-sub000/config"
)

// RootOptions holds the global flags and the state PersistentPreRunE builds
// from them.
type RootOptions struct {
	Flags config.Options

	// Wire assembles the collaborators of a run. Tests replace it.
	Wire func(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error)

	cfg    config.Config
	logger *slog.Logger
}

// NewRootCommand creates the root command for the cibuild CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{Wire: Wire})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cibuild",
		Short: "Charmed Kubernetes release engine",
		Long: `Build, publish and promote Charmed Kubernetes charms, bundles, snaps
and debs across release tracks and risk channels.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.New(opts.Flags)
			if err != nil {
				return err
			}
			opts.cfg = cfg
			opts.logger = newLogger(cmd.ErrOrStderr(), cfg)
			return nil
		},
	}

	f := cmd.PersistentFlags()
	f.StringVar(&opts.Flags.ArtifactList, "artifact-list", "", "path to the artifact list (env "+config.EnvArtifactList+")")
	f.StringSliceVar(&opts.Flags.FilterByTag, "filter-by-tag", nil, "only process artifacts carrying one of these tags")
	f.StringSliceVar(&opts.Flags.Tracks, "track", nil, "release tracks to process (default latest)")
	f.StringSliceVar(&opts.Flags.ToChannels, "to-channel", nil, "channels to release or promote to")
	f.StringVar(&opts.Flags.FromChannel, "from-channel", "", "channel to promote from")
	f.BoolVar(&opts.Flags.Force, "force", false, "build even when the store already has the version")
	f.BoolVar(&opts.Flags.DryRun, "dry-run", false, "log store and git mutations instead of performing them")
	f.StringVar(&opts.Flags.WorkDir, "workdir", "", "root for checkouts and build outputs (env "+config.EnvWorkDir+")")
	f.StringVar(&opts.Flags.NextTrack, "next-track", "", "track under development; prerelease versions build only here")
	f.StringSliceVar(&opts.Flags.Arches, "arch", nil, "restrict builds to these architectures")
	f.StringSliceVar(&opts.Flags.PlainHTTP, "plain-http-registry", nil, "image registries reached over plain HTTP")
	f.IntVar(&opts.Flags.Concurrency, "concurrency", config.DefaultConcurrency, "upstream sync workers")
	f.StringVar(&opts.Flags.RecordBucket, "record-bucket", "", "S3 bucket for run records")
	f.StringVar(&opts.Flags.RecordDir, "record-dir", "", "local directory for run records")
	f.StringVar(&opts.Flags.CredentialsSecret, "credentials-secret", "", "AWS Secrets Manager secret holding store credentials")
	f.StringVar(&opts.Flags.LogLevel, "log-level", "", "debug, info, warn or error (default info)")
	f.StringVar(&opts.Flags.LogFormat, "log-format", "", "text or json (default text)")

	cmd.AddCommand(NewBuildCommand(opts))
	cmd.AddCommand(NewBuildBundlesCommand(opts))
	cmd.AddCommand(NewPromoteCommand(opts))
	cmd.AddCommand(NewSyncCommand(opts))

	return cmd
}

// Execute runs the CLI and returns the process exit code.
func Execute(ctx context.Context, args []string, stderr io.Writer) int {
	cmd := NewRootCommand()
	cmd.SetArgs(args)
	cmd.SetErr(stderr)
	if err := cmd.ExecuteContext(ctx); err != nil {
		reportError(stderr, err)
		return 1
	}
	return 0
}

func newLogger(w io.Writer, cfg config.Config) *slog.Logger {
	hopts := &slog.HandlerOptions{Level: cfg.LogLevel()}
	if cfg.LogFormat() == config.FormatJSON {
		return slog.New(slog.NewJSONHandler(w, hopts))
	}
	return slog.New(slog.NewTextHandler(w, hopts))
}

