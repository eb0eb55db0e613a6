// Package config builds the immutable run configuration and loads the
// artifact list.
//
// A Config is assembled once from command-line Options with environment
// fallbacks and passed explicitly to every component. Its fields are
// unexported; read them through the accessor methods.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"

	"github.com/charmed-kubernetes/jenkins-sub000/errors"
	"github.com/charmed-kubernetes/jenkins-sub000/version"
)

// Environment variables consulted when the matching option is empty.
const (
	EnvArtifactList      = "CIBUILD_ARTIFACT_LIST"
	EnvWorkDir           = "CIBUILD_WORKDIR"
	EnvRecordBucket      = "CIBUILD_RECORD_BUCKET"
	EnvRecordDir         = "CIBUILD_RECORD_DIR"
	EnvRecordEndpoint    = "CIBUILD_RECORD_ENDPOINT"
	EnvCredentialsSecret = "CIBUILD_CREDENTIALS_SECRET"
	EnvLogLevel          = "CIBUILD_LOG_LEVEL"
	EnvLogFormat         = "CIBUILD_LOG_FORMAT"
)

// Log formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// DefaultConcurrency bounds the upstream sync pool.
const DefaultConcurrency = 8

// Options are the raw command-line values.
type Options struct {
	ArtifactList      string
	FilterByTag       []string
	Tracks            []string
	ToChannels        []string
	FromChannel       string
	Force             bool
	DryRun            bool
	WorkDir           string
	NextTrack         string
	Arches            []string
	PlainHTTP         []string
	Concurrency       int
	RecordBucket      string
	RecordDir         string
	RecordEndpoint    string
	CredentialsSecret string
	LogLevel          string
	LogFormat         string
}

// Config is the validated, immutable run configuration.
type Config struct {
	artifactList      string
	filterTags        []string
	tracks            []version.Track
	toChannels        []version.Channel
	fromChannel       *version.Channel
	force             bool
	dryRun            bool
	workDir           string
	nextTrack         *version.Track
	arches            []string
	plainHTTP         []string
	concurrency       int
	recordBucket      string
	recordDir         string
	recordEndpoint    string
	credentialsSecret string
	logLevel          slog.Level
	logFormat         string
}

// New validates opts and fills empty values from the process environment.
func New(opts Options) (Config, error) {
	return NewWithEnv(opts, os.LookupEnv)
}

// NewWithEnv is New with an explicit environment lookup.
func NewWithEnv(opts Options, lookup func(string) (string, bool)) (Config, error) {
	env := func(value, key string) string {
		if value != "" {
			return value
		}
		v, _ := lookup(key)
		return v
	}

	cfg := Config{
		artifactList:      env(opts.ArtifactList, EnvArtifactList),
		filterTags:        splitList(opts.FilterByTag),
		force:             opts.Force,
		dryRun:            opts.DryRun,
		workDir:           env(opts.WorkDir, EnvWorkDir),
		arches:            splitList(opts.Arches),
		plainHTTP:         splitList(opts.PlainHTTP),
		concurrency:       opts.Concurrency,
		recordBucket:      env(opts.RecordBucket, EnvRecordBucket),
		recordDir:         env(opts.RecordDir, EnvRecordDir),
		recordEndpoint:    env(opts.RecordEndpoint, EnvRecordEndpoint),
		credentialsSecret: env(opts.CredentialsSecret, EnvCredentialsSecret),
		logFormat:         strings.ToLower(env(opts.LogFormat, EnvLogFormat)),
	}

	var problems []string
	addf := func(format string, args ...interface{}) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if cfg.workDir == "" {
		cfg.workDir = filepath.Join(xdg.CacheHome, "cibuild")
	}
	if cfg.concurrency == 0 {
		cfg.concurrency = DefaultConcurrency
	}
	if cfg.concurrency < 0 {
		addf("concurrency must be positive, got %d", cfg.concurrency)
	}
	if cfg.logFormat == "" {
		cfg.logFormat = FormatText
	}
	if cfg.logFormat != FormatText && cfg.logFormat != FormatJSON {
		addf("unknown log format %q", cfg.logFormat)
	}
	if level := env(opts.LogLevel, EnvLogLevel); level != "" {
		if err := cfg.logLevel.UnmarshalText([]byte(level)); err != nil {
			addf("unknown log level %q", level)
		}
	}
	if cfg.recordBucket != "" && cfg.recordDir != "" {
		addf("record bucket and record dir are mutually exclusive")
	}

	for _, s := range splitList(opts.Tracks) {
		t, err := version.ParseTrack(s)
		if err != nil {
			addf("track: %v", err)
			continue
		}
		cfg.tracks = append(cfg.tracks, t)
	}
	for _, s := range splitList(opts.ToChannels) {
		ch, err := version.ParseChannel(s)
		if err != nil {
			addf("to-channel: %v", err)
			continue
		}
		cfg.toChannels = append(cfg.toChannels, ch)
	}
	if opts.FromChannel != "" {
		ch, err := version.ParseChannel(opts.FromChannel)
		if err != nil {
			addf("from-channel: %v", err)
		} else {
			cfg.fromChannel = &ch
		}
	}
	if opts.NextTrack != "" {
		t, err := version.ParseTrack(opts.NextTrack)
		if err != nil {
			addf("next-track: %v", err)
		} else {
			cfg.nextTrack = &t
		}
	}

	if len(problems) > 0 {
		return Config{}, errors.New(errors.CodeInvalidConfig,
			fmt.Sprintf("invalid configuration: %s", strings.Join(problems, "; ")))
	}
	return cfg, nil
}

// RequireArtifactList reports a configuration error when no artifact list
// was given.
func (c Config) RequireArtifactList() error {
	if c.artifactList == "" {
		return errors.New(errors.CodeInvalidConfig, "an artifact list is required (--artifact-list or "+EnvArtifactList+")")
	}
	return nil
}

// RequirePromotion reports a configuration error unless both promotion
// channels are set and the move is toward a more mature risk.
func (c Config) RequirePromotion() error {
	if c.fromChannel == nil || len(c.toChannels) == 0 {
		return errors.New(errors.CodeInvalidConfig, "promotion requires --from-channel and --to-channel")
	}
	for _, to := range c.toChannels {
		if c.fromChannel.Risk.MoreMatureThan(to.Risk) {
			return errors.Newf(errors.CodeIllegalTransition, "cannot promote from %s to less mature %s", c.fromChannel, to)
		}
	}
	return nil
}

func (c Config) ArtifactList() string { return c.artifactList }

// FilterTags returns the requested tag subset. Empty selects every artifact.
func (c Config) FilterTags() []string { return append([]string(nil), c.filterTags...) }

// Tracks returns the tracks requested for this run. Empty means latest.
func (c Config) Tracks() []version.Track { return append([]version.Track(nil), c.tracks...) }

func (c Config) ToChannels() []version.Channel { return append([]version.Channel(nil), c.toChannels...) }

// FromChannel returns the promotion source channel, if set.
func (c Config) FromChannel() (version.Channel, bool) {
	if c.fromChannel == nil {
		return version.Channel{}, false
	}
	return *c.fromChannel, true
}

func (c Config) Force() bool  { return c.force }
func (c Config) DryRun() bool { return c.dryRun }

// WorkDir is the root all checkouts and build outputs live under.
func (c Config) WorkDir() string { return c.workDir }

// NextTrack returns the track under development, if set. Prerelease
// upstream versions are only built for it.
func (c Config) NextTrack() (version.Track, bool) {
	if c.nextTrack == nil {
		return version.Track{}, false
	}
	return *c.nextTrack, true
}

// Arches restricts builds to the given architectures. Empty keeps each
// artifact's own list.
func (c Config) Arches() []string { return append([]string(nil), c.arches...) }

// PlainHTTPRegistries lists the image registries reached over plain HTTP.
func (c Config) PlainHTTPRegistries() []string { return append([]string(nil), c.plainHTTP...) }

func (c Config) Concurrency() int          { return c.concurrency }
func (c Config) RecordBucket() string      { return c.recordBucket }
func (c Config) RecordDir() string         { return c.recordDir }
func (c Config) RecordEndpoint() string    { return c.recordEndpoint }
func (c Config) CredentialsSecret() string { return c.credentialsSecret }
func (c Config) LogLevel() slog.Level      { return c.logLevel }
func (c Config) LogFormat() string         { return c.logFormat }

// Args returns the normalized argument set that identifies a run for the
// run record.
func (c Config) Args() []string {
	args := []string{"artifact-list=" + c.artifactList}
	for _, t := range c.filterTags {
		args = append(args, "tag="+t)
	}
	for _, t := range c.tracks {
		args = append(args, "track="+t.String())
	}
	for _, ch := range c.toChannels {
		args = append(args, "to="+ch.String())
	}
	if c.fromChannel != nil {
		args = append(args, "from="+c.fromChannel.String())
	}
	for _, a := range c.arches {
		args = append(args, "arch="+a)
	}
	if c.force {
		args = append(args, "force")
	}
	if c.dryRun {
		args = append(args, "dry-run")
	}
	return args
}

// splitList flattens repeated and comma-separated values.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
