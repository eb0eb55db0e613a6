package pipeline

import (
	"path"
	"strings"

	"github.com/charmed-kubernetes/jenkins-sub000/domain"
	"github.com/charmed-kubernetes/jenkins-sub000/version"
)

// Job is one pipeline run of an artifact for a track. Strategies fill in
// Outputs and Resources as the run progresses.
type Job struct {
	Artifact domain.Artifact
	Track    version.Track

	// Version is the upstream version being built. Zero for unversioned
	// artifacts.
	Version version.Version

	// Channels are the destination channels. Those outside the artifact's
	// range are dropped at release.
	Channels []version.Channel

	// Dir is the job's work directory, relative to the pipeline filesystem.
	Dir string

	Outputs   []domain.BuildOutput
	Resources []domain.Resource
}

// NewJob returns a Job working under root/<artifact>/<track>.
func NewJob(a domain.Artifact, track version.Track, v version.Version, channels []version.Channel, root string) *Job {
	return &Job{
		Artifact: a,
		Track:    track,
		Version:  v,
		Channels: channels,
		Dir:      path.Join(root, a.Name, track.String()),
	}
}

// SourceDir is where the downstream repository is cloned.
func (j *Job) SourceDir() string {
	return path.Join(j.Dir, "src")
}

// BuildDir is the artifact source inside the clone.
func (j *Job) BuildDir() string {
	return path.Join(j.SourceDir(), j.Artifact.Subdir)
}

// Branch renders the artifact's branch pattern for the job. An empty
// result means the remote default branch.
func (j *Job) Branch() string {
	return RenderBranch(j.Artifact.Branch, j.Track, j.Version)
}

// RenderBranch substitutes {track} and {version} in pattern.
func RenderBranch(pattern string, track version.Track, v version.Version) string {
	return strings.NewReplacer(
		"{track}", track.String(),
		"{version}", v.String(),
	).Replace(pattern)
}

// ReleaseChannels returns the job's channels inside the artifact's range.
func (j *Job) ReleaseChannels() []version.Channel {
	return j.Artifact.Range.Filter(j.Channels)
}
