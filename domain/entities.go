package domain

import (
	"time"

	"github.com/charmed-kubernetes/jenkins-sub000/version"
)

// Artifact is one buildable unit from the artifact list. Artifacts are
// loaded once at start and never mutated.
type Artifact struct {
	// Name is the store entity name (charm, bundle, snap or package name).
	Name string `json:"name" yaml:"name"`

	// Kind selects the build strategy.
	Kind ArtifactKind `json:"kind" yaml:"kind"`

	// Downstream is the clone URL of the repository the artifact is built from.
	Downstream string `json:"downstream" yaml:"downstream"`

	// Upstream is the clone URL of the source project whose tags drive
	// versioned builds. Empty for unversioned artifacts.
	Upstream string `json:"upstream,omitempty" yaml:"upstream,omitempty"`

	// Branch is the downstream branch to build. It may contain the
	// placeholders {track} and {version}.
	Branch string `json:"branch,omitempty" yaml:"branch,omitempty"`

	// Subdir is the path of the artifact source inside the checkout.
	Subdir string `json:"subdir,omitempty" yaml:"subdir,omitempty"`

	// StartingVersion is the oldest upstream version mirrored downstream.
	StartingVersion string `json:"starting_version,omitempty" yaml:"starting_version,omitempty"`

	// Range bounds the channels the artifact may be released to.
	Range version.ChannelRange `json:"-" yaml:"-"`

	// Tags are the support tags used to filter the artifact list.
	Tags []string `json:"tags,omitempty" yaml:"tags,omitempty"`

	// Architectures to build and release. Empty means amd64 only.
	Architectures []string `json:"architectures,omitempty" yaml:"architectures,omitempty"`

	// Resources declares how each resource is produced. Resources not
	// listed reuse their latest uploaded revision.
	Resources []ResourceSpec `json:"resources,omitempty" yaml:"resources,omitempty"`

	// Templates are rendered into each new downstream branch by the
	// upstream syncer.
	Templates []TemplateSpec `json:"templates,omitempty" yaml:"templates,omitempty"`

	// BuildScript overrides the detected build tool when set.
	BuildScript string `json:"build_script,omitempty" yaml:"build_script,omitempty"`

	// PPA is the Launchpad archive debs are uploaded to, e.g.
	// "ppa:k8s-maintainers/1.32".
	PPA string `json:"ppa,omitempty" yaml:"ppa,omitempty"`
}

// Versioned reports whether the artifact follows an upstream source.
func (a Artifact) Versioned() bool {
	return a.Upstream != ""
}

// Arches returns the architectures to build, defaulting to amd64.
func (a Artifact) Arches() []string {
	if len(a.Architectures) == 0 {
		return []string{"amd64"}
	}
	return a.Architectures
}

// HasTag reports whether the artifact carries tag.
func (a Artifact) HasTag(tag string) bool {
	for _, t := range a.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// ResourceSpec declares how one resource is produced.
type ResourceSpec struct {
	// Name is the resource name from the charm metadata.
	Name string `json:"name" yaml:"name"`

	// Kind is file or oci-image.
	Kind ResourceKind `json:"kind" yaml:"kind"`

	// Image is the upstream image reference for oci-image resources. It may
	// contain the {version} placeholder.
	Image string `json:"image,omitempty" yaml:"image,omitempty"`

	// Script builds a file resource. It runs in the checkout and must write
	// Path.
	Script string `json:"script,omitempty" yaml:"script,omitempty"`

	// Path is the file produced by Script, relative to the checkout.
	Path string `json:"path,omitempty" yaml:"path,omitempty"`
}

// TemplateSpec renders Source into Destination, both relative to the
// downstream checkout.
type TemplateSpec struct {
	Source      string `json:"source" yaml:"source"`
	Destination string `json:"destination" yaml:"destination"`
}

// UpstreamRef is a tag or branch of a source repository with its parsed
// version.
type UpstreamRef struct {
	Name    string          `json:"name"`
	Version version.Version `json:"version"`
}

// ChannelMembership records that a revision was released to a channel.
// Promoted marks the revision as the current head of the channel.
type ChannelMembership struct {
	Channel  version.Channel `json:"channel"`
	Promoted bool            `json:"promoted"`
}

// Revision is an immutable store revision. Numbers are assigned in upload
// order and never reused.
type Revision struct {
	Number        int                 `json:"number"`
	Version       version.Version     `json:"version"`
	Created       time.Time           `json:"created"`
	Architectures []string            `json:"architectures,omitempty"`
	Bases         []string            `json:"bases,omitempty"`
	Channels      []ChannelMembership `json:"channels,omitempty"`
}

// InChannel reports whether r was released to ch.
func (r Revision) InChannel(ch version.Channel) bool {
	for _, m := range r.Channels {
		if m.Channel == ch {
			return true
		}
	}
	return false
}

// HasArch reports whether r was built for arch. Revisions with no recorded
// architecture match any arch.
func (r Revision) HasArch(arch string) bool {
	if len(r.Architectures) == 0 || arch == "" {
		return true
	}
	for _, a := range r.Architectures {
		if a == arch || a == "all" {
			return true
		}
	}
	return false
}

// Resource is an uploaded resource attached to a build output.
type Resource struct {
	Name     string       `json:"name"`
	Kind     ResourceKind `json:"kind"`
	Revision int          `json:"revision"`
}

// BuildOutput is one produced file. Arch and Base name its first platform;
// Arches lists every architecture the file serves.
type BuildOutput struct {
	Path      string     `json:"path"`
	Arch      string     `json:"arch"`
	Base      string     `json:"base,omitempty"`
	Arches    []string   `json:"arches,omitempty"`
	Revision  int        `json:"revision,omitempty"`
	Resources []Resource `json:"resources,omitempty"`
}
