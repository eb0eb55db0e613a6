package domain

// ArtifactKind selects how an artifact is built and published.
type ArtifactKind string

const (
	// KindCharm is a charm published to Charmhub.
	KindCharm ArtifactKind = "charm"

	// KindBundle is a bundle published to Charmhub.
	KindBundle ArtifactKind = "bundle"

	// KindSnap is a snap published to the Snap Store.
	KindSnap ArtifactKind = "snap"

	// KindDeb is a debian source package uploaded to a Launchpad PPA.
	KindDeb ArtifactKind = "deb"
)

// String returns the string representation of the ArtifactKind.
func (k ArtifactKind) String() string {
	return string(k)
}

// Valid reports whether k is a known kind.
func (k ArtifactKind) Valid() bool {
	switch k {
	case KindCharm, KindBundle, KindSnap, KindDeb:
		return true
	}
	return false
}

// ResourceKind is the payload type of a charm resource.
type ResourceKind string

const (
	// ResourceFile is a file resource built by a script.
	ResourceFile ResourceKind = "file"

	// ResourceOCIImage is a container image resource.
	ResourceOCIImage ResourceKind = "oci-image"
)

// String returns the string representation of the ResourceKind.
func (k ResourceKind) String() string {
	return string(k)
}

// PipelineState is the position of one artifact in its build pipeline.
type PipelineState string

const (
	StatePending           PipelineState = "PENDING"
	StateCloned            PipelineState = "CLONED"
	StateBuilt             PipelineState = "BUILT"
	StatePushed            PipelineState = "PUSHED"
	StateResourcesAttached PipelineState = "RESOURCES_ATTACHED"
	StateReleased          PipelineState = "RELEASED"
	StateDone              PipelineState = "DONE"

	// StateFailed is reachable from every non-terminal state.
	StateFailed PipelineState = "FAILED"
)

// String returns the string representation of the PipelineState.
func (s PipelineState) String() string {
	return string(s)
}

// Terminal reports whether no further transition is possible from s.
func (s PipelineState) Terminal() bool {
	return s == StateDone || s == StateFailed
}
