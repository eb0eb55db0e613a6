package domain

import "time"

// Transition records one pipeline state change.
type Transition struct {
	// From is the state before the change.
	From PipelineState `json:"from"`

	// To is the state after the change.
	To PipelineState `json:"to"`

	// At is when the change happened.
	At time.Time `json:"at"`

	// Error is the failure message when To is StateFailed.
	Error string `json:"error,omitempty"`
}

// ArtifactResult summarises what a run did with one artifact.
type ArtifactResult struct {
	// RunID identifies the batch run.
	RunID string `json:"run_id"`

	// Artifact is the artifact name.
	Artifact string `json:"artifact"`

	// Track is the track the pipeline ran for, if versioned.
	Track string `json:"track,omitempty"`

	// State is the final pipeline state.
	State PipelineState `json:"state"`

	// Skipped is true when reconciliation decided no build was needed.
	Skipped bool `json:"skipped,omitempty"`

	// Reason is the reconciliation reason.
	Reason string `json:"reason,omitempty"`

	// Outputs are the produced and uploaded files.
	Outputs []BuildOutput `json:"outputs,omitempty"`

	// Transitions is the state history.
	Transitions []Transition `json:"transitions,omitempty"`

	// Error is the failure message, if any.
	Error string `json:"error,omitempty"`
}
