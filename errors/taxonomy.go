package errors

import (
	"fmt"
	"strings"
)

// NewParseError reports a malformed version, track or channel string.
func NewParseError(kind, input string, cause error) error {
	return &PlatformError{
		Code:    CodeParse,
		Message: fmt.Sprintf("invalid %s %q", kind, input),
		Cause:   cause,
	}
}

// NewSourceFetchError reports a clone or checkout failure for an artifact.
func NewSourceFetchError(artifact, message string, cause error) error {
	return &PlatformError{
		Code:    CodeSourceFetch,
		Message: message,
		Context: map[string]interface{}{"artifact": artifact},
		Cause:   cause,
	}
}

// NewStoreAPIError reports a failed store operation for an entity.
func NewStoreAPIError(entity, op string, cause error) error {
	return &PlatformError{
		Code:    CodeStoreAPI,
		Message: fmt.Sprintf("store %s failed", op),
		Context: map[string]interface{}{"entity": entity},
		Cause:   cause,
	}
}

// NewGuardrailViolation reports a track name that matches none of the
// store's guardrail patterns.
func NewGuardrailViolation(entity, track string, patterns []string) error {
	return &PlatformError{
		Code:    CodeGuardrail,
		Message: fmt.Sprintf("track %q matches no guardrail %v", track, patterns),
		Context: map[string]interface{}{"entity": entity},
	}
}

// BuildToolError is returned when a build or store tool exits non-zero.
// It keeps the tool's stderr for the failure summary.
type BuildToolError struct {
	Tool     string
	Args     []string
	ExitCode int
	Stderr   string
	Cause    error
}

// Error implements the error interface.
func (e *BuildToolError) Error() string {
	msg := fmt.Sprintf("%s exited with code %d", e.Tool, e.ExitCode)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + lastLines(s, 5)
	}
	return msg
}

// Unwrap returns a PlatformError carrying CodeBuildTool so that HasCode works
// on BuildToolError values, followed by the original cause.
func (e *BuildToolError) Unwrap() []error {
	errs := []error{&PlatformError{Code: CodeBuildTool, Message: e.Tool}}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}

func lastLines(s string, n int) string {
	lines := strings.Split(s, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, " | ")
}

// AggregateBatchFailure is raised once at the end of a batch when one or
// more artifacts failed. It names every failed artifact.
type AggregateBatchFailure struct {
	// Failed maps artifact name to the error that failed it, in failure order
	// through Names.
	Failed map[string]error
	Names  []string
}

// NewAggregateBatchFailure returns an empty aggregate.
func NewAggregateBatchFailure() *AggregateBatchFailure {
	return &AggregateBatchFailure{Failed: make(map[string]error)}
}

// Add records a failed artifact. A second failure for the same name is joined
// to the first.
func (a *AggregateBatchFailure) Add(name string, err error) {
	if prev, ok := a.Failed[name]; ok {
		a.Failed[name] = Join(prev, err)
		return
	}
	a.Failed[name] = err
	a.Names = append(a.Names, name)
}

// Len returns the number of failed artifacts.
func (a *AggregateBatchFailure) Len() int {
	return len(a.Names)
}

// ErrOrNil returns a if any artifact failed, nil otherwise.
func (a *AggregateBatchFailure) ErrOrNil() error {
	if a == nil || a.Len() == 0 {
		return nil
	}
	return a
}

// Error implements the error interface.
func (a *AggregateBatchFailure) Error() string {
	return fmt.Sprintf("%d artifact(s) failed: %s", len(a.Names), strings.Join(a.Names, ", "))
}

// Unwrap exposes the batch code and every per-artifact error.
func (a *AggregateBatchFailure) Unwrap() []error {
	errs := make([]error, 0, len(a.Names)+1)
	errs = append(errs, &PlatformError{Code: CodeBatchFailed, Message: "batch failed"})
	for _, n := range a.Names {
		errs = append(errs, a.Failed[n])
	}
	return errs
}
