package git

import (
	"errors"
	"fmt"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
)

// Sentinel errors that can be checked with errors.Is(). They wrap
// underlying go-git errors while providing a stable API for consumers.

// ErrAlreadyUpToDate is returned when a push results in no changes because
// the remote already has the commits.
var ErrAlreadyUpToDate = errors.New("already up to date")

// ErrAuthRequired is returned when an operation requires authentication
// but no credentials were provided or available.
var ErrAuthRequired = errors.New("authentication required")

// ErrAuthFailed is returned when authentication was attempted but failed.
var ErrAuthFailed = errors.New("authentication failed")

// ErrBranchExists is returned when attempting to create a branch that already exists
// and force creation was not requested.
var ErrBranchExists = errors.New("branch already exists")

// ErrBranchMissing is returned when attempting to operate on a branch that does not exist.
var ErrBranchMissing = errors.New("branch does not exist")

// ErrNotFastForward is returned when a non-forced push would overwrite
// remote changes.
var ErrNotFastForward = errors.New("not a fast-forward")

// ErrInvalidRef is returned when a reference name, revision or option is
// malformed.
var ErrInvalidRef = errors.New("invalid reference")

// ErrResolveFailed is returned when a revision specification cannot be resolved
// to a commit hash.
var ErrResolveFailed = errors.New("cannot resolve revision")

// ErrEmptyCommit is returned when a commit would contain no changes.
var ErrEmptyCommit = errors.New("nothing to commit")

// WrapError wraps an error with additional context while preserving
// the ability to check against sentinel errors using errors.Is().
func WrapError(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// WrapErrorf wraps an error with formatted additional context while preserving
// the ability to check against sentinel errors using errors.Is().
func WrapErrorf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

func isMissingRef(err error) bool {
	var noMatch git.NoMatchingRefSpecError
	return errors.As(err, &noMatch) || errors.Is(err, plumbing.ErrReferenceNotFound)
}

// classifyTransportError maps go-git transport failures to sentinels.
func classifyTransportError(err error, msg string) error {
	switch {
	case errors.Is(err, transport.ErrAuthenticationRequired):
		return WrapError(ErrAuthRequired, msg)
	case errors.Is(err, transport.ErrAuthorizationFailed):
		return WrapError(ErrAuthFailed, msg)
	case errors.Is(err, git.NoErrAlreadyUpToDate):
		return ErrAlreadyUpToDate
	case errors.Is(err, git.ErrNonFastForwardUpdate):
		return WrapError(ErrNotFastForward, msg)
	case errors.Is(err, git.ErrRemoteNotFound):
		return WrapError(ErrResolveFailed, msg)
	}
	return WrapError(err, msg)
}
