// Package errors provides the error handling foundation for the release engine.
// It extends Go's standard error handling with structured error codes and
// context preservation so that per-artifact failures can be classified,
// logged with their identity, and aggregated at the end of a batch.
package errors

// ErrorCode represents a specific error condition in the release engine.
// Error codes are string-based for debuggability and natural JSON serialization.
type ErrorCode string

const (
	// Version and configuration errors.

	// CodeParse indicates a version, track or channel string could not be parsed.
	// Parse errors are local and never fatal to a batch.
	CodeParse ErrorCode = "PARSE_ERROR"

	// CodeInvalidInput indicates the provided input is invalid or malformed.
	CodeInvalidInput ErrorCode = "INVALID_INPUT"

	// CodeInvalidConfig indicates a configuration error prevents the operation.
	CodeInvalidConfig ErrorCode = "INVALID_CONFIGURATION"

	// CodeSchemaFailed indicates the data failed schema validation.
	CodeSchemaFailed ErrorCode = "SCHEMA_VALIDATION_FAILED"

	// Per-artifact pipeline errors.

	// CodeSourceFetch indicates a clone or checkout failed, or the checkout
	// directory already existed.
	CodeSourceFetch ErrorCode = "SOURCE_FETCH_FAILED"

	// CodeBuildTool indicates a build tool exited non-zero.
	CodeBuildTool ErrorCode = "BUILD_TOOL_FAILED"

	// CodeStoreAPI indicates a store call (upload, release, listing) failed.
	CodeStoreAPI ErrorCode = "STORE_API_ERROR"

	// CodeGuardrail indicates a track name matched none of the store's
	// guardrail patterns.
	CodeGuardrail ErrorCode = "GUARDRAIL_VIOLATION"

	// CodeIllegalTransition indicates a pipeline step was run out of order.
	CodeIllegalTransition ErrorCode = "ILLEGAL_STATE_TRANSITION"

	// Batch errors.

	// CodeBatchFailed indicates one or more artifacts failed in a batch.
	CodeBatchFailed ErrorCode = "BATCH_FAILED"

	// Resource errors.

	// CodeNotFound indicates a requested resource does not exist.
	CodeNotFound ErrorCode = "NOT_FOUND"

	// CodeAlreadyExists indicates a resource already exists and cannot be created again.
	CodeAlreadyExists ErrorCode = "ALREADY_EXISTS"

	// Permission errors.

	// CodeUnauthorized indicates the request lacks valid authentication credentials.
	CodeUnauthorized ErrorCode = "UNAUTHORIZED"

	// Infrastructure errors.

	// CodeNetwork indicates a network operation failed.
	CodeNetwork ErrorCode = "NETWORK_ERROR"

	// CodeTimeout indicates an operation exceeded its time limit.
	CodeTimeout ErrorCode = "TIMEOUT"

	// System errors.

	// CodeInternal indicates an internal error occurred.
	CodeInternal ErrorCode = "INTERNAL_ERROR"

	// CodeNotImplemented indicates the requested functionality is not implemented.
	CodeNotImplemented ErrorCode = "NOT_IMPLEMENTED"

	// CodeUnknown indicates an unknown or unclassified error occurred.
	CodeUnknown ErrorCode = "UNKNOWN"
)

// String returns the string representation of the ErrorCode.
func (c ErrorCode) String() string {
	return string(c)
}
