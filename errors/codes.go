package errors

// ErrorCode represents a machine-readable error code.
type ErrorCode string

// Pipeline failure taxonomy.
const (
	// ErrCodeConfiguration indicates the run was requested with an unusable
	// configuration, e.g. diarization without a credential.
	ErrCodeConfiguration ErrorCode = "CONFIGURATION_ERROR"
	// ErrCodeCapabilityUnavailable indicates a required model, sidecar or
	// binary is not installed or not reachable.
	ErrCodeCapabilityUnavailable ErrorCode = "CAPABILITY_UNAVAILABLE"
	// ErrCodeExternalTool indicates an external process exited non-zero.
	ErrCodeExternalTool ErrorCode = "EXTERNAL_TOOL_FAILURE"
	// ErrCodeCanceled indicates the caller stopped the run between steps.
	ErrCodeCanceled ErrorCode = "CANCELED"
)

// Request and resource errors
const (
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
	ErrCodeNotFound     ErrorCode = "NOT_FOUND"
	ErrCodeConflict     ErrorCode = "CONFLICT"
)

// Internal errors
const (
	ErrCodeInternal        ErrorCode = "INTERNAL_ERROR"
	ErrCodeExternalService ErrorCode = "EXTERNAL_SERVICE_ERROR"
)

// Retryable codes are retried by the sidecar clients (see package resilience)
// and tell the host whether offering the user a retry is worthwhile.
var retryableCodes = map[ErrorCode]bool{
	ErrCodeExternalService: true,
	ErrCodeCanceled:        false,
	ErrCodeExternalTool:    false,
}

// IsRetryableCode returns true if the error code indicates a retryable error.
func IsRetryableCode(code ErrorCode) bool {
	return retryableCodes[code]
}
