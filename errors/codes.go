package errors

// ErrorCode represents a machine-readable error code.
type ErrorCode string

// Caller errors
const (
	// ErrCodeInvalidArgument indicates a bad capacity, batch size, count or stream.
	ErrCodeInvalidArgument ErrorCode = "INVALID_ARGUMENT"
	// ErrCodeNotSupported indicates an operation the stream cannot perform.
	ErrCodeNotSupported ErrorCode = "NOT_SUPPORTED"
)

// Lifecycle errors
const (
	// ErrCodeCancelled indicates cooperative shutdown. It is not a defect.
	ErrCodeCancelled ErrorCode = "CANCELLED"
	// ErrCodeDisposed indicates use of a resource after it was closed.
	ErrCodeDisposed ErrorCode = "DISPOSED"
)

// Execution errors
const (
	// ErrCodeStageFailure indicates a transform stage (hash, cipher, codec) failed.
	ErrCodeStageFailure ErrorCode = "STAGE_FAILURE"
	// ErrCodeSinkFailure indicates a broadcast sink failed.
	ErrCodeSinkFailure ErrorCode = "SINK_FAILURE"
	// ErrCodeInternal indicates a panic or an otherwise unexpected failure.
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

var retryableCodes = map[ErrorCode]bool{
	ErrCodeCancelled:   true,
	ErrCodeSinkFailure: true,
}

// IsRetryableCode returns true if running the same work again may succeed.
func IsRetryableCode(code ErrorCode) bool {
	return retryableCodes[code]
}
