package errors

// Code classifies a failure so invoking automation can decide whether
// to retry, re-run the full sequence, or give up.
type Code string

const (
	CodeUnknown          Code = "UNKNOWN"
	CodeInternal         Code = "INTERNAL_ERROR"
	CodeConfigValidation Code = "CONFIG_VALIDATION_ERROR"
	CodeConfigRead       Code = "CONFIG_READ_ERROR"
	CodeStateRead        Code = "STATE_READ_ERROR"
	CodeStateWrite       Code = "STATE_WRITE_ERROR"
	CodeStateParse       Code = "STATE_PARSE_ERROR"

	// CodeStateConflict: the environment's state lock is held by another
	// writer. Retryable with backoff, bounded attempts.
	CodeStateConflict Code = "STATE_CONFLICT"

	// CodeProviderRejected: the provider reported invalid parameters.
	// Fatal; retrying the same declaration cannot succeed.
	CodeProviderRejected Code = "PROVIDER_REJECTED"

	// CodeMissingOutput: apply succeeded but a declared output has no
	// corresponding value in applied state.
	CodeMissingOutput Code = "MISSING_OUTPUT"

	// CodeReadinessTimeout: the provisioned endpoint never accepted a
	// connection within the configured bound.
	CodeReadinessTimeout Code = "READINESS_TIMEOUT"

	CodeProviderAPI   Code = "PROVIDER_API_ERROR"
	CodeHandoffFailed Code = "HANDOFF_FAILED"
)

func (c Code) String() string {
	return string(c)
}
