package errors

// ErrorCategory classifies errors by their nature and retry semantics.
type ErrorCategory string

// Error categories define how dispatch failures should be handled.
const (
	// CategoryTransient indicates temporary failures where retry may succeed.
	// Examples: dispatch timeouts, inactive agents that may come back.
	CategoryTransient ErrorCategory = "transient"

	// CategoryPermanent indicates failures where retry will not help.
	// Examples: unroutable messages, invalid input.
	CategoryPermanent ErrorCategory = "permanent"

	// CategoryIsolation indicates the target is fenced off by a circuit
	// breaker. Retry becomes useful only after the recovery timeout.
	CategoryIsolation ErrorCategory = "isolation"

	// CategoryInternal indicates unexpected errors or bus bugs.
	CategoryInternal ErrorCategory = "internal"
)

// String returns the string representation of the category.
func (c ErrorCategory) String() string {
	return string(c)
}

// IsRetryable returns true if errors in this category may succeed on retry.
func (c ErrorCategory) IsRetryable() bool {
	switch c {
	case CategoryTransient, CategoryIsolation:
		return true
	default:
		return false
	}
}

// ErrorCode identifies specific failure types at the dispatch boundary.
type ErrorCode string

// Error codes for bus failure scenarios.
const (
	// Dispatch failures
	ErrCodeCircuitOpen     ErrorCode = "CIRCUIT_OPEN"     // Target agent is isolated by its breaker
	ErrCodeDispatchTimeout ErrorCode = "DISPATCH_TIMEOUT" // Agent exceeded the dispatch bound
	ErrCodeUnroutable      ErrorCode = "UNROUTABLE"       // No recipient, role, or built-in matched
	ErrCodeHandlerFailed   ErrorCode = "HANDLER_FAILED"   // Handler raised or returned an invalid result
	ErrCodeAgentInactive   ErrorCode = "AGENT_INACTIVE"   // Agent is registered but not accepting work

	// General
	ErrCodeNotFound     ErrorCode = "NOT_FOUND"     // Resource does not exist
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT" // Malformed or invalid input
	ErrCodeCapacity     ErrorCode = "CAPACITY"      // Bounded store is full
	ErrCodeCanceled     ErrorCode = "CANCELED"      // Operation was canceled
	ErrCodeShutdown     ErrorCode = "SHUTDOWN"      // Bus has been halted
	ErrCodeInternal     ErrorCode = "INTERNAL"      // Unexpected internal error
)

// String returns the string representation of the error code.
func (c ErrorCode) String() string {
	return string(c)
}

// DefaultCategory returns the default category for an error code.
func (c ErrorCode) DefaultCategory() ErrorCategory {
	switch c {
	case ErrCodeDispatchTimeout, ErrCodeAgentInactive:
		return CategoryTransient
	case ErrCodeCircuitOpen:
		return CategoryIsolation
	case ErrCodeUnroutable, ErrCodeHandlerFailed, ErrCodeNotFound,
		ErrCodeInvalidInput, ErrCodeCapacity, ErrCodeCanceled, ErrCodeShutdown:
		return CategoryPermanent
	default:
		return CategoryInternal
	}
}

// DefaultRetryable returns whether this error code is typically retryable.
func (c ErrorCode) DefaultRetryable() bool {
	return c.DefaultCategory().IsRetryable()
}

// codeDescriptions provides human-readable descriptions for error codes.
var codeDescriptions = map[ErrorCode]string{
	ErrCodeCircuitOpen:     "circuit breaker is open",
	ErrCodeDispatchTimeout: "dispatch timed out",
	ErrCodeUnroutable:      "no route for message",
	ErrCodeHandlerFailed:   "agent handler failed",
	ErrCodeAgentInactive:   "agent is inactive",
	ErrCodeNotFound:        "resource not found",
	ErrCodeInvalidInput:    "invalid input provided",
	ErrCodeCapacity:        "capacity exceeded",
	ErrCodeCanceled:        "operation canceled",
	ErrCodeShutdown:        "bus has been shut down",
	ErrCodeInternal:        "internal error",
}

// Description returns a human-readable description for the error code.
func (c ErrorCode) Description() string {
	if desc, ok := codeDescriptions[c]; ok {
		return desc
	}
	return "unknown error"
}
