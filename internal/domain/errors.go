package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the domain layer. Every failure crossing a component
// boundary is classified into exactly one of these before it is acted on.
var (
	// ErrOverloaded marks a transient overload: the callee is rate-limiting
	// the caller and the call may succeed after backoff.
	ErrOverloaded = fmt.Errorf("transient overload")

	ErrConnection   = fmt.Errorf("connection failed")
	ErrTimeout      = fmt.Errorf("operation timed out")
	ErrProtocol     = fmt.Errorf("protocol error")
	ErrInvalidInput = fmt.Errorf("invalid input")
	ErrAuthInvalid  = fmt.Errorf("authentication failed")

	ErrAgentNotFound = fmt.Errorf("agent not found")

	// ErrDuplicateRequest is a defined no-op outcome, not a failure: the
	// identical request was already dispatched once.
	ErrDuplicateRequest = fmt.Errorf("duplicate request")

	ErrMaxIterations = fmt.Errorf("engine reached max iterations")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op     string // operation name (e.g., "Invoker.Invoke")
	Err    error  // underlying sentinel or wrapped error
	Detail string // human-readable detail
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// IsTransientOverload reports whether err is a transient overload that may
// succeed on retry with backoff. Every other classification is terminal for
// the call that observed it.
func IsTransientOverload(err error) bool {
	return errors.Is(err, ErrOverloaded)
}

// ErrorCode is a machine-parseable error category for monitoring.
type ErrorCode string

const (
	CodeUnknown          ErrorCode = "UNKNOWN"
	CodeOverloaded       ErrorCode = "OVERLOADED"
	CodeConnection       ErrorCode = "CONNECTION"
	CodeTimeout          ErrorCode = "TIMEOUT"
	CodeProtocol         ErrorCode = "PROTOCOL"
	CodeInvalidInput     ErrorCode = "INVALID_INPUT"
	CodeAuthInvalid      ErrorCode = "AUTH_INVALID"
	CodeAgentNotFound    ErrorCode = "AGENT_NOT_FOUND"
	CodeDuplicateRequest ErrorCode = "DUPLICATE_REQUEST"
	CodeMaxIterations    ErrorCode = "MAX_ITERATIONS"
)

// errorCodeMap maps sentinel errors to their machine-parseable codes.
var errorCodeMap = map[error]ErrorCode{
	ErrOverloaded:       CodeOverloaded,
	ErrConnection:       CodeConnection,
	ErrTimeout:          CodeTimeout,
	ErrProtocol:         CodeProtocol,
	ErrInvalidInput:     CodeInvalidInput,
	ErrAuthInvalid:      CodeAuthInvalid,
	ErrAgentNotFound:    CodeAgentNotFound,
	ErrDuplicateRequest: CodeDuplicateRequest,
	ErrMaxIterations:    CodeMaxIterations,
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// It unwraps DomainError and uses errors.Is to match sentinel errors.
// Returns CodeUnknown if no matching sentinel is found.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}

	if code, ok := errorCodeMap[err]; ok {
		return code
	}

	var de *DomainError
	if errors.As(err, &de) {
		if code, ok := errorCodeMap[de.Err]; ok {
			return code
		}
	}

	for sentinel, code := range errorCodeMap {
		if errors.Is(err, sentinel) {
			return code
		}
	}

	return CodeUnknown
}
