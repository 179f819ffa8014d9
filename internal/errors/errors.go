package errors

import "fmt"

// ErrorCode represents a TopicFlow error code.
type ErrorCode string

const (
	ErrInvalidRequest     ErrorCode = "INVALID_REQUEST"      // 400
	ErrTranscriptTooShort ErrorCode = "TRANSCRIPT_TOO_SHORT" // 400
	ErrUnauthorized       ErrorCode = "UNAUTHORIZED"         // 401
	ErrQuotaExceeded      ErrorCode = "QUOTA_EXCEEDED"       // 402
	ErrForbidden          ErrorCode = "FORBIDDEN"            // 403
	ErrNotFound           ErrorCode = "NOT_FOUND"            // 404
	ErrEmailExists        ErrorCode = "EMAIL_ALREADY_EXISTS" // 409
	ErrCancelled          ErrorCode = "CANCELLED"            // 499
	ErrInternal           ErrorCode = "INTERNAL"             // 500
	ErrUpstream           ErrorCode = "UPSTREAM"             // 502
)

// TopicFlowError represents a structured error with code, status, and details.
type TopicFlowError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
}

// Error implements the error interface.
func (e *TopicFlowError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *TopicFlowError {
	return &TopicFlowError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewTranscriptTooShort creates a 400 error for a transcript below the minimum length.
func NewTranscriptTooShort(min, actual int) *TopicFlowError {
	return &TopicFlowError{
		Code:    ErrTranscriptTooShort,
		Status:  400,
		Message: "Conversation is too short for topic extraction",
		Details: map[string]any{"min_chars": min, "actual_chars": actual},
	}
}

// NewUnauthorized creates a 401 error.
func NewUnauthorized(msg string) *TopicFlowError {
	return &TopicFlowError{
		Code:    ErrUnauthorized,
		Status:  401,
		Message: msg,
	}
}

// NewQuotaExceeded creates a 402 error when a plan's conversation quota is used up.
func NewQuotaExceeded(plan string, limit int) *TopicFlowError {
	return &TopicFlowError{
		Code:    ErrQuotaExceeded,
		Status:  402,
		Message: fmt.Sprintf("you've reached your %s plan limit of %d conversations this month", plan, limit),
		Details: map[string]any{"plan": plan, "limit": limit},
	}
}

// NewForbidden creates a 403 error.
func NewForbidden(msg string) *TopicFlowError {
	return &TopicFlowError{
		Code:    ErrForbidden,
		Status:  403,
		Message: msg,
	}
}

// NewNotFound creates a 404 error for a missing entity.
func NewNotFound(kind, identifier string) *TopicFlowError {
	return &TopicFlowError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("%s not found: %s", kind, identifier),
		Details: map[string]any{"identifier": identifier},
	}
}

// NewEmailExists creates a 409 error for duplicate sign-ups.
func NewEmailExists(email string) *TopicFlowError {
	return &TopicFlowError{
		Code:    ErrEmailExists,
		Status:  409,
		Message: "User with this email already exists",
		Details: map[string]any{"email": email},
	}
}

// NewCancelled creates a 499 error when an operation's context was cancelled.
func NewCancelled(op string) *TopicFlowError {
	return &TopicFlowError{
		Code:    ErrCancelled,
		Status:  499,
		Message: fmt.Sprintf("%s cancelled", op),
	}
}

// NewUpstream creates a 502 error for a failed call to a third-party service.
func NewUpstream(service string, err error) *TopicFlowError {
	msg := service + " request failed"
	if err != nil {
		msg = fmt.Sprintf("%s: %v", msg, err)
	}
	return &TopicFlowError{
		Code:    ErrUpstream,
		Status:  502,
		Message: msg,
		Details: map[string]any{"service": service},
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *TopicFlowError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &TopicFlowError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
	}
}

// Is checks if an error is a TopicFlowError with the given code.
func Is(err error, code ErrorCode) bool {
	if tErr, ok := err.(*TopicFlowError); ok {
		return tErr.Code == code
	}
	return false
}
