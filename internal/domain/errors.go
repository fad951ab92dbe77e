package domain

import (
	"errors"
	"fmt"
)

// ErrorCode identifies the failure classes surfaced by the encounter flow.
type ErrorCode string

const (
	ErrorCodePermissionDenied ErrorCode = "permission_denied"
	ErrorCodeNoSession        ErrorCode = "no_session"
	ErrorCodeAuthExpired      ErrorCode = "auth_expired"
	ErrorCodeUpload           ErrorCode = "upload"
	ErrorCodeMalformedToken   ErrorCode = "malformed_token"
	ErrorCodeServerProcessing ErrorCode = "server_processing"
	ErrorCodeTimeout          ErrorCode = "timeout"
	ErrorCodeStorage          ErrorCode = "storage"
	ErrorCodeOffline          ErrorCode = "offline"
)

// FlowError carries a failure class alongside the underlying cause so callers
// can branch on the class without string matching.
type FlowError struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *FlowError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *FlowError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewFlowError builds a FlowError wrapping cause, which may be nil.
func NewFlowError(code ErrorCode, message string, cause error) *FlowError {
	return &FlowError{Code: code, Message: message, Err: cause}
}

// CodeOf extracts the failure class from err, or "" if err is not a FlowError.
func CodeOf(err error) ErrorCode {
	var fe *FlowError
	if errors.As(err, &fe) {
		return fe.Code
	}
	return ""
}

// RequiresLogin reports whether err means the session is unusable and the user
// must authenticate again.
func RequiresLogin(err error) bool {
	switch CodeOf(err) {
	case ErrorCodeNoSession, ErrorCodeAuthExpired, ErrorCodeMalformedToken:
		return true
	default:
		return false
	}
}
