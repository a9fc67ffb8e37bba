package healthforce

import (
	"fmt"

	xerrors "HealthForce-Goa/internal/errors"
)

// Failure codes attached to every *Error returned by the client.
const (
	CodeTransport  xerrors.Code = "TRANSPORT_FAILURE"
	CodeHTTPStatus xerrors.Code = "HTTP_STATUS"
	CodeDecode     xerrors.Code = "DECODE_FAILURE"
	CodeEncode     xerrors.Code = "ENCODE_FAILURE"
)

func init() {
	xerrors.Register(CodeTransport, xerrors.Attributes{
		Message:   "request could not be completed",
		Severity:  xerrors.SeverityWarning,
		Retryable: true,
	})
	xerrors.Register(CodeHTTPStatus, xerrors.Attributes{
		Message:  "backend returned a non-success status",
		Severity: xerrors.SeverityWarning,
	})
	xerrors.Register(CodeDecode, xerrors.Attributes{
		Message:  "response body is not valid JSON",
		Severity: xerrors.SeverityCritical,
	})
	xerrors.Register(CodeEncode, xerrors.Attributes{
		Message:  "request body could not be encoded",
		Severity: xerrors.SeverityInfo,
	})
}

// Error is the single failure shape returned by every client operation,
// whatever went wrong underneath. Message is what a view shows to the user.
type Error struct {
	Message    string
	Operation  string
	Endpoint   string
	StatusCode int
	Code       xerrors.Code

	cause error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// Unwrap exposes the transport or decode error, if any.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Retryable reports whether the failure class is registered as retryable.
// The client itself never retries.
func (e *Error) Retryable() bool {
	if e == nil {
		return false
	}
	return xerrors.AttributesOf(e.Code).Retryable
}

func statusMessage(status int) string {
	return fmt.Sprintf("HTTP error! status: %d", status)
}
