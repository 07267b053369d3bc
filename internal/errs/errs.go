// Package errs defines the small closed set of tagged error kinds the
// control plane uses in place of the source's effect-system typed failures.
// Every kind is carried by the one *Error type; Is(err, kind) and the
// IsNotFound shorthand let callers classify a returned error without
// string matching.
package errs

import "fmt"

// Kind identifies an error family.
type Kind string

const (
	KindValidation     Kind = "Validation"
	KindNotFound       Kind = "NotFound"
	KindStorageRead    Kind = "StorageRead"
	KindStorageWrite   Kind = "StorageWrite"
	KindProxy          Kind = "Proxy"
	KindUpstream       Kind = "Upstream"
	KindSandboxAdapter Kind = "SandboxAdapter"
)

// Error is a tagged, closed-family error value.
type Error struct {
	Kind    Kind
	Code    string // e.g. "SessionNotFoundError", "PROXY_TOKEN_EXPIRED"
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func newErr(kind Kind, code, message string, cause error) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Cause: cause}
}

// Validation builds a Validation-kind error for a schema or input failure.
func Validation(code, message string) *Error {
	return newErr(KindValidation, code, message, nil)
}

// SessionNotFound builds the NotFound error for a missing session.
func SessionNotFound(sessionID string) *Error {
	return newErr(KindNotFound, "SessionNotFoundError", fmt.Sprintf("Session %q not found", sessionID), nil)
}

// RunNotFound builds the NotFound error for a missing run.
func RunNotFound(runID string) *Error {
	return newErr(KindNotFound, "RunNotFoundError", fmt.Sprintf("Run %q not found", runID), nil)
}

// StorageRead wraps a read/decode failure with its cause.
func StorageRead(message string, cause error) *Error {
	return newErr(KindStorageRead, "StorageReadError", message, cause)
}

// StorageWrite wraps a write/conflict failure with its cause.
func StorageWrite(message string, cause error) *Error {
	return newErr(KindStorageWrite, "StorageWriteError", message, cause)
}

// Proxy builds a Proxy-kind error carrying one of the PROXY_* codes.
func Proxy(code, message string) *Error {
	return newErr(KindProxy, code, message, nil)
}

// SandboxAdapter wraps a sandbox RPC failure with its cause.
func SandboxAdapter(message string, cause error) *Error {
	return newErr(KindSandboxAdapter, "SandboxAdapterError", message, cause)
}

// Is reports whether err belongs to kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if ae, ok := err.(*Error); ok {
		e = ae
	} else {
		return false
	}
	return e.Kind == kind
}

// IsNotFound reports whether err is a NotFound-kind error.
func IsNotFound(err error) bool { return Is(err, KindNotFound) }

// CodeOf returns the error's code, or "UNKNOWN_ERROR" for an untagged error.
func CodeOf(err error) string {
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return "UNKNOWN_ERROR"
}
