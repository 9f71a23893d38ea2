package types

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline failure. Both pipelines share one taxonomy.
type Kind string

const (
	KindUnknown          Kind = "unknown"
	KindNotFound         Kind = "not_found"
	KindPermissionDenied Kind = "permission_denied"
	KindAPIKeyMissing    Kind = "api_key_missing"
	KindQuotaExceeded    Kind = "quota_exceeded"
	KindTextTooLong      Kind = "text_too_long"
	KindFileTooLarge     Kind = "file_too_large"
	KindEmptyText        Kind = "empty_text"
	KindInvalidResponse  Kind = "invalid_response"
	KindNetwork          Kind = "network"
	KindCancelled        Kind = "cancelled"
	KindMedia            Kind = "media" // local audio probe/compress/export failure
)

// ErrCancelled is returned by every check that observes cancellation.
var ErrCancelled = &Error{Kind: KindCancelled, Message: "operation cancelled"}

// Error is the error type returned by providers and pipelines.
type Error struct {
	Kind       Kind
	Op         string // e.g. "transcribe", "summarize", "export"
	Provider   string
	StatusCode int // HTTP status when the failure came from a remote API, else 0
	Message    string
	Cause      error
}

func (e *Error) Error() string {
	prefix := string(e.Kind)
	if e.Provider != "" {
		prefix = e.Provider + ":" + prefix
	}
	msg := e.Message
	if msg == "" && e.Cause != nil {
		msg = e.Cause.Error()
	} else if e.Cause != nil {
		msg = msg + ": " + e.Cause.Error()
	}
	if e.Op != "" {
		return fmt.Sprintf("[%s] %s: %s", prefix, e.Op, msg)
	}
	return fmt.Sprintf("[%s] %s", prefix, msg)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is treats a target with no op or provider as a kind sentinel, so
// errors.Is(err, ErrCancelled) matches every cancelled error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Provider == ""
}

// NewError creates an error of the given kind.
func NewError(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap attaches a kind to an underlying error.
func Wrap(kind Kind, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Cause: cause}
}

// HTTPError builds an error for a non-2xx API response. The kind follows the
// status: 401 api_key_missing, 403 permission_denied, 404 not_found,
// 413 file_too_large, 429 quota_exceeded, everything else network.
func HTTPError(provider, op string, status int, message string) *Error {
	kind := KindNetwork
	switch status {
	case 401:
		kind = KindAPIKeyMissing
	case 403:
		kind = KindPermissionDenied
	case 404:
		kind = KindNotFound
	case 413:
		kind = KindFileTooLarge
	case 429:
		kind = KindQuotaExceeded
	}
	if message == "" {
		message = fmt.Sprintf("status %d", status)
	}
	return &Error{Kind: kind, Op: op, Provider: provider, StatusCode: status, Message: message}
}

// KindOf returns the kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// StatusCode returns the HTTP status attached to err, or 0.
func StatusCode(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode
	}
	return 0
}

// IsCancelled reports whether err is a cancellation.
func IsCancelled(err error) bool {
	return IsKind(err, KindCancelled)
}

// InChunk annotates err with the chunk that produced it, keeping its kind
// and status. Cancellation is returned unchanged.
func InChunk(err error, index, total int) error {
	if err == nil || IsCancelled(err) {
		return err
	}
	label := fmt.Sprintf("chunk %d/%d", index+1, total)
	var e *Error
	if !errors.As(err, &e) {
		return &Error{Kind: KindUnknown, Op: label, Cause: err}
	}
	out := *e
	if out.Op != "" {
		out.Op = label + " " + out.Op
	} else {
		out.Op = label
	}
	return &out
}
