// Package retry classifies provider failures and repeats transient ones with
// exponential backoff.
package retry

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"syscall"

	"github.com/roelfdiedericks/voxnote/internal/types"
)

// Class decides whether and how a failure is retried.
type Class string

const (
	ClassNone             Class = ""
	ClassRateLimited      Class = "rate_limited"
	ClassServerError      Class = "server_error"
	ClassTransientNetwork Class = "transient_network"
	ClassFatal            Class = "fatal"
)

// Retryable reports whether the class is ever retried.
func (c Class) Retryable() bool {
	return c == ClassRateLimited || c == ClassServerError || c == ClassTransientNetwork
}

// Classify determines the retry class of err. Checked in order of
// reliability: cancellation, HTTP status, error kind, transport errors,
// then message patterns for SDKs that only surface text.
func Classify(err error) Class {
	if err == nil {
		return ClassNone
	}
	if types.IsCancelled(err) || errors.Is(err, context.Canceled) {
		return ClassFatal
	}

	if status := types.StatusCode(err); status != 0 {
		return ClassifyStatus(status)
	}

	switch types.KindOf(err) {
	case types.KindQuotaExceeded:
		return ClassRateLimited
	case types.KindNotFound, types.KindPermissionDenied, types.KindAPIKeyMissing,
		types.KindTextTooLong, types.KindFileTooLarge, types.KindEmptyText,
		types.KindInvalidResponse, types.KindMedia:
		return ClassFatal
	}

	if isTransportError(err) {
		return ClassTransientNetwork
	}

	msg := err.Error()
	switch {
	case IsRateLimitMessage(msg):
		return ClassRateLimited
	case IsAuthMessage(msg):
		return ClassFatal
	case IsOverloadedMessage(msg):
		return ClassServerError
	case IsTimeoutMessage(msg), IsConnectionMessage(msg):
		return ClassTransientNetwork
	}
	return ClassFatal
}

// ClassifyStatus maps an HTTP status code to a retry class.
func ClassifyStatus(status int) Class {
	switch {
	case status >= 200 && status < 300:
		return ClassNone
	case status == 429:
		return ClassRateLimited
	case status == 408:
		return ClassTransientNetwork
	case status >= 500:
		return ClassServerError
	default:
		return ClassFatal
	}
}

func isTransportError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// KindFromMessage derives an error kind from a provider message. Used by
// providers whose SDK errors carry no HTTP status.
func KindFromMessage(msg string) types.Kind {
	switch {
	case IsContextOverflowMessage(msg):
		return types.KindTextTooLong
	case IsRateLimitMessage(msg):
		return types.KindQuotaExceeded
	case IsAuthMessage(msg):
		return types.KindAPIKeyMissing
	default:
		return types.KindNetwork
	}
}

// IsContextOverflowMessage checks if a message indicates the input exceeded
// the model context window.
func IsContextOverflowMessage(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "context_length_exceeded") ||
		strings.Contains(lower, "context length exceeded") ||
		strings.Contains(lower, "maximum context length") ||
		strings.Contains(lower, "prompt is too long") ||
		strings.Contains(lower, "request_too_large") ||
		strings.Contains(lower, "exceeds model context window") ||
		(strings.Contains(lower, "413") && strings.Contains(lower, "too large"))
}

// IsRateLimitMessage checks if a message indicates rate limiting.
func IsRateLimitMessage(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "429") ||
		strings.Contains(lower, "rate_limit") ||
		strings.Contains(lower, "rate limit") ||
		strings.Contains(lower, "too many requests") ||
		strings.Contains(lower, "exceeded your current quota") ||
		strings.Contains(lower, "quota exceeded") ||
		strings.Contains(lower, "resource_exhausted") ||
		strings.Contains(lower, "resource has been exhausted") ||
		strings.Contains(lower, "requests per minute")
}

// IsOverloadedMessage checks if a message indicates the service is overloaded.
func IsOverloadedMessage(msg string) bool {
	lower := strings.ToLower(msg)
	if strings.Contains(lower, "503") && (strings.Contains(lower, "service") || strings.Contains(lower, "unavailable")) {
		return true
	}
	return strings.Contains(lower, "overloaded") ||
		strings.Contains(lower, "server is busy") ||
		strings.Contains(lower, "temporarily unavailable") ||
		strings.Contains(lower, "internal_error") ||
		strings.Contains(lower, "server_error") ||
		strings.Contains(lower, "code = internal") ||
		strings.Contains(lower, "code = unavailable")
}

// IsAuthMessage checks if a message indicates authentication failure.
func IsAuthMessage(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "401") ||
		strings.Contains(lower, "invalid api key") ||
		strings.Contains(lower, "invalid_api_key") ||
		strings.Contains(lower, "incorrect api key") ||
		strings.Contains(lower, "unauthorized") ||
		strings.Contains(lower, "unauthenticated") ||
		strings.Contains(lower, "permission_denied") ||
		strings.Contains(lower, "no api key found") ||
		strings.Contains(lower, "invalid credentials")
}

// IsTimeoutMessage checks if a message indicates a timeout.
func IsTimeoutMessage(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "timeout") ||
		strings.Contains(lower, "timed out") ||
		strings.Contains(lower, "deadline exceeded") ||
		strings.Contains(lower, "504")
}

// IsConnectionMessage checks if a message indicates a dropped connection.
func IsConnectionMessage(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "connection reset") ||
		strings.Contains(lower, "connection refused") ||
		strings.Contains(lower, "broken pipe") ||
		strings.Contains(lower, "rst_stream") ||
		strings.Contains(lower, "unexpected eof") ||
		strings.Contains(lower, "network is unreachable")
}
