package http

import (
	"context"
	"errors"
	"fmt"
	nethttp "net/http"
	"strings"
)

// ErrorType classifies a failed request for logging and retry decisions.
type ErrorType int

const (
	// ErrorTypeSuccess indicates operation succeeded
	ErrorTypeSuccess ErrorType = iota
	// ErrorTypeCredential indicates authentication/authorization failure (401, 403, bad SAS)
	ErrorTypeCredential
	// ErrorTypeNetwork indicates network/connection issues (timeouts, connection refused, etc.)
	ErrorTypeNetwork
	// ErrorTypeRetryable indicates server errors that can be retried (500, 502, 503, throttling)
	ErrorTypeRetryable
	// ErrorTypeFatal indicates client errors that should not be retried (400, 404, invalid request)
	ErrorTypeFatal
)

// StatusError is returned when a server answers with an unexpected status.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string // First bytes of the response body, if any
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s %s: %d %s", e.Method, e.URL, e.StatusCode, nethttp.StatusText(e.StatusCode))
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// ClassifyStatus maps an HTTP status code to an ErrorType.
func ClassifyStatus(code int) ErrorType {
	switch {
	case code >= 200 && code < 300:
		return ErrorTypeSuccess
	case code == nethttp.StatusUnauthorized || code == nethttp.StatusForbidden:
		return ErrorTypeCredential
	case code == nethttp.StatusTooManyRequests || code == nethttp.StatusRequestTimeout:
		return ErrorTypeRetryable
	case code >= 500 && code != nethttp.StatusNotImplemented:
		return ErrorTypeRetryable
	default:
		return ErrorTypeFatal
	}
}

// ClassifyError determines the error type of a failed request.
func ClassifyError(err error) ErrorType {
	if err == nil {
		return ErrorTypeSuccess
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return ClassifyStatus(statusErr.StatusCode)
	}

	if errors.Is(err, context.Canceled) {
		return ErrorTypeFatal
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorTypeNetwork
	}

	errStr := strings.ToLower(err.Error())

	// Includes both AWS (expired token) and Azure (authentication failed, invalid SAS) errors
	if strings.Contains(errStr, "expired") ||
		strings.Contains(errStr, "invalid token") ||
		strings.Contains(errStr, "403") ||
		strings.Contains(errStr, "401") ||
		strings.Contains(errStr, "unauthorized") ||
		strings.Contains(errStr, "authentication failed") ||
		strings.Contains(errStr, "authenticationfailed") ||
		strings.Contains(errStr, "invalid sas") ||
		strings.Contains(errStr, "signature not valid") ||
		strings.Contains(errStr, "accessdenied") {
		return ErrorTypeCredential
	}

	if strings.Contains(errStr, "tls handshake timeout") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "i/o timeout") ||
		strings.Contains(errStr, "eof") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "no such host") ||
		strings.Contains(errStr, "broken pipe") ||
		strings.Contains(errStr, "timeout") {
		return ErrorTypeNetwork
	}

	if strings.Contains(errStr, "internalerror") ||
		strings.Contains(errStr, "serviceunavailable") ||
		strings.Contains(errStr, "slowdown") ||
		strings.Contains(errStr, "throttl") ||
		strings.Contains(errStr, "serverbusy") ||
		strings.Contains(errStr, "server busy") ||
		strings.Contains(errStr, "service unavailable") {
		return ErrorTypeRetryable
	}

	// Unknown errors are fatal so nothing loops on them
	return ErrorTypeFatal
}

// CheckRetry is the retryablehttp policy: retry network and server-side
// failures, never credential or client errors, never after cancellation.
func CheckRetry(ctx context.Context, resp *nethttp.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		switch ClassifyError(err) {
		case ErrorTypeNetwork, ErrorTypeRetryable:
			return true, nil
		default:
			return false, nil
		}
	}
	if resp != nil && ClassifyStatus(resp.StatusCode) == ErrorTypeRetryable {
		return true, nil
	}
	return false, nil
}

// ErrorTypeName returns a human-readable name for an ErrorType
func ErrorTypeName(errType ErrorType) string {
	switch errType {
	case ErrorTypeSuccess:
		return "success"
	case ErrorTypeCredential:
		return "credential"
	case ErrorTypeNetwork:
		return "network"
	case ErrorTypeRetryable:
		return "retryable"
	case ErrorTypeFatal:
		return "fatal"
	default:
		return "unknown"
	}
}
