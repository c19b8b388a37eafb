// Package rest wraps every outbound REST call with per-endpoint admission
// control, transient-error classification, and bounded retry. It also holds
// the signed-request helpers shared by the vendor facades.
package rest

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// RequestError is a classified failure from an exchange REST endpoint. The
// vendor facade decodes the wire error into one of these so the pipeline can
// decide between retrying, correcting state, and surfacing.
type RequestError struct {
	// Status is the HTTP status code, zero for transport failures.
	Status int

	// RetryAfter is the server's retry hint on 429 responses, zero when the
	// response carried none.
	RetryAfter time.Duration

	// Code is the exchange's own error code, when present.
	Code string

	// Message is the human-readable error text from the exchange.
	Message string

	// NonceTooSmall marks the exchange-specific replay/nonce rejection that
	// is corrected by bumping the connection's nonce offset.
	NonceTooSmall bool

	// Err is the underlying cause, if any.
	Err error
}

func (e *RequestError) Error() string {
	switch {
	case e.Code != "" && e.Message != "":
		return fmt.Sprintf("exchange error %s: %s", e.Code, e.Message)
	case e.Message != "":
		return e.Message
	case e.Status != 0:
		return fmt.Sprintf("http status %d", e.Status)
	case e.Err != nil:
		return e.Err.Error()
	default:
		return "request failed"
	}
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// RateLimited reports whether the error is an HTTP 429 rejection.
func (e *RequestError) RateLimited() bool {
	return e.Status == http.StatusTooManyRequests
}

// asRequestError extracts a *RequestError from an error chain.
func asRequestError(err error) (*RequestError, bool) {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr, true
	}
	return nil, false
}

// Cause flattens an error chain into a single human-readable message. When
// the outermost message does not already include the innermost cause (some
// wrappers rewrite instead of prefixing), the innermost is appended so the
// user sees the real reason.
func Cause(err error) string {
	if err == nil {
		return ""
	}

	msg := err.Error()
	innermost := err
	for inner := errors.Unwrap(innermost); inner != nil; inner = errors.Unwrap(inner) {
		innermost = inner
	}
	if innermost != err && !strings.Contains(msg, innermost.Error()) {
		msg = fmt.Sprintf("%s (%s)", msg, innermost.Error())
	}
	return msg
}
