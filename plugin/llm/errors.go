// Package llm provides generation clients for the dialogue engine, with
// candidate-model fallback, rate-limit backoff and a shared error taxonomy.
package llm

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind categorizes a generation failure for retry and fallback decisions.
type ErrorKind int

const (
	// KindNoCredential indicates no API key is configured.
	KindNoCredential ErrorKind = iota

	// KindMalformedEndpoint indicates the configured base URL is unusable.
	KindMalformedEndpoint

	// KindNetworkFailure indicates a transport-level failure, including timeouts.
	KindNetworkFailure

	// KindHTTPError indicates a non-2xx response outside the retryable classes.
	KindHTTPError

	// KindDecodingFailure indicates the response payload could not be decoded.
	KindDecodingFailure

	// KindEmptyReply indicates a well-formed payload carrying no usable text.
	KindEmptyReply

	// KindBlockedBySafety indicates the prompt or reply was blocked by a safety filter.
	KindBlockedBySafety

	// KindRateLimited indicates a transient rate limit; the same candidate is
	// retried with backoff.
	KindRateLimited

	// KindQuotaExhausted indicates the candidate has no usable quota or does not
	// exist; the next candidate is tried.
	KindQuotaExhausted

	// KindAllCandidatesExhausted indicates every candidate failed with a
	// quota-class error. Terminal for the turn.
	KindAllCandidatesExhausted
)

// String returns the string representation of ErrorKind.
func (k ErrorKind) String() string {
	switch k {
	case KindNoCredential:
		return "no_credential"
	case KindMalformedEndpoint:
		return "malformed_endpoint"
	case KindNetworkFailure:
		return "network_failure"
	case KindHTTPError:
		return "http_error"
	case KindDecodingFailure:
		return "decoding_failure"
	case KindEmptyReply:
		return "empty_reply"
	case KindBlockedBySafety:
		return "blocked_by_safety_filter"
	case KindRateLimited:
		return "rate_limited"
	case KindQuotaExhausted:
		return "quota_exhausted"
	case KindAllCandidatesExhausted:
		return "all_candidates_exhausted"
	default:
		return "unknown"
	}
}

// GenerateError is a classified generation failure.
type GenerateError struct {
	Kind       ErrorKind
	Model      string // candidate that produced the failure, if any
	StatusCode int    // HTTP status, if any
	Body       string // response body excerpt, if any
	Err        error  // wrapped cause, if any
}

func (e *GenerateError) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Model != "" {
		fmt.Fprintf(&b, " model=%s", e.Model)
	}
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " status=%d", e.StatusCode)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap returns the wrapped cause for errors.Is/As.
func (e *GenerateError) Unwrap() error {
	return e.Err
}

// Retryable returns true if the failure is recovered inside the client
// (backoff on the same candidate, or failover to the next one).
func (e *GenerateError) Retryable() bool {
	return e.Kind == KindRateLimited || e.Kind == KindQuotaExhausted
}

// KindOf extracts the ErrorKind from err, or KindHTTPError for foreign errors.
func KindOf(err error) ErrorKind {
	var genErr *GenerateError
	if errors.As(err, &genErr) {
		return genErr.Kind
	}
	return KindHTTPError
}

// ModelOf extracts the model name from err, or "" for foreign errors.
func ModelOf(err error) string {
	var genErr *GenerateError
	if errors.As(err, &genErr) {
		return genErr.Model
	}
	return ""
}

// Markers of a hard, zero-quota 429 body. A 429 without one of these is a
// transient rate limit.
var zeroQuotaMarkers = []string{
	`"limitValue": "0"`,
	`"limitValue":"0"`,
	"exceeded your current quota",
}

// classifyStatus maps a non-2xx response to an error kind per the fallback
// policy: zero-quota 429s and missing models skip to the next candidate, plain
// 429s are retried in place, and everything else is terminal.
func classifyStatus(statusCode int, body string) ErrorKind {
	switch {
	case statusCode == 429:
		for _, marker := range zeroQuotaMarkers {
			if strings.Contains(body, marker) {
				return KindQuotaExhausted
			}
		}
		return KindRateLimited
	case statusCode == 404:
		return KindQuotaExhausted
	case statusCode == 400 && isModelNotFoundBody(body):
		return KindQuotaExhausted
	default:
		return KindHTTPError
	}
}

func isModelNotFoundBody(body string) bool {
	lower := strings.ToLower(body)
	return strings.Contains(lower, "not found") || strings.Contains(body, "NOT_FOUND")
}
