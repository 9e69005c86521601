package metadata

import (
	"errors"
	"fmt"
)

var (
	// ErrDecode is returned when a percent- or base64-encoded payload cannot be decoded.
	ErrDecode = errors.New("failed to decode payload")

	// ErrNonJSONResponse is returned when a gateway answered but the body is not a JSON object.
	ErrNonJSONResponse = errors.New("non-JSON metadata response")

	// ErrHTTPStatus is returned when a gateway answered with a non-2xx status.
	ErrHTTPStatus = errors.New("unexpected HTTP status")

	// ErrTimeout is returned when a single attempt did not complete within its bound.
	ErrTimeout = errors.New("metadata request timed out")

	// ErrResponseTooLarge is returned when a body exceeds the configured size limit.
	ErrResponseTooLarge = errors.New("metadata response exceeds size limit")

	// ErrGatewayUnavailable is returned for candidates skipped by an open circuit.
	ErrGatewayUnavailable = errors.New("gateway temporarily unavailable")

	// ErrInvalidDataURI is returned for a data:application/json URI that cannot be parsed.
	ErrInvalidDataURI = errors.New("invalid data URI")

	// ErrFetchExhausted is returned when every candidate URL failed.
	ErrFetchExhausted = errors.New("failed to fetch metadata")

	// ErrEmptyURI is returned when the token URI normalizes to nothing.
	ErrEmptyURI = errors.New("empty token URI")

	// ErrNilDependency is returned when a required dependency is nil.
	ErrNilDependency = errors.New("required dependency is nil")
)

// HTTPError carries the status of a failed gateway response.
type HTTPError struct {
	URL        string
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d from %s", e.StatusCode, e.URL)
}

// Unwrap lets errors.Is match ErrHTTPStatus.
func (e *HTTPError) Unwrap() error {
	return ErrHTTPStatus
}
