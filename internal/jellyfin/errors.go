// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package jellyfin

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// Sentinel errors for errors.Is checks at the boundary.
	ErrNotFound            = errors.New("jellyfin: resource not found")
	ErrUnauthorized        = errors.New("jellyfin: not authorized")
	ErrUpstreamUnavailable = errors.New("jellyfin: host unreachable or transport failure")
	ErrUpstreamError       = errors.New("jellyfin: internal error (5xx)")
	ErrBadResponse         = errors.New("jellyfin: invalid response format or malformed data")
	ErrBadRequest          = errors.New("jellyfin: request rejected")
)

// APIError wraps a sentinel with request context.
type APIError struct {
	Sentinel  error
	Operation string
	Status    int
	Body      string
	Err       error
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("jellyfin: %s: %v", e.Operation, e.Sentinel)
	if e.Status > 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.Status)
	}
	if e.Body != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Body)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *APIError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Sentinel, e.Err}
	}
	return []error{e.Sentinel}
}

func sentinelForStatus(status int) error {
	switch {
	case status == http.StatusNotFound:
		return ErrNotFound
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrUnauthorized
	case status >= http.StatusInternalServerError:
		return ErrUpstreamError
	default:
		return ErrBadRequest
	}
}
