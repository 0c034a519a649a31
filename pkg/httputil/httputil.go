// Package httputil provides shared HTTP client construction utilities
// for the parley project. It centralizes timeout defaults and client
// creation so that every module uses consistent configuration.
package httputil

import (
	"net/http"
	"time"
)

// Standard timeout defaults used across the project.
const (
	// DefaultCompletionTimeout is the HTTP timeout for completion-service
	// calls. Completion requests can involve long inference times, so they
	// use a longer timeout.
	DefaultCompletionTimeout = 30 * time.Second

	// DefaultEnrichmentTimeout is the HTTP timeout for transcript /
	// enrichment API requests. These are typically shorter-lived calls.
	DefaultEnrichmentTimeout = 10 * time.Second
)

// NewHTTPClient returns an *http.Client configured with the given timeout.
// Pass one of the Default*Timeout constants, or a custom duration.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}
