// Package ratingerr defines the sentinel error taxonomy callers can check
// with errors.Is, instead of matching on error strings.
package ratingerr

import "errors"

var (
	// ErrUpstreamTransport covers DR-list/scanner reachability failures,
	// timeouts, and 5xx responses. Retried with backoff; the affected
	// ticker or cycle is skipped once the retry budget is exhausted.
	ErrUpstreamTransport = errors.New("upstream transport error")

	// ErrUpstreamRateLimited covers HTTP 429 from the scanner.
	ErrUpstreamRateLimited = errors.New("upstream rate limited")

	// ErrUpstreamSemantic covers a well-formed response whose ratings are
	// Unknown/unparseable.
	ErrUpstreamSemantic = errors.New("upstream semantic error")

	// ErrSymbolResolution covers DR records that cannot be turned into a
	// valid scanner symbol.
	ErrSymbolResolution = errors.New("symbol resolution error")

	// ErrStoreBusy covers a SQLITE_BUSY/locked condition reported once the
	// connection's busy timeout has elapsed.
	ErrStoreBusy = errors.New("store busy")
)
