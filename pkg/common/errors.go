package common

import "errors"

// Error taxonomy for the retrieval core. Stages are pure and read-only, so
// transient infrastructure errors bubble up to a single retry wrapper at the
// orchestration layer instead of each stage retrying on its own.
var (
	// ErrNoSeedEntities means the query produced zero resolvable graph
	// entities. Callers must answer with an explicit "information not found"
	// response, never a fabricated answer.
	ErrNoSeedEntities = errors.New("no seed entities resolved")

	// ErrGraphUnavailable is a transient store connectivity failure. It is
	// retried with backoff a bounded number of times, then surfaced as a
	// service-level failure distinct from "no evidence".
	ErrGraphUnavailable = errors.New("graph store unavailable")

	// ErrExternalService is a transient embedding/LLM failure.
	ErrExternalService = errors.New("external service failure")

	// ErrPermanent wraps non-transient failures (malformed prompt, auth).
	// Permanent errors are never retried.
	ErrPermanent = errors.New("permanent failure")
)

// Transient reports whether err should be retried with backoff. Anything
// marked permanent is excluded even if it also wraps a transient sentinel.
func Transient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrPermanent) {
		return false
	}
	return errors.Is(err, ErrGraphUnavailable) || errors.Is(err, ErrExternalService)
}
