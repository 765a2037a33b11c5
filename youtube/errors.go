package youtube

import (
	"errors"
	"fmt"
)

// ValidationError reports a malformed request (bad URL or quality). It is
// raised before any network call and maps to HTTP 400.
type ValidationError struct {
	Field  string
	Reason string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// AttemptError records one failed (strategy, proxy) pair.
type AttemptError struct {
	Strategy string
	Proxy    string
	Err      error
}

// Error implements the error interface.
func (e AttemptError) Error() string {
	return fmt.Sprintf("%s via %s: %v", e.Strategy, e.Proxy, e.Err)
}

// Unwrap returns the underlying cause.
func (e AttemptError) Unwrap() error {
	return e.Err
}

// ErrNoTitle marks a parsed result that lacked the required title field.
var ErrNoTitle = errors.New("no title in extracted metadata")

// ExhaustedError means every (strategy, proxy) pair in the extraction chain
// failed. It aggregates the individual attempts for diagnostics; callers see
// only this terminal error, never partial-chain failures.
type ExhaustedError struct {
	URL      string
	Attempts []AttemptError
}

// Error implements the error interface.
func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("all %d extraction attempts failed for %s", len(e.Attempts), e.URL)
}

// DownloadError means metadata extraction succeeded but every download path
// failed. Metadata is attached so the caller retains value from the partial
// success.
type DownloadError struct {
	URL      string
	Metadata *VideoMetadata
	Err      error
}

// Error implements the error interface.
func (e *DownloadError) Error() string {
	return fmt.Sprintf("download failed for %s: %v", e.URL, e.Err)
}

// Unwrap returns the underlying cause.
func (e *DownloadError) Unwrap() error {
	return e.Err
}
