package intel

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidIdentifier is returned for identifiers that are not of the form CVE-YYYY-NNNN.
	ErrInvalidIdentifier = errors.New("intel: invalid CVE identifier")
	// ErrAnalysisUnavailable is returned when no text-generation collaborator is configured.
	ErrAnalysisUnavailable = errors.New("intel: analysis generator not configured")
	// ErrEmptyKeyword is returned for blank keyword searches.
	ErrEmptyKeyword = errors.New("intel: keyword is required")
	// ErrInvalidTenant is returned for tenant ids that are reserved or too long to persist.
	ErrInvalidTenant = errors.New("intel: invalid tenant")
)

// UpstreamHTTPError reports a non-success status from a provider.
type UpstreamHTTPError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *UpstreamHTTPError) Error() string {
	return fmt.Sprintf("upstream %s returned status %d", e.URL, e.StatusCode)
}

// UpstreamTransportError reports a network level failure talking to a provider.
type UpstreamTransportError struct {
	URL string
	Err error
}

func (e *UpstreamTransportError) Error() string {
	return fmt.Sprintf("upstream %s unreachable: %v", e.URL, e.Err)
}

func (e *UpstreamTransportError) Unwrap() error { return e.Err }

// MalformedResponseError reports a provider body that could not be decoded.
type MalformedResponseError struct {
	URL string
	Err error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("upstream %s returned malformed payload: %v", e.URL, e.Err)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

// NotFoundError reports a lookup that matched nothing.
type NotFoundError struct {
	Resource string
	Key      string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.Key)
}

// GenerationError wraps a text-generation provider failure.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("analysis generation failed: %v", e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// PersistenceError wraps a cache store failure.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("intel cache %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsUpstream reports whether err originated from a provider call.
func IsUpstream(err error) bool {
	var (
		httpErr      *UpstreamHTTPError
		transportErr *UpstreamTransportError
		malformedErr *MalformedResponseError
		genErr       *GenerationError
	)
	return errors.As(err, &httpErr) || errors.As(err, &transportErr) ||
		errors.As(err, &malformedErr) || errors.As(err, &genErr)
}
