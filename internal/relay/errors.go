package relay

import "errors"

// ErrMissingCredential means neither the request nor the server supplied an
// API key. No upstream call is made.
var ErrMissingCredential = errors.New("API key is missing. Provide apiKey in the request or set GEMINI_API_KEY on the server")

// UpstreamError wraps a failed model call. Its message is the upstream's own.
type UpstreamError struct {
	Err error
}

func (e *UpstreamError) Error() string { return e.Err.Error() }

func (e *UpstreamError) Unwrap() error { return e.Err }
