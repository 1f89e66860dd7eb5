package cfapi

import "errors"

var (
	// ErrTransport is returned when no response body could be obtained.
	ErrTransport = errors.New("cloudflare api transport failure")
	// ErrMalformedResponse is returned when the body is not a JSON object.
	ErrMalformedResponse = errors.New("cloudflare api returned malformed response")
	// ErrUnsupportedMethod is returned for verbs other than GET, POST, PUT and DELETE.
	ErrUnsupportedMethod = errors.New("unsupported http method")
)
