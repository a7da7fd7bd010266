package llm

import (
	"errors"
	"fmt"
)

// Fatal upstream conditions. These abort the request immediately,
// without consuming retry attempts.
var (
	// ErrServerUnreachable means the inference server refused or
	// dropped the connection. Distinct from a timeout, which is retried.
	ErrServerUnreachable = errors.New("could not connect to inference server: is it running?")

	// ErrEndpointNotFound means the server answered 404 for the
	// generate endpoint itself rather than for the model.
	ErrEndpointNotFound = errors.New("generate endpoint not found: is the inference server running?")
)

// ModelNotFoundError reports a 404 whose body blames the model name.
type ModelNotFoundError struct {
	Model string
}

func (e *ModelNotFoundError) Error() string {
	return fmt.Sprintf("model %q not found, select another model", e.Model)
}

// RateLimitError reports that every attempt was answered with 429.
type RateLimitError struct {
	Attempts int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded after %d attempts, try again later", e.Attempts)
}

// UpstreamError reports any other non-200 status, with the diagnostic
// body text the server sent.
type UpstreamError struct {
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream error (status %d): %s", e.Status, e.Body)
}

// errTooManyRequests marks a single 429 attempt internally so the
// retry loop can map exhaustion to RateLimitError.
var errTooManyRequests = errors.New("upstream rate limited (429)")

// fatal reports whether err must not be retried.
func fatal(err error) bool {
	var mnf *ModelNotFoundError
	var up *UpstreamError
	return errors.Is(err, ErrServerUnreachable) ||
		errors.Is(err, ErrEndpointNotFound) ||
		errors.As(err, &mnf) ||
		errors.As(err, &up)
}
