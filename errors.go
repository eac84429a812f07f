package ytorbit

import (
	"ytorbit/config"
	"ytorbit/internal/fault"
	"ytorbit/internal/retry"
	"ytorbit/orbit"
	"ytorbit/youtube"
)

// Error handling types exported for library users.
//
// Using errors.Is() for sentinel errors:
//
//	if errors.Is(err, ytorbit.ErrChannelNotFound) {
//		fmt.Println("Channel not found")
//	}
//
// Using errors.As() for wrapped errors:
//
//	var upErr *ytorbit.UpstreamError
//	if errors.As(err, &upErr) {
//		fmt.Printf("%s failed with %d: %s\n", upErr.Op, upErr.StatusCode, upErr.Body)
//	}

// Type aliases for convenient error handling.
type (
	// UpstreamError describes a failed call to YouTube or Orbit.
	UpstreamError = fault.UpstreamError
	// SubmitError describes one activity Orbit did not accept.
	SubmitError = orbit.SubmitError
	// RetryableError wraps errors that occurred after retries were exhausted.
	RetryableError = retry.RetryableError
	// MissingCredentialError names a credential that was not supplied.
	MissingCredentialError = config.MissingCredentialError
)

// Sentinel errors exported from sub-packages.
var (
	// ErrInvalidInput indicates a missing or malformed argument.
	ErrInvalidInput = fault.ErrInvalidInput
	// ErrNotFound indicates an entity does not exist upstream.
	ErrNotFound = fault.ErrNotFound
	// ErrUpstream indicates a transport failure or unexpected upstream response.
	ErrUpstream = fault.ErrUpstream
	// ErrChannelNotFound indicates the YouTube channel does not exist.
	ErrChannelNotFound = youtube.ErrChannelNotFound
)

// IsRetryable determines if an error should be retried.
// It returns false for permanent errors like ErrChannelNotFound.
func IsRetryable(err error) bool {
	return retry.IsRetryable(err)
}
