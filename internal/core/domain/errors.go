package domain

import "errors"

// Sentinel errors for settings operations.
var (
	// ErrUnauthenticated indicates no signed-in user could be resolved for the request.
	// HTTP Status: 401 Unauthorized
	ErrUnauthenticated = errors.New("authentication required")

	// ErrSubmissionInFlight indicates a profile submission for the same session is still pending.
	// HTTP Status: 409 Conflict
	ErrSubmissionInFlight = errors.New("profile submission already in flight")

	// ErrInvalidAvatar indicates the uploaded picture is not a PNG or JPEG image.
	// HTTP Status: 400 Bad Request
	ErrInvalidAvatar = errors.New("profile picture must be a PNG or JPEG image")

	// ErrAvatarTooLarge indicates the uploaded picture exceeds the configured size limit.
	// HTTP Status: 400 Bad Request
	ErrAvatarTooLarge = errors.New("profile picture is too large")
)
