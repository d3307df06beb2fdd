package barcodescan

import "errors"

var (
	// ErrDeviceUnavailable is returned when no camera exists, for example in a
	// simulator or a container without a video device. It is recoverable: the
	// session stays unconfigured and the host should show a fallback.
	ErrDeviceUnavailable = errors.New("capture device unavailable")

	// ErrInputAttachFailed is returned when a camera exists but its input
	// could not be opened or added to the session.
	ErrInputAttachFailed = errors.New("capture input could not be attached")

	// ErrFocusLockFailed is returned when the device configuration lock could
	// not be taken for a focus request. Focus is best effort.
	ErrFocusLockFailed = errors.New("focus configuration lock failed")

	// ErrInvalidTransition is returned or logged when an operation is invoked
	// out of sequence.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrNotConfigured is returned when starting a session that has no input
	// and metadata output attached.
	ErrNotConfigured = errors.New("capture session not configured")

	// ErrEmptySymbologies is returned when a metadata output would be left
	// with no enabled symbology.
	ErrEmptySymbologies = errors.New("no symbologies enabled")

	// ErrCancelled is returned by waiters when the attempt ended without a
	// result.
	ErrCancelled = errors.New("scan cancelled")
)
