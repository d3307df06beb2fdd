// Package device defines the boundary between a scan session and the camera
// hardware. Implementations live in subpackages.
package device

import (
	"context"
	"errors"
	"image"
	"io"
)

// ErrLocked is returned by Handle.Lock when the configuration lock is held
// elsewhere. Lock never waits.
var ErrLocked = errors.New("device configuration lock is held")

// FocusMode selects how the device drives its lens.
type FocusMode int

const (
	FocusModeLocked FocusMode = iota
	FocusModeAutoFocus
	FocusModeContinuousAutoFocus
)

func (m FocusMode) String() string {
	switch m {
	case FocusModeLocked:
		return "locked"
	case FocusModeAutoFocus:
		return "auto"
	case FocusModeContinuousAutoFocus:
		return "continuous"
	default:
		return "unknown"
	}
}

// Point is a device-relative point of interest. Both coordinates are
// normalized to [0, 1], with (0, 0) at the top left of the unrotated sensor.
type Point struct {
	X, Y float64
}

// Clamp returns p with both coordinates limited to [0, 1].
func (p Point) Clamp() Point {
	return Point{X: clamp01(p.X), Y: clamp01(p.Y)}
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// Handle is an opaque reference to a physical camera. Focus settings may only
// be changed while the configuration lock is held.
type Handle interface {
	// ID identifies the device for logging.
	ID() string

	FocusPointOfInterestSupported() bool
	FocusModeSupported(mode FocusMode) bool

	// Lock takes the configuration lock, failing fast with ErrLocked when it
	// is contended.
	Lock() error
	Unlock()

	SetFocusPoint(p Point)
	SetFocusMode(mode FocusMode)
}

// Input streams frames from an opened device.
type Input interface {
	// NextFrame blocks until the next frame is available. It returns io.EOF
	// when the stream ends, or ctx.Err() when ctx is done.
	NextFrame(ctx context.Context) (image.Image, error)

	// FrameSize reports the sensor frame dimensions in pixels.
	FrameSize() image.Point

	Close() error
}

// Camera is the device boundary used by a capture session.
type Camera interface {
	// AcquireDefault returns the default video device, or nil when none
	// exists.
	AcquireDefault() Handle

	// OpenInput opens a frame input on h.
	OpenInput(h Handle) (Input, error)
}

// Admission is implemented by cameras that can refuse an opened input or a
// metadata output, for example when the device is already streaming to
// another session. Cameras without it accept both.
type Admission interface {
	CanAddInput(in Input) bool
	CanAddOutput() bool
}

// Release closes h when it holds resources of its own.
func Release(h Handle) error {
	if c, ok := h.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Unavailable is a Camera with no device, as found in simulators and
// headless containers.
type Unavailable struct{}

// AcquireDefault always returns nil.
func (Unavailable) AcquireDefault() Handle { return nil }

// OpenInput always fails.
func (Unavailable) OpenInput(Handle) (Input, error) {
	return nil, errors.New("no video device")
}
