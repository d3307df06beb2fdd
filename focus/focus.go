// Package focus implements tap-to-focus: a screen tap is mapped to a device
// point of interest and applied under the device configuration lock. Focus is
// best effort and never affects the scan in progress.
package focus

import (
	"fmt"
	"log/slog"
	"sync"

	barcodescan "github.com/ericlevine/barcodescan"
	"github.com/ericlevine/barcodescan/device"
	"github.com/ericlevine/barcodescan/logger"
	"github.com/ericlevine/barcodescan/view"
)

// Outcome describes what a focus request did.
type Outcome int

const (
	// Applied means the focus point was set and auto focus was started.
	Applied Outcome = iota
	// Unsupported means there is no device or it lacks point-of-interest
	// auto focus; the request was dropped.
	Unsupported
	// LockFailed means the device configuration lock was held elsewhere.
	LockFailed
)

func (o Outcome) String() string {
	switch o {
	case Applied:
		return "applied"
	case Unsupported:
		return "unsupported"
	case LockFailed:
		return "lock_failed"
	default:
		return "unknown"
	}
}

// Request is a single focus request, consumed immediately.
type Request struct {
	Point device.Point
}

// Controller applies tap-to-focus requests to a device handle.
type Controller struct {
	handle    device.Handle
	transform PreviewTransform

	mu       sync.Mutex
	observer func(Outcome)
}

// NewController returns a controller for handle. A nil handle, as left by a
// session without a camera, makes every request a no-op.
func NewController(handle device.Handle, transform PreviewTransform) *Controller {
	return &Controller{handle: handle, transform: transform}
}

// Observe registers fn to receive the outcome of every request.
func (c *Controller) Observe(fn func(Outcome)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observer = fn
}

// TapToFocus focuses on the device point under the screen point p. It is a
// no-op when there is no device or the device lacks point-of-interest auto
// focus. A contended configuration lock is reported as ErrFocusLockFailed
// without waiting.
func (c *Controller) TapToFocus(p view.Point) error {
	c.mu.Lock()
	observer := c.observer
	c.mu.Unlock()

	outcome, err := c.apply(Request{Point: c.transform.DevicePointOfInterest(p)})
	if observer != nil {
		observer(outcome)
	}
	return err
}

func (c *Controller) apply(req Request) (Outcome, error) {
	h := c.handle
	if h == nil || !h.FocusPointOfInterestSupported() || !h.FocusModeSupported(device.FocusModeAutoFocus) {
		return Unsupported, nil
	}

	if err := h.Lock(); err != nil {
		logger.Log.Warn("focus lock failed",
			slog.String("component", "focus_controller"),
			slog.String("device", h.ID()),
			slog.String("error", err.Error()))
		return LockFailed, fmt.Errorf("%w: %s: %w", barcodescan.ErrFocusLockFailed, h.ID(), err)
	}
	defer h.Unlock()

	h.SetFocusPoint(req.Point)
	h.SetFocusMode(device.FocusModeAutoFocus)

	logger.Log.Debug("focus point applied",
		slog.String("component", "focus_controller"),
		slog.Float64("x", req.Point.X),
		slog.Float64("y", req.Point.Y))
	return Applied, nil
}
