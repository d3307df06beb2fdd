//go:build !gocv

package webcam

import "github.com/ericlevine/barcodescan/device"

// Camera reports no device when built without OpenCV.
type Camera struct {
	cfg Config
}

// New returns a camera that has no device.
func New(cfg Config) *Camera {
	return &Camera{cfg: cfg.withDefaults()}
}

// AcquireDefault always returns nil.
func (c *Camera) AcquireDefault() device.Handle { return nil }

// OpenInput always fails with ErrNotBuilt.
func (c *Camera) OpenInput(device.Handle) (device.Input, error) {
	return nil, ErrNotBuilt
}
