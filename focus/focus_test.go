package focus_test

import (
	"errors"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	barcodescan "github.com/ericlevine/barcodescan"
	"github.com/ericlevine/barcodescan/device"
	"github.com/ericlevine/barcodescan/device/replay"
	"github.com/ericlevine/barcodescan/focus"
	"github.com/ericlevine/barcodescan/logger"
	"github.com/ericlevine/barcodescan/view"
)

func init() {
	logger.Discard()
}

func square() focus.PreviewTransform {
	return focus.PreviewTransform{
		Bounds: view.Size{Width: 400, Height: 400},
		Frame:  image.Pt(400, 400),
	}
}

func TestTapToFocusApplies(t *testing.T) {
	cam := replay.New(nil)
	c := focus.NewController(cam.AcquireDefault(), square())

	var outcomes []focus.Outcome
	c.Observe(func(o focus.Outcome) { outcomes = append(outcomes, o) })

	require.NoError(t, c.TapToFocus(view.Point{X: 100, Y: 200}))

	p, mode, changes := cam.Handle().Focus()
	assert.InDelta(t, 0.25, p.X, 1e-9)
	assert.InDelta(t, 0.5, p.Y, 1e-9)
	assert.Equal(t, device.FocusModeAutoFocus, mode)
	assert.Equal(t, 2, changes)
	assert.Equal(t, []focus.Outcome{focus.Applied}, outcomes)

	// The lock was released after applying.
	require.NoError(t, cam.Handle().Lock())
	cam.Handle().Unlock()
}

func TestTapToFocusWithoutDevice(t *testing.T) {
	c := focus.NewController(nil, square())
	var got focus.Outcome = -1
	c.Observe(func(o focus.Outcome) { got = o })

	assert.NoError(t, c.TapToFocus(view.Point{X: 10, Y: 10}))
	assert.Equal(t, focus.Unsupported, got)
}

func TestTapToFocusUnsupported(t *testing.T) {
	cam := replay.New(nil, replay.WithFocusSupport(false))
	c := focus.NewController(cam.AcquireDefault(), square())

	require.NoError(t, c.TapToFocus(view.Point{X: 10, Y: 10}))
	_, _, changes := cam.Handle().Focus()
	assert.Zero(t, changes)
}

func TestTapToFocusLockContended(t *testing.T) {
	cam := replay.New(nil)
	h := cam.Handle()
	require.NoError(t, h.Lock())
	defer h.Unlock()

	c := focus.NewController(h, square())
	var got focus.Outcome
	c.Observe(func(o focus.Outcome) { got = o })

	err := c.TapToFocus(view.Point{X: 200, Y: 200})
	require.Error(t, err)
	assert.True(t, errors.Is(err, barcodescan.ErrFocusLockFailed))
	assert.True(t, errors.Is(err, device.ErrLocked))
	assert.Equal(t, focus.LockFailed, got)

	_, _, changes := h.Focus()
	assert.Zero(t, changes)
}

func TestDevicePointOfInterestRotation(t *testing.T) {
	tests := []struct {
		name     string
		rotation focus.Rotation
		want     device.Point
	}{
		{"0", 0, device.Point{X: 0.25, Y: 0.5}},
		{"90", 90, device.Point{X: 0.5, Y: 0.75}},
		{"180", 180, device.Point{X: 0.75, Y: 0.5}},
		{"270", 270, device.Point{X: 0.5, Y: 0.25}},
		{"-90", -90, device.Point{X: 0.5, Y: 0.25}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tr := square()
			tr.Rotation = tc.rotation
			got := tr.DevicePointOfInterest(view.Point{X: 100, Y: 200})
			assert.InDelta(t, tc.want.X, got.X, 1e-9)
			assert.InDelta(t, tc.want.Y, got.Y, 1e-9)
		})
	}
}

func TestDevicePointOfInterestPortraitSensor(t *testing.T) {
	tr := focus.PreviewTransform{
		Bounds:   view.Size{Width: 400, Height: 800},
		Frame:    image.Pt(800, 400),
		Rotation: 90,
	}
	got := tr.DevicePointOfInterest(view.Point{X: 100, Y: 200})
	assert.InDelta(t, 0.25, got.X, 1e-9)
	assert.InDelta(t, 0.75, got.Y, 1e-9)
}

func TestDevicePointOfInterestGravity(t *testing.T) {
	base := focus.PreviewTransform{
		Bounds: view.Size{Width: 400, Height: 800},
		Frame:  image.Pt(400, 400),
	}

	t.Run("aspect letterbox", func(t *testing.T) {
		got := base.DevicePointOfInterest(view.Point{X: 200, Y: 200})
		assert.InDelta(t, 0.5, got.X, 1e-9)
		assert.InDelta(t, 0, got.Y, 1e-9)

		// Taps on the letterbox clamp to the frame edge.
		got = base.DevicePointOfInterest(view.Point{X: 200, Y: 50})
		assert.Equal(t, 0.0, got.Y)
	})

	t.Run("fill", func(t *testing.T) {
		tr := base
		tr.Gravity = focus.GravityResizeAspectFill
		got := tr.DevicePointOfInterest(view.Point{X: 0, Y: 400})
		assert.InDelta(t, 0.25, got.X, 1e-9)
		assert.InDelta(t, 0.5, got.Y, 1e-9)
	})

	t.Run("resize", func(t *testing.T) {
		tr := base
		tr.Gravity = focus.GravityResize
		got := tr.DevicePointOfInterest(view.Point{X: 100, Y: 200})
		assert.InDelta(t, 0.25, got.X, 1e-9)
		assert.InDelta(t, 0.25, got.Y, 1e-9)
	})
}

func TestDevicePointOfInterestWithoutFrame(t *testing.T) {
	tr := focus.PreviewTransform{Bounds: view.Size{Width: 200, Height: 100}}
	got := tr.DevicePointOfInterest(view.Point{X: 50, Y: 75})
	assert.InDelta(t, 0.25, got.X, 1e-9)
	assert.InDelta(t, 0.75, got.Y, 1e-9)

	empty := focus.PreviewTransform{}
	assert.Equal(t, device.Point{X: 0.5, Y: 0.5}, empty.DevicePointOfInterest(view.Point{}))
}

func TestParseGravity(t *testing.T) {
	assert.Equal(t, focus.GravityResizeAspect, focus.ParseGravity(""))
	assert.Equal(t, focus.GravityResizeAspectFill, focus.ParseGravity("fill"))
	assert.Equal(t, focus.GravityResize, focus.ParseGravity("resize"))
}
