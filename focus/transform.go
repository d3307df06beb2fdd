package focus

import (
	"image"

	"github.com/ericlevine/barcodescan/device"
	"github.com/ericlevine/barcodescan/view"
)

// Gravity controls how frames are fitted into the preview bounds.
type Gravity int

const (
	// GravityResizeAspect fits the whole frame, letterboxing as needed.
	GravityResizeAspect Gravity = iota
	// GravityResizeAspectFill fills the bounds, cropping the frame.
	GravityResizeAspectFill
	// GravityResize stretches the frame to the bounds.
	GravityResize
)

// ParseGravity maps "aspect", "fill" or "resize" to a Gravity, defaulting to
// GravityResizeAspect.
func ParseGravity(s string) Gravity {
	switch s {
	case "fill", "aspect-fill":
		return GravityResizeAspectFill
	case "resize", "stretch":
		return GravityResize
	default:
		return GravityResizeAspect
	}
}

// Rotation is the clockwise rotation, in degrees, applied to sensor frames
// to display them. Phone cameras in portrait use 90.
type Rotation int

// PreviewTransform converts screen coordinates in the preview into device
// points of interest.
type PreviewTransform struct {
	Bounds   view.Size
	Frame    image.Point
	Gravity  Gravity
	Rotation Rotation
}

// DevicePointOfInterest maps a screen point to a normalized, clamped device
// point. Without frame dimensions the bounds are treated as the frame.
func (t PreviewTransform) DevicePointOfInterest(p view.Point) device.Point {
	if t.Bounds.Width <= 0 || t.Bounds.Height <= 0 {
		return device.Point{X: 0.5, Y: 0.5}
	}

	fw, fh := float64(t.Frame.X), float64(t.Frame.Y)
	if fw <= 0 || fh <= 0 {
		fw, fh = t.Bounds.Width, t.Bounds.Height
	}
	rot := normalize(t.Rotation)
	if rot == 90 || rot == 270 {
		fw, fh = fh, fw
	}

	sx, sy := t.Bounds.Width/fw, t.Bounds.Height/fh
	switch t.Gravity {
	case GravityResizeAspect:
		s := min(sx, sy)
		sx, sy = s, s
	case GravityResizeAspectFill:
		s := max(sx, sy)
		sx, sy = s, s
	}
	cw, ch := fw*sx, fh*sy
	ox, oy := (t.Bounds.Width-cw)/2, (t.Bounds.Height-ch)/2

	u := (p.X - ox) / cw
	v := (p.Y - oy) / ch

	var out device.Point
	switch rot {
	case 90:
		out = device.Point{X: v, Y: 1 - u}
	case 180:
		out = device.Point{X: 1 - u, Y: 1 - v}
	case 270:
		out = device.Point{X: 1 - v, Y: u}
	default:
		out = device.Point{X: u, Y: v}
	}
	return out.Clamp()
}

func normalize(r Rotation) int {
	d := int(r) % 360
	if d < 0 {
		d += 360
	}
	return d
}
