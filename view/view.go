// Package view models the presentation resources a scan attaches to the host
// screen: the helper overlay, the close control and the tap recognizer. It
// computes geometry and lifecycle only; drawing belongs to the host.
package view

import (
	"image/color"
	"sync"

	barcodescan "github.com/ericlevine/barcodescan"
)

// Point is a position on the host screen, in points.
type Point struct {
	X, Y float64
}

// Size is a width and height in points.
type Size struct {
	Width, Height float64
}

// Rect is an axis-aligned rectangle in points.
type Rect struct {
	X, Y, Width, Height float64
}

// Center returns the midpoint of r.
func (r Rect) Center() Point {
	return Point{X: r.X + r.Width/2, Y: r.Y + r.Height/2}
}

// Contains reports whether p lies inside r.
func (r Rect) Contains(p Point) bool {
	return p.X >= r.X && p.X < r.X+r.Width && p.Y >= r.Y && p.Y < r.Y+r.Height
}

const (
	helperWidth        = 240
	helperHeight       = 120
	helperBorderWidth  = 2
	helperCornerRadius = 4
	helperZPosition    = 1000
)

// Overlay is the framing rectangle drawn over the preview to help users aim.
type Overlay struct {
	Frame        Rect
	BorderWidth  float64
	CornerRadius float64
	BorderColor  color.RGBA
	ZPosition    int

	releaseOnce sync.Once
	released    chan struct{}
}

// NewOverlay returns the helper overlay for a preview of the given bounds:
// 240x120 points, centered. It returns nil when the configuration disables the
// helper.
func NewOverlay(cfg barcodescan.Configuration, bounds Size) *Overlay {
	if !cfg.ShowHelperOverlay {
		return nil
	}
	return &Overlay{
		Frame: Rect{
			X:      bounds.Width/2 - helperWidth/2,
			Y:      bounds.Height/2 - helperHeight/2,
			Width:  helperWidth,
			Height: helperHeight,
		},
		BorderWidth:  helperBorderWidth,
		CornerRadius: helperCornerRadius,
		BorderColor:  cfg.HelperColor,
		ZPosition:    helperZPosition,
		released:     make(chan struct{}),
	}
}

// Release removes the overlay. It is idempotent.
func (o *Overlay) Release() {
	o.releaseOnce.Do(func() { close(o.released) })
}

// Released is closed once the overlay has been removed.
func (o *Overlay) Released() <-chan struct{} {
	return o.released
}

// TapRecognizer forwards single taps to a handler until it is released.
type TapRecognizer struct {
	handler func(Point)

	mu       sync.Mutex
	released bool
	taps     int
}

// NewTapRecognizer returns an attached recognizer calling handler for every
// tap.
func NewTapRecognizer(handler func(Point)) *TapRecognizer {
	return &TapRecognizer{handler: handler}
}

// Tap delivers a tap at p. It returns false, without calling the handler,
// once the recognizer is released.
func (r *TapRecognizer) Tap(p Point) bool {
	r.mu.Lock()
	if r.released {
		r.mu.Unlock()
		return false
	}
	r.taps++
	r.mu.Unlock()

	r.handler(p)
	return true
}

// Release detaches the recognizer. It is idempotent.
func (r *TapRecognizer) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.released = true
}

// Released reports whether the recognizer was detached.
func (r *TapRecognizer) Released() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.released
}

// Taps returns the number of taps forwarded.
func (r *TapRecognizer) Taps() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.taps
}
