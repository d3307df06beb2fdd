// Package webcam implements a camera backed by an OpenCV video capture
// device. Builds without the gocv tag report no device.
package webcam

import "errors"

// Default capture settings.
const (
	DefaultWidth  = 1280
	DefaultHeight = 720
	DefaultFPS    = 30
)

// ErrNotBuilt is returned by OpenInput when the binary was built without
// OpenCV support.
var ErrNotBuilt = errors.New("webcam support not built in (build with -tags gocv)")

// Config selects and sizes the capture device.
type Config struct {
	Index  int
	Width  int
	Height int
	FPS    int
}

func (c Config) withDefaults() Config {
	if c.Width <= 0 {
		c.Width = DefaultWidth
	}
	if c.Height <= 0 {
		c.Height = DefaultHeight
	}
	if c.FPS <= 0 {
		c.FPS = DefaultFPS
	}
	return c
}
