package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPointClamp(t *testing.T) {
	assert.Equal(t, Point{X: 0, Y: 1}, Point{X: -0.2, Y: 1.7}.Clamp())
	assert.Equal(t, Point{X: 0.25, Y: 0.5}, Point{X: 0.25, Y: 0.5}.Clamp())
}

func TestUnavailable(t *testing.T) {
	var cam Camera = Unavailable{}
	assert.Nil(t, cam.AcquireDefault())
	_, err := cam.OpenInput(nil)
	assert.Error(t, err)
}

func TestFocusModeString(t *testing.T) {
	assert.Equal(t, "auto", FocusModeAutoFocus.String())
	assert.Equal(t, "unknown", FocusMode(9).String())
}
