//go:build gocv

package webcam

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"

	"gocv.io/x/gocv"

	"github.com/ericlevine/barcodescan/device"
	"github.com/ericlevine/barcodescan/logger"
)

// Camera opens OpenCV capture devices.
type Camera struct {
	cfg Config
}

// New returns a camera for the device at cfg.Index.
func New(cfg Config) *Camera {
	return &Camera{cfg: cfg.withDefaults()}
}

// AcquireDefault opens the configured capture device, returning nil when it
// does not exist or cannot be opened.
func (c *Camera) AcquireDefault() device.Handle {
	capture, err := gocv.OpenVideoCapture(c.cfg.Index)
	if err != nil || !capture.IsOpened() {
		if capture != nil {
			capture.Close()
		}
		logger.Log.Debug("video device not available",
			slog.String("component", "webcam"),
			slog.Int("index", c.cfg.Index))
		return nil
	}

	capture.Set(gocv.VideoCaptureFrameWidth, float64(c.cfg.Width))
	capture.Set(gocv.VideoCaptureFrameHeight, float64(c.cfg.Height))
	capture.Set(gocv.VideoCaptureFPS, float64(c.cfg.FPS))

	return &Handle{
		id:      fmt.Sprintf("webcam:%d", c.cfg.Index),
		capture: capture,
	}
}

// OpenInput returns a frame stream reading from h.
func (c *Camera) OpenInput(h device.Handle) (device.Input, error) {
	wh, ok := h.(*Handle)
	if !ok {
		return nil, fmt.Errorf("handle %v is not a webcam", h)
	}
	width := int(wh.capture.Get(gocv.VideoCaptureFrameWidth))
	height := int(wh.capture.Get(gocv.VideoCaptureFrameHeight))
	return &Input{handle: wh, size: image.Pt(width, height)}, nil
}

// Handle owns an open video capture. OpenCV exposes no focus point of
// interest, so only the focus mode is adjustable.
type Handle struct {
	id   string
	lock sync.Mutex

	mu      sync.Mutex
	capture *gocv.VideoCapture
}

func (h *Handle) ID() string { return h.id }

func (h *Handle) FocusPointOfInterestSupported() bool { return false }

func (h *Handle) FocusModeSupported(mode device.FocusMode) bool {
	return mode != device.FocusModeContinuousAutoFocus
}

func (h *Handle) Lock() error {
	if !h.lock.TryLock() {
		return device.ErrLocked
	}
	return nil
}

func (h *Handle) Unlock() { h.lock.Unlock() }

func (h *Handle) SetFocusPoint(device.Point) {}

func (h *Handle) SetFocusMode(mode device.FocusMode) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.capture == nil {
		return
	}
	auto := 0.0
	if mode == device.FocusModeAutoFocus {
		auto = 1
	}
	h.capture.Set(gocv.VideoCaptureAutoFocus, auto)
}

// Close releases the capture device.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.capture == nil {
		return nil
	}
	err := h.capture.Close()
	h.capture = nil
	return err
}

func (h *Handle) read(mat *gocv.Mat) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.capture == nil {
		return errors.New("video device closed")
	}
	if ok := h.capture.Read(mat); !ok {
		return errors.New("failed to read frame from camera")
	}
	return nil
}

// Input reads frames from a webcam handle.
type Input struct {
	handle *Handle
	size   image.Point
}

// NextFrame reads one frame, blocking for at most one frame period.
func (in *Input) NextFrame(ctx context.Context) (image.Image, error) {
	mat := gocv.NewMat()
	defer mat.Close()

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := in.handle.read(&mat); err != nil {
			return nil, err
		}
		if !mat.Empty() {
			break
		}
	}
	return mat.ToImage()
}

func (in *Input) FrameSize() image.Point { return in.size }

// Close is a no-op; the handle owns the capture device.
func (in *Input) Close() error { return nil }
