// Package replay implements a camera that streams a fixed list of still
// images. It stands in for hardware in simulators, on the command line and in
// tests.
package replay

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"  // register decoder
	_ "image/jpeg" // register decoder
	_ "image/png"  // register decoder
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/ericlevine/barcodescan/device"
)

// DefaultInterval is the delay between frames, roughly 30 fps.
const DefaultInterval = 33 * time.Millisecond

// Camera replays frames. The zero value is not usable; call New.
type Camera struct {
	frames   []image.Image
	interval time.Duration
	loop     bool
	absent   bool
	openErr  error
	noInput  bool
	noOutput bool
	focus    bool
	handle   *Handle
}

// Option configures a Camera.
type Option func(*Camera)

// WithInterval sets the delay between frames.
func WithInterval(d time.Duration) Option {
	return func(c *Camera) { c.interval = d }
}

// WithLoop restarts the frame list when it is exhausted instead of ending
// the stream.
func WithLoop(loop bool) Option {
	return func(c *Camera) { c.loop = loop }
}

// WithoutDevice makes AcquireDefault report that no camera exists.
func WithoutDevice() Option {
	return func(c *Camera) { c.absent = true }
}

// WithOpenError makes OpenInput fail with err.
func WithOpenError(err error) Option {
	return func(c *Camera) { c.openErr = err }
}

// WithInputRejected makes the camera refuse opened inputs.
func WithInputRejected() Option {
	return func(c *Camera) { c.noInput = true }
}

// WithOutputRejected makes the camera refuse metadata outputs.
func WithOutputRejected() Option {
	return func(c *Camera) { c.noOutput = true }
}

// WithFocusSupport sets whether the handle supports point-of-interest and
// auto focus. Defaults to true.
func WithFocusSupport(supported bool) Option {
	return func(c *Camera) { c.focus = supported }
}

// New returns a camera replaying frames in order.
func New(frames []image.Image, opts ...Option) *Camera {
	c := &Camera{
		frames:   frames,
		interval: DefaultInterval,
		focus:    true,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.handle = &Handle{
		id:    "replay",
		focus: c.focus,
		lock:  semaphore.NewWeighted(1),
	}
	return c
}

// Load decodes the image files at paths (PNG, JPEG, GIF) and returns a
// camera replaying them. Directories are expanded to the images they contain,
// in name order.
func Load(paths []string, opts ...Option) (*Camera, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		entries, err := os.ReadDir(p)
		if err != nil {
			return nil, err
		}
		var names []string
		for _, e := range entries {
			if !e.IsDir() && isImage(e.Name()) {
				names = append(names, filepath.Join(p, e.Name()))
			}
		}
		sort.Strings(names)
		files = append(files, names...)
	}

	frames := make([]image.Image, 0, len(files))
	for _, path := range files {
		img, err := decodeFile(path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		frames = append(frames, img)
	}
	return New(frames, opts...), nil
}

func isImage(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png", ".jpg", ".jpeg", ".gif":
		return true
	}
	return false
}

func decodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

// AcquireDefault returns the replay handle, or nil when configured without a
// device.
func (c *Camera) AcquireDefault() device.Handle {
	if c.absent {
		return nil
	}
	return c.handle
}

// OpenInput opens a new frame stream.
func (c *Camera) OpenInput(h device.Handle) (device.Input, error) {
	if c.openErr != nil {
		return nil, c.openErr
	}
	if h != device.Handle(c.handle) {
		return nil, fmt.Errorf("handle %v does not belong to this camera", h)
	}
	in := &Input{
		frames:   c.frames,
		interval: c.interval,
		loop:     c.loop,
	}
	if len(c.frames) > 0 {
		in.size = c.frames[0].Bounds().Size()
	}
	return in, nil
}

// CanAddInput reports whether a session may attach in.
func (c *Camera) CanAddInput(device.Input) bool { return !c.noInput }

// CanAddOutput reports whether a session may attach a metadata output.
func (c *Camera) CanAddOutput() bool { return !c.noOutput }

// Handle returns the camera's device handle for inspection.
func (c *Camera) Handle() *Handle {
	return c.handle
}

// Handle is the replay device handle. It records the focus settings applied
// to it.
type Handle struct {
	id    string
	focus bool
	lock  *semaphore.Weighted

	mu      sync.Mutex
	point   device.Point
	mode    device.FocusMode
	changes int

	closed atomic.Bool
}

// ID returns the device identifier.
func (h *Handle) ID() string { return h.id }

// FocusPointOfInterestSupported reports whether the camera was built with
// focus support.
func (h *Handle) FocusPointOfInterestSupported() bool { return h.focus }

// FocusModeSupported reports every mode with focus support, and only the
// locked mode without it.
func (h *Handle) FocusModeSupported(mode device.FocusMode) bool {
	return h.focus || mode == device.FocusModeLocked
}

// Lock takes the configuration lock without waiting.
func (h *Handle) Lock() error {
	if !h.lock.TryAcquire(1) {
		return device.ErrLocked
	}
	return nil
}

// Unlock releases the configuration lock.
func (h *Handle) Unlock() {
	h.lock.Release(1)
}

// SetFocusPoint records p as the point of interest.
func (h *Handle) SetFocusPoint(p device.Point) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.point = p
	h.changes++
}

// SetFocusMode records mode.
func (h *Handle) SetFocusMode(mode device.FocusMode) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.mode = mode
	h.changes++
}

// Focus returns the last applied point of interest and focus mode, and how
// many focus settings have been applied in total.
func (h *Handle) Focus() (device.Point, device.FocusMode, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.point, h.mode, h.changes
}

// Close marks the handle released.
func (h *Handle) Close() error {
	h.closed.Store(true)
	return nil
}

// Closed reports whether the owning session released the handle.
func (h *Handle) Closed() bool {
	return h.closed.Load()
}

// Input streams the replayed frames.
type Input struct {
	frames   []image.Image
	interval time.Duration
	loop     bool
	size     image.Point

	mu     sync.Mutex
	next   int
	closed bool
}

// NextFrame waits one interval and returns the next frame.
func (in *Input) NextFrame(ctx context.Context) (image.Image, error) {
	if in.interval > 0 {
		timer := time.NewTimer(in.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	in.mu.Lock()
	defer in.mu.Unlock()

	if in.closed {
		return nil, io.EOF
	}
	if in.next >= len(in.frames) {
		if !in.loop || len(in.frames) == 0 {
			return nil, io.EOF
		}
		in.next = 0
	}
	frame := in.frames[in.next]
	in.next++
	return frame, nil
}

// FrameSize returns the size of the first frame.
func (in *Input) FrameSize() image.Point { return in.size }

// Close ends the stream; later NextFrame calls return io.EOF.
func (in *Input) Close() error {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.closed = true
	return nil
}
