// Package capture implements the capture session: it owns the device handle,
// the frame input and the metadata output stage, and forwards every decoded
// object to a candidate handler.
package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"

	barcodescan "github.com/ericlevine/barcodescan"
	"github.com/ericlevine/barcodescan/device"
	"github.com/ericlevine/barcodescan/logger"
	"github.com/ericlevine/barcodescan/metadata"
)

// CandidateHandler receives decoded objects. It is called on the session's
// delivery goroutine, in frame order, one call at a time.
type CandidateHandler func(payload string, symbology barcodescan.Symbology)

// Session owns one capture attempt. It is configured once, started once and
// closed once; it cannot be reused.
type Session struct {
	camera      device.Camera
	handler     CandidateHandler
	onStreamEnd func(error)
	outputOpts  []metadata.Option

	mu      sync.Mutex
	state   barcodescan.State
	cfg     barcodescan.Configuration
	handle  device.Handle
	input   device.Input
	output  *metadata.Output
	cancel  context.CancelFunc
	done    chan struct{}
	frames  int
	objects int

	closeOnce sync.Once
	closeErr  error
}

// Option configures a Session.
type Option func(*Session)

// WithStreamEndHandler registers fn to run when the input stream ends on its
// own (EOF or device error), after the delivery goroutine has exited. It is not
// called when the session is stopped.
func WithStreamEndHandler(fn func(error)) Option {
	return func(s *Session) { s.onStreamEnd = fn }
}

// WithOutputOptions passes options to the metadata output stage.
func WithOutputOptions(opts ...metadata.Option) Option {
	return func(s *Session) { s.outputOpts = append(s.outputOpts, opts...) }
}

// NewSession returns an unconfigured session reading from camera.
func NewSession(camera device.Camera, handler CandidateHandler, opts ...Option) *Session {
	s := &Session{
		camera:  camera,
		handler: handler,
		state:   barcodescan.StateIdle,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Configure acquires the default device, attaches its input and a metadata
// output restricted to the configured symbologies. When no camera exists it
// returns ErrDeviceUnavailable and leaves the session unconfigured; partially
// acquired resources are released on every failure.
func (s *Session) Configure(cfg barcodescan.Configuration) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != barcodescan.StateIdle || s.input != nil {
		return fmt.Errorf("configure in state %s: %w", s.state, barcodescan.ErrInvalidTransition)
	}
	s.state = barcodescan.StateConfiguring
	defer func() {
		if err != nil {
			s.releaseLocked()
		}
		s.state = barcodescan.StateIdle
	}()

	handle := s.camera.AcquireDefault()
	if handle == nil {
		logger.Log.Warn("no capture device available",
			slog.String("component", "capture_session"))
		return barcodescan.ErrDeviceUnavailable
	}
	s.handle = handle

	input, err := s.camera.OpenInput(handle)
	if err != nil {
		return fmt.Errorf("open input on %s: %w", handle.ID(), errors.Join(barcodescan.ErrInputAttachFailed, err))
	}
	if !s.canAddInput(input) {
		input.Close()
		return fmt.Errorf("add input on %s: %w", handle.ID(), barcodescan.ErrInputAttachFailed)
	}
	s.input = input

	cfg.Symbologies = cfg.EffectiveSymbologies()
	output := metadata.NewOutput(s.outputOpts...)
	if s.canAddOutput() {
		if err := output.SetSymbologies(cfg.Symbologies); err != nil {
			return err
		}
		s.output = output
	} else {
		logger.Log.Warn("metadata output not accepted",
			slog.String("component", "capture_session"),
			slog.String("device", handle.ID()))
	}
	s.cfg = cfg

	logger.Log.Info("capture session configured",
		slog.String("component", "capture_session"),
		slog.String("device", handle.ID()),
		slog.String("symbologies", cfg.Symbologies.String()))
	return nil
}

func (s *Session) canAddInput(in device.Input) bool {
	if a, ok := s.camera.(device.Admission); ok {
		return a.CanAddInput(in)
	}
	return true
}

func (s *Session) canAddOutput() bool {
	if a, ok := s.camera.(device.Admission); ok {
		return a.CanAddOutput()
	}
	return true
}

// Start begins streaming frames on the delivery goroutine. It is a no-op when
// the session is already running, stopped, or not configured.
func (s *Session) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.state == barcodescan.StateRunning:
		return
	case s.state != barcodescan.StateIdle:
		logger.Log.Warn("start ignored",
			slog.String("component", "capture_session"),
			slog.String("state", s.state.String()))
		return
	case s.input == nil || s.output == nil:
		logger.Log.Warn("start ignored",
			slog.String("component", "capture_session"),
			slog.String("error", barcodescan.ErrNotConfigured.Error()))
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.state = barcodescan.StateRunning
	go s.run(ctx, s.input, s.output, s.done)

	logger.Log.Info("capture session started",
		slog.String("component", "capture_session"))
}

// Stop halts streaming. It does not wait for the delivery goroutine, so it is
// safe to call from the candidate handler; objects already decoded from the
// current frame are still delivered. Stop is idempotent.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != barcodescan.StateRunning {
		return
	}
	s.state = barcodescan.StateStopped
	s.cancel()

	logger.Log.Info("capture session stopped",
		slog.String("component", "capture_session"),
		slog.Int("frames", s.frames),
		slog.Int("objects", s.objects))
}

// Close stops the session, waits for the delivery goroutine to exit and
// releases the input and device handle. It must not be called from the
// candidate handler. Close is idempotent.
func (s *Session) Close() error {
	s.Stop()

	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done != nil {
		<-done
	}

	s.closeOnce.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.closeErr = s.releaseLocked()
		s.state = barcodescan.StateStopped
	})
	return s.closeErr
}

func (s *Session) releaseLocked() error {
	var errs []error
	if s.input != nil {
		errs = append(errs, s.input.Close())
		s.input = nil
	}
	s.output = nil
	if s.handle != nil {
		errs = append(errs, device.Release(s.handle))
		s.handle = nil
	}
	return errors.Join(errs...)
}

func (s *Session) run(ctx context.Context, input device.Input, output *metadata.Output, done chan struct{}) {
	var streamErr error
	defer func() {
		close(done)
		if streamErr != nil && s.onStreamEnd != nil {
			s.onStreamEnd(streamErr)
		}
	}()

	for {
		frame, err := input.NextFrame(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Log.Info("capture stream ended",
				slog.String("component", "capture_session"),
				slog.String("error", err.Error()))
			streamErr = err
			return
		}

		objects, err := output.Analyze(frame)
		s.mu.Lock()
		s.frames++
		s.objects += len(objects)
		s.mu.Unlock()
		if err != nil {
			logger.Log.Debug("frame analysis failed",
				slog.String("component", "capture_session"),
				slog.String("error", err.Error()))
			continue
		}

		for _, obj := range objects {
			s.handler(obj.Payload, obj.Symbology)
		}
	}
}

// State returns the session lifecycle state.
func (s *Session) State() barcodescan.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Configured reports whether an input and metadata output are attached.
func (s *Session) Configured() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.input != nil && s.output != nil
}

// Configuration returns the effective configuration, with symbologies
// resolved.
func (s *Session) Configuration() barcodescan.Configuration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Handle returns the device handle, or nil when no device is attached.
func (s *Session) Handle() device.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle
}

// FrameSize returns the input frame dimensions, or the zero point when no
// input is attached.
func (s *Session) FrameSize() image.Point {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.input == nil {
		return image.Point{}
	}
	return s.input.FrameSize()
}

// Stats returns the number of frames analyzed and objects decoded so far.
func (s *Session) Stats() (frames, objects int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames, s.objects
}
