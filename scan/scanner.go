package scan

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/language"

	barcodescan "github.com/ericlevine/barcodescan"
	"github.com/ericlevine/barcodescan/capture"
	"github.com/ericlevine/barcodescan/device"
	"github.com/ericlevine/barcodescan/focus"
	"github.com/ericlevine/barcodescan/logger"
	"github.com/ericlevine/barcodescan/metadata"
	"github.com/ericlevine/barcodescan/metrics"
	"github.com/ericlevine/barcodescan/telemetry"
	"github.com/ericlevine/barcodescan/view"
)

// Host is the presentation layer a scanner reports to.
type Host interface {
	// DismissRequested is called once the attempt has been torn down, after
	// a delivery or a cancel.
	DismissRequested()

	// ShowFallback is called when configuration fails, typically with
	// ErrDeviceUnavailable, so the host can show a placeholder instead of a
	// preview.
	ShowFallback(err error)
}

// Scanner drives one scan attempt: it configures a capture session, feeds
// its candidates to a Machine, routes taps to the focus controller and
// releases everything once the machine stops. A Scanner is single use.
type Scanner struct {
	id       string
	host     Host
	bounds   view.Size
	gravity  focus.Gravity
	rotation focus.Rotation
	locale   language.Tag
	metrics  *metrics.Metrics
	tracer   trace.Tracer

	session *capture.Session
	machine *Machine
	focus   *focus.Controller

	mu        sync.Mutex
	overlay   *view.Overlay
	taps      *view.TapRecognizer
	started   time.Time
	streamErr error
	running   bool

	finishOnce sync.Once
	finished   chan struct{}
	closeErr   error
}

// Option configures a Scanner.
type Option func(*scannerOptions)

type scannerOptions struct {
	id          string
	host        Host
	bounds      view.Size
	gravity     focus.Gravity
	rotation    focus.Rotation
	locale      language.Tag
	metrics     *metrics.Metrics
	tracer      trace.Tracer
	outputOpts  []metadata.Option
	onStreamEnd func(error)
}

// WithID sets the attempt ID. By default a random UUID is used.
func WithID(id string) Option {
	return func(o *scannerOptions) { o.id = id }
}

// WithHost registers the presentation layer.
func WithHost(h Host) Option {
	return func(o *scannerOptions) { o.host = h }
}

// WithPreview describes the preview the host shows: its bounds in points,
// how frames are fitted into it and the sensor rotation.
func WithPreview(bounds view.Size, gravity focus.Gravity, rotation focus.Rotation) Option {
	return func(o *scannerOptions) {
		o.bounds = bounds
		o.gravity = gravity
		o.rotation = rotation
	}
}

// WithLocale selects the language of the default cancel label.
func WithLocale(tag language.Tag) Option {
	return func(o *scannerOptions) { o.locale = tag }
}

// WithMetrics records attempt metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *scannerOptions) { o.metrics = m }
}

// WithTracer overrides the tracer used for attempt spans.
func WithTracer(t trace.Tracer) Option {
	return func(o *scannerOptions) { o.tracer = t }
}

// WithOutputOptions passes options to the metadata output stage.
func WithOutputOptions(opts ...metadata.Option) Option {
	return func(o *scannerOptions) { o.outputOpts = append(o.outputOpts, opts...) }
}

// WithStreamEndHandler registers fn to run when the frame stream ends before
// a code was found. The attempt is cancelled first.
func WithStreamEndHandler(fn func(error)) Option {
	return func(o *scannerOptions) { o.onStreamEnd = fn }
}

// New returns a scanner reading from camera and delivering to sink.
func New(camera device.Camera, sink barcodescan.ResultSink, opts ...Option) *Scanner {
	o := scannerOptions{
		bounds: view.Size{Width: 390, Height: 844},
		locale: language.English,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.id == "" {
		o.id = uuid.NewString()
	}
	if o.tracer == nil {
		o.tracer = telemetry.Tracer()
	}

	s := &Scanner{
		id:       o.id,
		host:     o.host,
		bounds:   o.bounds,
		gravity:  o.gravity,
		rotation: o.rotation,
		locale:   o.locale,
		metrics:  o.metrics,
		tracer:   o.tracer,
		focus:    focus.NewController(nil, focus.PreviewTransform{Bounds: o.bounds}),
		finished: make(chan struct{}),
	}
	s.session = capture.NewSession(camera, s.onCandidate,
		capture.WithOutputOptions(o.outputOpts...),
		capture.WithStreamEndHandler(func(err error) { s.onStreamEnd(err, o.onStreamEnd) }),
	)
	s.machine = NewMachine(s.session, sink, WithDismiss(s.dismiss))
	return s
}

// ID returns the attempt ID.
func (s *Scanner) ID() string {
	return s.id
}

// State returns the state of the detection state machine.
func (s *Scanner) State() barcodescan.State {
	return s.machine.State()
}

// Configure prepares the capture pipeline. When no camera exists the host is
// asked to show its fallback and ErrDeviceUnavailable is returned; the
// scanner stays unconfigured and Start fails.
func (s *Scanner) Configure(cfg barcodescan.Configuration) error {
	cfg.CancelLabel = view.CancelLabel(cfg, s.locale)
	if err := s.session.Configure(cfg); err != nil {
		if errors.Is(err, barcodescan.ErrInvalidTransition) {
			logger.Log.Warn("configure ignored",
				slog.String("component", "scanner"),
				slog.String("session_id", s.id),
				slog.String("error", err.Error()))
			return err
		}
		outcome := metrics.OutcomeFailed
		if errors.Is(err, barcodescan.ErrDeviceUnavailable) {
			outcome = metrics.OutcomeUnavailable
		}
		s.metrics.AttemptRejected(outcome)
		logger.Log.Warn("scanner configuration failed",
			slog.String("component", "scanner"),
			slog.String("session_id", s.id),
			slog.String("error", err.Error()))
		if s.host != nil {
			s.host.ShowFallback(err)
		}
		return err
	}

	effective := s.session.Configuration()
	overlay := view.NewOverlay(effective, s.bounds)
	if overlay != nil {
		s.machine.AddResource(overlay)
	}

	ctrl := focus.NewController(s.session.Handle(), focus.PreviewTransform{
		Bounds:   s.bounds,
		Frame:    s.session.FrameSize(),
		Gravity:  s.gravity,
		Rotation: s.rotation,
	})
	ctrl.Observe(func(o focus.Outcome) { s.metrics.FocusRequest(o.String()) })

	s.mu.Lock()
	s.overlay = overlay
	s.focus = ctrl
	s.mu.Unlock()
	return nil
}

// Start begins the attempt. The returned error is ErrNotConfigured when
// Configure did not succeed and ErrInvalidTransition when the scanner was
// already started. ctx only parents the attempt span.
func (s *Scanner) Start(ctx context.Context) error {
	if !s.session.Configured() {
		return barcodescan.ErrNotConfigured
	}

	_, span := s.tracer.Start(ctx, "scan.attempt",
		trace.WithAttributes(
			attribute.String("scan.session_id", s.id),
			attribute.String("scan.symbologies", s.session.Configuration().Symbologies.String()),
		))

	if !s.machine.Start() {
		span.End()
		return fmt.Errorf("start in state %s: %w", s.machine.State(), barcodescan.ErrInvalidTransition)
	}

	taps := view.NewTapRecognizer(s.tapToFocus)
	s.machine.AddResource(taps)

	s.mu.Lock()
	s.taps = taps
	s.started = time.Now()
	s.running = true
	s.mu.Unlock()

	s.metrics.AttemptStarted()
	s.session.Start()
	go s.watch(span)

	logger.Log.Info("scan started",
		slog.String("component", "scanner"),
		slog.String("session_id", s.id))
	return nil
}

// Cancel aborts a running attempt. Teardown is complete and the device has
// been released when Cancel returns, also when a result is being delivered
// concurrently; in that case the delivery wins and Cancel waits for it.
// Cancel must not be called from the result sink or from Host callbacks.
func (s *Scanner) Cancel() {
	if s.machine.Cancel() {
		<-s.finished
		return
	}

	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	if running && s.machine.State() != barcodescan.StateIdle {
		<-s.finished
	}
}

// Tap forwards a tap on the preview. Taps before Start or after teardown are
// ignored.
func (s *Scanner) Tap(p view.Point) bool {
	s.mu.Lock()
	taps := s.taps
	s.mu.Unlock()
	if taps == nil {
		return false
	}
	return taps.Tap(p)
}

// Wait blocks until the attempt finishes and returns its result. It returns
// an error wrapping ErrCancelled when the attempt ended without a result, and
// ctx.Err() when ctx is done first; in that case the attempt keeps running.
func (s *Scanner) Wait(ctx context.Context) (barcodescan.Result, error) {
	select {
	case <-s.finished:
	case <-ctx.Done():
		return barcodescan.Result{}, ctx.Err()
	}

	if result, ok := s.machine.Result(); ok {
		return result, nil
	}
	s.mu.Lock()
	streamErr := s.streamErr
	s.mu.Unlock()
	if streamErr != nil {
		return barcodescan.Result{}, fmt.Errorf("%w: %w", barcodescan.ErrCancelled, streamErr)
	}
	return barcodescan.Result{}, barcodescan.ErrCancelled
}

// Done is closed once the attempt has finished and the device is released.
func (s *Scanner) Done() <-chan struct{} {
	return s.finished
}

// Close cancels the attempt if it is running and releases the capture
// session, also when the scanner was configured but never started.
func (s *Scanner) Close() error {
	s.Cancel()

	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	if !running {
		s.finishOnce.Do(func() {
			s.closeErr = s.session.Close()
			close(s.finished)
		})
	}
	<-s.finished
	return s.closeErr
}

// Overlay returns the helper overlay, or nil when it is disabled or the
// scanner is not configured.
func (s *Scanner) Overlay() *view.Overlay {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.overlay
}

// CloseControl returns the close control the host should draw.
func (s *Scanner) CloseControl() view.CloseControl {
	return view.CloseControlFor(s.session.Configuration())
}

// CloseFrame returns where the host should place the close control within
// the preview bounds.
func (s *Scanner) CloseFrame() view.Rect {
	control := s.CloseControl()
	return view.CloseButtonFrame(control, s.bounds, control.Size())
}

// Configuration returns the effective configuration.
func (s *Scanner) Configuration() barcodescan.Configuration {
	return s.session.Configuration()
}

// Discarded returns how many candidates arrived after the result was
// accepted.
func (s *Scanner) Discarded() int64 {
	return s.machine.Discarded()
}

func (s *Scanner) onCandidate(payload string, symbology barcodescan.Symbology) {
	s.machine.OnCandidate(payload, symbology)
}

func (s *Scanner) onStreamEnd(err error, next func(error)) {
	s.mu.Lock()
	if !errors.Is(err, io.EOF) || s.streamErr == nil {
		s.streamErr = err
	}
	s.mu.Unlock()

	if s.machine.Cancel() {
		logger.Log.Info("scan ended without a result",
			slog.String("component", "scanner"),
			slog.String("session_id", s.id),
			slog.String("error", err.Error()))
	}
	if next != nil {
		next(err)
	}
}

func (s *Scanner) tapToFocus(p view.Point) {
	s.mu.Lock()
	ctrl := s.focus
	s.mu.Unlock()

	if err := ctrl.TapToFocus(p); err != nil {
		logger.Log.Debug("tap to focus skipped",
			slog.String("component", "scanner"),
			slog.String("session_id", s.id),
			slog.String("error", err.Error()))
	}
}

func (s *Scanner) dismiss() {
	if s.host != nil {
		s.host.DismissRequested()
	}
}

// watch releases the session once the machine stops. The session cannot be
// closed from the machine itself because teardown may run on the delivery
// goroutine.
func (s *Scanner) watch(span trace.Span) {
	<-s.machine.Done()
	defer span.End()

	closeErr := s.session.Close()

	s.mu.Lock()
	elapsed := time.Since(s.started)
	streamErr := s.streamErr
	s.mu.Unlock()

	outcome := metrics.OutcomeCancelled
	result, delivered := s.machine.Result()
	switch {
	case delivered:
		outcome = metrics.OutcomeDelivered
		span.SetAttributes(attribute.String("scan.symbology", result.Symbology.String()))
	case streamErr != nil && !errors.Is(streamErr, io.EOF):
		outcome = metrics.OutcomeFailed
		span.RecordError(streamErr)
		span.SetStatus(codes.Error, streamErr.Error())
	}
	discarded := s.machine.Discarded()
	span.SetAttributes(
		attribute.String("scan.outcome", outcome),
		attribute.Int64("scan.discarded", discarded),
	)
	s.metrics.AttemptFinished(outcome, elapsed, discarded)

	if closeErr != nil {
		logger.Log.Warn("capture session release failed",
			slog.String("component", "scanner"),
			slog.String("session_id", s.id),
			slog.String("error", closeErr.Error()))
	}
	logger.Log.Info("scan finished",
		slog.String("component", "scanner"),
		slog.String("session_id", s.id),
		slog.String("outcome", outcome),
		slog.Duration("elapsed", elapsed))

	s.finishOnce.Do(func() {
		s.closeErr = closeErr
		close(s.finished)
	})
}
