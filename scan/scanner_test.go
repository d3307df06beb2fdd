package scan

import (
	"context"
	"errors"
	"image"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	barcodescan "github.com/ericlevine/barcodescan"
	"github.com/ericlevine/barcodescan/device"
	"github.com/ericlevine/barcodescan/device/replay"
	"github.com/ericlevine/barcodescan/internal/barcodeimage"
	"github.com/ericlevine/barcodescan/metadata"
	"github.com/ericlevine/barcodescan/metrics"
	"github.com/ericlevine/barcodescan/view"
)

type fakeHost struct {
	mu        sync.Mutex
	dismissed int
	fallback  []error
}

func (h *fakeHost) DismissRequested() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dismissed++
}

func (h *fakeHost) ShowFallback(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.fallback = append(h.fallback, err)
}

func (h *fakeHost) counts() (int, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dismissed, len(h.fallback)
}

func barcodeFrame(t *testing.T, sym barcodescan.Symbology, contents string) image.Image {
	t.Helper()
	img, err := barcodeimage.Render(sym, contents, 300, 100)
	require.NoError(t, err)
	return barcodeimage.Stack(20, img)
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestScannerDeliversFirstResult(t *testing.T) {
	cam := replay.New([]image.Image{
		barcodeimage.Blank(320, 140),
		barcodeFrame(t, barcodescan.SymbologyEAN13, "5901234123457"),
	}, replay.WithInterval(time.Millisecond), replay.WithLoop(true))

	sink := &collectingSink{}
	host := &fakeHost{}
	s := New(cam, sink, WithHost(host), WithMetrics(metrics.New()))

	require.NoError(t, s.Configure(barcodescan.DefaultConfiguration()))
	overlay := s.Overlay()
	require.NotNil(t, overlay)
	require.NoError(t, s.Start(context.Background()))
	assert.NotEmpty(t, s.ID())

	result, err := s.Wait(waitCtx(t))
	require.NoError(t, err)
	assert.Equal(t, barcodescan.Result{Payload: "5901234123457", Symbology: barcodescan.SymbologyEAN13}, result)
	assert.Equal(t, []barcodescan.Result{result}, sink.all())

	dismissed, fallbacks := host.counts()
	assert.Equal(t, 1, dismissed)
	assert.Zero(t, fallbacks)
	assert.Equal(t, barcodescan.StateStopped, s.State())
	assert.True(t, cam.Handle().Closed())

	select {
	case <-overlay.Released():
	default:
		t.Fatal("overlay not released")
	}
	assert.False(t, s.Tap(view.Point{X: 10, Y: 10}))

	// Finished attempts ignore cancel and close.
	s.Cancel()
	require.NoError(t, s.Close())
	assert.Len(t, sink.all(), 1)
}

func TestScannerTwoCodesInOneFrame(t *testing.T) {
	ean, err := barcodeimage.Render(barcodescan.SymbologyEAN13, "5901234123457", 300, 80)
	require.NoError(t, err)
	code39, err := barcodeimage.Render(barcodescan.SymbologyCode39, "SCAN-42", 400, 80)
	require.NoError(t, err)

	cam := replay.New([]image.Image{barcodeimage.Stack(30, ean, code39)},
		replay.WithInterval(time.Millisecond))
	sink := &collectingSink{}
	s := New(cam, sink, WithOutputOptions(metadata.WithTryHarder(true)))

	require.NoError(t, s.Configure(barcodescan.DefaultConfiguration()))
	require.NoError(t, s.Start(context.Background()))

	result, err := s.Wait(waitCtx(t))
	require.NoError(t, err)
	assert.Equal(t, barcodescan.Result{Payload: "5901234123457", Symbology: barcodescan.SymbologyEAN13}, result)
	assert.Len(t, sink.all(), 1)
	assert.Equal(t, int64(1), s.Discarded())
}

func TestScannerWithoutDevice(t *testing.T) {
	host := &fakeHost{}
	sink := &collectingSink{}
	s := New(replay.New(nil, replay.WithoutDevice()), sink, WithHost(host))

	err := s.Configure(barcodescan.DefaultConfiguration())
	assert.ErrorIs(t, err, barcodescan.ErrDeviceUnavailable)
	_, fallbacks := host.counts()
	assert.Equal(t, 1, fallbacks)

	assert.ErrorIs(t, s.Start(context.Background()), barcodescan.ErrNotConfigured)
	assert.Equal(t, barcodescan.StateIdle, s.State())
	assert.False(t, s.Tap(view.Point{X: 1, Y: 1}))
	assert.Nil(t, s.Overlay())

	require.NoError(t, s.Close())
	assert.Empty(t, sink.all())
}

func TestScannerCancel(t *testing.T) {
	cam := replay.New([]image.Image{barcodeimage.Blank(320, 140)},
		replay.WithInterval(time.Millisecond), replay.WithLoop(true))
	host := &fakeHost{}
	sink := &collectingSink{}
	s := New(cam, sink, WithHost(host), WithPreview(view.Size{Width: 320, Height: 140}, 0, 0))

	require.NoError(t, s.Configure(barcodescan.DefaultConfiguration()))
	require.NoError(t, s.Start(context.Background()))

	require.True(t, s.Tap(view.Point{X: 80, Y: 70}))
	p, mode, _ := cam.Handle().Focus()
	assert.InDelta(t, 0.25, p.X, 1e-9)
	assert.InDelta(t, 0.5, p.Y, 1e-9)
	assert.Equal(t, device.FocusModeAutoFocus, mode)

	s.Cancel()
	assert.Equal(t, barcodescan.StateStopped, s.State())
	assert.True(t, cam.Handle().Closed())
	assert.False(t, s.Tap(view.Point{X: 80, Y: 70}))

	_, err := s.Wait(waitCtx(t))
	assert.ErrorIs(t, err, barcodescan.ErrCancelled)
	assert.Empty(t, sink.all())

	dismissed, _ := host.counts()
	assert.Equal(t, 1, dismissed)

	s.Cancel()
	dismissed, _ = host.counts()
	assert.Equal(t, 1, dismissed)
}

func TestScannerStreamEnd(t *testing.T) {
	cam := replay.New([]image.Image{barcodeimage.Blank(320, 140)}, replay.WithInterval(time.Millisecond))
	ended := make(chan error, 1)
	s := New(cam, &collectingSink{}, WithStreamEndHandler(func(err error) { ended <- err }))

	require.NoError(t, s.Configure(barcodescan.DefaultConfiguration()))
	require.NoError(t, s.Start(context.Background()))

	_, err := s.Wait(waitCtx(t))
	assert.True(t, errors.Is(err, barcodescan.ErrCancelled))
	assert.True(t, errors.Is(err, io.EOF))
	assert.ErrorIs(t, <-ended, io.EOF)
	assert.True(t, cam.Handle().Closed())
}

func TestScannerStartTwice(t *testing.T) {
	cam := replay.New([]image.Image{barcodeimage.Blank(320, 140)},
		replay.WithInterval(time.Millisecond), replay.WithLoop(true))
	s := New(cam, &collectingSink{})

	require.NoError(t, s.Configure(barcodescan.DefaultConfiguration()))
	require.NoError(t, s.Start(context.Background()))
	assert.ErrorIs(t, s.Start(context.Background()), barcodescan.ErrInvalidTransition)
	require.NoError(t, s.Close())
}

func TestScannerCloseWithoutStart(t *testing.T) {
	cam := replay.New([]image.Image{barcodeimage.Blank(320, 140)})
	s := New(cam, &collectingSink{})

	require.NoError(t, s.Configure(barcodescan.DefaultConfiguration()))
	require.NoError(t, s.Close())
	assert.True(t, cam.Handle().Closed())

	_, err := s.Wait(waitCtx(t))
	assert.ErrorIs(t, err, barcodescan.ErrCancelled)
}

func TestScannerWaitHonoursContext(t *testing.T) {
	cam := replay.New([]image.Image{barcodeimage.Blank(320, 140)},
		replay.WithInterval(time.Millisecond), replay.WithLoop(true))
	s := New(cam, &collectingSink{})
	require.NoError(t, s.Configure(barcodescan.DefaultConfiguration()))
	require.NoError(t, s.Start(context.Background()))
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, barcodescan.StateRunning, s.State())
}

func TestScannerDefaultCancelLabel(t *testing.T) {
	cam := replay.New([]image.Image{barcodeimage.Blank(320, 140)})
	s := New(cam, &collectingSink{})
	defer s.Close()

	cfg := barcodescan.DefaultConfiguration()
	cfg.CancelLabel = ""
	require.NoError(t, s.Configure(cfg))
	assert.Equal(t, "Cancel", s.Configuration().CancelLabel)
	assert.Equal(t, view.CloseLabel, s.CloseControl())
	assert.Equal(t, view.Rect{X: 145, Y: 822, Width: 100, Height: 44}, s.CloseFrame())
}

func TestScannerCloseIconFrame(t *testing.T) {
	cam := replay.New([]image.Image{barcodeimage.Blank(320, 140)})
	s := New(cam, &collectingSink{}, WithPreview(view.Size{Width: 320, Height: 480}, 0, 0))
	defer s.Close()

	cfg := barcodescan.DefaultConfiguration()
	cfg.CloseIcon = "close.png"
	require.NoError(t, s.Configure(cfg))
	assert.Equal(t, view.CloseIcon, s.CloseControl())
	assert.Equal(t, view.Rect{X: 138, Y: 418, Width: 44, Height: 44}, s.CloseFrame())
}

type blockingSink struct {
	entered chan barcodescan.Result
	release chan struct{}
}

func (s *blockingSink) Deliver(r barcodescan.Result) {
	s.entered <- r
	<-s.release
}

func TestScannerCancelWaitsForDelivery(t *testing.T) {
	cam := replay.New([]image.Image{barcodeFrame(t, barcodescan.SymbologyEAN13, "5901234123457")},
		replay.WithInterval(time.Millisecond), replay.WithLoop(true))
	sink := &blockingSink{entered: make(chan barcodescan.Result, 1), release: make(chan struct{})}
	s := New(cam, sink)

	require.NoError(t, s.Configure(barcodescan.DefaultConfiguration()))
	require.NoError(t, s.Start(context.Background()))

	select {
	case <-sink.entered:
	case <-time.After(10 * time.Second):
		t.Fatal("no delivery")
	}

	cancelled := make(chan struct{})
	go func() {
		s.Cancel()
		close(cancelled)
	}()

	select {
	case <-cancelled:
		t.Fatal("Cancel returned while the result was still being delivered")
	case <-time.After(50 * time.Millisecond):
	}
	assert.False(t, cam.Handle().Closed())

	close(sink.release)
	select {
	case <-cancelled:
	case <-time.After(10 * time.Second):
		t.Fatal("Cancel did not return after delivery")
	}
	assert.True(t, cam.Handle().Closed())

	result, err := s.Wait(waitCtx(t))
	require.NoError(t, err)
	assert.Equal(t, "5901234123457", result.Payload)
}

func TestScannerConfigureWhileRunning(t *testing.T) {
	cam := replay.New([]image.Image{barcodeimage.Blank(320, 140)},
		replay.WithInterval(time.Millisecond), replay.WithLoop(true))
	host := &fakeHost{}
	m := metrics.New()
	s := New(cam, &collectingSink{}, WithHost(host), WithMetrics(m))
	defer s.Close()

	require.NoError(t, s.Configure(barcodescan.DefaultConfiguration()))
	require.NoError(t, s.Start(context.Background()))

	err := s.Configure(barcodescan.DefaultConfiguration())
	assert.ErrorIs(t, err, barcodescan.ErrInvalidTransition)

	_, fallbacks := host.counts()
	assert.Zero(t, fallbacks)
	assert.Equal(t, barcodescan.StateRunning, s.State())

	n, err := testutil.GatherAndCount(m.Registry(), "barcodescan_attempts_total")
	require.NoError(t, err)
	assert.Zero(t, n)
}
