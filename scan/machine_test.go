package scan

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	barcodescan "github.com/ericlevine/barcodescan"
	"github.com/ericlevine/barcodescan/logger"
)

func TestMain(m *testing.M) {
	logger.Discard()
	m.Run()
}

type countingStopper struct{ n atomic.Int32 }

func (s *countingStopper) Stop() { s.n.Add(1) }

type countingResource struct{ n atomic.Int32 }

func (r *countingResource) Release() { r.n.Add(1) }

type collectingSink struct {
	mu      sync.Mutex
	results []barcodescan.Result
}

func (s *collectingSink) Deliver(r barcodescan.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, r)
}

func (s *collectingSink) all() []barcodescan.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]barcodescan.Result(nil), s.results...)
}

type fixture struct {
	stopper  *countingStopper
	overlay  *countingResource
	gesture  *countingResource
	sink     *collectingSink
	dismissN atomic.Int32
	machine  *Machine
}

func newFixture() *fixture {
	f := &fixture{
		stopper: &countingStopper{},
		overlay: &countingResource{},
		gesture: &countingResource{},
		sink:    &collectingSink{},
	}
	f.machine = NewMachine(f.stopper, f.sink,
		WithResources(f.overlay),
		WithDismiss(func() { f.dismissN.Add(1) }))
	f.machine.AddResource(f.gesture)
	return f
}

func (f *fixture) assertTornDownOnce(t *testing.T) {
	t.Helper()
	assert.Equal(t, int32(1), f.stopper.n.Load(), "stop count")
	assert.Equal(t, int32(1), f.overlay.n.Load(), "overlay releases")
	assert.Equal(t, int32(1), f.gesture.n.Load(), "gesture releases")
	assert.Equal(t, int32(1), f.dismissN.Load(), "dismiss notifications")
}

func TestFirstCandidateWins(t *testing.T) {
	f := newFixture()
	require.True(t, f.machine.Start())

	assert.True(t, f.machine.OnCandidate("012345678905", barcodescan.SymbologyEAN13))
	assert.False(t, f.machine.OnCandidate("0123456789", barcodescan.SymbologyCode39))

	assert.Equal(t, []barcodescan.Result{{Payload: "012345678905", Symbology: barcodescan.SymbologyEAN13}}, f.sink.all())
	assert.Equal(t, barcodescan.StateStopped, f.machine.State())
	assert.Equal(t, int64(1), f.machine.Discarded())
	f.assertTornDownOnce(t)

	res, ok := f.machine.Result()
	assert.True(t, ok)
	assert.Equal(t, "012345678905", res.Payload)

	select {
	case <-f.machine.Done():
	default:
		t.Fatal("done not closed after delivery")
	}
}

func TestManyLateCandidates(t *testing.T) {
	f := newFixture()
	require.True(t, f.machine.Start())

	require.True(t, f.machine.OnCandidate("first", barcodescan.SymbologyQR))
	for i := 0; i < 50; i++ {
		assert.False(t, f.machine.OnCandidate("late", barcodescan.SymbologyCode128))
	}
	assert.False(t, f.machine.Cancel())

	require.Len(t, f.sink.all(), 1)
	assert.Equal(t, "first", f.sink.all()[0].Payload)
	assert.Equal(t, int64(50), f.machine.Discarded())
	f.assertTornDownOnce(t)
}

func TestConcurrentCandidatesDeliverOnce(t *testing.T) {
	f := newFixture()
	require.True(t, f.machine.Start())

	const n = 64
	var wg sync.WaitGroup
	var accepted atomic.Int32
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if f.machine.OnCandidate("payload", barcodescan.SymbologyEAN8) {
				accepted.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), accepted.Load())
	assert.Len(t, f.sink.all(), 1)
	assert.Equal(t, int64(n-1), f.machine.Discarded())
	f.assertTornDownOnce(t)
}

func TestCandidateRacingCancel(t *testing.T) {
	for i := 0; i < 100; i++ {
		f := newFixture()
		require.True(t, f.machine.Start())

		var wg sync.WaitGroup
		wg.Add(2)
		go func() { defer wg.Done(); f.machine.OnCandidate("x", barcodescan.SymbologyUPCE) }()
		go func() { defer wg.Done(); f.machine.Cancel() }()
		wg.Wait()
		<-f.machine.Done()

		assert.LessOrEqual(t, len(f.sink.all()), 1)
		f.assertTornDownOnce(t)
	}
}

func TestCancelBeforeCandidate(t *testing.T) {
	f := newFixture()
	require.True(t, f.machine.Start())

	assert.True(t, f.machine.Cancel())
	assert.False(t, f.machine.OnCandidate("too late", barcodescan.SymbologyEAN13))
	assert.False(t, f.machine.Cancel())

	assert.Empty(t, f.sink.all())
	assert.Equal(t, barcodescan.StateStopped, f.machine.State())
	_, ok := f.machine.Result()
	assert.False(t, ok)
	f.assertTornDownOnce(t)
}

func TestStartTwice(t *testing.T) {
	f := newFixture()
	assert.True(t, f.machine.Start())
	assert.False(t, f.machine.Start())
	assert.Equal(t, barcodescan.StateRunning, f.machine.State())
	assert.Equal(t, int32(0), f.stopper.n.Load())
}

func TestCancelWhileIdle(t *testing.T) {
	f := newFixture()
	assert.False(t, f.machine.Cancel())
	assert.Equal(t, barcodescan.StateIdle, f.machine.State())
	assert.Equal(t, int32(0), f.stopper.n.Load())
	assert.Equal(t, int32(0), f.dismissN.Load())

	require.True(t, f.machine.Start())
	require.True(t, f.machine.Cancel())
	f.assertTornDownOnce(t)
}

func TestCandidateWhileIdle(t *testing.T) {
	f := newFixture()
	assert.False(t, f.machine.OnCandidate("early", barcodescan.SymbologyEAN13))
	assert.Empty(t, f.sink.all())
	assert.Equal(t, barcodescan.StateIdle, f.machine.State())
	assert.Equal(t, int64(0), f.machine.Discarded())
}

func TestStartAfterStop(t *testing.T) {
	f := newFixture()
	require.True(t, f.machine.Start())
	require.True(t, f.machine.Cancel())
	assert.False(t, f.machine.Start())
	assert.Equal(t, barcodescan.StateStopped, f.machine.State())
}

func TestAddResourceAfterTeardown(t *testing.T) {
	f := newFixture()
	require.True(t, f.machine.Start())
	require.True(t, f.machine.Cancel())

	late := &countingResource{}
	f.machine.AddResource(late)
	assert.Equal(t, int32(1), late.n.Load())
}

func TestNilSinkAndStopper(t *testing.T) {
	m := NewMachine(nil, nil)
	require.True(t, m.Start())
	assert.True(t, m.OnCandidate("ok", barcodescan.SymbologyQR))
	<-m.Done()
}
