// Package scan implements the detection state machine and the scanner that
// drives one scan attempt from configuration to result delivery.
package scan

import (
	"log/slog"
	"sync"
	"sync/atomic"

	barcodescan "github.com/ericlevine/barcodescan"
	"github.com/ericlevine/barcodescan/logger"
)

// Stopper halts a capture session without waiting for it.
type Stopper interface {
	Stop()
}

// Releaser is a presentation resource detached during teardown, such as the
// helper overlay or the tap recognizer.
type Releaser interface {
	Release()
}

// Machine is the detection state machine for one scan attempt:
//
//	Idle -> Running -> Completing -> Stopped
//	        Running -------------> Stopped   (cancel)
//
// The first candidate accepted while Running wins. Teardown (stopping the
// session and releasing resources) runs exactly once and the result sink is
// invoked at most once, however many candidates race in.
type Machine struct {
	state     atomic.Int32
	stopper   Stopper
	sink      barcodescan.ResultSink
	dismiss   func()
	discarded atomic.Int64

	mu        sync.Mutex
	resources []Releaser
	tornDown  bool
	result    barcodescan.Result
	delivered bool

	teardownOnce sync.Once
	doneOnce     sync.Once
	done         chan struct{}
}

// MachineOption configures a Machine.
type MachineOption func(*Machine)

// WithDismiss registers fn to run once teardown has completed, after a
// delivery or a cancel.
func WithDismiss(fn func()) MachineOption {
	return func(m *Machine) { m.dismiss = fn }
}

// WithResources registers resources released during teardown.
func WithResources(resources ...Releaser) MachineOption {
	return func(m *Machine) { m.resources = append(m.resources, resources...) }
}

// NewMachine returns an Idle machine that stops stopper and delivers to sink.
func NewMachine(stopper Stopper, sink barcodescan.ResultSink, opts ...MachineOption) *Machine {
	m := &Machine{
		stopper: stopper,
		sink:    sink,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.state.Store(int32(barcodescan.StateIdle))
	return m
}

// State returns the current state.
func (m *Machine) State() barcodescan.State {
	return barcodescan.State(m.state.Load())
}

// Start moves Idle to Running. From any other state it logs and returns false.
func (m *Machine) Start() bool {
	if !m.transition(barcodescan.StateIdle, barcodescan.StateRunning) {
		m.invalid("start")
		return false
	}
	return true
}

// OnCandidate offers a decoded code. The first candidate seen while Running is
// accepted: the session is stopped, resources are released, the machine
// reaches Stopped and the sink receives the result. Candidates arriving while
// Completing or Stopped are discarded; that is normal for frames holding more
// than one code and for events emitted before the session finishes stopping.
func (m *Machine) OnCandidate(payload string, symbology barcodescan.Symbology) bool {
	if !m.transition(barcodescan.StateRunning, barcodescan.StateCompleting) {
		switch state := m.State(); state {
		case barcodescan.StateCompleting, barcodescan.StateStopped:
			m.discarded.Add(1)
			logger.Log.Debug("late candidate discarded",
				slog.String("component", "scan_machine"),
				slog.String("symbology", symbology.String()),
				slog.String("state", state.String()))
		default:
			m.invalid("candidate")
		}
		return false
	}

	result := barcodescan.Result{Payload: payload, Symbology: symbology}
	m.teardown()

	m.mu.Lock()
	m.result = result
	m.delivered = true
	m.mu.Unlock()
	m.state.Store(int32(barcodescan.StateStopped))

	logger.Log.Info("scan result accepted",
		slog.String("component", "scan_machine"),
		slog.String("symbology", symbology.String()))

	if m.sink != nil {
		m.sink.Deliver(result)
	}
	m.finish()
	return true
}

// Cancel moves Running to Stopped without delivering anything, after the same
// teardown as a completed scan. Teardown has finished when Cancel returns. From
// any other state Cancel is a no-op.
func (m *Machine) Cancel() bool {
	if !m.transition(barcodescan.StateRunning, barcodescan.StateStopped) {
		if m.State() == barcodescan.StateIdle {
			m.invalid("cancel")
		}
		return false
	}
	m.teardown()

	logger.Log.Info("scan cancelled",
		slog.String("component", "scan_machine"))
	m.finish()
	return true
}

// AddResource registers a resource for release during teardown. A resource
// added after teardown is released immediately.
func (m *Machine) AddResource(r Releaser) {
	m.mu.Lock()
	if !m.tornDown {
		m.resources = append(m.resources, r)
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()
	r.Release()
}

// Done is closed when the machine reaches Stopped and the sink and dismiss
// callbacks have returned.
func (m *Machine) Done() <-chan struct{} {
	return m.done
}

// Result returns the delivered result. ok is false when nothing was delivered.
func (m *Machine) Result() (result barcodescan.Result, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.result, m.delivered
}

// Discarded returns how many candidates arrived after the first was accepted.
func (m *Machine) Discarded() int64 {
	return m.discarded.Load()
}

func (m *Machine) transition(from, to barcodescan.State) bool {
	return m.state.CompareAndSwap(int32(from), int32(to))
}

func (m *Machine) teardown() {
	m.teardownOnce.Do(func() {
		if m.stopper != nil {
			m.stopper.Stop()
		}

		m.mu.Lock()
		resources := m.resources
		m.resources = nil
		m.tornDown = true
		m.mu.Unlock()

		for _, r := range resources {
			r.Release()
		}
	})
}

func (m *Machine) finish() {
	m.doneOnce.Do(func() {
		if m.dismiss != nil {
			m.dismiss()
		}
		close(m.done)
	})
}

func (m *Machine) invalid(op string) {
	logger.Log.Warn("operation ignored",
		slog.String("component", "scan_machine"),
		slog.String("op", op),
		slog.String("state", m.State().String()),
		slog.String("error", barcodescan.ErrInvalidTransition.Error()))
}
