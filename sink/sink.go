// Package sink provides ResultSink implementations.
package sink

import (
	"sync"

	barcodescan "github.com/ericlevine/barcodescan"
)

// Func adapts a function to a ResultSink.
func Func(fn func(barcodescan.Result)) barcodescan.ResultSink {
	return barcodescan.SinkFunc(fn)
}

// Chan is a sink that hands the result to a reader over a channel. Deliver
// never blocks; a second delivery is dropped.
type Chan struct {
	ch chan barcodescan.Result
}

// NewChan returns a sink with a one-slot buffer.
func NewChan() *Chan {
	return &Chan{ch: make(chan barcodescan.Result, 1)}
}

// Deliver implements barcodescan.ResultSink.
func (c *Chan) Deliver(result barcodescan.Result) {
	select {
	case c.ch <- result:
	default:
	}
}

// C returns the channel results are delivered on.
func (c *Chan) C() <-chan barcodescan.Result {
	return c.ch
}

// Multi delivers to every sink in order.
type Multi []barcodescan.ResultSink

// Deliver implements barcodescan.ResultSink.
func (m Multi) Deliver(result barcodescan.Result) {
	for _, s := range m {
		if s != nil {
			s.Deliver(result)
		}
	}
}

// Once forwards only the first delivery to the wrapped sink.
type Once struct {
	next barcodescan.ResultSink
	once sync.Once
}

// NewOnce wraps next.
func NewOnce(next barcodescan.ResultSink) *Once {
	return &Once{next: next}
}

// Deliver implements barcodescan.ResultSink.
func (o *Once) Deliver(result barcodescan.Result) {
	o.once.Do(func() { o.next.Deliver(result) })
}
