package event

import (
	"sync/atomic"
	"time"

	"github.com/nivex/fastgate/internal/metrics"
)

// Sink receives emitted events. Push reports whether the event was
// accepted; a full sink returns false instead of blocking.
type Sink interface {
	Push(Event) bool
}

// Emitter gates events on a runtime-adjustable minimum severity and
// forwards the survivors to its sink. Emit never blocks and never
// fails: a rejected push only increments the drop counter.
type Emitter struct {
	sink    Sink
	min     atomic.Int32
	emitted atomic.Uint64
	dropped atomic.Uint64
}

// NewEmitter creates an emitter with the given severity floor.
func NewEmitter(sink Sink, min Severity) *Emitter {
	e := &Emitter{sink: sink}
	e.min.Store(int32(min))
	return e
}

// MinSeverity returns the current severity floor.
func (e *Emitter) MinSeverity() Severity {
	return Severity(e.min.Load())
}

// SetMinSeverity adjusts the severity floor at runtime.
func (e *Emitter) SetMinSeverity(min Severity) {
	e.min.Store(int32(min))
}

// Emit stamps ev and pushes it to the sink unless its severity is
// below the floor. Safe to call from the packet path.
func (e *Emitter) Emit(ev Event) {
	if ev.Severity < Severity(e.min.Load()) {
		return
	}
	ev.Timestamp = time.Now()
	if e.sink.Push(ev) {
		e.emitted.Add(1)
		metrics.EventsEmittedTotal.Inc()
	} else {
		e.dropped.Add(1)
		metrics.EventsDroppedTotal.Inc()
	}
}

// Emitted returns how many events reached the sink.
func (e *Emitter) Emitted() uint64 { return e.emitted.Load() }

// Dropped returns how many events were discarded by a full sink.
func (e *Emitter) Dropped() uint64 { return e.dropped.Load() }

// ChannelSink is the bounded out-of-band channel between the
// classifier and the log consumer.
type ChannelSink struct {
	ch chan Event
}

// NewChannelSink creates a sink buffering up to capacity events.
func NewChannelSink(capacity int) *ChannelSink {
	if capacity <= 0 {
		capacity = 1024
	}
	return &ChannelSink{ch: make(chan Event, capacity)}
}

// Push enqueues ev without blocking. Returns false when the channel
// is full; the event is lost in that case.
func (s *ChannelSink) Push(ev Event) bool {
	select {
	case s.ch <- ev:
		return true
	default:
		return false
	}
}

// Events exposes the receive side for the consumer.
func (s *ChannelSink) Events() <-chan Event {
	return s.ch
}
