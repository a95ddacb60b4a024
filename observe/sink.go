package observe

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// Sink receives loop events. Emit errors are reported by the caller but never
// change the outcome of a scan.
type Sink interface {
	Emit(ctx context.Context, event Event) error
}

type SinkFunc func(ctx context.Context, event Event) error

func (f SinkFunc) Emit(ctx context.Context, event Event) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type NoopSink struct{}

func (NoopSink) Emit(context.Context, Event) error { return nil }

// MultiSink fans one event out to several sinks.
type MultiSink []Sink

// NewMultiSink drops nil sinks and avoids wrapping when zero or one remain.
func NewMultiSink(sinks ...Sink) Sink {
	var out MultiSink
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	switch len(out) {
	case 0:
		return NoopSink{}
	case 1:
		return out[0]
	}
	return out
}

// Emit delivers to every sink even when an earlier one fails.
func (m MultiSink) Emit(ctx context.Context, event Event) error {
	errs := make([]error, 0, len(m))
	for _, s := range m {
		errs = append(errs, s.Emit(ctx, event))
	}
	return errors.Join(errs...)
}

// AsyncSink hands events to a single goroutine so slow exporters never stall
// the loop. Events are dropped, and counted, when the buffer is full or the
// sink is closed.
type AsyncSink struct {
	downstream Sink
	queue      chan Event
	mu         sync.RWMutex
	closed     bool
	dropped    atomic.Int64
	done       chan struct{}
}

func NewAsyncSink(downstream Sink, buffer int) *AsyncSink {
	if downstream == nil {
		downstream = NoopSink{}
	}
	if buffer <= 0 {
		buffer = 256
	}
	s := &AsyncSink{
		downstream: downstream,
		queue:      make(chan Event, buffer),
		done:       make(chan struct{}),
	}
	go func() {
		defer close(s.done)
		for event := range s.queue {
			_ = s.downstream.Emit(context.Background(), event)
		}
	}()
	return s
}

func (s *AsyncSink) Emit(ctx context.Context, event Event) error {
	if s == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	event.Normalize()

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.dropped.Add(1)
		return nil
	}
	select {
	case s.queue <- event:
	default:
		s.dropped.Add(1)
	}
	return nil
}

// Dropped returns how many events never reached the downstream sink.
func (s *AsyncSink) Dropped() int64 {
	if s == nil {
		return 0
	}
	return s.dropped.Load()
}

// Close stops accepting events and waits until the queue is drained. It is
// safe to call more than once.
func (s *AsyncSink) Close() {
	if s == nil {
		return
	}
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()
	<-s.done
}
