package metrics

import (
	"sync"
	"sync/atomic"
)

const defaultAsyncBuffer = 256

// AsyncObserver hands events to a background goroutine so slow sinks never
// stall a speaking agent. A full buffer drops the event.
type AsyncObserver struct {
	inner Observer
	ch    chan MetricsEvent
	stop  chan struct{}
	done  chan struct{}

	closed    atomic.Bool
	delivered atomic.Int64
	dropped   atomic.Int64
	closeOnce sync.Once
}

func NewAsyncObserver(inner Observer, buffer int) *AsyncObserver {
	if buffer <= 0 {
		buffer = defaultAsyncBuffer
	}
	a := &AsyncObserver{
		inner: inner,
		ch:    make(chan MetricsEvent, buffer),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go a.drain()
	return a
}

func (a *AsyncObserver) RecordEvent(ev MetricsEvent) {
	if a == nil || a.closed.Load() {
		return
	}
	select {
	case a.ch <- ev:
	default:
		a.dropped.Add(1)
	}
}

func (a *AsyncObserver) Dropped() int64   { return a.dropped.Load() }
func (a *AsyncObserver) Delivered() int64 { return a.delivered.Load() }

// Close stops intake. Events already buffered are still delivered.
func (a *AsyncObserver) Close() {
	if a == nil {
		return
	}
	a.closeOnce.Do(func() {
		a.closed.Store(true)
		close(a.stop)
	})
}

// Flush closes the observer, waits for the buffer to drain and flushes
// the inner sink when it supports it.
func (a *AsyncObserver) Flush() error {
	if a == nil {
		return nil
	}
	a.Close()
	<-a.done
	if f, ok := a.inner.(Flusher); ok {
		return f.Flush()
	}
	return nil
}

func (a *AsyncObserver) drain() {
	defer close(a.done)
	for {
		select {
		case ev := <-a.ch:
			a.deliver(ev)
		case <-a.stop:
			for {
				select {
				case ev := <-a.ch:
					a.deliver(ev)
				default:
					return
				}
			}
		}
	}
}

func (a *AsyncObserver) deliver(ev MetricsEvent) {
	a.inner.RecordEvent(ev)
	a.delivered.Add(1)
}
