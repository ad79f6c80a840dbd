package control

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrClosed is returned by Next once the queue is closed and drained.
var ErrClosed = errors.New("control queue closed")

// Stats counts events per lane.
type Stats struct {
	UrgentPush int64
	NormalPush int64
	UrgentPop  int64
	NormalPop  int64
	Dropped    int64
}

// Queue decouples input listeners from the human relay. Pause, terminate and
// shutdown travel in an urgent lane that is always drained before the normal
// lane, so they are never stuck behind a burst of activations.
type Queue struct {
	urgent chan Event
	normal chan Event
	once   sync.Once
	mu     sync.RWMutex
	closed bool

	// onShutdown runs on the pushing goroutine, so shutdown takes effect
	// even while the consumer is blocked.
	onShutdown atomic.Pointer[func()]

	urgentPush atomic.Int64
	normalPush atomic.Int64
	urgentPop  atomic.Int64
	normalPop  atomic.Int64
	dropped    atomic.Int64
}

// NewQueue returns a queue whose lanes each buffer size events.
func NewQueue(size int) *Queue {
	if size <= 0 {
		size = 32
	}
	return &Queue{
		urgent: make(chan Event, size),
		normal: make(chan Event, size),
	}
}

// Urgent reports whether ev travels in the urgent lane.
func Urgent(ev Event) bool {
	switch ev.Kind {
	case KindPause, KindTerminate, KindShutdown:
		return true
	default:
		return false
	}
}

// OnShutdown registers fn to run when a shutdown event is pushed.
func (q *Queue) OnShutdown(fn func()) {
	q.onShutdown.Store(&fn)
}

// Push enqueues ev without blocking; it reports false if its lane is full
// or the queue is closed. A shutdown event fires the OnShutdown hook first,
// whether or not it can be queued.
func (q *Queue) Push(ev Event) bool {
	if ev.Kind == KindShutdown {
		if fn := q.onShutdown.Load(); fn != nil && *fn != nil {
			(*fn)()
		}
	}
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return false
	}
	lane, count := q.normal, &q.normalPush
	if Urgent(ev) {
		lane, count = q.urgent, &q.urgentPush
	}
	select {
	case lane <- ev:
		count.Add(1)
		return true
	default:
		q.dropped.Add(1)
		return false
	}
}

func (q *Queue) Next(ctx context.Context) (Event, error) {
	urgent, normal := q.urgent, q.normal
	for urgent != nil || normal != nil {
		if urgent != nil {
			select {
			case ev, ok := <-urgent:
				if !ok {
					urgent = nil
					continue
				}
				q.urgentPop.Add(1)
				return ev, nil
			default:
			}
		}
		select {
		case <-ctx.Done():
			return Event{}, ctx.Err()
		case ev, ok := <-urgent:
			if !ok {
				urgent = nil
				continue
			}
			q.urgentPop.Add(1)
			return ev, nil
		case ev, ok := <-normal:
			if !ok {
				normal = nil
				continue
			}
			q.normalPop.Add(1)
			return ev, nil
		}
	}
	return Event{}, ErrClosed
}

// TryNext returns the next queued event without waiting.
func (q *Queue) TryNext() (Event, bool) {
	select {
	case ev, ok := <-q.urgent:
		if ok {
			q.urgentPop.Add(1)
			return ev, true
		}
	default:
	}
	select {
	case ev, ok := <-q.normal:
		if ok {
			q.normalPop.Add(1)
		}
		return ev, ok
	default:
		return Event{}, false
	}
}

func (q *Queue) Stats() Stats {
	return Stats{
		UrgentPush: q.urgentPush.Load(),
		NormalPush: q.normalPush.Load(),
		UrgentPop:  q.urgentPop.Load(),
		NormalPop:  q.normalPop.Load(),
		Dropped:    q.dropped.Load(),
	}
}

func (q *Queue) Close() {
	q.once.Do(func() {
		q.mu.Lock()
		q.closed = true
		close(q.urgent)
		close(q.normal)
		q.mu.Unlock()
	})
}
