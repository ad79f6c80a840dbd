package mock

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/harunnryd/roundtable/pkg/presentation"
)

// Delivery is one event as the mock transport saw it.
type Delivery struct {
	Event presentation.Event
	At    time.Time
}

// Transport is an in-memory transport for local testing and headless runs.
// It implements the transports.Transport interface without any network dependency.
type Transport struct {
	mu     sync.Mutex
	sent   []Delivery
	closed atomic.Bool
}

func New() *Transport {
	return &Transport{}
}

func (t *Transport) Name() string { return "mock" }

func (t *Transport) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	go func() {
		<-ctx.Done()
		_ = t.Stop()
	}()
	return nil
}

func (t *Transport) Stop() error {
	t.closed.Store(true)
	return nil
}

func (t *Transport) Publish(_ context.Context, ev presentation.Event) error {
	if t.closed.Load() {
		return nil
	}
	t.mu.Lock()
	t.sent = append(t.sent, Delivery{Event: ev, At: time.Now()})
	t.mu.Unlock()
	return nil
}

// Sent exposes published events for inspection.
func (t *Transport) Sent() []Delivery {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Delivery, len(t.sent))
	copy(out, t.sent)
	return out
}

// Events returns only the events, in publish order.
func (t *Transport) Events() []presentation.Event {
	sent := t.Sent()
	out := make([]presentation.Event, len(sent))
	for i, d := range sent {
		out[i] = d.Event
	}
	return out
}
