package llm

import (
	"context"
	"sync"
	"time"

	"github.com/harunnryd/roundtable/pkg/errorsx"
	"github.com/harunnryd/roundtable/pkg/metrics"
	"github.com/harunnryd/roundtable/pkg/resilience"
)

// CircuitBreakerGenerator wraps a Generator with rate-limit circuit breaking.
// Denied and failed calls are returned to the caller; nothing is retried.
type CircuitBreakerGenerator struct {
	inner   Generator
	breaker *resilience.CircuitBreaker
	obs     metrics.Observer
	open    bool
	mu      sync.Mutex
}

func NewCircuitBreakerGenerator(inner Generator, breaker *resilience.CircuitBreaker) *CircuitBreakerGenerator {
	if breaker == nil {
		breaker = resilience.NewCircuitBreaker(3, 30*time.Second)
	}
	return &CircuitBreakerGenerator{inner: inner, breaker: breaker}
}

func (g *CircuitBreakerGenerator) Name() string { return g.inner.Name() }

// SetObserver allows metrics emission for breaker events.
func (g *CircuitBreakerGenerator) SetObserver(obs metrics.Observer) { g.obs = obs }

func (g *CircuitBreakerGenerator) Generate(ctx context.Context, req Request) (Response, error) {
	if !g.breaker.Allow() {
		g.setOpen(true)
		g.record(metrics.EventBreakerDenied)
		return Response{}, errorsx.Wrap(resilience.RateLimitError{
			Provider:   g.Name(),
			Message:    "circuit open",
			RetryAfter: g.breaker.Remaining(),
		}, errorsx.ReasonCircuitOpen)
	}
	g.setOpen(false)
	resp, err := g.inner.Generate(ctx, req)
	if err != nil {
		if resilience.IsRateLimit(err) {
			g.record(metrics.EventRateLimit)
			err = errorsx.Wrap(err, errorsx.ReasonRateLimit)
		}
		g.breaker.OnError(err)
		return Response{}, err
	}
	g.breaker.OnSuccess()
	return resp, nil
}

func (g *CircuitBreakerGenerator) record(name string) {
	if g.obs == nil {
		return
	}
	g.obs.RecordEvent(metrics.MetricsEvent{
		Name: name,
		Time: time.Now(),
		Tags: map[string]string{
			"provider":  g.inner.Name(),
			"component": "llm",
		},
	})
}

func (g *CircuitBreakerGenerator) setOpen(open bool) {
	g.mu.Lock()
	changed := g.open != open
	g.open = open
	g.mu.Unlock()
	if !changed {
		return
	}
	if open {
		g.record(metrics.EventBreakerOpen)
		return
	}
	g.record(metrics.EventBreakerClose)
}
