package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/harunnryd/roundtable/pkg/errorsx"
	"github.com/harunnryd/roundtable/pkg/metrics"
	"github.com/harunnryd/roundtable/pkg/resilience"
)

func TestStripReasoningRemovesEverySpan(t *testing.T) {
	in := "<think>plan one</think>Hello <think>plan\ntwo</think>there<think></think>!"
	if got := StripReasoning(in); got != "Hello there!" {
		t.Fatalf("unexpected result %q", got)
	}
}

func TestStripReasoningWithoutSpansIsUnchanged(t *testing.T) {
	in := "  plain text, with spacing  "
	if got := StripReasoning(in); got != in {
		t.Fatalf("expected unchanged text, got %q", got)
	}
}

func TestStripReasoningUnclosedAndStray(t *testing.T) {
	if got := StripReasoning("Answer first. <think>never closed"); got != "Answer first." {
		t.Fatalf("unexpected unclosed result %q", got)
	}
	if got := StripReasoning("oops</think> fine"); got != "oops fine" {
		t.Fatalf("unexpected stray result %q", got)
	}
}

func TestCleanForSpeech(t *testing.T) {
	if got := CleanForSpeech("<think>x</think> *waves* hi"); got != "waves hi" {
		t.Fatalf("unexpected result %q", got)
	}
}

func TestCircuitBreakerGeneratorDeniesWhenOpen(t *testing.T) {
	calls := 0
	inner := GeneratorFunc(func(ctx context.Context, req Request) (Response, error) {
		calls++
		return Response{}, resilience.RateLimitError{Provider: "x", Message: "slow down"}
	})
	mem := metrics.NewMemoryObserver()
	g := NewCircuitBreakerGenerator(inner, resilience.NewCircuitBreaker(1, time.Hour))
	g.SetObserver(mem)

	_, err := g.Generate(context.Background(), Request{})
	if !errorsx.HasReason(err, errorsx.ReasonRateLimit) {
		t.Fatalf("expected rate limit reason, got %v", err)
	}
	_, err = g.Generate(context.Background(), Request{})
	if !errorsx.HasReason(err, errorsx.ReasonCircuitOpen) {
		t.Fatalf("expected circuit open reason, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected the open breaker to skip the provider, got %d calls", calls)
	}
	if mem.Count(metrics.EventBreakerOpen) != 1 || mem.Count(metrics.EventBreakerDenied) != 1 {
		t.Fatalf("expected breaker open and denied events")
	}
}

func TestTracedGeneratorPassesThrough(t *testing.T) {
	want := errors.New("down")
	g := NewTracedGenerator(GeneratorFunc(func(ctx context.Context, req Request) (Response, error) {
		if req.Model != "m" {
			t.Fatalf("expected model to pass through")
		}
		return Response{}, want
	}))
	if _, err := g.Generate(context.Background(), Request{Model: "m"}); !errors.Is(err, want) {
		t.Fatalf("expected inner error, got %v", err)
	}
}
