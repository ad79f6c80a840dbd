package mock

import (
	"context"
	"sync"
	"time"

	"github.com/harunnryd/roundtable/pkg/llm"
)

// LLMAdapter answers with canned replies, cycling through Responses.
type LLMAdapter struct {
	cfg LLMConfig

	mu   sync.Mutex
	next int
}

type LLMConfig struct {
	Responses []string
	Delay     time.Duration
}

func NewLLMAdapter(cfg LLMConfig) *LLMAdapter {
	if len(cfg.Responses) == 0 {
		cfg.Responses = []string{"mock response."}
	}
	return &LLMAdapter{cfg: cfg}
}

func (a *LLMAdapter) Name() string { return "mock_llm" }

func (a *LLMAdapter) Generate(ctx context.Context, input llm.Request) (llm.Response, error) {
	if a.cfg.Delay > 0 {
		timer := time.NewTimer(a.cfg.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return llm.Response{}, ctx.Err()
		case <-timer.C:
		}
	}
	a.mu.Lock()
	text := a.cfg.Responses[a.next%len(a.cfg.Responses)]
	a.next++
	a.mu.Unlock()
	return llm.Response{
		Text:         text,
		FinishReason: "stop",
		Usage:        llm.Usage{PromptTokens: len(input.Messages)},
	}, nil
}
