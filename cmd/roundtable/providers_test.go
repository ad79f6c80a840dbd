package main

import (
	"context"
	"strings"
	"testing"

	"github.com/harunnryd/roundtable/pkg/engine"
	"github.com/harunnryd/roundtable/pkg/llm"
	"github.com/harunnryd/roundtable/pkg/providers/openai"
)

func TestOpenAIRequiresKeyButOllamaDoesNot(t *testing.T) {
	reg := engine.NewProviderRegistry()
	registerProviders(reg)
	ctx := context.Background()

	_, err := reg.BuildLLM(ctx, engine.BuildContext{Vendor: engine.VendorConfig{
		Provider: "openai",
		Settings: map[string]any{"model": "gpt-4o-mini"},
	}})
	if err == nil || !strings.Contains(err.Error(), "api_key") {
		t.Fatalf("expected missing api_key error, got %v", err)
	}

	gen, err := reg.BuildLLM(ctx, engine.BuildContext{Vendor: engine.VendorConfig{
		Provider: "ollama",
		Settings: map[string]any{"model": "llama3", "use_circuit_breaker": false},
	}})
	if err != nil {
		t.Fatalf("ollama: %v", err)
	}
	adapter, ok := gen.(*openai.Adapter)
	if !ok {
		t.Fatalf("expected bare adapter without breaker, got %T", gen)
	}
	if adapter.BaseURL != ollamaBaseURL {
		t.Fatalf("base url = %q", adapter.BaseURL)
	}
}

func TestOpenAIWrapsBreakerByDefault(t *testing.T) {
	reg := engine.NewProviderRegistry()
	registerProviders(reg)
	gen, err := reg.BuildLLM(context.Background(), engine.BuildContext{Vendor: engine.VendorConfig{
		Provider: "openai",
		Settings: map[string]any{"api_key": "sk", "model": "gpt-4o-mini", "base_url": "http://llm.local/v1"},
	}})
	if err != nil {
		t.Fatalf("openai: %v", err)
	}
	if _, ok := gen.(*llm.CircuitBreakerGenerator); !ok {
		t.Fatalf("expected circuit breaker wrapper, got %T", gen)
	}
}

func TestUnknownSettingRejected(t *testing.T) {
	reg := engine.NewProviderRegistry()
	registerProviders(reg)
	_, err := reg.BuildTTS(context.Background(), engine.BuildContext{Vendor: engine.VendorConfig{
		Provider: "mock",
		Settings: map[string]any{"voice_speed": 2},
	}})
	if err == nil || !strings.Contains(err.Error(), "vendors.tts.settings") {
		t.Fatalf("expected unknown key error, got %v", err)
	}
}

func TestMockAlignerPairsWithMockTTS(t *testing.T) {
	reg := engine.NewProviderRegistry()
	registerProviders(reg)
	ctx := context.Background()
	synth, err := reg.BuildTTS(ctx, engine.BuildContext{Vendor: engine.VendorConfig{
		Provider: "mock",
		Settings: map[string]any{"output_dir": t.TempDir()},
	}})
	if err != nil {
		t.Fatalf("tts: %v", err)
	}
	if _, err := reg.BuildAligner(ctx, engine.BuildContext{Vendor: engine.VendorConfig{Provider: "mock"}}, synth); err != nil {
		t.Fatalf("aligner: %v", err)
	}
}
