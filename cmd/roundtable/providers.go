package main

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/harunnryd/roundtable/pkg/audio"
	"github.com/harunnryd/roundtable/pkg/configutil"
	"github.com/harunnryd/roundtable/pkg/engine"
	"github.com/harunnryd/roundtable/pkg/llm"
	"github.com/harunnryd/roundtable/pkg/participant"
	"github.com/harunnryd/roundtable/pkg/providers/assemblyai"
	"github.com/harunnryd/roundtable/pkg/providers/deepgram"
	"github.com/harunnryd/roundtable/pkg/providers/elevenlabs"
	"github.com/harunnryd/roundtable/pkg/providers/gemini"
	"github.com/harunnryd/roundtable/pkg/providers/mock"
	"github.com/harunnryd/roundtable/pkg/providers/openai"
	"github.com/harunnryd/roundtable/pkg/resilience"
	"github.com/harunnryd/roundtable/pkg/speech"
)

const ollamaBaseURL = "http://localhost:11434/v1"

type BreakerSettings struct {
	UseCircuitBreaker *bool `mapstructure:"use_circuit_breaker"`
	CircuitThreshold  int   `mapstructure:"circuit_threshold"`
	CircuitCooldownMs int   `mapstructure:"circuit_cooldown_ms"`
}

var breakerKeys = []string{"use_circuit_breaker", "circuit_threshold", "circuit_cooldown_ms"}

type openAISettings struct {
	APIKey      string   `mapstructure:"api_key"`
	Model       string   `mapstructure:"model"`
	BaseURL     string   `mapstructure:"base_url"`
	Temperature *float64 `mapstructure:"temperature"`
	TimeoutMs   int      `mapstructure:"timeout_ms"`

	BreakerSettings `mapstructure:",squash"`
}

type geminiSettings struct {
	APIKey      string   `mapstructure:"api_key"`
	Model       string   `mapstructure:"model"`
	BaseURL     string   `mapstructure:"base_url"`
	Temperature *float32 `mapstructure:"temperature"`

	BreakerSettings `mapstructure:",squash"`
}

type mockLLMSettings struct {
	Responses []string `mapstructure:"responses"`
	DelayMs   int      `mapstructure:"delay_ms"`
}

type elevenlabsSettings struct {
	APIKey       string `mapstructure:"api_key"`
	ModelID      string `mapstructure:"model_id"`
	OutputFormat string `mapstructure:"output_format"`
	OutputDir    string `mapstructure:"output_dir"`
	BaseURL      string `mapstructure:"base_url"`
	TimeoutMs    int    `mapstructure:"timeout_ms"`
}

type mockTTSSettings struct {
	OutputDir      string  `mapstructure:"output_dir"`
	SampleRate     int     `mapstructure:"sample_rate"`
	WordsPerSecond float64 `mapstructure:"words_per_second"`
	SentencePause  float64 `mapstructure:"sentence_pause"`
}

type assemblyAISettings struct {
	APIKey       string `mapstructure:"api_key"`
	LanguageCode string `mapstructure:"language_code"`
}

type deepgramSettings struct {
	APIKey   string `mapstructure:"api_key"`
	Model    string `mapstructure:"model"`
	Language string `mapstructure:"language"`
}

type mockSTTSettings struct {
	Transcript string `mapstructure:"transcript"`
}

func registerProviders(reg *engine.ProviderRegistry) {
	reg.RegisterLLM("openai", func(_ context.Context, bc engine.BuildContext) (llm.Generator, error) {
		return buildOpenAI(bc, "", true)
	})

	// Ollama serves the same chat completions API on a local port.
	reg.RegisterLLM("ollama", func(_ context.Context, bc engine.BuildContext) (llm.Generator, error) {
		return buildOpenAI(bc, ollamaBaseURL, false)
	})

	reg.RegisterLLM("gemini", func(ctx context.Context, bc engine.BuildContext) (llm.Generator, error) {
		var settings geminiSettings
		if err := configutil.DecodeChecked("vendors.llm.settings", bc.Vendor.Settings, configutil.Schema{
			Required: []string{"api_key"},
			Optional: append([]string{"model", "base_url", "temperature"}, breakerKeys...),
		}, &settings); err != nil {
			return nil, err
		}
		if err := configutil.RequireString(settings.APIKey, "vendors.llm.settings.api_key"); err != nil {
			return nil, err
		}
		gen, err := gemini.New(ctx, gemini.Config{
			APIKey:      settings.APIKey,
			Model:       settings.Model,
			BaseURL:     settings.BaseURL,
			Temperature: settings.Temperature,
		})
		if err != nil {
			return nil, err
		}
		return withBreaker(gen, settings.BreakerSettings), nil
	})

	reg.RegisterLLM("mock", func(_ context.Context, bc engine.BuildContext) (llm.Generator, error) {
		var settings mockLLMSettings
		if err := configutil.DecodeChecked("vendors.llm.settings", bc.Vendor.Settings, configutil.Schema{
			Optional: []string{"responses", "delay_ms"},
		}, &settings); err != nil {
			return nil, err
		}
		return mock.NewLLMAdapter(mock.LLMConfig{
			Responses: settings.Responses,
			Delay:     time.Duration(settings.DelayMs) * time.Millisecond,
		}), nil
	})

	reg.RegisterTTS("elevenlabs", func(_ context.Context, bc engine.BuildContext) (speech.Synthesizer, error) {
		var settings elevenlabsSettings
		if err := configutil.DecodeChecked("vendors.tts.settings", bc.Vendor.Settings, configutil.Schema{
			Required: []string{"api_key"},
			Optional: []string{"model_id", "output_format", "output_dir", "base_url", "timeout_ms"},
		}, &settings); err != nil {
			return nil, err
		}
		if err := configutil.RequireString(settings.APIKey, "vendors.tts.settings.api_key"); err != nil {
			return nil, err
		}
		return elevenlabs.New(elevenlabs.Config{
			APIKey:       settings.APIKey,
			ModelID:      settings.ModelID,
			OutputFormat: settings.OutputFormat,
			OutputDir:    synthDir(settings.OutputDir),
			BaseURL:      settings.BaseURL,
			Timeout:      configutil.Millis(settings.TimeoutMs, time.Minute),
		}, bc.Logger), nil
	})

	reg.RegisterTTS("mock", func(_ context.Context, bc engine.BuildContext) (speech.Synthesizer, error) {
		var settings mockTTSSettings
		if err := configutil.DecodeChecked("vendors.tts.settings", bc.Vendor.Settings, configutil.Schema{
			Optional: []string{"output_dir", "sample_rate", "words_per_second", "sentence_pause"},
		}, &settings); err != nil {
			return nil, err
		}
		return mock.NewTTS(mock.TTSConfig{
			OutputDir:      synthDir(settings.OutputDir),
			SampleRate:     settings.SampleRate,
			WordsPerSecond: settings.WordsPerSecond,
			SentencePause:  settings.SentencePause,
		}), nil
	})

	// Both keep the timing of the audio they produced.
	reg.RegisterAligner("elevenlabs", engine.SelfAligner)
	reg.RegisterAligner("mock", engine.SelfAligner)

	reg.RegisterAligner("assemblyai", func(_ context.Context, bc engine.BuildContext, _ speech.Synthesizer) (speech.Aligner, error) {
		return buildAssemblyAI(bc, "vendors.aligner.settings")
	})
	reg.RegisterAligner("deepgram", func(_ context.Context, bc engine.BuildContext, _ speech.Synthesizer) (speech.Aligner, error) {
		return buildDeepgram(bc, "vendors.aligner.settings")
	})

	reg.RegisterSTT("assemblyai", func(_ context.Context, bc engine.BuildContext) (participant.Transcriber, error) {
		return buildAssemblyAI(bc, "vendors.stt.settings")
	})
	reg.RegisterSTT("deepgram", func(_ context.Context, bc engine.BuildContext) (participant.Transcriber, error) {
		return buildDeepgram(bc, "vendors.stt.settings")
	})
	reg.RegisterSTT("mock", func(_ context.Context, bc engine.BuildContext) (participant.Transcriber, error) {
		var settings mockSTTSettings
		if err := configutil.DecodeChecked("vendors.stt.settings", bc.Vendor.Settings, configutil.Schema{
			Optional: []string{"transcript"},
		}, &settings); err != nil {
			return nil, err
		}
		return mock.NewSTT(settings.Transcript), nil
	})

	reg.RegisterRecorder("malgo", func(_ context.Context, bc engine.BuildContext) (audio.Recorder, error) {
		return audio.NewMalgoRecorder(bc.Config.Recorder.Dir, bc.Config.Recorder.SampleRate)
	})
	reg.RegisterRecorder("mock", func(_ context.Context, bc engine.BuildContext) (audio.Recorder, error) {
		return mock.NewRecorder(bc.Config.Recorder.MockPath), nil
	})
}

func buildOpenAI(bc engine.BuildContext, baseURL string, requireKey bool) (llm.Generator, error) {
	schema := configutil.Schema{
		Required: []string{"model"},
		Optional: append([]string{"base_url", "temperature", "timeout_ms", "api_key"}, breakerKeys...),
	}
	if requireKey {
		schema = configutil.Schema{
			Required: []string{"api_key", "model"},
			Optional: append([]string{"base_url", "temperature", "timeout_ms"}, breakerKeys...),
		}
	}
	var settings openAISettings
	if err := configutil.DecodeChecked("vendors.llm.settings", bc.Vendor.Settings, schema, &settings); err != nil {
		return nil, err
	}
	if requireKey {
		if err := configutil.RequireString(settings.APIKey, "vendors.llm.settings.api_key"); err != nil {
			return nil, err
		}
	}
	if err := configutil.RequireString(settings.Model, "vendors.llm.settings.model"); err != nil {
		return nil, err
	}
	adapter := openai.NewAdapter(settings.APIKey, settings.Model)
	if baseURL != "" {
		adapter.BaseURL = baseURL
	}
	if settings.BaseURL != "" {
		adapter.BaseURL = settings.BaseURL
	}
	adapter.Temperature = settings.Temperature
	if settings.TimeoutMs > 0 {
		adapter.Client.Timeout = time.Duration(settings.TimeoutMs) * time.Millisecond
	}
	return withBreaker(adapter, settings.BreakerSettings), nil
}

func withBreaker(gen llm.Generator, settings BreakerSettings) llm.Generator {
	if !configutil.BoolValue(settings.UseCircuitBreaker, true) {
		return gen
	}
	threshold := settings.CircuitThreshold
	if threshold == 0 {
		threshold = 3
	}
	cooldown := configutil.Millis(settings.CircuitCooldownMs, 30*time.Second)
	return llm.NewCircuitBreakerGenerator(gen, resilience.NewCircuitBreaker(threshold, cooldown))
}

func buildAssemblyAI(bc engine.BuildContext, path string) (*assemblyai.Client, error) {
	var settings assemblyAISettings
	if err := configutil.DecodeChecked(path, bc.Vendor.Settings, configutil.Schema{
		Required: []string{"api_key"},
		Optional: []string{"language_code"},
	}, &settings); err != nil {
		return nil, err
	}
	if err := configutil.RequireString(settings.APIKey, path+".api_key"); err != nil {
		return nil, err
	}
	return assemblyai.New(assemblyai.Config{
		APIKey:       settings.APIKey,
		LanguageCode: settings.LanguageCode,
	}, bc.Logger)
}

func buildDeepgram(bc engine.BuildContext, path string) (*deepgram.Prerecorded, error) {
	var settings deepgramSettings
	if err := configutil.DecodeChecked(path, bc.Vendor.Settings, configutil.Schema{
		Required: []string{"api_key"},
		Optional: []string{"model", "language"},
	}, &settings); err != nil {
		return nil, err
	}
	if err := configutil.RequireString(settings.APIKey, path+".api_key"); err != nil {
		return nil, err
	}
	return deepgram.New(deepgram.Config{
		APIKey:   settings.APIKey,
		Model:    settings.Model,
		Language: settings.Language,
	}, bc.Logger), nil
}

func synthDir(dir string) string {
	if dir != "" {
		return dir
	}
	return filepath.Join(os.TempDir(), "roundtable", "tts")
}
