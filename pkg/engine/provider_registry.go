package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/harunnryd/roundtable/pkg/audio"
	"github.com/harunnryd/roundtable/pkg/llm"
	"github.com/harunnryd/roundtable/pkg/participant"
	"github.com/harunnryd/roundtable/pkg/speech"
)

// BuildContext is handed to every factory: the loaded config, the vendor
// section being built and the engine's logger.
type BuildContext struct {
	Config Config
	Vendor VendorConfig
	Logger *slog.Logger
}

type GeneratorFactory func(ctx context.Context, bc BuildContext) (llm.Generator, error)
type SynthesizerFactory func(ctx context.Context, bc BuildContext) (speech.Synthesizer, error)

// AlignerFactory receives the synthesizer already built for the run so
// vendors that time their own output can align it themselves.
type AlignerFactory func(ctx context.Context, bc BuildContext, synth speech.Synthesizer) (speech.Aligner, error)
type TranscriberFactory func(ctx context.Context, bc BuildContext) (participant.Transcriber, error)
type RecorderFactory func(ctx context.Context, bc BuildContext) (audio.Recorder, error)

type ProviderRegistry struct {
	llm      map[string]GeneratorFactory
	tts      map[string]SynthesizerFactory
	aligner  map[string]AlignerFactory
	stt      map[string]TranscriberFactory
	recorder map[string]RecorderFactory
}

func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{
		llm:      make(map[string]GeneratorFactory),
		tts:      make(map[string]SynthesizerFactory),
		aligner:  make(map[string]AlignerFactory),
		stt:      make(map[string]TranscriberFactory),
		recorder: make(map[string]RecorderFactory),
	}
}

func providerKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func (r *ProviderRegistry) RegisterLLM(name string, factory GeneratorFactory) {
	r.llm[providerKey(name)] = factory
}

func (r *ProviderRegistry) RegisterTTS(name string, factory SynthesizerFactory) {
	r.tts[providerKey(name)] = factory
}

func (r *ProviderRegistry) RegisterAligner(name string, factory AlignerFactory) {
	r.aligner[providerKey(name)] = factory
}

func (r *ProviderRegistry) RegisterSTT(name string, factory TranscriberFactory) {
	r.stt[providerKey(name)] = factory
}

func (r *ProviderRegistry) RegisterRecorder(name string, factory RecorderFactory) {
	r.recorder[providerKey(name)] = factory
}

func (r *ProviderRegistry) BuildLLM(ctx context.Context, bc BuildContext) (llm.Generator, error) {
	fn := r.llm[providerKey(bc.Vendor.Provider)]
	if fn == nil {
		return nil, fmt.Errorf("llm provider not registered: %s", bc.Vendor.Provider)
	}
	return fn(ctx, bc)
}

func (r *ProviderRegistry) BuildTTS(ctx context.Context, bc BuildContext) (speech.Synthesizer, error) {
	fn := r.tts[providerKey(bc.Vendor.Provider)]
	if fn == nil {
		return nil, fmt.Errorf("tts provider not registered: %s", bc.Vendor.Provider)
	}
	return fn(ctx, bc)
}

func (r *ProviderRegistry) BuildAligner(ctx context.Context, bc BuildContext, synth speech.Synthesizer) (speech.Aligner, error) {
	fn := r.aligner[providerKey(bc.Vendor.Provider)]
	if fn == nil {
		return nil, fmt.Errorf("aligner provider not registered: %s", bc.Vendor.Provider)
	}
	return fn(ctx, bc, synth)
}

func (r *ProviderRegistry) BuildSTT(ctx context.Context, bc BuildContext) (participant.Transcriber, error) {
	fn := r.stt[providerKey(bc.Vendor.Provider)]
	if fn == nil {
		return nil, fmt.Errorf("stt provider not registered: %s", bc.Vendor.Provider)
	}
	return fn(ctx, bc)
}

func (r *ProviderRegistry) BuildRecorder(ctx context.Context, bc BuildContext) (audio.Recorder, error) {
	fn := r.recorder[providerKey(bc.Vendor.Provider)]
	if fn == nil {
		return nil, fmt.Errorf("recorder provider not registered: %s", bc.Vendor.Provider)
	}
	return fn(ctx, bc)
}

// Names lists the registered providers per kind, for startup logging.
func (r *ProviderRegistry) Names() map[string][]string {
	return map[string][]string{
		"llm":      sortedKeys(r.llm),
		"tts":      sortedKeys(r.tts),
		"aligner":  sortedKeys(r.aligner),
		"stt":      sortedKeys(r.stt),
		"recorder": sortedKeys(r.recorder),
	}
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// SelfAligner is the aligner factory for synthesizers that keep their own
// timing; it fails when the configured synthesizer cannot align.
func SelfAligner(_ context.Context, bc BuildContext, synth speech.Synthesizer) (speech.Aligner, error) {
	aligner, ok := synth.(speech.Aligner)
	if !ok {
		return nil, fmt.Errorf("aligner %q needs a tts provider that aligns its own audio, got %s", bc.Vendor.Provider, bc.Config.Vendors.TTS.Provider)
	}
	return aligner, nil
}
