package speech

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/harunnryd/roundtable/pkg/errorsx"
	"github.com/harunnryd/roundtable/pkg/llm"
	"github.com/harunnryd/roundtable/pkg/logging"
	"github.com/harunnryd/roundtable/pkg/metrics"
)

// GranularitySentence is the caption granularity requested from aligners.
const GranularitySentence = "sentence"

// ErrEmptyText is returned when nothing speakable is left after cleaning.
var ErrEmptyText = errors.New("nothing to speak")

// Audio is a synthesized speech file on local disk.
type Audio struct {
	ID       string
	Path     string
	MimeType string
}

// Artifact is one utterance ready for playback.
type Artifact struct {
	ID        string
	Text      string
	Voice     string
	Audio     Audio
	Reference string
	Segments  []Segment
}

type Synthesizer interface {
	Synthesize(ctx context.Context, id, text, voice string) (Audio, error)
	Name() string
}

type Aligner interface {
	Align(ctx context.Context, audio Audio, granularity string) ([]Segment, error)
	Name() string
}

// Releaser is implemented by aligners that keep per-audio state until Align.
// Release drops that state when the audio will never be aligned.
type Releaser interface {
	Release(audio Audio)
}

// Publisher makes audio reachable by viewers and returns its reference.
type Publisher interface {
	Publish(ctx context.Context, audio Audio) (string, error)
}

type Config struct {
	Synthesizer Synthesizer
	Aligner     Aligner
	Publisher   Publisher
	Observer    metrics.Observer
	Logger      *slog.Logger
}

// Pipeline turns text into an audio artifact with sentence captions.
type Pipeline struct {
	synth     Synthesizer
	aligner   Aligner
	publisher Publisher
	obs       metrics.Observer
	logger    *slog.Logger
}

func NewPipeline(cfg Config) *Pipeline {
	obs := cfg.Observer
	if obs == nil {
		obs = metrics.NoopObserver{}
	}
	return &Pipeline{
		synth:     cfg.Synthesizer,
		aligner:   cfg.Aligner,
		publisher: cfg.Publisher,
		obs:       obs,
		logger:    logging.NewComponentLogger(cfg.Logger, "speech"),
	}
}

// SynthesizeAndSegment strips reasoning markup, synthesizes text with voice,
// publishes the audio and aligns it into ordered, non-overlapping segments.
// Failures are returned to the caller and never retried.
func (p *Pipeline) SynthesizeAndSegment(ctx context.Context, text, voice string) (Artifact, error) {
	text = llm.StripReasoning(text)
	if text == "" {
		return Artifact{}, errorsx.Wrap(ErrEmptyText, errorsx.ReasonSynthesis)
	}
	art := Artifact{ID: uuid.NewString(), Text: text, Voice: voice}
	tags := map[string]string{"voice": voice}

	start := time.Now()
	audio, err := p.synth.Synthesize(ctx, art.ID, text, voice)
	if err != nil {
		return Artifact{}, errorsx.Wrap(fmt.Errorf("synthesize with %s: %w", p.synth.Name(), err), errorsx.ReasonSynthesis)
	}
	metrics.Since(p.obs, metrics.EventSynthesizeMs, start, tags)
	art.Audio = audio
	art.Reference = audio.Path

	if p.publisher != nil {
		ref, err := p.publisher.Publish(ctx, audio)
		if err != nil {
			if r, ok := p.aligner.(Releaser); ok {
				r.Release(audio)
			}
			return Artifact{}, errorsx.Wrap(fmt.Errorf("publish %s: %w", audio.Path, err), errorsx.ReasonPublish)
		}
		art.Reference = ref
	}

	start = time.Now()
	segs, err := p.aligner.Align(ctx, audio, GranularitySentence)
	if err != nil {
		return Artifact{}, errorsx.Wrap(fmt.Errorf("align with %s: %w", p.aligner.Name(), err), errorsx.ReasonAlignment)
	}
	metrics.Since(p.obs, metrics.EventAlignMs, start, tags)
	art.Segments = NormalizeSegments(segs)

	p.logger.Debug("artifact_ready",
		"artifact_id", art.ID,
		"segments", len(art.Segments),
		"playback", PlaybackTime(art.Segments).String(),
	)
	return art, nil
}
