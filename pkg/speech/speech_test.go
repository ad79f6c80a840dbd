package speech

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/harunnryd/roundtable/pkg/errorsx"
	"github.com/harunnryd/roundtable/pkg/logging"
)

type fakeSynth struct {
	err   error
	texts []string
}

func (f *fakeSynth) Name() string { return "fake" }

func (f *fakeSynth) Synthesize(ctx context.Context, id, text, voice string) (Audio, error) {
	f.texts = append(f.texts, text)
	if f.err != nil {
		return Audio{}, f.err
	}
	return Audio{ID: id, Path: "/tmp/" + id + ".mp3", MimeType: "audio/mpeg"}, nil
}

type fakeAligner struct {
	segs   []Segment
	err    error
	called bool
}

func (f *fakeAligner) Name() string { return "fake" }

func (f *fakeAligner) Align(ctx context.Context, audio Audio, granularity string) ([]Segment, error) {
	f.called = true
	if granularity != GranularitySentence {
		return nil, errors.New("unexpected granularity " + granularity)
	}
	return f.segs, f.err
}

type releasingAligner struct {
	fakeAligner
	released []string
}

func (r *releasingAligner) Release(audio Audio) { r.released = append(r.released, audio.ID) }

type failingPublisher struct{}

func (failingPublisher) Publish(ctx context.Context, audio Audio) (string, error) {
	return "", errors.New("bucket unavailable")
}

type fakePublisher struct{}

func (fakePublisher) Publish(ctx context.Context, audio Audio) (string, error) {
	return "static/msg/" + audio.ID + ".mp3", nil
}

func TestNormalizeSegmentsOrderedAndNonOverlapping(t *testing.T) {
	in := []Segment{
		{Text: "third", Start: 3.0, End: 4.0},
		{Text: "first", Start: 0.0, End: 1.5},
		{Text: "  ", Start: 1.0, End: 1.2},
		{Text: "second", Start: 1.2, End: 2.5},
	}
	got := NormalizeSegments(in)
	want := []Segment{
		{Text: "first", Start: 0.0, End: 1.5},
		{Text: "second", Start: 1.5, End: 2.5},
		{Text: "third", Start: 3.0, End: 4.0},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected segments %+v", got)
	}
	for i := 1; i < len(got); i++ {
		if got[i].Start < got[i-1].End {
			t.Fatalf("segment %d overlaps previous", i)
		}
	}
}

func TestPlaybackTimeIsDurationsPlusGaps(t *testing.T) {
	segs := []Segment{
		{Text: "a", Start: 0, End: 1},
		{Text: "b", Start: 1.5, End: 2},
		{Text: "c", Start: 3, End: 3.25},
	}
	// durations 1 + 0.5 + 0.25, gaps 0.5 + 1
	if got := PlaybackTime(segs); got != 3250*time.Millisecond {
		t.Fatalf("expected 3.25s, got %s", got)
	}
}

func TestSplitSentences(t *testing.T) {
	got := SplitSentences("Hi there! Version 2.5 is out. Really?yes")
	want := []string{"Hi there!", "Version 2.5 is out.", "Really?yes"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected split %q", got)
	}
}

func TestPipelineProducesArtifact(t *testing.T) {
	synth := &fakeSynth{}
	aligner := &fakeAligner{segs: []Segment{{Text: "b", Start: 1, End: 2}, {Text: "a", Start: 0, End: 1}}}
	p := NewPipeline(Config{Synthesizer: synth, Aligner: aligner, Publisher: fakePublisher{}, Logger: logging.Discard()})

	art, err := p.SynthesizeAndSegment(context.Background(), "<think>hmm</think>a. b.", "voice-1")
	if err != nil {
		t.Fatalf("pipeline: %v", err)
	}
	if len(synth.texts) != 1 || synth.texts[0] != "a. b." {
		t.Fatalf("expected reasoning stripped before synthesis, got %q", synth.texts)
	}
	if art.Reference != "static/msg/"+art.ID+".mp3" {
		t.Fatalf("unexpected reference %q", art.Reference)
	}
	if len(art.Segments) != 2 || art.Segments[0].Text != "a" {
		t.Fatalf("expected ordered segments, got %+v", art.Segments)
	}
}

func TestPipelineSurfacesSynthesisFailure(t *testing.T) {
	aligner := &fakeAligner{}
	p := NewPipeline(Config{Synthesizer: &fakeSynth{err: errors.New("quota")}, Aligner: aligner})
	_, err := p.SynthesizeAndSegment(context.Background(), "hello", "v")
	if !errorsx.HasReason(err, errorsx.ReasonSynthesis) {
		t.Fatalf("expected synthesis reason, got %v", err)
	}
	if aligner.called {
		t.Fatalf("expected alignment to be skipped after synthesis failure")
	}
}

func TestPipelineRejectsEmptyText(t *testing.T) {
	synth := &fakeSynth{}
	p := NewPipeline(Config{Synthesizer: synth, Aligner: &fakeAligner{}})
	_, err := p.SynthesizeAndSegment(context.Background(), "<think>only thoughts</think>", "v")
	if !errors.Is(err, ErrEmptyText) {
		t.Fatalf("expected ErrEmptyText, got %v", err)
	}
	if len(synth.texts) != 0 {
		t.Fatalf("expected no synthesis call")
	}
}

func TestPipelineSurfacesAlignmentFailure(t *testing.T) {
	p := NewPipeline(Config{Synthesizer: &fakeSynth{}, Aligner: &fakeAligner{err: errors.New("timeout")}})
	_, err := p.SynthesizeAndSegment(context.Background(), "hello", "v")
	if !errorsx.HasReason(err, errorsx.ReasonAlignment) {
		t.Fatalf("expected alignment reason, got %v", err)
	}
}

func TestPipelineReleasesAlignmentWhenPublishFails(t *testing.T) {
	aligner := &releasingAligner{}
	p := NewPipeline(Config{Synthesizer: &fakeSynth{}, Aligner: aligner, Publisher: failingPublisher{}})
	_, err := p.SynthesizeAndSegment(context.Background(), "hello", "v")
	if !errorsx.HasReason(err, errorsx.ReasonPublish) {
		t.Fatalf("expected publish reason, got %v", err)
	}
	if aligner.called {
		t.Fatalf("expected alignment to be skipped after publish failure")
	}
	if len(aligner.released) != 1 {
		t.Fatalf("expected synthesized audio to be released, got %v", aligner.released)
	}
}
