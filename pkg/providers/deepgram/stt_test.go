package deepgram

import (
	"context"
	"testing"

	"github.com/harunnryd/roundtable/pkg/logging"
	"github.com/harunnryd/roundtable/pkg/speech"
)

const sample = `{"results":{"channels":[{"alternatives":[{
  "transcript":"Hello there. How are you?",
  "paragraphs":{"paragraphs":[{"sentences":[
    {"text":"Hello there.","start":0.08,"end":0.9},
    {"text":"How are you?","start":1.2,"end":2.1}
  ]}]}
}]}]}}`

func fixed(t *testing.T) *Prerecorded {
	t.Helper()
	res, err := decodeResponse([]byte(sample))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	p := New(Config{}, logging.Discard())
	p.fetch = func(context.Context, string) (response, error) { return res, nil }
	return p
}

func TestAlignFromParagraphs(t *testing.T) {
	p := fixed(t)
	segs, err := p.Align(context.Background(), speech.Audio{Path: "a.mp3"}, speech.GranularitySentence)
	if err != nil {
		t.Fatalf("align: %v", err)
	}
	if len(segs) != 2 || segs[1].Text != "How are you?" || segs[1].Start != 1.2 {
		t.Fatalf("unexpected segments: %+v", segs)
	}
	if _, err := p.Align(context.Background(), speech.Audio{}, "word"); err == nil {
		t.Fatalf("expected unsupported granularity error")
	}
}

func TestTranscribe(t *testing.T) {
	text, err := fixed(t).Transcribe(context.Background(), "take.wav")
	if err != nil || text != "Hello there. How are you?" {
		t.Fatalf("unexpected transcript %q: %v", text, err)
	}
}

func TestMissingKey(t *testing.T) {
	p := New(Config{}, logging.Discard())
	if _, err := p.Transcribe(context.Background(), "x.wav"); err == nil {
		t.Fatalf("expected missing key error")
	}
}
