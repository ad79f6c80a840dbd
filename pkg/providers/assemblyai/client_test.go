package assemblyai

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	aai "github.com/AssemblyAI/assemblyai-go-sdk"

	"github.com/harunnryd/roundtable/pkg/logging"
	"github.com/harunnryd/roundtable/pkg/speech"
)

type fakeTranscripts struct {
	uploaded string
}

func (f *fakeTranscripts) TranscribeFromReader(_ context.Context, r io.Reader, _ *aai.TranscriptOptionalParams) (aai.Transcript, error) {
	b, _ := io.ReadAll(r)
	f.uploaded = string(b)
	return aai.Transcript{
		ID:     aai.String("tr1"),
		Text:   aai.String(" Hello. Bye. "),
		Status: aai.TranscriptStatusCompleted,
	}, nil
}

func (f *fakeTranscripts) GetSentences(_ context.Context, id string) (aai.SentencesResponse, error) {
	return aai.SentencesResponse{Sentences: []aai.TranscriptSentence{
		{Text: aai.String("Hello."), Start: aai.Int64(100), End: aai.Int64(800)},
		{Text: aai.String("Bye."), Start: aai.Int64(1000), End: aai.Int64(1400)},
	}}, nil
}

func newFake(t *testing.T) (*Client, *fakeTranscripts, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "a.wav")
	if err := os.WriteFile(path, []byte("RIFF"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	f := &fakeTranscripts{}
	return &Client{api: f, logger: logging.Discard()}, f, path
}

func TestAlignUsesSentences(t *testing.T) {
	c, f, path := newFake(t)
	segs, err := c.Align(context.Background(), speech.Audio{Path: path}, speech.GranularitySentence)
	if err != nil {
		t.Fatalf("align: %v", err)
	}
	if f.uploaded != "RIFF" {
		t.Fatalf("expected file upload")
	}
	if len(segs) != 2 || segs[0].Start != 0.1 || segs[1].End != 1.4 {
		t.Fatalf("unexpected segments: %+v", segs)
	}
}

func TestTranscribeTrims(t *testing.T) {
	c, _, path := newFake(t)
	text, err := c.Transcribe(context.Background(), path)
	if err != nil || text != "Hello. Bye." {
		t.Fatalf("unexpected transcript %q: %v", text, err)
	}
}

func TestNewRequiresKey(t *testing.T) {
	if _, err := New(Config{}, nil); err == nil {
		t.Fatalf("expected missing key error")
	}
}
