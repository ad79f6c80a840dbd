package mock

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/harunnryd/roundtable/pkg/audio"
	"github.com/harunnryd/roundtable/pkg/speech"
)

type TTSConfig struct {
	OutputDir      string
	SampleRate     int
	WordsPerSecond float64
	// SentencePause is the silence in seconds placed between sentences.
	SentencePause float64
}

// TTS writes silent WAV files whose length follows the text, and aligns them
// with the same timing it used to size them.
type TTS struct {
	cfg TTSConfig

	mu     sync.Mutex
	timing map[string][]speech.Segment
}

func NewTTS(cfg TTSConfig) *TTS {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 16000
	}
	if cfg.WordsPerSecond <= 0 {
		cfg.WordsPerSecond = 2.5
	}
	if cfg.SentencePause < 0 {
		cfg.SentencePause = 0
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = os.TempDir()
	}
	return &TTS{cfg: cfg, timing: make(map[string][]speech.Segment)}
}

func (s *TTS) Name() string { return "mock_tts" }

func (s *TTS) Synthesize(_ context.Context, id, text, _ string) (speech.Audio, error) {
	segs := s.layout(text)
	total := 0.0
	if len(segs) > 0 {
		total = segs[len(segs)-1].End
	}
	f := audio.Format{SampleRate: s.cfg.SampleRate, Channels: 1, BitsPerSample: 16}
	frames := int(math.Ceil(total * float64(f.SampleRate)))
	if err := os.MkdirAll(s.cfg.OutputDir, 0o755); err != nil {
		return speech.Audio{}, fmt.Errorf("mock tts: %w", err)
	}
	path := filepath.Join(s.cfg.OutputDir, id+".wav")
	if err := audio.SaveWAV(path, f, make([]byte, frames*2)); err != nil {
		return speech.Audio{}, fmt.Errorf("mock tts: %w", err)
	}
	s.mu.Lock()
	s.timing[path] = segs
	s.mu.Unlock()
	return speech.Audio{ID: id, Path: path, MimeType: "audio/wav"}, nil
}

func (s *TTS) Align(_ context.Context, a speech.Audio, _ string) ([]speech.Segment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	segs, ok := s.timing[a.Path]
	if !ok {
		return nil, fmt.Errorf("mock tts: no timing for %s", a.Path)
	}
	delete(s.timing, a.Path)
	return segs, nil
}

func (s *TTS) layout(text string) []speech.Segment {
	var out []speech.Segment
	at := 0.0
	for i, sentence := range speech.SplitSentences(text) {
		if i > 0 {
			at += s.cfg.SentencePause
		}
		words := len(strings.Fields(sentence))
		d := float64(words) / s.cfg.WordsPerSecond
		out = append(out, speech.Segment{Text: sentence, Start: at, End: at + d})
		at += d
	}
	return out
}
