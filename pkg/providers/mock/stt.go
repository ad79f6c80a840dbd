package mock

import (
	"context"
	"errors"
	"sync"
)

// STT returns a fixed transcript for any recording.
type STT struct {
	Transcript string
}

func NewSTT(transcript string) *STT {
	if transcript == "" {
		transcript = "mock transcript"
	}
	return &STT{Transcript: transcript}
}

func (s *STT) Name() string { return "mock_stt" }

func (s *STT) Transcribe(ctx context.Context, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return s.Transcript, nil
}

// Recorder pretends to capture audio and hands back Path.
type Recorder struct {
	Path string

	mu        sync.Mutex
	recording bool
}

func NewRecorder(path string) *Recorder {
	return &Recorder{Path: path}
}

func (r *Recorder) Start(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.recording {
		return errors.New("already recording")
	}
	r.recording = true
	return nil
}

func (r *Recorder) Stop() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.recording {
		return "", errors.New("not recording")
	}
	r.recording = false
	return r.Path, nil
}
