package audio

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

func TestWriteWAVHeader(t *testing.T) {
	var buf bytes.Buffer
	pcm := []byte{1, 0, 2, 0, 3, 0, 4, 0}
	if err := WriteWAV(&buf, Format{SampleRate: 16000, Channels: 1, BitsPerSample: 16}, pcm); err != nil {
		t.Fatalf("write: %v", err)
	}
	b := buf.Bytes()
	if len(b) != 44+len(pcm) {
		t.Fatalf("expected %d bytes, got %d", 44+len(pcm), len(b))
	}
	if string(b[0:4]) != "RIFF" || string(b[8:12]) != "WAVE" || string(b[36:40]) != "data" {
		t.Fatalf("unexpected chunk ids %q", b[:40])
	}
	if got := binary.LittleEndian.Uint32(b[24:28]); got != 16000 {
		t.Fatalf("expected sample rate 16000, got %d", got)
	}
	if got := binary.LittleEndian.Uint32(b[28:32]); got != 32000 {
		t.Fatalf("expected byte rate 32000, got %d", got)
	}
	if got := binary.LittleEndian.Uint32(b[40:44]); got != uint32(len(pcm)) {
		t.Fatalf("expected data size %d, got %d", len(pcm), got)
	}
	if !bytes.Equal(b[44:], pcm) {
		t.Fatalf("expected pcm payload after header")
	}
}

func TestSaveWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.wav")
	if err := SaveWAV(path, Format{SampleRate: 8000, Channels: 1, BitsPerSample: 16}, nil); err != nil {
		t.Fatalf("save: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil || info.Size() != 44 {
		t.Fatalf("expected header-only file, got %v %v", info, err)
	}
}

func TestMalgoRecorderStopWithoutStart(t *testing.T) {
	r, err := NewMalgoRecorder(t.TempDir(), 0)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, err := r.Stop(); err != ErrNotRecording {
		t.Fatalf("expected ErrNotRecording, got %v", err)
	}
}
