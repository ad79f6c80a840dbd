package artifacts

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/harunnryd/roundtable/pkg/speech"
)

func TestLocalPublishInPlace(t *testing.T) {
	dir := t.TempDir()
	pub, err := NewLocal(dir, "")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	src := filepath.Join(dir, "abc.mp3")
	if err := os.WriteFile(src, []byte("audio"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	ref, err := pub.Publish(context.Background(), speech.Audio{Path: src})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if ref != "static/msg/abc.mp3" {
		t.Fatalf("unexpected reference %q", ref)
	}
}

func TestLocalPublishCopiesForeignFiles(t *testing.T) {
	served := filepath.Join(t.TempDir(), "msg")
	pub, err := NewLocal(served, "audio")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	src := filepath.Join(t.TempDir(), "clip.wav")
	if err := os.WriteFile(src, []byte("RIFF"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	ref, err := pub.Publish(context.Background(), speech.Audio{Path: src})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if ref != "audio/clip.wav" {
		t.Fatalf("unexpected reference %q", ref)
	}
	got, err := os.ReadFile(filepath.Join(served, "clip.wav"))
	if err != nil || string(got) != "RIFF" {
		t.Fatalf("expected copied file, got %q (%v)", got, err)
	}
}
