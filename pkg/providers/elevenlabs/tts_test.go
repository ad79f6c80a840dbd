package elevenlabs

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/gorilla/websocket"

	"github.com/harunnryd/roundtable/pkg/logging"
	"github.com/harunnryd/roundtable/pkg/speech"
)

func chars(s string, startMs int) charAlignment {
	var a charAlignment
	for i, r := range s {
		a.Chars = append(a.Chars, string(r))
		a.StartsMs = append(a.StartsMs, startMs+i*10)
		a.DurationMs = append(a.DurationMs, 10)
	}
	return a
}

func TestSynthesizeWritesAudioAndAligns(t *testing.T) {
	upgrader := websocket.Upgrader{}
	var gotPath, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("xi-api-key")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for i := 0; i < 3; i++ {
			var msg map[string]any
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
		}
		first := chars("Hi there. ", 0)
		second := chars("Bye!", 0)
		_ = conn.WriteJSON(map[string]any{"audio": base64.StdEncoding.EncodeToString([]byte("abc")), "alignment": first})
		_ = conn.WriteJSON(map[string]any{"audio": base64.StdEncoding.EncodeToString([]byte("def")), "alignment": second})
		_ = conn.WriteJSON(map[string]any{"isFinal": true})
	}))
	defer srv.Close()

	dir := t.TempDir()
	tts := New(Config{
		APIKey:    "key",
		OutputDir: dir,
		BaseURL:   "ws" + strings.TrimPrefix(srv.URL, "http"),
	}, logging.Discard())

	audio, err := tts.Synthesize(context.Background(), "utt1", "Hi there. Bye!", "voice1")
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if gotPath != "/v1/text-to-speech/voice1/stream-input" || gotKey != "key" {
		t.Fatalf("unexpected request: %s key=%q", gotPath, gotKey)
	}
	data, err := os.ReadFile(audio.Path)
	if err != nil || string(data) != "abcdef" {
		t.Fatalf("unexpected audio file %q: %v", data, err)
	}

	if tts.Pending() != 1 {
		t.Fatalf("expected timing kept until align, got %d", tts.Pending())
	}
	segs, err := tts.Align(context.Background(), audio, speech.GranularitySentence)
	if err != nil {
		t.Fatalf("align: %v", err)
	}
	if len(segs) != 2 || segs[0].Text != "Hi there." || segs[1].Text != "Bye!" {
		t.Fatalf("unexpected segments: %+v", segs)
	}
	if segs[0].Start != 0 || segs[0].End != 0.09 {
		t.Fatalf("unexpected first timing: %+v", segs[0])
	}
	if segs[1].Start != 0.1 {
		t.Fatalf("expected second chunk shifted after the first, got %+v", segs[1])
	}
	if _, err := tts.Align(context.Background(), audio, speech.GranularitySentence); err == nil {
		t.Fatalf("expected alignment to be consumed")
	}
}

func TestSynthesizeRequiresCredentials(t *testing.T) {
	tts := New(Config{}, logging.Discard())
	if _, err := tts.Synthesize(context.Background(), "id", "text", "voice"); err == nil {
		t.Fatalf("expected error without api key")
	}
}

func TestReleaseDropsUnalignedTiming(t *testing.T) {
	tts := New(Config{APIKey: "key", OutputDir: t.TempDir()}, logging.Discard())
	tts.alignment["/tmp/utt2.mp3"] = chars("Lost.", 0)
	tts.Release(speech.Audio{ID: "utt2", Path: "/tmp/utt2.mp3"})
	if tts.Pending() != 0 {
		t.Fatalf("expected released timing to be gone, got %d", tts.Pending())
	}
}
