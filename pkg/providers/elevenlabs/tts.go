package elevenlabs

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/harunnryd/roundtable/pkg/logging"
	"github.com/harunnryd/roundtable/pkg/resilience"
	"github.com/harunnryd/roundtable/pkg/speech"
)

const DefaultBaseURL = "wss://api.elevenlabs.io"

type Config struct {
	APIKey       string
	ModelID      string
	OutputFormat string
	// OutputDir receives one <id>.mp3 per utterance.
	OutputDir string
	BaseURL   string
	Timeout   time.Duration
}

// TTS synthesizes one utterance per websocket session. The character timing
// ElevenLabs streams back is kept so the same value can act as the Aligner.
type TTS struct {
	cfg    Config
	dialer websocket.Dialer
	logger *slog.Logger

	mu        sync.Mutex
	alignment map[string]charAlignment
}

type charAlignment struct {
	Chars      []string `json:"chars"`
	StartsMs   []int    `json:"charStartTimesMs"`
	DurationMs []int    `json:"charDurationsMs"`
}

type streamMessage struct {
	Audio     string         `json:"audio"`
	IsFinal   bool           `json:"isFinal"`
	Alignment *charAlignment `json:"alignment"`
	Error     string         `json:"error"`
	Message   string         `json:"message"`
}

func New(cfg Config, logger *slog.Logger) *TTS {
	if cfg.OutputFormat == "" {
		cfg.OutputFormat = "mp3_44100_128"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &TTS{
		cfg:       cfg,
		dialer:    websocket.Dialer{Proxy: http.ProxyFromEnvironment, HandshakeTimeout: 10 * time.Second},
		logger:    logging.NewComponentLogger(logger, "elevenlabs"),
		alignment: make(map[string]charAlignment),
	}
}

func (s *TTS) Name() string { return "elevenlabs" }

// Synthesize streams text to the voice and writes the returned audio to
// OutputDir. It blocks until the final chunk arrives or ctx is done.
func (s *TTS) Synthesize(ctx context.Context, id, text, voice string) (speech.Audio, error) {
	if s.cfg.APIKey == "" || voice == "" {
		return speech.Audio{}, errors.New("missing elevenlabs api key or voice")
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	u, err := s.buildURL(voice)
	if err != nil {
		return speech.Audio{}, err
	}
	conn, resp, err := s.dialer.DialContext(ctx, u, http.Header{"xi-api-key": []string{s.cfg.APIKey}})
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusTooManyRequests {
			return speech.Audio{}, resilience.RateLimitError{
				Provider:   "elevenlabs",
				Message:    resp.Status,
				RetryAfter: resilience.ParseRetryAfter(resp.Header.Get("Retry-After"), time.Now()),
			}
		}
		return speech.Audio{}, fmt.Errorf("dial elevenlabs: %w", err)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	for _, payload := range []map[string]any{
		{
			"text": " ",
			"voice_settings": map[string]any{
				"stability":        0.5,
				"similarity_boost": 0.8,
			},
		},
		{"text": strings.TrimSpace(text) + " ", "try_trigger_generation": true},
		{"text": ""},
	} {
		if err := conn.WriteJSON(payload); err != nil {
			return speech.Audio{}, fmt.Errorf("send text: %w", err)
		}
	}

	var audio []byte
	var align charAlignment
	for {
		var msg streamMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				return speech.Audio{}, ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) && len(audio) > 0 {
				break
			}
			return speech.Audio{}, fmt.Errorf("read audio: %w", err)
		}
		if msg.Error != "" {
			return speech.Audio{}, fmt.Errorf("elevenlabs: %s: %s", msg.Error, msg.Message)
		}
		if msg.Audio != "" {
			raw, err := base64.StdEncoding.DecodeString(msg.Audio)
			if err != nil {
				return speech.Audio{}, fmt.Errorf("decode audio: %w", err)
			}
			audio = append(audio, raw...)
		}
		if msg.Alignment != nil {
			align = align.merge(*msg.Alignment)
		}
		if msg.IsFinal {
			break
		}
	}
	if len(audio) == 0 {
		return speech.Audio{}, errors.New("elevenlabs returned no audio")
	}

	path := filepath.Join(s.cfg.OutputDir, id+".mp3")
	if err := os.MkdirAll(s.cfg.OutputDir, 0o755); err != nil {
		return speech.Audio{}, err
	}
	if err := os.WriteFile(path, audio, 0o644); err != nil {
		return speech.Audio{}, err
	}
	s.mu.Lock()
	s.alignment[path] = align
	s.mu.Unlock()
	s.logger.Debug("tts_audio_written", "path", path, "bytes", len(audio), "chars", len(align.Chars))
	return speech.Audio{ID: id, Path: path, MimeType: "audio/mpeg"}, nil
}

// Release drops the timing kept for audio that will not be aligned.
func (s *TTS) Release(audio speech.Audio) {
	s.mu.Lock()
	delete(s.alignment, audio.Path)
	s.mu.Unlock()
}

// Pending reports how many synthesized files still hold timing.
func (s *TTS) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.alignment)
}

// Align turns the character timing captured during synthesis into sentence
// segments. Only audio produced by this TTS can be aligned.
func (s *TTS) Align(_ context.Context, audio speech.Audio, _ string) ([]speech.Segment, error) {
	s.mu.Lock()
	align, ok := s.alignment[audio.Path]
	delete(s.alignment, audio.Path)
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("no elevenlabs alignment for %s", audio.Path)
	}
	return align.sentences(), nil
}

func (s *TTS) buildURL(voice string) (string, error) {
	base, err := url.Parse(strings.TrimRight(s.cfg.BaseURL, "/") + "/v1/text-to-speech/" + url.PathEscape(voice) + "/stream-input")
	if err != nil {
		return "", err
	}
	q := url.Values{}
	if s.cfg.ModelID != "" {
		q.Set("model_id", s.cfg.ModelID)
	}
	q.Set("output_format", s.cfg.OutputFormat)
	q.Set("sync_alignment", "true")
	base.RawQuery = q.Encode()
	return base.String(), nil
}

// merge appends the next chunk's timing. Chunks that restart their clock
// are shifted to follow the previous chunk.
func (a charAlignment) merge(next charAlignment) charAlignment {
	offset := 0
	if n := len(a.StartsMs); n > 0 && n == len(a.DurationMs) && len(next.StartsMs) > 0 {
		prevEnd := a.StartsMs[n-1] + a.DurationMs[n-1]
		if next.StartsMs[0] < prevEnd {
			offset = prevEnd
		}
	}
	a.Chars = append(a.Chars, next.Chars...)
	for _, ms := range next.StartsMs {
		a.StartsMs = append(a.StartsMs, ms+offset)
	}
	a.DurationMs = append(a.DurationMs, next.DurationMs...)
	return a
}

// sentences groups characters into segments ending at . ! or ? followed by
// whitespace or the end of the text.
func (a charAlignment) sentences() []speech.Segment {
	n := len(a.Chars)
	if len(a.StartsMs) < n || len(a.DurationMs) < n {
		n = min(len(a.StartsMs), len(a.DurationMs))
	}
	var out []speech.Segment
	var cur strings.Builder
	start, end := -1, 0
	flush := func() {
		text := strings.TrimSpace(cur.String())
		if text != "" && start >= 0 {
			out = append(out, speech.Segment{
				Text:  text,
				Start: float64(start) / 1000,
				End:   float64(end) / 1000,
			})
		}
		cur.Reset()
		start = -1
	}
	for i := 0; i < n; i++ {
		ch := a.Chars[i]
		cur.WriteString(ch)
		if strings.TrimSpace(ch) == "" {
			continue
		}
		if start < 0 {
			start = a.StartsMs[i]
		}
		end = a.StartsMs[i] + a.DurationMs[i]
		if ch == "." || ch == "!" || ch == "?" {
			if i+1 >= n || strings.TrimSpace(a.Chars[i+1]) == "" {
				flush()
			}
		}
	}
	flush()
	return out
}
