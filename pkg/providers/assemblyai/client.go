package assemblyai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	aai "github.com/AssemblyAI/assemblyai-go-sdk"

	"github.com/harunnryd/roundtable/pkg/logging"
	"github.com/harunnryd/roundtable/pkg/speech"
)

type Config struct {
	APIKey       string
	LanguageCode string
}

// transcripts is the part of the SDK client used here.
type transcripts interface {
	TranscribeFromReader(ctx context.Context, reader io.Reader, params *aai.TranscriptOptionalParams) (aai.Transcript, error)
	GetSentences(ctx context.Context, transcriptID string) (aai.SentencesResponse, error)
}

// Client uploads finished audio to AssemblyAI. It aligns synthesized speech
// into sentences and transcribes the human's recordings.
type Client struct {
	cfg    Config
	api    transcripts
	logger *slog.Logger
}

func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("assemblyai: missing api key")
	}
	c := aai.NewClient(cfg.APIKey)
	return &Client{cfg: cfg, api: c.Transcripts, logger: logging.NewComponentLogger(logger, "assemblyai")}, nil
}

func (c *Client) Name() string { return "assemblyai" }

func (c *Client) Transcribe(ctx context.Context, path string) (string, error) {
	tr, err := c.transcribe(ctx, path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(aai.ToString(tr.Text)), nil
}

// Align transcribes the audio and returns AssemblyAI's sentence timing.
func (c *Client) Align(ctx context.Context, audio speech.Audio, granularity string) ([]speech.Segment, error) {
	if granularity != "" && granularity != speech.GranularitySentence {
		return nil, fmt.Errorf("assemblyai: unsupported granularity %q", granularity)
	}
	tr, err := c.transcribe(ctx, audio.Path)
	if err != nil {
		return nil, err
	}
	res, err := c.api.GetSentences(ctx, aai.ToString(tr.ID))
	if err != nil {
		return nil, fmt.Errorf("assemblyai sentences: %w", err)
	}
	segs := make([]speech.Segment, 0, len(res.Sentences))
	for _, s := range res.Sentences {
		segs = append(segs, speech.Segment{
			Text:  aai.ToString(s.Text),
			Start: float64(aai.ToInt64(s.Start)) / 1000,
			End:   float64(aai.ToInt64(s.End)) / 1000,
		})
	}
	c.logger.Debug("aligned", "path", audio.Path, "segments", len(segs))
	return segs, nil
}

func (c *Client) transcribe(ctx context.Context, path string) (aai.Transcript, error) {
	f, err := os.Open(path)
	if err != nil {
		return aai.Transcript{}, err
	}
	defer f.Close()
	var params *aai.TranscriptOptionalParams
	if c.cfg.LanguageCode != "" {
		params = &aai.TranscriptOptionalParams{LanguageCode: aai.TranscriptLanguageCode(c.cfg.LanguageCode)}
	}
	tr, err := c.api.TranscribeFromReader(ctx, f, params)
	if err != nil {
		return aai.Transcript{}, fmt.Errorf("assemblyai transcribe: %w", err)
	}
	if tr.Status == aai.TranscriptStatusError {
		return aai.Transcript{}, fmt.Errorf("assemblyai transcribe: %s", aai.ToString(tr.Error))
	}
	return tr, nil
}
