package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/rest"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	client "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"

	"github.com/harunnryd/roundtable/pkg/logging"
	"github.com/harunnryd/roundtable/pkg/speech"
)

type Config struct {
	APIKey   string
	Model    string
	Language string
}

// Prerecorded sends finished audio files to Deepgram. It serves both as the
// Aligner (sentence timing from paragraphs) and the human Transcriber.
type Prerecorded struct {
	cfg    Config
	logger *slog.Logger
	fetch  func(ctx context.Context, path string) (response, error)
}

var initOnce sync.Once

func New(cfg Config, logger *slog.Logger) *Prerecorded {
	if cfg.Model == "" {
		cfg.Model = "nova-2"
	}
	if cfg.Language == "" {
		cfg.Language = "en-US"
	}
	p := &Prerecorded{cfg: cfg, logger: logging.NewComponentLogger(logger, "deepgram")}
	p.fetch = p.fromFile
	return p
}

func (p *Prerecorded) Name() string { return "deepgram" }

// Align returns one segment per sentence Deepgram finds in the audio.
func (p *Prerecorded) Align(ctx context.Context, audio speech.Audio, granularity string) ([]speech.Segment, error) {
	if granularity != "" && granularity != speech.GranularitySentence {
		return nil, fmt.Errorf("deepgram: unsupported granularity %q", granularity)
	}
	res, err := p.fetch(ctx, audio.Path)
	if err != nil {
		return nil, err
	}
	segs := res.sentences()
	if len(segs) == 0 {
		return nil, errors.New("deepgram: no sentences in response")
	}
	p.logger.Debug("aligned", "path", audio.Path, "segments", len(segs))
	return segs, nil
}

// Transcribe returns the best transcript for a recording.
func (p *Prerecorded) Transcribe(ctx context.Context, path string) (string, error) {
	res, err := p.fetch(ctx, path)
	if err != nil {
		return "", err
	}
	return res.transcript(), nil
}

func (p *Prerecorded) fromFile(ctx context.Context, path string) (response, error) {
	if p.cfg.APIKey == "" {
		return response{}, errors.New("deepgram: missing api key")
	}
	initOnce.Do(func() {
		client.InitWithDefault()
	})
	c := client.NewREST(p.cfg.APIKey, &interfaces.ClientOptions{})
	dg := api.New(c)
	raw, err := dg.FromFile(ctx, path, &interfaces.PreRecordedTranscriptionOptions{
		Model:       p.cfg.Model,
		Language:    p.cfg.Language,
		Punctuate:   true,
		SmartFormat: true,
		Paragraphs:  true,
	})
	if err != nil {
		return response{}, fmt.Errorf("deepgram prerecorded: %w", err)
	}
	// The SDK response is re-read through its JSON form so only the fields
	// used here are bound.
	b, err := json.Marshal(raw)
	if err != nil {
		return response{}, err
	}
	return decodeResponse(b)
}

type response struct {
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string `json:"transcript"`
				Paragraphs struct {
					Paragraphs []struct {
						Sentences []struct {
							Text  string  `json:"text"`
							Start float64 `json:"start"`
							End   float64 `json:"end"`
						} `json:"sentences"`
					} `json:"paragraphs"`
				} `json:"paragraphs"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

func decodeResponse(b []byte) (response, error) {
	var res response
	if err := json.Unmarshal(b, &res); err != nil {
		return response{}, fmt.Errorf("decode deepgram response: %w", err)
	}
	return res, nil
}

func (r response) transcript() string {
	if len(r.Results.Channels) == 0 || len(r.Results.Channels[0].Alternatives) == 0 {
		return ""
	}
	return strings.TrimSpace(r.Results.Channels[0].Alternatives[0].Transcript)
}

func (r response) sentences() []speech.Segment {
	if len(r.Results.Channels) == 0 || len(r.Results.Channels[0].Alternatives) == 0 {
		return nil
	}
	var out []speech.Segment
	for _, para := range r.Results.Channels[0].Alternatives[0].Paragraphs.Paragraphs {
		for _, s := range para.Sentences {
			out = append(out, speech.Segment{Text: s.Text, Start: s.Start, End: s.End})
		}
	}
	return out
}
