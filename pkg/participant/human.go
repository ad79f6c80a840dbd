package participant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/harunnryd/roundtable/pkg/audio"
	"github.com/harunnryd/roundtable/pkg/control"
	"github.com/harunnryd/roundtable/pkg/errorsx"
	"github.com/harunnryd/roundtable/pkg/logging"
	"github.com/harunnryd/roundtable/pkg/metrics"
	"github.com/harunnryd/roundtable/pkg/redact"
	"github.com/harunnryd/roundtable/pkg/transcript"
	"github.com/harunnryd/roundtable/pkg/turn"
)

const (
	DefaultHumanName = "Liv"

	DefaultSummarizePrompt = "Summarize chat and give an answer to what you think is the question " +
		"and 'chat' is their name and add a spin on how you feel about it: "
)

// Transcriber turns a recorded audio file into text.
type Transcriber interface {
	Transcribe(ctx context.Context, path string) (string, error)
	Name() string
}

type HumanConfig struct {
	Name            string
	SummarizePrompt string
	ChatLogDir      string
	ChatLogExts     []string
	// Agents maps 1-based control slots to agent ids.
	Agents []string
}

type HumanDeps struct {
	Coordinator *turn.Coordinator
	Roster      *Roster
	Source      control.Source
	Recorder    audio.Recorder
	Transcriber Transcriber
	// Pick chooses an index in [0,n); defaults to a uniform random pick.
	Pick     func(n int) int
	Observer metrics.Observer
	Logger   *slog.Logger
}

// Human relays operator input into the conversation. It never generates;
// it records, transcribes or ingests text, fans it out and hands the floor
// to an agent.
type Human struct {
	cfg    HumanConfig
	coord  *turn.Coordinator
	roster *Roster
	src    control.Source
	rec    audio.Recorder
	stt    Transcriber
	pick   func(n int) int
	obs    metrics.Observer
	logger *slog.Logger

	recording bool
}

func NewHuman(cfg HumanConfig, deps HumanDeps) *Human {
	if cfg.Name == "" {
		cfg.Name = DefaultHumanName
	}
	if cfg.SummarizePrompt == "" {
		cfg.SummarizePrompt = DefaultSummarizePrompt
	}
	pick := deps.Pick
	if pick == nil {
		pick = rand.IntN
	}
	obs := deps.Observer
	if obs == nil {
		obs = metrics.NoopObserver{}
	}
	return &Human{
		cfg:    cfg,
		coord:  deps.Coordinator,
		roster: deps.Roster,
		src:    deps.Source,
		rec:    deps.Recorder,
		stt:    deps.Transcriber,
		pick:   pick,
		obs:    obs,
		logger: logging.NewComponentLogger(deps.Logger, "human").With("human", cfg.Name),
	}
}

func (h *Human) Name() string { return h.cfg.Name }

// Run consumes control events until shutdown or ctx is done. Handler errors
// are logged and never stop the relay.
func (h *Human) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(h.coord.ShutdownContext(), cancel)
	defer stop()

	defer h.abandonRecording()
	for {
		ev, err := h.src.Next(ctx)
		if err != nil {
			if errors.Is(err, control.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		if err := h.Handle(ctx, ev); err != nil {
			h.logger.Error("human_event_failed", append([]any{"event", ev.String()}, errorsx.Attrs(err)...)...)
		}
		if h.coord.ShutdownRequested() {
			return nil
		}
	}
}

// Handle applies a single control event.
func (h *Human) Handle(ctx context.Context, ev control.Event) error {
	h.logger.Debug("control_event", "event", ev.String())
	switch ev.Kind {
	case control.KindPause:
		paused := h.coord.TogglePause()
		h.logger.Info("pause_toggled", "paused", paused)
		return nil
	case control.KindActivate:
		id, err := h.slot(ev.Agent)
		if err != nil {
			return err
		}
		h.coord.Resume()
		h.coord.RequestTurn(id)
		return nil
	case control.KindTalkBegin:
		return h.beginTalk(ctx)
	case control.KindTalkEnd:
		return h.endTalk(ctx)
	case control.KindIngest:
		return h.ingest(ctx)
	case control.KindTerminate:
		id, err := h.slot(ev.Agent)
		if err != nil {
			return err
		}
		return h.coord.Terminate(id)
	case control.KindShutdown:
		h.coord.RequestShutdown()
		return nil
	default:
		return fmt.Errorf("unknown control event %q", ev.Kind)
	}
}

func (h *Human) beginTalk(ctx context.Context) error {
	if h.recording {
		return nil
	}
	h.coord.Pause()
	if h.rec == nil {
		return errorsx.Newf(errorsx.ReasonRecord, "no recorder configured")
	}
	if err := h.rec.Start(ctx); err != nil {
		h.coord.Resume()
		return errorsx.Wrap(fmt.Errorf("start recording: %w", err), errorsx.ReasonRecord)
	}
	h.recording = true
	h.logger.Info("recording_started")
	return nil
}

func (h *Human) endTalk(ctx context.Context) error {
	if !h.recording {
		return nil
	}
	h.recording = false
	path, err := h.rec.Stop()
	if err != nil {
		h.coord.Resume()
		return errorsx.Wrap(fmt.Errorf("stop recording: %w", err), errorsx.ReasonRecord)
	}
	h.logger.Info("recording_stopped", "path", path)

	err = h.coord.Conversation(func() error {
		if h.stt == nil {
			return errorsx.Newf(errorsx.ReasonTranscription, "no transcriber configured")
		}
		start := time.Now()
		text, err := h.stt.Transcribe(ctx, path)
		if err != nil {
			return errorsx.Wrap(fmt.Errorf("transcribe with %s: %w", h.stt.Name(), err), errorsx.ReasonTranscription)
		}
		metrics.Since(h.obs, metrics.EventTranscribeMs, start, nil)
		text = strings.TrimSpace(text)
		if text == "" {
			return errorsx.Newf(errorsx.ReasonTranscription, "empty transcription for %s", path)
		}
		h.logger.Info("human_spoke", "text", redact.Snippet(text, 200))
		metrics.Record(h.obs, metrics.EventHumanSpoke, 1, nil)
		h.say(ctx, text)
		return nil
	})
	h.coord.Resume()
	if err != nil {
		return err
	}
	h.activateRandom()
	return nil
}

func (h *Human) ingest(ctx context.Context) error {
	h.coord.Pause()
	err := h.coord.Conversation(func() error {
		path, content, err := LatestLog(h.cfg.ChatLogDir, h.cfg.ChatLogExts)
		if err != nil {
			return err
		}
		h.logger.Info("chat_log_ingested", "path", path, "bytes", len(content))
		metrics.Record(h.obs, metrics.EventIngest, 1, nil)
		h.say(ctx, h.cfg.SummarizePrompt+content)
		return nil
	})
	h.coord.Resume()
	if err != nil {
		return err
	}
	h.activateRandom()
	return nil
}

// say fans text out to every agent. The caller holds the conversation region.
func (h *Human) say(ctx context.Context, text string) {
	u := transcript.Utterance{Speaker: h.cfg.Name, Text: text, Role: transcript.RoleUser}
	if err := h.roster.FanOut(ctx, u, ""); err != nil {
		h.logger.Warn("fan_out_backup_failed", errorsx.Attrs(err)...)
	}
}

// activateRandom hands the floor to one non-terminated agent chosen uniformly.
func (h *Human) activateRandom() {
	active := h.coord.ActiveParticipants()
	if len(active) == 0 {
		h.logger.Warn("no_active_agents")
		return
	}
	id := active[h.pick(len(active))]
	h.coord.RequestTurn(id)
	h.logger.Info("agent_activated", "agent_id", id)
}

func (h *Human) slot(n int) (string, error) {
	if n < 1 || n > len(h.cfg.Agents) {
		return "", fmt.Errorf("agent slot %d out of range (1-%d)", n, len(h.cfg.Agents))
	}
	return h.cfg.Agents[n-1], nil
}

func (h *Human) abandonRecording() {
	if !h.recording {
		return
	}
	h.recording = false
	if _, err := h.rec.Stop(); err != nil {
		h.logger.Warn("recording_abandon_failed", "error", err)
	}
}
