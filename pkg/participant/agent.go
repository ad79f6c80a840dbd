package participant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/harunnryd/roundtable/pkg/errorsx"
	"github.com/harunnryd/roundtable/pkg/llm"
	"github.com/harunnryd/roundtable/pkg/logging"
	"github.com/harunnryd/roundtable/pkg/metrics"
	"github.com/harunnryd/roundtable/pkg/redact"
	"github.com/harunnryd/roundtable/pkg/speech"
	"github.com/harunnryd/roundtable/pkg/transcript"
	"github.com/harunnryd/roundtable/pkg/turn"
)

const tracerName = "github.com/harunnryd/roundtable/pkg/participant"

const defaultAgentPoll = 100 * time.Millisecond

// Synthesizer turns a reply into a playable artifact.
type Synthesizer interface {
	SynthesizeAndSegment(ctx context.Context, text, voice string) (speech.Artifact, error)
}

// Player paces an artifact on the presentation channel.
type Player interface {
	Play(ctx context.Context, agentID string, art speech.Artifact) error
}

// AgentConfig describes one scripted personality.
type AgentConfig struct {
	ID      string
	Name    string
	Voice   string
	Model   string
	Persona string
	// TurnPrompt is sent after the history on every request and never stored.
	TurnPrompt   string
	PollInterval time.Duration
}

type AgentDeps struct {
	Coordinator *turn.Coordinator
	Roster      *Roster
	Store       *transcript.Store
	Generator   llm.Generator
	Speech      Synthesizer
	Player      Player
	Observer    metrics.Observer
	Logger      *slog.Logger
}

// Agent is a scripted participant. It waits for its activation flag, takes
// one turn, and goes back to waiting until it is terminated or shutdown.
type Agent struct {
	cfg    AgentConfig
	coord  *turn.Coordinator
	roster *Roster
	store  *transcript.Store
	gen    llm.Generator
	speech Synthesizer
	player Player
	obs    metrics.Observer
	logger *slog.Logger
}

func NewAgent(cfg AgentConfig, deps AgentDeps) *Agent {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultAgentPoll
	}
	if cfg.Name == "" {
		cfg.Name = cfg.ID
	}
	obs := deps.Observer
	if obs == nil {
		obs = metrics.NoopObserver{}
	}
	deps.Coordinator.Register(cfg.ID)
	if deps.Roster != nil && deps.Store != nil {
		deps.Roster.Add(cfg.ID, deps.Store)
	}
	return &Agent{
		cfg:    cfg,
		coord:  deps.Coordinator,
		roster: deps.Roster,
		store:  deps.Store,
		gen:    deps.Generator,
		speech: deps.Speech,
		player: deps.Player,
		obs:    obs,
		logger: logging.NewComponentLogger(deps.Logger, "agent").With("agent", cfg.Name, "agent_id", cfg.ID),
	}
}

func (a *Agent) ID() string   { return a.cfg.ID }
func (a *Agent) Name() string { return a.cfg.Name }

// Run is the participant loop. It returns when ctx is done, on shutdown, or
// once the agent is terminated.
func (a *Agent) Run(ctx context.Context) error {
	id := a.cfg.ID
	metrics.Record(a.obs, metrics.EventParticipantUp, 1, map[string]string{"participant": id})
	a.logger.Info("agent_started")
	defer a.logger.Info("agent_stopped", "state", a.coord.State(id).String())
	for {
		if ctx.Err() != nil || a.coord.Stopped(id) {
			return nil
		}
		if a.coord.Paused() || !a.coord.IsMyTurn(id) {
			if !a.wait(ctx) {
				return nil
			}
			continue
		}
		a.takeTurn(ctx)
	}
}

func (a *Agent) wait(ctx context.Context) bool {
	timer := time.NewTimer(a.cfg.PollInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-a.coord.Context(a.cfg.ID).Done():
		return false
	case <-timer.C:
		return true
	}
}

// takeTurn runs one activation. Every failure is logged and the turn becomes
// a no-op; nothing escapes and both regions are always released.
func (a *Agent) takeTurn(parent context.Context) {
	id := a.cfg.ID
	ctx, cancel := context.WithCancel(a.coord.Context(id))
	defer cancel()
	stop := context.AfterFunc(parent, cancel)
	defer stop()

	ctx, span := otel.Tracer(tracerName).Start(ctx, "agent turn")
	span.SetAttributes(attribute.String("agent.id", id), attribute.String("agent.name", a.cfg.Name))
	defer span.End()

	start := time.Now()
	a.transition(turn.StateActivated, "turn requested")
	outcome := "idle"
	defer func() {
		if r := recover(); r != nil {
			a.fail(span, errorsx.Wrap(fmt.Errorf("panic: %v\n%s", r, debug.Stack()), errorsx.ReasonPanic))
			outcome = "panic"
		}
		a.transition(turn.StateIdle, outcome)
	}()

	var reply transcript.Utterance
	var consumed, deferred bool
	err := a.coord.Conversation(func() error {
		// A pause may land while waiting for the region. The activation
		// stays pending and runs after resume.
		if a.coord.Paused() {
			deferred = true
			return nil
		}
		if !a.coord.ConsumeTurn(id) {
			return nil
		}
		consumed = true
		if a.coord.Stopped(id) {
			return turn.ErrShutdown
		}
		a.transition(turn.StateGenerating, "generating")
		u, err := a.generate(ctx)
		if err != nil {
			return err
		}
		if a.coord.Stopped(id) {
			return turn.ErrShutdown
		}
		reply = u
		if err := a.store.Append(ctx, u.AsOwn()); err != nil {
			a.logger.Warn("own_transcript_backup_failed", errorsx.Attrs(err)...)
		}
		if err := a.roster.FanOut(ctx, u, id); err != nil {
			a.logger.Warn("fan_out_backup_failed", errorsx.Attrs(err)...)
		}
		return nil
	})
	if deferred {
		outcome = "paused before generating"
		return
	}
	if !consumed && err == nil {
		outcome = "turn already consumed"
		return
	}
	if err != nil {
		outcome = a.fail(span, err)
		return
	}

	a.transition(turn.StateSpeaking, "speaking")
	art, err := a.speech.SynthesizeAndSegment(ctx, reply.Text, a.cfg.Voice)
	if err != nil {
		outcome = a.fail(span, err)
		return
	}
	if a.coord.Stopped(id) {
		outcome = a.fail(span, turn.ErrShutdown)
		return
	}
	err = a.coord.Speaking(id, func() error {
		if a.coord.Stopped(id) {
			return turn.ErrShutdown
		}
		return a.player.Play(ctx, id, art)
	})
	if err != nil {
		outcome = a.fail(span, err)
		return
	}
	outcome = "finished speaking"
	tags := map[string]string{"participant": id}
	metrics.Record(a.obs, metrics.EventSpeechSeconds, speech.PlaybackTime(art.Segments).Seconds(), tags)
	metrics.Since(a.obs, metrics.EventTurnCompleted, start, tags)
	a.logger.Info("agent_turn_finished", "segments", len(art.Segments), "duration_ms", time.Since(start).Milliseconds())
}

func (a *Agent) generate(ctx context.Context) (transcript.Utterance, error) {
	messages := a.store.Render()
	if a.cfg.TurnPrompt != "" {
		messages = append(messages, llm.Message{Role: llm.RoleUser, Content: a.cfg.TurnPrompt})
	}
	start := time.Now()
	resp, err := a.gen.Generate(ctx, llm.Request{Model: a.cfg.Model, Messages: messages})
	if err != nil {
		return transcript.Utterance{}, errorsx.Wrap(fmt.Errorf("generate with %s: %w", a.gen.Name(), err), errorsx.ReasonGeneration)
	}
	tags := map[string]string{"participant": a.cfg.ID, "provider": a.gen.Name()}
	metrics.Since(a.obs, metrics.EventGenerateMs, start, tags)
	if resp.Usage.TotalTokens > 0 {
		metrics.Record(a.obs, metrics.EventTokens, float64(resp.Usage.TotalTokens), tags)
	}
	text := llm.CleanForSpeech(resp.Text)
	if text == "" {
		return transcript.Utterance{}, errorsx.Newf(errorsx.ReasonGeneration, "empty reply from %s", a.gen.Name())
	}
	a.logger.Info("agent_reply", "text", redact.Snippet(text, 200))
	return transcript.Utterance{Speaker: a.cfg.Name, Text: text, Role: transcript.RoleAssistant}, nil
}

// fail logs err at the turn boundary and returns a short outcome label.
func (a *Agent) fail(span trace.Span, err error) string {
	reason := errorsx.Reason(err)
	if reason == errorsx.ReasonShutdown || errors.Is(err, turn.ErrShutdown) {
		a.logger.Info("agent_turn_aborted", "reason_code", reason)
		return "aborted"
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	metrics.Record(a.obs, metrics.EventTurnFailed, 1, map[string]string{
		"participant": a.cfg.ID,
		"reason_code": string(reason),
	})
	a.logger.Error("agent_turn_failed", errorsx.Attrs(err)...)
	return "failed: " + string(reason)
}

func (a *Agent) transition(state turn.State, reason string) {
	if err := a.coord.Transition(a.cfg.ID, state, reason); err != nil && !a.coord.Terminated(a.cfg.ID) {
		a.logger.Debug("agent_transition_rejected", "error", err)
	}
}
