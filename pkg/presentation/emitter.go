package presentation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/harunnryd/roundtable/pkg/errorsx"
	"github.com/harunnryd/roundtable/pkg/logging"
	"github.com/harunnryd/roundtable/pkg/metrics"
	"github.com/harunnryd/roundtable/pkg/speech"
)

const defaultCooldown = time.Second

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// EmitterConfig configures playback pacing.
type EmitterConfig struct {
	Channel  Channel
	Cooldown time.Duration
	Sleep    SleepFunc
	Observer metrics.Observer
	Logger   *slog.Logger
}

// Emitter paces caption events against one audio artifact at a time.
type Emitter struct {
	ch       Channel
	cooldown time.Duration
	sleep    SleepFunc
	obs      metrics.Observer
	logger   *slog.Logger
}

func NewEmitter(cfg EmitterConfig) *Emitter {
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = defaultCooldown
	}
	if cfg.Sleep == nil {
		cfg.Sleep = Sleep
	}
	if cfg.Observer == nil {
		cfg.Observer = metrics.NoopObserver{}
	}
	return &Emitter{
		ch:       cfg.Channel,
		cooldown: cfg.Cooldown,
		sleep:    cfg.Sleep,
		obs:      cfg.Observer,
		logger:   logging.NewComponentLogger(cfg.Logger, "emitter"),
	}
}

// Play emits start_agent and agent_audio, then one agent_message per segment
// followed by the segment duration and the gap to the next segment. After the
// last segment and the cooldown it emits clear_agent. ctx is checked before
// every segment and wakes pending sleeps; clear_agent is emitted exactly once
// whether playback finishes, aborts or fails.
func (e *Emitter) Play(ctx context.Context, agentID string, art speech.Artifact) (err error) {
	start := time.Now()
	defer func() {
		if cerr := e.clear(ctx, agentID); cerr != nil && err == nil {
			err = cerr
		}
		metrics.Since(e.obs, metrics.EventPresentMs, start, map[string]string{"agent": agentID})
	}()

	if err := ctx.Err(); err != nil {
		return aborted(err)
	}
	if err := e.publish(ctx, StartAgent(agentID)); err != nil {
		return err
	}
	if art.Reference != "" {
		if err := e.publish(ctx, AgentAudio(agentID, art.Reference)); err != nil {
			return err
		}
	}
	segs := art.Segments
	for i, seg := range segs {
		if err := ctx.Err(); err != nil {
			e.logger.Info("playback_aborted", "agent", agentID, "remaining_segments", len(segs)-i)
			return aborted(err)
		}
		if err := e.publish(ctx, AgentMessage(agentID, seg.Text)); err != nil {
			e.logger.Warn("playback_segment_failed", "agent", agentID, "segment", i, "error", err)
			return err
		}
		wait := seg.Duration()
		if i+1 < len(segs) {
			wait += seg.GapTo(segs[i+1])
		}
		if err := e.sleep(ctx, wait); err != nil {
			e.logger.Info("playback_aborted", "agent", agentID, "remaining_segments", len(segs)-i-1)
			return aborted(err)
		}
	}
	if err := e.sleep(ctx, e.cooldown); err != nil {
		return aborted(err)
	}
	return nil
}

func (e *Emitter) publish(ctx context.Context, ev Event) error {
	if err := e.ch.Publish(ctx, ev); err != nil {
		return errorsx.Wrap(fmt.Errorf("publish %s: %w", ev.Name, err), errorsx.ReasonPresentationSend)
	}
	return nil
}

// clear runs even after ctx is cancelled so the caption never sticks.
func (e *Emitter) clear(ctx context.Context, agentID string) error {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	return e.publish(cctx, ClearAgent(agentID))
}

func aborted(err error) error {
	return errorsx.Wrap(fmt.Errorf("playback aborted: %w", err), errorsx.ReasonShutdown)
}

// IsAborted reports whether err came from a cancelled playback.
func IsAborted(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// Sleep waits for d, returning ctx.Err() early if ctx is done first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
