package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/harunnryd/roundtable/pkg/artifacts"
	"github.com/harunnryd/roundtable/pkg/audio"
	"github.com/harunnryd/roundtable/pkg/configutil"
	"github.com/harunnryd/roundtable/pkg/control"
	"github.com/harunnryd/roundtable/pkg/llm"
	"github.com/harunnryd/roundtable/pkg/logging"
	"github.com/harunnryd/roundtable/pkg/metrics"
	"github.com/harunnryd/roundtable/pkg/observers"
	"github.com/harunnryd/roundtable/pkg/participant"
	"github.com/harunnryd/roundtable/pkg/presentation"
	"github.com/harunnryd/roundtable/pkg/redact"
	"github.com/harunnryd/roundtable/pkg/resilience"
	"github.com/harunnryd/roundtable/pkg/runner"
	"github.com/harunnryd/roundtable/pkg/speech"
	"github.com/harunnryd/roundtable/pkg/transcript"
	"github.com/harunnryd/roundtable/pkg/transports"
	"github.com/harunnryd/roundtable/pkg/transports/ws"
	"github.com/harunnryd/roundtable/pkg/turn"
)

const (
	defaultQueueSize   = 64
	defaultEventBuffer = 2048
	bannerTitle        = "ROUNDTABLE"
)

// Options assembles an Engine. Only Config and Providers are required; the
// other fields replace what the config would otherwise build.
type Options struct {
	Config    Config
	Providers *ProviderRegistry
	Transport transports.Transport
	Publisher speech.Publisher
	Backup    transcript.Backup
	Recorder  audio.Recorder
	Source    control.Source
	// Pick chooses which agent speaks after the human; defaults to random.
	Pick   func(n int) int
	Sleep  presentation.SleepFunc
	Hooks  runner.Hooks
	Banner io.Writer
	Logger *slog.Logger
}

// Engine owns one conversation: the coordinator, every participant, the
// presentation transport and the observers watching them.
type Engine struct {
	cfg       Config
	providers *ProviderRegistry
	logger    *slog.Logger
	hooks     runner.Hooks
	banner    io.Writer

	coord     *turn.Coordinator
	queue     *control.Queue
	transport transports.Transport
	roster    *participant.Roster
	agents    []*participant.Agent
	human     *participant.Human

	asyncObs *metrics.AsyncObserver
	logObs   *observers.LoggerObserver
	latency  *observers.LatencyObserver
	timeline *observers.TimelineObserver
	cost     *observers.CostObserver
	closers  []io.Closer

	mu        sync.Mutex
	lifecycle *runner.LifecycleRunner
	closeOnce sync.Once
}

func NewEngine(ctx context.Context, opts Options) (*Engine, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := opts.Config
	if opts.Providers == nil {
		return nil, errors.New("engine: provider registry is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	redact.SetEnabled(cfg.Privacy.RedactPII)

	e := &Engine{
		cfg:       cfg,
		providers: opts.Providers,
		logger:    logging.NewComponentLogger(logger, "engine"),
		hooks:     opts.Hooks,
		banner:    opts.Banner,
	}
	ok := false
	defer func() {
		if !ok {
			e.closeAll()
		}
	}()

	e.logger.Info("roundtable_init",
		"llm_provider", cfg.Vendors.LLM.Provider,
		"tts_provider", cfg.Vendors.TTS.Provider,
		"aligner_provider", cfg.Vendors.Aligner.Provider,
		"stt_provider", cfg.Vendors.STT.Provider,
		"agents", len(cfg.Agents),
	)

	obs, err := e.buildObservers(logger)
	if err != nil {
		return nil, err
	}

	e.coord = turn.NewCoordinator(turn.Config{Logger: logger, Observer: obs})
	e.coord.AddListener(e.logObs)
	if e.timeline != nil {
		e.coord.AddListener(e.timeline)
	}

	gen, err := e.buildGenerator(ctx, logger, obs)
	if err != nil {
		return nil, err
	}
	pipe, err := e.buildSpeech(ctx, opts, logger, obs)
	if err != nil {
		return nil, err
	}

	e.transport = opts.Transport
	if e.transport == nil {
		e.transport = ws.New(cfg.Presentation, logger, obs)
	}
	emitter := presentation.NewEmitter(presentation.EmitterConfig{
		Channel:  e.transport,
		Cooldown: configutil.Millis(cfg.Turn.CooldownMS, time.Second),
		Sleep:    opts.Sleep,
		Observer: obs,
		Logger:   logger,
	})

	backup, err := e.buildBackup(ctx, opts)
	if err != nil {
		return nil, err
	}

	e.roster = participant.NewRoster()
	ids := make([]string, 0, len(cfg.Agents))
	for _, ac := range cfg.Agents {
		store := transcript.NewStore(ac.ID, backup, logger).WithObserver(obs)
		restored := store.LoadOrSeed(ctx, ac.Persona)
		e.logger.Debug("agent_transcript_ready", "agent_id", ac.ID, "restored", restored, "entries", store.Len())
		agent := participant.NewAgent(participant.AgentConfig{
			ID:           ac.ID,
			Name:         ac.Name,
			Voice:        ac.Voice,
			Model:        ac.Model,
			Persona:      ac.Persona,
			TurnPrompt:   cfg.TurnPromptFor(ac),
			PollInterval: configutil.Millis(cfg.Turn.PollIntervalMS, 100*time.Millisecond),
		}, participant.AgentDeps{
			Coordinator: e.coord,
			Roster:      e.roster,
			Store:       store,
			Generator:   gen,
			Speech:      pipe,
			Player:      emitter,
			Observer:    obs,
			Logger:      logger,
		})
		e.agents = append(e.agents, agent)
		ids = append(ids, ac.ID)
	}

	e.queue = control.NewQueue(defaultQueueSize)
	e.queue.OnShutdown(e.coord.RequestShutdown)
	source := opts.Source
	if source == nil {
		source = e.queue
	}
	recorder := opts.Recorder
	if recorder == nil {
		recorder, err = e.providers.BuildRecorder(ctx, BuildContext{
			Config: cfg,
			Vendor: VendorConfig{Provider: cfg.Recorder.Provider},
			Logger: logger,
		})
		if err != nil {
			return nil, fmt.Errorf("build recorder: %w", err)
		}
	}
	stt, err := e.providers.BuildSTT(ctx, BuildContext{Config: cfg, Vendor: cfg.Vendors.STT, Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("build stt: %w", err)
	}
	e.human = participant.NewHuman(participant.HumanConfig{
		Name:            cfg.Human.Name,
		SummarizePrompt: cfg.Human.SummarizePrompt,
		ChatLogDir:      cfg.ChatLogs.Dir,
		ChatLogExts:     cfg.ChatLogs.Exts,
		Agents:          ids,
	}, participant.HumanDeps{
		Coordinator: e.coord,
		Roster:      e.roster,
		Source:      source,
		Recorder:    recorder,
		Transcriber: stt,
		Pick:        opts.Pick,
		Observer:    obs,
		Logger:      logger,
	})

	ok = true
	return e, nil
}

func (e *Engine) buildObservers(logger *slog.Logger) (metrics.Observer, error) {
	cfg := e.cfg.Observability
	e.latency = observers.NewLatencyObserver(logger)
	e.logObs = observers.NewLoggerObserver(logger)
	list := metrics.MultiObserver{e.latency, e.logObs}
	if cfg.RetentionDays > 0 {
		maxAge := time.Duration(cfg.RetentionDays) * 24 * time.Hour
		e.purge(cfg.ArtifactsDir, maxAge, observers.TraceExts)
		e.purge(e.cfg.Presentation.AudioDir, maxAge, observers.AudioExts)
	}
	if dir := strings.TrimSpace(cfg.ArtifactsDir); dir != "" {
		e.timeline = observers.NewTimelineObserver(dir)
		e.cost = observers.NewCostObserver(dir)
		list = append(list, e.timeline, e.cost)
	}
	if path := strings.TrimSpace(cfg.MetricsFile); path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create metrics dir: %w", err)
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open metrics file: %w", err)
		}
		e.closers = append(e.closers, f)
		var sink metrics.Observer = metrics.NewJSONLObserver(f)
		if cfg.SampleRate > 0 && cfg.SampleRate < 1 {
			sink = metrics.NewSamplingObserver(sink, cfg.SampleRate)
		}
		list = append(list, sink)
	}
	buffer := cfg.EventBuffer
	if buffer <= 0 {
		buffer = defaultEventBuffer
	}
	e.asyncObs = metrics.NewAsyncObserver(list, buffer)
	return e.asyncObs, nil
}

func (e *Engine) purge(dir string, maxAge time.Duration, exts []string) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return
	}
	purged, err := observers.PurgeArtifacts(dir, maxAge, exts...)
	if err != nil {
		e.logger.Warn("artifact_purge_failed", "dir", dir, "error", err)
		return
	}
	if purged > 0 {
		e.logger.Info("artifacts_purged", "dir", dir, "count", purged)
	}
}

type observable interface {
	SetObserver(obs metrics.Observer)
}

func (e *Engine) buildGenerator(ctx context.Context, logger *slog.Logger, obs metrics.Observer) (llm.Generator, error) {
	gen, err := e.providers.BuildLLM(ctx, BuildContext{Config: e.cfg, Vendor: e.cfg.Vendors.LLM, Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("build llm: %w", err)
	}
	if o, ok := gen.(observable); ok {
		o.SetObserver(obs)
	}
	return llm.NewTracedGenerator(gen), nil
}

func (e *Engine) buildSpeech(ctx context.Context, opts Options, logger *slog.Logger, obs metrics.Observer) (*speech.Pipeline, error) {
	synth, err := e.providers.BuildTTS(ctx, BuildContext{Config: e.cfg, Vendor: e.cfg.Vendors.TTS, Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("build tts: %w", err)
	}
	aligner, err := e.providers.BuildAligner(ctx, BuildContext{Config: e.cfg, Vendor: e.cfg.Vendors.Aligner, Logger: logger}, synth)
	if err != nil {
		return nil, fmt.Errorf("build aligner: %w", err)
	}
	publisher := opts.Publisher
	if publisher == nil {
		publisher, err = e.buildPublisher(ctx)
		if err != nil {
			return nil, err
		}
	}
	return speech.NewPipeline(speech.Config{
		Synthesizer: synth,
		Aligner:     aligner,
		Publisher:   publisher,
		Observer:    obs,
		Logger:      logger,
	}), nil
}

func (e *Engine) buildPublisher(ctx context.Context) (speech.Publisher, error) {
	switch strings.ToLower(e.cfg.Artifacts.Provider) {
	case "minio":
		pub, err := artifacts.NewMinio(ctx, e.cfg.Artifacts.Minio)
		if err != nil {
			return nil, fmt.Errorf("build minio publisher: %w", err)
		}
		return pub, nil
	default:
		pub, err := artifacts.NewLocal(e.cfg.Presentation.AudioDir, e.cfg.Artifacts.Prefix)
		if err != nil {
			return nil, fmt.Errorf("build local publisher: %w", err)
		}
		return pub, nil
	}
}

func (e *Engine) buildBackup(ctx context.Context, opts Options) (transcript.Backup, error) {
	if opts.Backup != nil {
		return opts.Backup, nil
	}
	switch strings.ToLower(e.cfg.Transcripts.Backend) {
	case "none":
		return nil, nil
	case "redis":
		rb, err := transcript.NewRedisBackup(ctx, e.cfg.Transcripts.Redis, resilience.NewRetryPolicy(5, 200*time.Millisecond))
		if err != nil {
			return nil, fmt.Errorf("connect redis backup: %w", err)
		}
		e.closers = append(e.closers, rb)
		return rb, nil
	default:
		fb, err := transcript.NewFileBackup(e.cfg.Transcripts.Dir)
		if err != nil {
			return nil, fmt.Errorf("create backup dir: %w", err)
		}
		return fb, nil
	}
}

// Run starts the transport and every participant, then blocks until ctx is
// cancelled or shutdown is requested, and drains within the configured bound.
func (e *Engine) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := e.transport.Start(ctx); err != nil {
		e.closeAll()
		return fmt.Errorf("start %s transport: %w", e.transport.Name(), err)
	}
	if rr, ok := e.transport.(transports.ReadyReporter); ok {
		fields := rr.ReadyFields()
		args := make([]any, 0, len(fields)*2)
		for k, v := range fields {
			args = append(args, k, v)
		}
		e.logger.Info("transport_ready", args...)
	}

	sup := runner.NewSupervisor(ctx, e.logger)
	for _, a := range e.agents {
		sup.Go("agent:"+a.ID(), a.Run)
	}
	sup.Go("human:"+e.human.Name(), e.human.Run)

	lr := runner.NewLifecycleRunner(runner.Config{
		Drainer:  sup,
		Shutdown: e.shutdown,
		Done:     e.coord.Done(),
		Hooks: runner.Hooks{
			OnStart:     e.hooks.OnStart,
			OnForceExit: e.hooks.OnForceExit,
			OnStop: func() {
				e.closeAll()
				if e.hooks.OnStop != nil {
					e.hooks.OnStop()
				}
			},
		},
		Timeout: configutil.Millis(e.cfg.Turn.DrainTimeoutMS, 2*time.Second),
		Banner:  e.banner,
		Title:   bannerTitle,
		Logger:  e.logger,
	})
	e.mu.Lock()
	e.lifecycle = lr
	e.mu.Unlock()
	return lr.Run(ctx)
}

// Stop requests shutdown and waits for the drain.
func (e *Engine) Stop() error {
	e.coord.RequestShutdown()
	e.mu.Lock()
	lr := e.lifecycle
	e.mu.Unlock()
	if lr == nil {
		e.closeAll()
		return nil
	}
	return lr.Stop()
}

func (e *Engine) shutdown() {
	e.coord.RequestShutdown()
	e.queue.Close()
}

func (e *Engine) closeAll() {
	e.closeOnce.Do(func() {
		if e.transport != nil {
			if err := e.transport.Stop(); err != nil {
				e.logger.Warn("transport_stop_failed", "error", err)
			}
		}
		if e.asyncObs != nil {
			if err := e.asyncObs.Flush(); err != nil {
				e.logger.Warn("metrics_flush_failed", "error", err)
			}
			e.logger.Info("metrics_delivered", "count", e.asyncObs.Delivered(), "dropped", e.asyncObs.Dropped())
		}
		if e.queue != nil {
			st := e.queue.Stats()
			e.logger.Info("control_queue_stats",
				"urgent", st.UrgentPush,
				"normal", st.NormalPush,
				"dropped", st.Dropped,
			)
		}
		if e.latency != nil {
			e.latency.Report()
		}
		if e.cost != nil {
			if err := e.cost.Close(); err != nil {
				e.logger.Warn("cost_summary_failed", "error", err)
			}
		}
		if e.timeline != nil {
			if err := e.timeline.Close(); err != nil {
				e.logger.Warn("timeline_close_failed", "error", err)
			}
		}
		for _, c := range e.closers {
			if err := c.Close(); err != nil {
				e.logger.Warn("close_failed", "error", err)
			}
		}
	})
}

func (e *Engine) Config() Config { return e.cfg }

func (e *Engine) Coordinator() *turn.Coordinator { return e.coord }

func (e *Engine) Queue() *control.Queue { return e.queue }

func (e *Engine) Transport() transports.Transport { return e.transport }

func (e *Engine) Roster() *participant.Roster { return e.roster }

func (e *Engine) ProviderRegistry() *ProviderRegistry { return e.providers }

// Slots maps control slots 1..n to agents for key listeners.
func (e *Engine) Slots() []control.Slot {
	out := make([]control.Slot, 0, len(e.agents))
	for _, a := range e.agents {
		out = append(out, control.Slot{ID: a.ID(), Label: a.Name()})
	}
	return out
}

// Latency returns per-stage timings observed so far.
func (e *Engine) Latency() []observers.StageSummary {
	return e.latency.Summary()
}
