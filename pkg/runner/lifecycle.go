package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/harunnryd/roundtable/pkg/logging"
)

var (
	// ErrDrainTimeout is returned when workers outlive the drain bound.
	ErrDrainTimeout = errors.New("drain timeout")
	ErrAlreadyRun   = errors.New("lifecycle already started")
)

const defaultDrainTimeout = 2 * time.Second

// Config wires a LifecycleRunner. Shutdown broadcasts the stop signal to every
// worker; Done, when set, ends the run from inside the process.
type Config struct {
	Drainer  Drainer
	Shutdown func()
	Done     <-chan struct{}
	Hooks    Hooks
	Timeout  time.Duration
	Banner   io.Writer
	Title    string
	Logger   *slog.Logger
}

// LifecycleRunner moves through new, running, draining and stopped exactly once.
type LifecycleRunner struct {
	cfg    Config
	logger *slog.Logger
	state  atomic.Int32

	mu     sync.Mutex
	cancel context.CancelFunc

	stopOnce sync.Once
	stopErr  error
}

func NewLifecycleRunner(cfg Config) *LifecycleRunner {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultDrainTimeout
	}
	return &LifecycleRunner{
		cfg:    cfg,
		cancel: func() {},
		logger: logging.NewComponentLogger(cfg.Logger, "lifecycle"),
	}
}

// Run blocks until ctx is cancelled, Stop is called or Done closes, then
// drains. Stragglers trigger Hooks.OnForceExit.
func (r *LifecycleRunner) Run(ctx context.Context) error {
	if !r.state.CompareAndSwap(int32(StateNew), int32(StateStarting)) {
		return fmt.Errorf("%w: state %s", ErrAlreadyRun, r.State())
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	r.mu.Lock()
	r.cancel = cancel
	r.mu.Unlock()

	PrintBanner(r.cfg.Banner, r.cfg.Title)
	if r.cfg.Hooks.OnStart != nil {
		r.cfg.Hooks.OnStart()
	}
	r.enter(StateRunning)
	started := time.Now()

	select {
	case <-ctx.Done():
		r.logger.Info("lifecycle_cancelled", "uptime", time.Since(started).Round(time.Millisecond).String())
	case <-r.cfg.Done:
		r.logger.Info("lifecycle_done", "uptime", time.Since(started).Round(time.Millisecond).String())
	}
	return r.stop()
}

// Stop ends a running lifecycle. It is safe to call more than once.
func (r *LifecycleRunner) Stop() error {
	r.mu.Lock()
	cancel := r.cancel
	r.mu.Unlock()
	cancel()
	return r.stop()
}

func (r *LifecycleRunner) State() State {
	return State(r.state.Load())
}

func (r *LifecycleRunner) stop() error {
	r.stopOnce.Do(func() {
		r.enter(StateDraining)
		if r.cfg.Shutdown != nil {
			r.cfg.Shutdown()
		}
		r.stopErr = r.drain()
		if r.cfg.Hooks.OnStop != nil {
			r.cfg.Hooks.OnStop()
		}
		r.enter(StateStopped)
	})
	return r.stopErr
}

func (r *LifecycleRunner) drain() error {
	if r.cfg.Drainer == nil {
		return nil
	}
	began := time.Now()
	stragglers := r.cfg.Drainer.Drain(r.cfg.Timeout)
	if len(stragglers) == 0 {
		r.logger.Info("lifecycle_drained", "took", time.Since(began).Round(time.Millisecond).String())
		return nil
	}
	r.logger.Error("lifecycle_force_exit", "stragglers", stragglers, "timeout", r.cfg.Timeout.String())
	if r.cfg.Hooks.OnForceExit != nil {
		r.cfg.Hooks.OnForceExit(stragglers)
	}
	return fmt.Errorf("%w: %s", ErrDrainTimeout, strings.Join(stragglers, ", "))
}

func (r *LifecycleRunner) enter(s State) {
	r.state.Store(int32(s))
	r.logger.Debug("lifecycle_state", "state", s.String())
}
