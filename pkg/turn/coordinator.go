package turn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/harunnryd/roundtable/pkg/errorsx"
	"github.com/harunnryd/roundtable/pkg/logging"
	"github.com/harunnryd/roundtable/pkg/metrics"
)

// ErrShutdown is returned by region helpers once shutdown has been requested.
var ErrShutdown = errorsx.Newf(errorsx.ReasonShutdown, "shutdown requested")

// ErrUnknownParticipant is returned for ids that were never registered.
var ErrUnknownParticipant = errors.New("unknown participant")

// Config holds coordinator dependencies.
type Config struct {
	Logger   *slog.Logger
	Observer metrics.Observer
}

type slot struct {
	activated  atomic.Bool
	terminated atomic.Bool
	ctx        context.Context
	cancel     context.CancelFunc
	fsm        *stateMachine
}

// Coordinator is the single source of truth for who may act now. It owns the
// activation flags, the global pause and shutdown signals, and the two
// mutual-exclusion regions every participant goes through.
type Coordinator struct {
	conversation sync.Mutex
	speaking     sync.Mutex
	speaker      atomic.Value // string

	mu        sync.RWMutex
	slots     map[string]*slot
	order     []string
	listeners []StateListener

	paused   atomic.Bool
	shutdown atomic.Bool
	done     chan struct{}
	once     sync.Once
	root     context.Context
	cancel   context.CancelFunc

	obs    metrics.Observer
	logger *slog.Logger
}

func NewCoordinator(cfg Config) *Coordinator {
	root, cancel := context.WithCancel(context.Background())
	obs := cfg.Observer
	if obs == nil {
		obs = metrics.NoopObserver{}
	}
	c := &Coordinator{
		slots:  make(map[string]*slot),
		done:   make(chan struct{}),
		root:   root,
		cancel: cancel,
		obs:    obs,
		logger: logging.NewComponentLogger(cfg.Logger, "coordinator"),
	}
	c.speaker.Store("")
	return c
}

// Register adds a participant slot in the IDLE state. Registering an id twice
// is a no-op.
func (c *Coordinator) Register(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.slots[id]; ok {
		return
	}
	ctx, cancel := context.WithCancel(c.root)
	c.slots[id] = &slot{
		ctx:    ctx,
		cancel: cancel,
		fsm:    newStateMachine(id, c.snapshotListeners),
	}
	c.order = append(c.order, id)
}

// Participants returns every registered id in registration order.
func (c *Coordinator) Participants() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// ActiveParticipants returns the ids that have not been terminated.
func (c *Coordinator) ActiveParticipants() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.order))
	for _, id := range c.order {
		if !c.slots[id].terminated.Load() {
			out = append(out, id)
		}
	}
	return out
}

// RequestTurn marks id as wanting the next turn. It never blocks and does
// nothing after shutdown or for terminated participants.
func (c *Coordinator) RequestTurn(id string) bool {
	if c.shutdown.Load() {
		return false
	}
	s := c.slot(id)
	if s == nil || s.terminated.Load() {
		return false
	}
	s.activated.Store(true)
	metrics.Record(c.obs, metrics.EventTurnGranted, 1, map[string]string{"participant": id})
	c.logger.Debug("turn_requested", "participant", id)
	return true
}

// IsMyTurn is the non-blocking poll used by participant run loops.
func (c *Coordinator) IsMyTurn(id string) bool {
	s := c.slot(id)
	if s == nil {
		return false
	}
	return s.activated.Load() && !s.terminated.Load()
}

// ConsumeTurn clears the activation flag and reports whether it was set.
// A second call without an intervening RequestTurn returns false.
func (c *Coordinator) ConsumeTurn(id string) bool {
	s := c.slot(id)
	if s == nil {
		return false
	}
	if !s.activated.CompareAndSwap(true, false) {
		return false
	}
	metrics.Record(c.obs, metrics.EventTurnConsumed, 1, map[string]string{"participant": id})
	return true
}

// Pause stops participants from starting new turns. Turns in progress finish.
func (c *Coordinator) Pause() {
	if c.paused.CompareAndSwap(false, true) {
		metrics.Record(c.obs, metrics.EventTurnPaused, 1, nil)
		c.logger.Info("conversation_paused")
	}
}

func (c *Coordinator) Resume() {
	if c.paused.CompareAndSwap(true, false) {
		metrics.Record(c.obs, metrics.EventTurnResumed, 1, nil)
		c.logger.Info("conversation_resumed")
	}
}

// TogglePause flips the pause flag and returns the new value.
func (c *Coordinator) TogglePause() bool {
	if c.paused.Load() {
		c.Resume()
		return false
	}
	c.Pause()
	return true
}

func (c *Coordinator) Paused() bool {
	return c.paused.Load()
}

// RequestShutdown is irreversible. It closes Done and cancels every
// participant context so pending sleeps and remote calls unwind.
func (c *Coordinator) RequestShutdown() {
	c.once.Do(func() {
		c.shutdown.Store(true)
		close(c.done)
		c.cancel()
		metrics.Record(c.obs, metrics.EventShutdown, 1, nil)
		c.logger.Info("shutdown_requested")
	})
}

func (c *Coordinator) ShutdownRequested() bool {
	return c.shutdown.Load()
}

// Done is closed once shutdown has been requested.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

// Terminate permanently retires a participant; its run loop exits on the next
// poll and any blocking call bound to its context is cancelled.
func (c *Coordinator) Terminate(id string) error {
	s := c.slot(id)
	if s == nil {
		return fmt.Errorf("terminate %q: %w", id, ErrUnknownParticipant)
	}
	if !s.terminated.CompareAndSwap(false, true) {
		return nil
	}
	s.activated.Store(false)
	s.cancel()
	_ = s.fsm.Transition(StateTerminated, "terminated")
	metrics.Record(c.obs, metrics.EventParticipantDown, 1, map[string]string{"participant": id})
	c.logger.Info("participant_terminated", "participant", id)
	return nil
}

func (c *Coordinator) Terminated(id string) bool {
	s := c.slot(id)
	return s == nil || s.terminated.Load()
}

// Stopped reports whether id should leave its run loop.
func (c *Coordinator) Stopped(id string) bool {
	return c.shutdown.Load() || c.Terminated(id)
}

// ShutdownContext is cancelled when shutdown is requested.
func (c *Coordinator) ShutdownContext() context.Context {
	return c.root
}

// Context returns a context cancelled on shutdown or when id is terminated.
func (c *Coordinator) Context(id string) context.Context {
	s := c.slot(id)
	if s == nil {
		return c.root
	}
	return s.ctx
}

// Conversation runs fn inside the conversation region: consume, generate and
// fan out happen here so shared transcripts never interleave. The region is
// released even if fn panics.
func (c *Coordinator) Conversation(fn func() error) (err error) {
	c.conversation.Lock()
	defer c.conversation.Unlock()
	defer recoverInto(&err, "conversation")
	return fn()
}

// Speaking runs fn inside the speaking region. Only one participant is live
// in the presentation channel at a time.
func (c *Coordinator) Speaking(id string, fn func() error) (err error) {
	c.speaking.Lock()
	c.speaker.Store(id)
	defer func() {
		c.speaker.Store("")
		c.speaking.Unlock()
	}()
	defer recoverInto(&err, "speaking")
	return fn()
}

// Speaker returns the id inside the speaking region, or "".
func (c *Coordinator) Speaker() string {
	return c.speaker.Load().(string)
}

// Transition moves id's state machine.
func (c *Coordinator) Transition(id string, state State, reason string) error {
	s := c.slot(id)
	if s == nil {
		return fmt.Errorf("transition %q: %w", id, ErrUnknownParticipant)
	}
	return s.fsm.Transition(state, reason)
}

// State returns id's current state; unknown ids report TERMINATED.
func (c *Coordinator) State(id string) State {
	s := c.slot(id)
	if s == nil {
		return StateTerminated
	}
	return s.fsm.State()
}

// AddListener registers a listener for every participant's state changes.
func (c *Coordinator) AddListener(listener StateListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, listener)
}

func (c *Coordinator) snapshotListeners() []StateListener {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]StateListener, len(c.listeners))
	copy(out, c.listeners)
	return out
}

func (c *Coordinator) slot(id string) *slot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.slots[id]
}

func recoverInto(err *error, region string) {
	if r := recover(); r != nil {
		*err = errorsx.Wrap(fmt.Errorf("panic in %s region: %v\n%s", region, r, debug.Stack()), errorsx.ReasonPanic)
	}
}
