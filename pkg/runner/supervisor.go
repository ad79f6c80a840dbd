package runner

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/harunnryd/roundtable/pkg/errorsx"
	"github.com/harunnryd/roundtable/pkg/logging"
)

// Supervisor runs one goroutine per participant, relay or transport and
// joins them with a bound.
type Supervisor struct {
	ctx    context.Context
	logger *slog.Logger

	mu      sync.Mutex
	wg      sync.WaitGroup
	running map[string]struct{}
}

// NewSupervisor starts workers with ctx; cancelling it is the caller's job.
func NewSupervisor(ctx context.Context, logger *slog.Logger) *Supervisor {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Supervisor{
		ctx:     ctx,
		logger:  logging.NewComponentLogger(logger, "supervisor"),
		running: make(map[string]struct{}),
	}
}

// Go starts fn under name. Errors and panics are logged; neither stops the
// other workers.
func (s *Supervisor) Go(name string, fn func(ctx context.Context) error) {
	s.mu.Lock()
	if _, dup := s.running[name]; dup {
		name = fmt.Sprintf("%s#%d", name, len(s.running))
	}
	s.running[name] = struct{}{}
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.exited(name)
		defer func() {
			if r := recover(); r != nil {
				err := errorsx.Wrap(fmt.Errorf("panic: %v\n%s", r, debug.Stack()), errorsx.ReasonPanic)
				s.logger.Error("worker_panicked", append([]any{"worker", name}, errorsx.Attrs(err)...)...)
			}
		}()
		s.logger.Debug("worker_started", "worker", name)
		if err := fn(s.ctx); err != nil {
			s.logger.Error("worker_failed", append([]any{"worker", name}, errorsx.Attrs(err)...)...)
		}
	}()
}

func (s *Supervisor) exited(name string) {
	s.mu.Lock()
	delete(s.running, name)
	s.mu.Unlock()
	s.logger.Debug("worker_exited", "worker", name)
}

// Running lists workers that have not returned yet.
func (s *Supervisor) Running() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.running))
	for name := range s.running {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Wait joins every worker and returns the names still running after timeout.
func (s *Supervisor) Wait(timeout time.Duration) []string {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return nil
	case <-timer.C:
		return s.Running()
	}
}

// Drain implements Drainer.
func (s *Supervisor) Drain(timeout time.Duration) []string {
	return s.Wait(timeout)
}
