package runner

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/harunnryd/roundtable/pkg/logging"
)

func TestSupervisorJoinsWorkers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sup := NewSupervisor(ctx, logging.Discard())
	sup.Go("agent", func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	})
	sup.Go("failing", func(context.Context) error { return errors.New("boom") })
	sup.Go("panicking", func(context.Context) error { panic("oops") })

	cancel()
	if stragglers := sup.Wait(time.Second); len(stragglers) != 0 {
		t.Fatalf("expected clean join, got %v", stragglers)
	}
}

func TestSupervisorReportsStragglers(t *testing.T) {
	sup := NewSupervisor(context.Background(), logging.Discard())
	release := make(chan struct{})
	defer close(release)
	sup.Go("stuck", func(context.Context) error {
		<-release
		return nil
	})
	sup.Go("quick", func(context.Context) error { return nil })

	stragglers := sup.Wait(20 * time.Millisecond)
	if len(stragglers) != 1 || stragglers[0] != "stuck" {
		t.Fatalf("expected stuck worker, got %v", stragglers)
	}
}

func TestLifecycleStopsOnDone(t *testing.T) {
	done := make(chan struct{})
	shutdowns := 0
	stopped := false
	sup := NewSupervisor(context.Background(), logging.Discard())
	sup.Go("worker", func(context.Context) error {
		<-done
		return nil
	})
	r := NewLifecycleRunner(Config{
		Drainer:  sup,
		Shutdown: func() { shutdowns++ },
		Done:     done,
		Hooks:    Hooks{OnStop: func() { stopped = true }},
		Logger:   logging.Discard(),
	})

	close(done)
	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if shutdowns != 1 || !stopped {
		t.Fatalf("expected shutdown broadcast and stop hook")
	}
	if r.State() != StateStopped {
		t.Fatalf("expected stopped, got %s", r.State())
	}
	if err := r.Stop(); err != nil {
		t.Fatalf("second stop: %v", err)
	}
	if shutdowns != 1 {
		t.Fatalf("expected drain to run once")
	}
}

func TestLifecycleForceExitOnStragglers(t *testing.T) {
	sup := NewSupervisor(context.Background(), logging.Discard())
	release := make(chan struct{})
	defer close(release)
	sup.Go("human", func(context.Context) error {
		<-release
		return nil
	})
	var forced []string
	r := NewLifecycleRunner(Config{
		Drainer: sup,
		Timeout: 20 * time.Millisecond,
		Hooks:   Hooks{OnForceExit: func(s []string) { forced = s }},
		Logger:  logging.Discard(),
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := r.Run(ctx)
	if !errors.Is(err, ErrDrainTimeout) {
		t.Fatalf("expected drain timeout, got %v", err)
	}
	if len(forced) != 1 || forced[0] != "human" {
		t.Fatalf("expected force exit for human, got %v", forced)
	}
}

func TestRunTwiceFails(t *testing.T) {
	r := NewLifecycleRunner(Config{Logger: logging.Discard()})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = r.Run(ctx)
	if err := r.Run(ctx); !errors.Is(err, ErrAlreadyRun) {
		t.Fatalf("expected second run to fail, got %v", err)
	}
}

func TestPrintBanner(t *testing.T) {
	var buf bytes.Buffer
	PrintBanner(&buf, "roundtable")
	if !strings.Contains(buf.String(), "Version: "+EngineVersion) {
		t.Fatalf("expected version line in banner, got %q", buf.String())
	}
	PrintBanner(nil, "ignored")
}
