package runner

import (
	"bytes"
	"context"
	"io"
	"strings"
	"time"

	"github.com/dimiro1/banner"
)

type State int

const (
	StateNew State = iota
	StateStarting
	StateRunning
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

type Runner interface {
	Run(ctx context.Context) error
	Stop() error
	State() State
}

// Hooks are called around the run. OnForceExit receives the names of
// workers that missed the drain bound; the binary exits the process there.
type Hooks struct {
	OnStart     func()
	OnStop      func()
	OnForceExit func(stragglers []string)
}

// Drainer joins background work, returning the names that did not finish
// within timeout.
type Drainer interface {
	Drain(timeout time.Duration) []string
}

const EngineVersion = "dev"

// PrintBanner writes the startup banner to w; nothing is written when w is nil.
func PrintBanner(w io.Writer, title string) {
	if w == nil {
		return
	}
	if title == "" {
		title = "ROUNDTABLE"
	}
	title = strings.ReplaceAll(strings.ToUpper(title), `"`, "")
	tpl := "{{ .Title \"" + title + "\" \"\" 0 }}\nVersion: " + EngineVersion + "\n"
	banner.Init(w, true, false, bytes.NewBufferString(tpl))
}
