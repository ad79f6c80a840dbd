package control

import (
	"context"
	"fmt"
)

type Kind string

const (
	KindPause     Kind = "pause"
	KindActivate  Kind = "activate"
	KindTalkBegin Kind = "ptt_begin"
	KindTalkEnd   Kind = "ptt_end"
	KindIngest    Kind = "ingest"
	KindTerminate Kind = "terminate"
	KindShutdown  Kind = "shutdown"
)

// Event is one operator command. Agent is the 1-based agent slot for
// activate and terminate.
type Event struct {
	Kind  Kind
	Agent int
}

func (e Event) String() string {
	if e.Agent > 0 {
		return fmt.Sprintf("%s:%d", e.Kind, e.Agent)
	}
	return string(e.Kind)
}

// Source yields operator commands. Next blocks until an event arrives or ctx
// is done.
type Source interface {
	Next(ctx context.Context) (Event, error)
}
