package control

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/harunnryd/roundtable/pkg/logging"
)

// LineReader is the headless control surface: one command per line.
//
//	pause | activate N | talk | done | ingest | kill N | quit
type LineReader struct {
	r      io.Reader
	q      *Queue
	logger *slog.Logger
}

func NewLineReader(r io.Reader, q *Queue, logger *slog.Logger) *LineReader {
	return &LineReader{r: r, q: q, logger: logging.NewComponentLogger(logger, "control")}
}

// Run reads until EOF or ctx is done. EOF does not shut the conversation down.
func (l *LineReader) Run(ctx context.Context) error {
	lines := make(chan string)
	errCh := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(l.r)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		errCh <- scanner.Err()
	}()
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errCh:
			return err
		case line := <-lines:
			if strings.TrimSpace(line) == "" {
				continue
			}
			ev, err := ParseCommand(line)
			if err != nil {
				l.logger.Warn("control_command_invalid", "line", line, "error", err)
				continue
			}
			if !l.q.Push(ev) {
				l.logger.Warn("control_queue_full", "event", ev.String())
			}
		}
	}
}

// ParseCommand maps a typed command to an Event.
func ParseCommand(line string) (Event, error) {
	fields := strings.Fields(strings.ToLower(line))
	if len(fields) == 0 {
		return Event{}, fmt.Errorf("empty command")
	}
	agent := func() (int, error) {
		if len(fields) < 2 {
			return 0, fmt.Errorf("%s needs an agent number", fields[0])
		}
		n, err := strconv.Atoi(fields[1])
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("invalid agent number %q", fields[1])
		}
		return n, nil
	}
	switch fields[0] {
	case "pause", "p":
		return Event{Kind: KindPause}, nil
	case "activate", "a":
		n, err := agent()
		if err != nil {
			return Event{}, err
		}
		return Event{Kind: KindActivate, Agent: n}, nil
	case "talk", "t":
		return Event{Kind: KindTalkBegin}, nil
	case "done", "d":
		return Event{Kind: KindTalkEnd}, nil
	case "ingest", "chat":
		return Event{Kind: KindIngest}, nil
	case "kill", "terminate":
		n, err := agent()
		if err != nil {
			return Event{}, err
		}
		return Event{Kind: KindTerminate, Agent: n}, nil
	case "quit", "exit", "q":
		return Event{Kind: KindShutdown}, nil
	default:
		return Event{}, fmt.Errorf("unknown command %q", fields[0])
	}
}
