package observers

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/harunnryd/roundtable/pkg/metrics"
	"github.com/harunnryd/roundtable/pkg/redact"
	"github.com/harunnryd/roundtable/pkg/turn"
)

// SessionTrace names the trace that collects events not tied to a participant.
const SessionTrace = "session"

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// TimelineObserver keeps one JSONL trace per participant in dir. Metrics
// without a participant tag land in the session trace.
type TimelineObserver struct {
	dir string

	mu     sync.Mutex
	traces map[string]*trace
}

type trace struct {
	f   *os.File
	enc *json.Encoder
	seq int
}

type traceEntry struct {
	Seq         int               `json:"seq"`
	Time        time.Time         `json:"time"`
	Event       string            `json:"event"`
	Participant string            `json:"participant,omitempty"`
	Value       float64           `json:"value,omitempty"`
	From        string            `json:"from,omitempty"`
	To          string            `json:"to,omitempty"`
	Reason      string            `json:"reason,omitempty"`
	Tags        map[string]string `json:"tags,omitempty"`
	Fields      map[string]any    `json:"fields,omitempty"`
}

func NewTimelineObserver(dir string) *TimelineObserver {
	return &TimelineObserver{dir: dir, traces: make(map[string]*trace)}
}

func (o *TimelineObserver) RecordEvent(ev metrics.MetricsEvent) {
	who := ev.Tags["participant"]
	o.append(who, traceEntry{
		Time:        ev.Time.UTC(),
		Event:       ev.Name,
		Participant: who,
		Value:       ev.Value,
		Tags:        maps.Clone(ev.Tags),
		Fields:      redactFields(ev.Fields),
	})
}

func (o *TimelineObserver) OnStateChange(ev turn.StateChange) {
	o.append(ev.Participant, traceEntry{
		Time:        ev.Timestamp.UTC(),
		Event:       metrics.EventStateChange,
		Participant: ev.Participant,
		From:        ev.FromState.String(),
		To:          ev.ToState.String(),
		Reason:      ev.Reason,
	})
}

// Traces lists the trace names written so far.
func (o *TimelineObserver) Traces() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]string, 0, len(o.traces))
	for name := range o.traces {
		out = append(out, name)
	}
	return out
}

func (o *TimelineObserver) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	var errs []error
	for name, tr := range o.traces {
		if err := tr.f.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close trace %s: %w", name, err))
		}
	}
	clear(o.traces)
	return errors.Join(errs...)
}

func (o *TimelineObserver) append(who string, entry traceEntry) {
	if o.dir == "" {
		return
	}
	name := TraceName(who)
	o.mu.Lock()
	defer o.mu.Unlock()
	tr, err := o.open(name)
	if err != nil {
		return
	}
	tr.seq++
	entry.Seq = tr.seq
	_ = tr.enc.Encode(entry)
}

// open must be called with o.mu held.
func (o *TimelineObserver) open(name string) (*trace, error) {
	if tr, ok := o.traces[name]; ok {
		return tr, nil
	}
	if err := os.MkdirAll(o.dir, 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(filepath.Join(o.dir, "timeline_"+name+".jsonl"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	tr := &trace{f: f, enc: json.NewEncoder(f)}
	o.traces[name] = tr
	return tr, nil
}

// TraceName maps a participant to a file-safe trace name.
func TraceName(participant string) string {
	if participant == "" {
		return SessionTrace
	}
	return unsafeName.ReplaceAllString(participant, "_")
}

func redactFields(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		if s, ok := v.(string); ok {
			v = redact.Text(s)
		}
		out[k] = v
	}
	return out
}

var (
	_ metrics.Observer   = (*TimelineObserver)(nil)
	_ turn.StateListener = (*TimelineObserver)(nil)
)
