package observers

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/harunnryd/roundtable/pkg/metrics"
)

// LatencyObserver keeps a running count, mean and max for every stage
// timing (generate, synthesize, align, present, transcribe) and logs one
// line per stage on Report.
type LatencyObserver struct {
	mu     sync.Mutex
	stages map[string]*stageStats
	log    *slog.Logger
}

type stageStats struct {
	count int
	sum   float64
	max   float64
}

// StageSummary is the aggregate for one stage, in milliseconds.
type StageSummary struct {
	Stage  string
	Count  int
	MeanMs float64
	MaxMs  float64
}

var latencyStages = map[string]bool{
	metrics.EventGenerateMs:    true,
	metrics.EventSynthesizeMs:  true,
	metrics.EventAlignMs:       true,
	metrics.EventPresentMs:     true,
	metrics.EventTranscribeMs:  true,
	metrics.EventTurnCompleted: true,
}

func NewLatencyObserver(log *slog.Logger) *LatencyObserver {
	if log == nil {
		log = slog.Default()
	}
	return &LatencyObserver{
		stages: make(map[string]*stageStats),
		log:    log,
	}
}

func (o *LatencyObserver) RecordEvent(ev metrics.MetricsEvent) {
	if !latencyStages[ev.Name] {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	s := o.stages[ev.Name]
	if s == nil {
		s = &stageStats{}
		o.stages[ev.Name] = s
	}
	s.count++
	s.sum += ev.Value
	if ev.Value > s.max {
		s.max = ev.Value
	}
}

// Summary returns the stages seen so far, sorted by name.
func (o *LatencyObserver) Summary() []StageSummary {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]StageSummary, 0, len(o.stages))
	for name, s := range o.stages {
		out = append(out, StageSummary{
			Stage:  name,
			Count:  s.count,
			MeanMs: s.sum / float64(s.count),
			MaxMs:  s.max,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Stage < out[j].Stage })
	return out
}

func (o *LatencyObserver) Report() {
	for _, s := range o.Summary() {
		o.log.Info("latency",
			"stage", s.Stage,
			"count", s.Count,
			"mean_ms", int64(s.MeanMs),
			"max_ms", int64(s.MaxMs),
		)
	}
}
