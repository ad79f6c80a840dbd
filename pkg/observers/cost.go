package observers

import (
	"cmp"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/harunnryd/roundtable/pkg/metrics"
)

const costSummaryFile = "cost_summary.json"

// CostSummary is the usage billed to one participant.
type CostSummary struct {
	Participant   string  `json:"participant"`
	Turns         int     `json:"turns"`
	FailedTurns   int     `json:"failed_turns,omitempty"`
	LLMTokenCount int     `json:"llm_tokens"`
	SpeechSeconds float64 `json:"speech_seconds"`
}

func (s *CostSummary) add(ev metrics.MetricsEvent) {
	switch ev.Name {
	case metrics.EventTokens:
		s.LLMTokenCount += int(ev.Value)
	case metrics.EventSpeechSeconds:
		s.SpeechSeconds += ev.Value
	case metrics.EventTurnCompleted:
		s.Turns++
	case metrics.EventTurnFailed:
		s.FailedTurns++
	}
}

// CostObserver tallies tokens and synthesized speech per participant and
// writes cost_summary.json on Close.
type CostObserver struct {
	dir string

	mu    sync.Mutex
	stats map[string]*CostSummary
}

func NewCostObserver(dir string) *CostObserver {
	return &CostObserver{dir: dir, stats: make(map[string]*CostSummary)}
}

func (o *CostObserver) RecordEvent(ev metrics.MetricsEvent) {
	who := ev.Tags["participant"]
	if who == "" || !billable(ev.Name) {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	s, ok := o.stats[who]
	if !ok {
		s = &CostSummary{Participant: who}
		o.stats[who] = s
	}
	s.add(ev)
}

func billable(name string) bool {
	switch name {
	case metrics.EventTokens, metrics.EventSpeechSeconds, metrics.EventTurnCompleted, metrics.EventTurnFailed:
		return true
	}
	return false
}

// Summaries returns per-participant totals sorted by participant.
func (o *CostObserver) Summaries() []CostSummary {
	o.mu.Lock()
	out := make([]CostSummary, 0, len(o.stats))
	for _, s := range o.stats {
		out = append(out, *s)
	}
	o.mu.Unlock()
	slices.SortFunc(out, func(a, b CostSummary) int { return cmp.Compare(a.Participant, b.Participant) })
	return out
}

// Total sums every participant into one row named "all".
func (o *CostObserver) Total() CostSummary {
	total := CostSummary{Participant: "all"}
	for _, s := range o.Summaries() {
		total.Turns += s.Turns
		total.FailedTurns += s.FailedTurns
		total.LLMTokenCount += s.LLMTokenCount
		total.SpeechSeconds += s.SpeechSeconds
	}
	return total
}

// Close writes the summary through a temp file so a crash never leaves a
// half-written report.
func (o *CostObserver) Close() error {
	if o.dir == "" {
		return nil
	}
	if err := os.MkdirAll(o.dir, 0o755); err != nil {
		return fmt.Errorf("cost summary dir: %w", err)
	}
	report := struct {
		RecordedAtUTC string        `json:"recorded_at_utc"`
		Total         CostSummary   `json:"total"`
		Participants  []CostSummary `json:"participants"`
	}{
		RecordedAtUTC: time.Now().UTC().Format(time.RFC3339),
		Total:         o.Total(),
		Participants:  o.Summaries(),
	}
	b, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	path := filepath.Join(o.dir, costSummaryFile)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("write cost summary: %w", err)
	}
	return os.Rename(tmp, path)
}
