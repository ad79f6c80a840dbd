package observers

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/harunnryd/roundtable/pkg/metrics"
	"github.com/harunnryd/roundtable/pkg/turn"
)

func TestTimelineObserverWritesJSONL(t *testing.T) {
	dir := t.TempDir()
	obs := NewTimelineObserver(dir)

	obs.RecordEvent(metrics.MetricsEvent{
		Name:  metrics.EventGenerateMs,
		Time:  time.Now(),
		Value: 120,
		Tags:  map[string]string{"participant": "Ava"},
	})
	obs.OnStateChange(turn.StateChange{
		Participant: "Ava",
		FromState:   turn.StateIdle,
		ToState:     turn.StateActivated,
		Timestamp:   time.Now(),
		Reason:      "turn requested",
	})
	obs.RecordEvent(metrics.MetricsEvent{Name: metrics.EventShutdown, Time: time.Now()})
	if got := len(obs.Traces()); got != 2 {
		t.Fatalf("expected participant and session traces, got %d", got)
	}
	_ = obs.Close()

	b, err := os.ReadFile(filepath.Join(dir, "timeline_Ava.jsonl"))
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	var entry traceEntry
	if err := json.Unmarshal([]byte(lines[1]), &entry); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if entry.Seq != 2 || entry.Event != metrics.EventStateChange || entry.From != "IDLE" || entry.To != "ACTIVATED" {
		t.Fatalf("unexpected state entry: %+v", entry)
	}

	b, err = os.ReadFile(filepath.Join(dir, "timeline_"+SessionTrace+".jsonl"))
	if err != nil {
		t.Fatalf("read session trace: %v", err)
	}
	if !strings.Contains(string(b), metrics.EventShutdown) {
		t.Fatalf("expected shutdown in session trace, got %q", b)
	}
}

func TestTraceName(t *testing.T) {
	cases := map[string]string{
		"":           SessionTrace,
		"grash":      "grash",
		"Ser Eldrin": "Ser_Eldrin",
		"../mira":    ".._mira",
	}
	for in, want := range cases {
		if got := TraceName(in); got != want {
			t.Fatalf("TraceName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLatencyObserverAggregates(t *testing.T) {
	var buf bytes.Buffer
	obs := NewLatencyObserver(slog.New(slog.NewTextHandler(&buf, nil)))
	for _, v := range []float64{100, 300} {
		obs.RecordEvent(metrics.MetricsEvent{Name: metrics.EventGenerateMs, Value: v})
	}
	obs.RecordEvent(metrics.MetricsEvent{Name: metrics.EventTurnGranted, Value: 1})

	sum := obs.Summary()
	if len(sum) != 1 || sum[0].Count != 2 || sum[0].MeanMs != 200 || sum[0].MaxMs != 300 {
		t.Fatalf("unexpected summary: %+v", sum)
	}
	obs.Report()
	if !strings.Contains(buf.String(), "stage=generate_ms") {
		t.Fatalf("expected latency log line, got %q", buf.String())
	}
}

func TestCostObserverWritesSummary(t *testing.T) {
	dir := t.TempDir()
	obs := NewCostObserver(dir)
	tags := map[string]string{"participant": "Ava"}
	obs.RecordEvent(metrics.MetricsEvent{Name: metrics.EventTokens, Value: 40, Tags: tags})
	obs.RecordEvent(metrics.MetricsEvent{Name: metrics.EventTokens, Value: 2, Tags: tags})
	obs.RecordEvent(metrics.MetricsEvent{Name: metrics.EventSpeechSeconds, Value: 1.5, Tags: tags})
	obs.RecordEvent(metrics.MetricsEvent{Name: metrics.EventTurnCompleted, Value: 900, Tags: tags})
	obs.RecordEvent(metrics.MetricsEvent{Name: metrics.EventTurnFailed, Value: 1, Tags: map[string]string{"participant": "Bo"}})
	obs.RecordEvent(metrics.MetricsEvent{Name: metrics.EventTokens, Value: 7})
	if err := obs.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	sum := obs.Summaries()
	if len(sum) != 2 || sum[0].LLMTokenCount != 42 || sum[0].Turns != 1 || sum[0].SpeechSeconds != 1.5 {
		t.Fatalf("unexpected summary: %+v", sum)
	}
	if sum[1].Participant != "Bo" || sum[1].FailedTurns != 1 {
		t.Fatalf("unexpected failed-turn row: %+v", sum[1])
	}
	if total := obs.Total(); total.Turns != 1 || total.FailedTurns != 1 || total.LLMTokenCount != 42 {
		t.Fatalf("unexpected total: %+v", total)
	}
	if _, err := os.Stat(filepath.Join(dir, "cost_summary.json")); err != nil {
		t.Fatalf("expected summary file: %v", err)
	}
}

func TestPurgeArtifactsByExtension(t *testing.T) {
	dir := t.TempDir()
	old := time.Now().Add(-48 * time.Hour)
	for _, name := range []string{"a.mp3", "b.wav", "keep.json"} {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, nil, 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
		_ = os.Chtimes(path, old, old)
	}
	n, err := PurgeArtifacts(dir, time.Hour, ".mp3", ".wav")
	if err != nil || n != 2 {
		t.Fatalf("expected 2 removed, got %d: %v", n, err)
	}
	if _, err := os.Stat(filepath.Join(dir, "keep.json")); err != nil {
		t.Fatalf("expected json to survive: %v", err)
	}
	if n, err := PurgeArtifacts(filepath.Join(dir, "missing"), time.Hour); n != 0 || err != nil {
		t.Fatalf("expected missing dir to be ignored")
	}
}

func TestPurgeArtifactsWalksSessionDirs(t *testing.T) {
	dir := t.TempDir()
	old := time.Now().Add(-72 * time.Hour)
	stale := filepath.Join(dir, "eldrin", "turn-1.mp3")
	fresh := filepath.Join(dir, "grash", "turn-2.mp3")
	for _, path := range []string{stale, fresh} {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, nil, 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	_ = os.Chtimes(stale, old, old)

	n, err := PurgeArtifacts(dir, 24*time.Hour, AudioExts...)
	if err != nil || n != 1 {
		t.Fatalf("expected 1 removed, got %d: %v", n, err)
	}
	if _, err := os.Stat(filepath.Join(dir, "eldrin")); !os.IsNotExist(err) {
		t.Fatalf("expected emptied session dir to be removed, got %v", err)
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Fatalf("expected fresh clip to survive: %v", err)
	}
}
