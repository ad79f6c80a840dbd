package metrics

import "time"

// MetricsEvent is one measurement emitted by a conversation component.
type MetricsEvent struct {
	Name   string
	Time   time.Time
	Value  float64
	Tags   map[string]string
	Fields map[string]any
}

type Observer interface {
	RecordEvent(ev MetricsEvent)
}

type Flusher interface {
	Flush() error
}

type NoopObserver struct{}

func (NoopObserver) RecordEvent(MetricsEvent) {}

// Record emits a named event on obs, tolerating a nil observer.
func Record(obs Observer, name string, value float64, tags map[string]string) {
	if obs == nil {
		return
	}
	obs.RecordEvent(MetricsEvent{Name: name, Time: time.Now(), Value: value, Tags: tags})
}

// Since records the elapsed milliseconds since start under name.
func Since(obs Observer, name string, start time.Time, tags map[string]string) {
	Record(obs, name, float64(time.Since(start).Milliseconds()), tags)
}

// MultiObserver fans an event out to every inner observer.
type MultiObserver []Observer

func (m MultiObserver) RecordEvent(ev MetricsEvent) {
	for _, obs := range m {
		if obs != nil {
			obs.RecordEvent(ev)
		}
	}
}
