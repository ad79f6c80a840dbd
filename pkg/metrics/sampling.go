package metrics

import (
	"math"
	"sync/atomic"
)

// alwaysKept are rare events that explain how a session went; sampling them
// away would leave a metrics file that cannot be read on its own.
var alwaysKept = map[string]bool{
	EventShutdown:        true,
	EventParticipantUp:   true,
	EventParticipantDown: true,
	EventTurnFailed:      true,
	EventBackupFailed:    true,
	EventRateLimit:       true,
	EventBreakerOpen:     true,
	EventBreakerClose:    true,
	EventIngest:          true,
}

// SamplingObserver forwards roughly rate of the high-volume events it sees
// (state changes, pacing, timings) and every lifecycle or failure event.
type SamplingObserver struct {
	inner       Observer
	rate        float64
	sampleEvery uint64
	counter     atomic.Uint64
	skipped     atomic.Uint64
}

func NewSamplingObserver(inner Observer, rate float64) *SamplingObserver {
	rate = math.Max(0, math.Min(1, rate))
	var every uint64
	switch {
	case rate == 0:
	case rate == 1:
		every = 1
	default:
		every = max(uint64(math.Round(1.0/rate)), 1)
	}
	return &SamplingObserver{inner: inner, rate: rate, sampleEvery: every}
}

func (s *SamplingObserver) RecordEvent(ev MetricsEvent) {
	if alwaysKept[ev.Name] || s.sampleEvery == 1 {
		s.inner.RecordEvent(ev)
		return
	}
	if s.sampleEvery == 0 {
		s.skipped.Add(1)
		return
	}
	if s.counter.Add(1)%s.sampleEvery == 0 {
		s.inner.RecordEvent(ev)
		return
	}
	s.skipped.Add(1)
}

// Skipped reports how many events were sampled away.
func (s *SamplingObserver) Skipped() uint64 {
	return s.skipped.Load()
}
