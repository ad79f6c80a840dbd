package observers

import (
	"context"
	"log/slog"

	"github.com/harunnryd/roundtable/pkg/metrics"
	"github.com/harunnryd/roundtable/pkg/turn"
)

// LoggerObserver writes every metric at debug level and every participant
// state change at info level.
type LoggerObserver struct {
	log *slog.Logger
}

func NewLoggerObserver(log *slog.Logger) *LoggerObserver {
	if log == nil {
		log = slog.Default()
	}
	return &LoggerObserver{log: log}
}

func (o *LoggerObserver) RecordEvent(ev metrics.MetricsEvent) {
	attrs := []slog.Attr{
		slog.String("name", ev.Name),
		slog.Time("time", ev.Time),
		slog.Float64("value", ev.Value),
	}
	for k, v := range ev.Tags {
		attrs = append(attrs, slog.String(k, v))
	}
	for k, v := range ev.Fields {
		attrs = append(attrs, slog.Any(k, v))
	}
	o.log.LogAttrs(context.TODO(), slog.LevelDebug, "metrics", attrs...)
}

func (o *LoggerObserver) OnStateChange(ev turn.StateChange) {
	o.log.Info("state_change",
		"participant", ev.Participant,
		"from", ev.FromState.String(),
		"to", ev.ToState.String(),
		"reason", ev.Reason,
	)
}

var (
	_ metrics.Observer   = (*LoggerObserver)(nil)
	_ turn.StateListener = (*LoggerObserver)(nil)
)
