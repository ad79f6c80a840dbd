package transports

import (
	"context"

	"github.com/harunnryd/roundtable/pkg/presentation"
)

// Transport carries presentation events to remote viewers.
// Implementations are responsible for their own network lifecycle.
type Transport interface {
	presentation.Channel
	Name() string
	Start(ctx context.Context) error
	Stop() error
}

// ReadyReporter allows transports to expose readiness metadata (e.g., listen URLs).
// Implementations are optional and used for informational logging only.
type ReadyReporter interface {
	ReadyFields() map[string]any
}
