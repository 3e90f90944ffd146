package repository

import (
	"context"
	"time"

	"StratGov/internal/domain/models"
)

// MetricProvider resolves named metric values for falsifier and failure
// rule evaluation. The engine never computes metrics itself. A provider
// returns models.MetricUnavailableError when it has no value for the
// requested scope and window.
type MetricProvider interface {
	GetValue(ctx context.Context, metric string, scope models.Scope, window string) (float64, error)
}

// AuditStore is the append-only governance log. Append is synchronous and
// durable; storage unavailability is escalated to the caller, never
// swallowed. Query returns entries in timestamp order.
type AuditStore interface {
	Append(ctx context.Context, entry models.AuditEntry) error
	Query(ctx context.Context, q models.AuditQuery) ([]models.AuditEntry, error)
	Health(ctx context.Context) error
	Close() error
}

// AlertSink hands structured alerts to an external delivery mechanism.
// Generation and delivery are decoupled.
type AlertSink interface {
	Publish(ctx context.Context, alert models.Alert) error
	Close() error
}

// Metrics records operational telemetry for the governance engine.
type Metrics interface {
	RecordResolution(symbol string, cacheHit bool)
	RecordPoolBuild(size int, seconds float64)
	RecordFalsifierCheck(hypothesisID string, triggered bool)
	RecordAuditAppend(eventType string)
	RecordAlert(severity string)
	RecordError(kind string)
	RecordRegime(state string)
}

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
