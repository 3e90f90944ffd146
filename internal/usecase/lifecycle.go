package usecase

import (
	"context"
	"errors"
	"fmt"

	"StratGov/internal/domain/models"
	"StratGov/internal/domain/repository"
	"StratGov/internal/registry"
	"StratGov/pkg/logger"
)

// Lifecycle performs the human-driven hypothesis transitions and makes
// them durable. The registry itself is in-memory; the audit log is the
// system of record, and Replay restores lifecycle state from it after a
// restart. Documents always load as DRAFT, so without replay every
// approval would silently vanish on restart.
type Lifecycle struct {
	store *registry.Store
	audit repository.AuditStore
	clock repository.Clock
	log   *logger.Logger
}

// NewLifecycle creates the lifecycle service.
func NewLifecycle(store *registry.Store, audit repository.AuditStore, clock repository.Clock, log *logger.Logger) *Lifecycle {
	return &Lifecycle{store: store, audit: audit, clock: clock, log: log}
}

// Approve moves a hypothesis DRAFT to ACTIVE on explicit human action.
func (l *Lifecycle) Approve(ctx context.Context, id, actor string) (*models.Hypothesis, error) {
	h, err := l.store.Approve(id, actor)
	if err != nil {
		return nil, err
	}
	if err := l.append(ctx, models.EventHypothesisApproved, id, actor); err != nil {
		return nil, err
	}
	return h, nil
}

// Sunset retires a hypothesis by hand. Falsifier-driven sunsets go
// through the monitor, which writes its own audit trail.
func (l *Lifecycle) Sunset(ctx context.Context, id, actor string) (*models.Hypothesis, error) {
	h, err := l.store.Sunset(id, actor)
	if err != nil {
		return nil, err
	}
	if err := l.append(ctx, models.EventHypothesisSunset, id, actor); err != nil {
		return nil, err
	}
	return h, nil
}

// Reject marks a hypothesis REJECTED.
func (l *Lifecycle) Reject(ctx context.Context, id, actor string) (*models.Hypothesis, error) {
	h, err := l.store.Reject(id, actor)
	if err != nil {
		return nil, err
	}
	if err := l.append(ctx, models.EventHypothesisRejected, id, actor); err != nil {
		return nil, err
	}
	return h, nil
}

func (l *Lifecycle) append(ctx context.Context, event models.AuditEventType, id, actor string) error {
	if err := l.audit.Append(ctx, models.AuditEntry{
		Timestamp:    l.clock.Now(),
		EventType:    event,
		HypothesisID: id,
		ActionDetails: map[string]interface{}{
			"actor": actor,
		},
	}); err != nil {
		return fmt.Errorf("audit %s: %w", event, err)
	}
	return nil
}

// Replay re-applies lifecycle events from the audit log in timestamp
// order. Events for hypotheses no longer in the documents, or
// transitions the current lifecycle no longer permits, are skipped with
// a debug line; the log is history, not a schema.
func (l *Lifecycle) Replay(ctx context.Context) error {
	entries, err := l.audit.Query(ctx, models.AuditQuery{})
	if err != nil {
		return fmt.Errorf("replay lifecycle: %w", err)
	}

	applied := 0
	for _, e := range entries {
		var transition func(id, actor string) (*models.Hypothesis, error)
		switch e.EventType {
		case models.EventHypothesisApproved:
			transition = l.store.Approve
		case models.EventHypothesisSunset:
			transition = l.store.Sunset
		case models.EventHypothesisRejected:
			transition = l.store.Reject
		default:
			continue
		}
		if _, err := transition(e.HypothesisID, "replay"); err != nil {
			if errors.Is(err, models.ErrNotFound) {
				l.log.Debug("replay skipped unknown hypothesis",
					logger.String("hypothesis_id", e.HypothesisID))
				continue
			}
			l.log.Debug("replay skipped transition",
				logger.String("hypothesis_id", e.HypothesisID),
				logger.String("event", string(e.EventType)),
				logger.Error(err),
			)
			continue
		}
		applied++
	}
	if applied > 0 {
		l.log.Info("lifecycle replayed from audit log", logger.Int("transitions", applied))
	}
	return nil
}
