package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"StratGov/internal/domain/models"
	"StratGov/internal/domain/repository"
	"StratGov/internal/registry"
	"StratGov/pkg/logger"
)

// CheckState is the monitor's view of one falsifier on one hypothesis.
type CheckState string

const (
	CheckNotDue    CheckState = "not_yet_due"
	CheckChecking  CheckState = "checking"
	CheckPassed    CheckState = "passed"
	CheckTriggered CheckState = "triggered"
)

// falsifierKey identifies one falsifier within one hypothesis. Falsifiers
// have no ids of their own, so the index inside the hypothesis serves.
type falsifierKey struct {
	hypothesisID string
	index        int
}

type checkRecord struct {
	state     CheckState
	lastCheck time.Time
	lastValue float64
}

// FalsifierMonitor periodically evaluates every falsifier of every ACTIVE
// hypothesis against live metric values. A met condition raises an alert
// and, for sunset-trigger falsifiers, retires the hypothesis, which in
// turn deactivates every constraint gated on it through the next registry
// snapshot. The engine stops short of deciding anything for review
// triggers; those only notify humans.
type FalsifierMonitor struct {
	store           *registry.Store
	provider        repository.MetricProvider
	audit           repository.AuditStore
	alerts          repository.AlertSink
	metrics         repository.Metrics
	clock           repository.Clock
	log             *logger.Logger
	defaultInterval time.Duration
	tick            time.Duration

	mu     sync.Mutex
	checks map[falsifierKey]*checkRecord

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewFalsifierMonitor creates a monitor. defaultInterval is the cadence
// for falsifiers that do not declare their own; tick is how often the
// scheduler wakes to look for due checks.
func NewFalsifierMonitor(
	store *registry.Store,
	provider repository.MetricProvider,
	audit repository.AuditStore,
	alerts repository.AlertSink,
	metrics repository.Metrics,
	clock repository.Clock,
	log *logger.Logger,
	defaultInterval time.Duration,
	tick time.Duration,
) *FalsifierMonitor {
	if defaultInterval <= 0 {
		defaultInterval = 24 * time.Hour
	}
	if tick <= 0 {
		tick = time.Minute
	}
	return &FalsifierMonitor{
		store:           store,
		provider:        provider,
		audit:           audit,
		alerts:          alerts,
		metrics:         metrics,
		clock:           clock,
		log:             log,
		defaultInterval: defaultInterval,
		tick:            tick,
		checks:          make(map[falsifierKey]*checkRecord),
		stopCh:          make(chan struct{}),
		doneCh:          make(chan struct{}),
	}
}

// Start runs the scheduler loop until Stop is called or ctx is done.
func (m *FalsifierMonitor) Start(ctx context.Context) {
	go func() {
		defer close(m.doneCh)
		ticker := time.NewTicker(m.tick)
		defer ticker.Stop()

		m.log.Info("falsifier monitor started",
			logger.Duration("default_interval", m.defaultInterval),
			logger.Duration("tick", m.tick),
		)
		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stopCh:
				return
			case <-ticker.C:
				m.RunCycle(ctx)
			}
		}
	}()
}

// Stop terminates the scheduler and waits for the loop to exit.
func (m *FalsifierMonitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	<-m.doneCh
}

// RunCycle evaluates every due falsifier once. A failure inside one
// hypothesis never aborts the rest of the cycle.
func (m *FalsifierMonitor) RunCycle(ctx context.Context) {
	snap := m.store.Snapshot()
	hypotheses := snap.Hypotheses(models.StatusActive)
	for _, h := range hypotheses {
		m.checkHypothesis(ctx, h)
	}
	m.pruneStale(hypotheses)
}

// checkHypothesis evaluates one hypothesis's falsifiers, recovering from
// panics so a malformed rule cannot take the monitor down.
func (m *FalsifierMonitor) checkHypothesis(ctx context.Context, h *models.Hypothesis) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("falsifier evaluation panicked",
				logger.String("hypothesis_id", h.ID),
				logger.Any("panic", r),
			)
			m.metrics.RecordError("falsifier_panic")
		}
	}()

	for i, f := range h.Falsifiers {
		key := falsifierKey{hypothesisID: h.ID, index: i}
		if !m.due(key, f) {
			continue
		}
		if err := m.evaluate(ctx, h, i, f); err != nil {
			m.log.Error("falsifier check failed",
				logger.String("hypothesis_id", h.ID),
				logger.String("metric", f.Metric),
				logger.Error(err),
			)
			m.metrics.RecordError("falsifier_check")
		}
		// A sunset trigger retires the hypothesis; remaining falsifiers
		// on it are moot.
		if cur, _ := m.store.Snapshot().Hypothesis(h.ID); cur != nil && cur.Status != models.StatusActive {
			return
		}
	}
}

func (m *FalsifierMonitor) due(key falsifierKey, f models.Falsifier) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.checks[key]
	if !ok {
		rec = &checkRecord{state: CheckNotDue}
		m.checks[key] = rec
	}
	interval := f.Interval
	if interval <= 0 {
		interval = m.defaultInterval
	}
	if !rec.lastCheck.IsZero() && m.clock.Now().Sub(rec.lastCheck) < interval {
		return false
	}
	rec.state = CheckChecking
	return true
}

func (m *FalsifierMonitor) record(key falsifierKey, state CheckState, value float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := m.checks[key]
	if rec == nil {
		rec = &checkRecord{}
		m.checks[key] = rec
	}
	rec.state = state
	rec.lastCheck = m.clock.Now()
	rec.lastValue = value
}

// evaluate runs one falsifier check end to end: fetch, compare, audit,
// and trigger handling.
func (m *FalsifierMonitor) evaluate(ctx context.Context, h *models.Hypothesis, index int, f models.Falsifier) error {
	key := falsifierKey{hypothesisID: h.ID, index: index}

	value, err := m.provider.GetValue(ctx, f.Metric, h.Scope, f.Window)
	if err != nil {
		var unavailable *models.MetricUnavailableError
		if errors.As(err, &unavailable) {
			// Absence of data is never evidence of falsification. The
			// check is skipped and retried on the next due cycle.
			m.log.Warn("metric unavailable, skipping falsifier check",
				logger.String("hypothesis_id", h.ID),
				logger.String("metric", f.Metric),
				logger.String("window", f.Window),
			)
			m.record(key, CheckNotDue, 0)
			m.metrics.RecordError("metric_unavailable")
			return nil
		}
		m.record(key, CheckNotDue, 0)
		return fmt.Errorf("fetch metric %q: %w", f.Metric, err)
	}

	met, err := f.Compare(value)
	if err != nil {
		m.record(key, CheckNotDue, value)
		return fmt.Errorf("compare metric %q: %w", f.Metric, err)
	}

	m.metrics.RecordFalsifierCheck(h.ID, met)
	now := m.clock.Now()
	details := map[string]interface{}{
		"metric":    f.Metric,
		"operator":  f.Operator,
		"threshold": f.Threshold,
		"window":    f.Window,
		"observed":  value,
		"trigger":   string(f.Trigger),
	}

	if !met {
		m.record(key, CheckPassed, value)
		if err := m.audit.Append(ctx, models.AuditEntry{
			Timestamp:     now,
			EventType:     models.EventFalsifierPass,
			HypothesisID:  h.ID,
			ActionDetails: details,
		}); err != nil {
			return fmt.Errorf("audit falsifier pass: %w", err)
		}
		m.metrics.RecordAuditAppend(string(models.EventFalsifierPass))
		return nil
	}

	m.record(key, CheckTriggered, value)
	if err := m.audit.Append(ctx, models.AuditEntry{
		Timestamp:     now,
		EventType:     models.EventFalsifierTriggered,
		HypothesisID:  h.ID,
		ActionDetails: details,
	}); err != nil {
		return fmt.Errorf("audit falsifier trigger: %w", err)
	}
	m.metrics.RecordAuditAppend(string(models.EventFalsifierTriggered))

	m.log.Warn("falsifier triggered",
		logger.String("hypothesis_id", h.ID),
		logger.String("metric", f.Metric),
		logger.Float64("observed", value),
		logger.Float64("threshold", f.Threshold),
		logger.String("trigger", string(f.Trigger)),
	)

	switch f.Trigger {
	case models.TriggerSunset:
		return m.sunset(ctx, h, f, value)
	default:
		m.emitAlert(ctx, models.Alert{
			Severity:     models.SeverityWarning,
			Title:        fmt.Sprintf("falsifier triggered for hypothesis %s", h.ID),
			Message:      fmt.Sprintf("%s %s %.4f observed %.4f over %s", f.Metric, f.Operator, f.Threshold, value, f.Window),
			HypothesisID: h.ID,
			RecommendedAction: fmt.Sprintf(
				"review hypothesis %q (%s); evidence no longer supports it", h.ID, h.Title),
		})
		return nil
	}
}

// sunset retires the hypothesis and reports which constraints lost their
// activation as a result. The new snapshot makes them inactive; the
// resolver cache is invalidated by the publish itself.
func (m *FalsifierMonitor) sunset(ctx context.Context, h *models.Hypothesis, f models.Falsifier, value float64) error {
	revised, err := m.store.Sunset(h.ID, "falsifier-monitor")
	if err != nil {
		return fmt.Errorf("sunset hypothesis %q: %w", h.ID, err)
	}

	snap := m.store.Snapshot()
	deactivated := m.deactivatedBy(snap, h.ID)

	now := m.clock.Now()
	if err := m.audit.Append(ctx, models.AuditEntry{
		Timestamp:    now,
		EventType:    models.EventHypothesisSunset,
		HypothesisID: h.ID,
		ActionDetails: map[string]interface{}{
			"metric":                  f.Metric,
			"observed":                value,
			"threshold":               f.Threshold,
			"deactivated_constraints": deactivated,
		},
	}); err != nil {
		return fmt.Errorf("audit hypothesis sunset: %w", err)
	}
	m.metrics.RecordAuditAppend(string(models.EventHypothesisSunset))

	for _, cid := range deactivated {
		if err := m.audit.Append(ctx, models.AuditEntry{
			Timestamp:    now,
			EventType:    models.EventConstraintDeactivated,
			HypothesisID: h.ID,
			ConstraintID: cid,
			ActionDetails: map[string]interface{}{
				"reason": "backing hypothesis sunset by falsifier",
			},
		}); err != nil {
			return fmt.Errorf("audit constraint deactivation: %w", err)
		}
		m.metrics.RecordAuditAppend(string(models.EventConstraintDeactivated))
	}

	m.emitAlert(ctx, models.Alert{
		Severity:     models.SeverityCritical,
		Title:        fmt.Sprintf("hypothesis %s sunset by falsifier", h.ID),
		Message:      fmt.Sprintf("%s %s %.4f observed %.4f; constraints deactivated: %v", f.Metric, f.Operator, f.Threshold, value, deactivated),
		HypothesisID: h.ID,
		RecommendedAction: fmt.Sprintf(
			"confirm retirement of %q and review dependent strategies", revised.Title),
	})
	return nil
}

// deactivatedBy lists constraints that can no longer activate now that
// the given hypothesis is not ACTIVE.
func (m *FalsifierMonitor) deactivatedBy(snap *registry.Snapshot, hypothesisID string) []string {
	var ids []string
	for _, c := range snap.Constraints() {
		for _, req := range c.Activation.RequiresActive {
			if req == hypothesisID {
				ids = append(ids, c.ID)
				break
			}
		}
	}
	sort.Strings(ids)
	return ids
}

// pruneStale drops check state for hypotheses no longer ACTIVE so the map
// does not grow without bound across reloads.
func (m *FalsifierMonitor) pruneStale(active []*models.Hypothesis) {
	alive := make(map[string]bool, len(active))
	for _, h := range active {
		alive[h.ID] = true
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for key := range m.checks {
		if !alive[key.hypothesisID] {
			delete(m.checks, key)
		}
	}
}

// State returns the monitor's current view of one falsifier, for the API.
func (m *FalsifierMonitor) State(hypothesisID string, index int) (CheckState, time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.checks[falsifierKey{hypothesisID: hypothesisID, index: index}]
	if !ok {
		return CheckNotDue, time.Time{}, false
	}
	return rec.state, rec.lastCheck, true
}

func (m *FalsifierMonitor) emitAlert(ctx context.Context, a models.Alert) {
	a.ID = newAlertID(m.clock.Now())
	a.Timestamp = m.clock.Now()
	if err := m.alerts.Publish(ctx, a); err != nil {
		m.log.Error("alert publish failed", logger.Error(err), logger.String("title", a.Title))
		m.metrics.RecordError("alert_publish")
		return
	}
	m.metrics.RecordAlert(string(a.Severity))
}
