package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"StratGov/internal/domain/models"
	"StratGov/internal/registry"
	internalrepo "StratGov/internal/repository"
	"StratGov/pkg/logger"
)

// fakeMetricProvider serves canned values and can mark metrics as
// unavailable or failing.
type fakeMetricProvider struct {
	mu          sync.Mutex
	values      map[string]float64
	unavailable map[string]bool
	fail        map[string]error
	calls       map[string]int
}

func newFakeMetricProvider() *fakeMetricProvider {
	return &fakeMetricProvider{
		values:      make(map[string]float64),
		unavailable: make(map[string]bool),
		fail:        make(map[string]error),
		calls:       make(map[string]int),
	}
}

func (p *fakeMetricProvider) GetValue(_ context.Context, metric string, _ models.Scope, _ string) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls[metric]++
	if err, ok := p.fail[metric]; ok {
		return 0, err
	}
	if p.unavailable[metric] {
		return 0, &models.MetricUnavailableError{Metric: metric}
	}
	v, ok := p.values[metric]
	if !ok {
		return 0, &models.MetricUnavailableError{Metric: metric}
	}
	return v, nil
}

func (p *fakeMetricProvider) callCount(metric string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[metric]
}

// captureSink collects published alerts.
type captureSink struct {
	mu     sync.Mutex
	alerts []models.Alert
}

func (s *captureSink) Publish(_ context.Context, a models.Alert) error {
	s.mu.Lock()
	s.alerts = append(s.alerts, a)
	s.mu.Unlock()
	return nil
}

func (s *captureSink) Close() error { return nil }

func (s *captureSink) all() []models.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Alert(nil), s.alerts...)
}

type monitorFixture struct {
	store    *registry.Store
	provider *fakeMetricProvider
	audit    *internalrepo.MemoryAuditStore
	alerts   *captureSink
	metrics  *recordingMetrics
	clock    *fakeClock
	monitor  *FalsifierMonitor
}

func newMonitorFixture(t *testing.T) *monitorFixture {
	t.Helper()
	fx := &monitorFixture{
		store:    registry.NewStore(logger.Nop()),
		provider: newFakeMetricProvider(),
		audit:    internalrepo.NewMemoryAuditStore(),
		alerts:   &captureSink{},
		metrics:  newRecordingMetrics(),
		clock:    newFakeClock(time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)),
	}
	fx.monitor = NewFalsifierMonitor(
		fx.store, fx.provider, fx.audit, fx.alerts, fx.metrics, fx.clock,
		logger.Nop(), 24*time.Hour, time.Minute,
	)
	return fx
}

func (fx *monitorFixture) addActive(t *testing.T, id string, falsifiers ...models.Falsifier) {
	t.Helper()
	require.NoError(t, fx.store.RegisterHypothesis(&models.Hypothesis{
		ID:         id,
		Title:      "hypothesis " + id,
		Status:     models.StatusDraft,
		Falsifiers: falsifiers,
	}))
	_, err := fx.store.Approve(id, "test")
	require.NoError(t, err)
}

func (fx *monitorFixture) events(t *testing.T, event models.AuditEventType) []models.AuditEntry {
	t.Helper()
	out, err := fx.audit.Query(context.Background(), models.AuditQuery{EventType: event})
	require.NoError(t, err)
	return out
}

func TestMonitorSunsetTriggerCascades(t *testing.T) {
	fx := newMonitorFixture(t)
	fx.addActive(t, "H-1", models.Falsifier{
		Metric: "rolling_sharpe_60d", Operator: "<", Threshold: 0.2,
		Window: "60d", Trigger: models.TriggerSunset,
	})
	require.NoError(t, fx.store.RegisterConstraint(&models.Constraint{
		ID:         "C-1",
		Title:      "gated",
		Activation: models.ActivationRule{RequiresActive: []string{"H-1"}},
		Actions:    models.Actions{RiskBudgetMultiplier: 0.5},
		Priority:   10,
	}))
	fx.provider.values["rolling_sharpe_60d"] = 0.1

	fx.monitor.RunCycle(context.Background())

	h, ok := fx.store.Snapshot().Hypothesis("H-1")
	require.True(t, ok)
	assert.Equal(t, models.StatusSunset, h.Status)

	c, _ := fx.store.Snapshot().Constraint("C-1")
	active, _ := fx.store.Snapshot().ConstraintIsActive(c)
	assert.False(t, active)

	require.Len(t, fx.events(t, models.EventFalsifierTriggered), 1)
	sunsets := fx.events(t, models.EventHypothesisSunset)
	require.Len(t, sunsets, 1)
	assert.Equal(t, []string{"C-1"}, sunsets[0].ActionDetails["deactivated_constraints"])
	deactivations := fx.events(t, models.EventConstraintDeactivated)
	require.Len(t, deactivations, 1)
	assert.Equal(t, "C-1", deactivations[0].ConstraintID)

	alerts := fx.alerts.all()
	require.Len(t, alerts, 1)
	assert.Equal(t, models.SeverityCritical, alerts[0].Severity)
	assert.Equal(t, "H-1", alerts[0].HypothesisID)
}

func TestMonitorReviewTriggerOnlyAlerts(t *testing.T) {
	fx := newMonitorFixture(t)
	fx.addActive(t, "H-1", models.Falsifier{
		Metric: "rolling_ic_20d", Operator: "<", Threshold: 0.01,
		Window: "60d", Trigger: models.TriggerReview,
	})
	fx.provider.values["rolling_ic_20d"] = -0.02

	fx.monitor.RunCycle(context.Background())

	h, _ := fx.store.Snapshot().Hypothesis("H-1")
	assert.Equal(t, models.StatusActive, h.Status, "review triggers never change status")

	alerts := fx.alerts.all()
	require.Len(t, alerts, 1)
	assert.Equal(t, models.SeverityWarning, alerts[0].Severity)
	require.Len(t, fx.events(t, models.EventFalsifierTriggered), 1)
	assert.Empty(t, fx.events(t, models.EventHypothesisSunset))
}

func TestMonitorMetricUnavailableNeverTriggers(t *testing.T) {
	fx := newMonitorFixture(t)
	fx.addActive(t, "H-1", models.Falsifier{
		Metric: "missing_metric", Operator: "<", Threshold: 0.2,
		Window: "60d", Trigger: models.TriggerSunset,
	})
	fx.provider.unavailable["missing_metric"] = true

	fx.monitor.RunCycle(context.Background())

	h, _ := fx.store.Snapshot().Hypothesis("H-1")
	assert.Equal(t, models.StatusActive, h.Status)
	assert.Empty(t, fx.events(t, models.EventFalsifierTriggered))
	assert.Empty(t, fx.alerts.all())
	assert.Equal(t, 1, fx.metrics.errors["metric_unavailable"])

	state, _, ok := fx.monitor.State("H-1", 0)
	require.True(t, ok)
	assert.Equal(t, CheckNotDue, state)
}

func TestMonitorPassIsAudited(t *testing.T) {
	fx := newMonitorFixture(t)
	fx.addActive(t, "H-1", models.Falsifier{
		Metric: "rolling_sharpe_60d", Operator: "<", Threshold: 0.2,
		Window: "60d", Trigger: models.TriggerSunset,
	})
	fx.provider.values["rolling_sharpe_60d"] = 1.4

	fx.monitor.RunCycle(context.Background())

	passes := fx.events(t, models.EventFalsifierPass)
	require.Len(t, passes, 1)
	assert.Equal(t, "H-1", passes[0].HypothesisID)
	assert.InDelta(t, 1.4, passes[0].ActionDetails["observed"].(float64), 1e-9)

	state, _, ok := fx.monitor.State("H-1", 0)
	require.True(t, ok)
	assert.Equal(t, CheckPassed, state)
	assert.Empty(t, fx.alerts.all())
}

func TestMonitorHonorsCheckInterval(t *testing.T) {
	fx := newMonitorFixture(t)
	fx.addActive(t, "H-1", models.Falsifier{
		Metric: "rolling_sharpe_60d", Operator: "<", Threshold: 0.2,
		Window: "60d", Trigger: models.TriggerReview, Interval: time.Hour,
	})
	fx.provider.values["rolling_sharpe_60d"] = 1.0

	ctx := context.Background()
	fx.monitor.RunCycle(ctx)
	fx.monitor.RunCycle(ctx)
	assert.Equal(t, 1, fx.provider.callCount("rolling_sharpe_60d"), "not due again yet")

	fx.clock.Advance(61 * time.Minute)
	fx.monitor.RunCycle(ctx)
	assert.Equal(t, 2, fx.provider.callCount("rolling_sharpe_60d"))
}

func TestMonitorStopsHypothesisAfterMidCycleSunset(t *testing.T) {
	fx := newMonitorFixture(t)
	fx.addActive(t, "H-1",
		models.Falsifier{
			Metric: "first_metric", Operator: "<", Threshold: 0.2,
			Window: "60d", Trigger: models.TriggerSunset,
		},
		models.Falsifier{
			Metric: "second_metric", Operator: ">", Threshold: 0.5,
			Window: "60d", Trigger: models.TriggerReview,
		},
	)
	fx.provider.values["first_metric"] = 0.0
	fx.provider.values["second_metric"] = 1.0

	fx.monitor.RunCycle(context.Background())

	h, _ := fx.store.Snapshot().Hypothesis("H-1")
	assert.Equal(t, models.StatusSunset, h.Status)
	assert.Equal(t, 0, fx.provider.callCount("second_metric"),
		"remaining falsifiers are moot once the hypothesis is retired")
}
