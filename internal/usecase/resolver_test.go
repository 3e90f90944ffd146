package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"StratGov/internal/domain/models"
	"StratGov/internal/domain/repository"
	"StratGov/internal/registry"
	internalrepo "StratGov/internal/repository"
	"StratGov/pkg/cache"
	"StratGov/pkg/logger"
)

// fakeClock returns a fixed instant, advanceable by tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(at time.Time) *fakeClock { return &fakeClock{now: at} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// recordingMetrics counts calls so tests can assert on cache behavior
// without poking at cache internals.
type recordingMetrics struct {
	mu          sync.Mutex
	hits        int
	misses      int
	errors      map[string]int
	falsifiers  int
	triggered   int
	poolBuilds  int
	regimeCalls int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{errors: make(map[string]int)}
}

func (m *recordingMetrics) RecordResolution(_ string, cacheHit bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cacheHit {
		m.hits++
	} else {
		m.misses++
	}
}

func (m *recordingMetrics) RecordPoolBuild(int, float64) {
	m.mu.Lock()
	m.poolBuilds++
	m.mu.Unlock()
}

func (m *recordingMetrics) RecordFalsifierCheck(_ string, triggered bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.falsifiers++
	if triggered {
		m.triggered++
	}
}

func (m *recordingMetrics) RecordAuditAppend(string) {}
func (m *recordingMetrics) RecordAlert(string)       {}

func (m *recordingMetrics) RecordError(kind string) {
	m.mu.Lock()
	m.errors[kind]++
	m.mu.Unlock()
}

func (m *recordingMetrics) RecordRegime(string) {
	m.mu.Lock()
	m.regimeCalls++
	m.mu.Unlock()
}

func activeHypothesis(t *testing.T, s *registry.Store, id string) {
	t.Helper()
	require.NoError(t, s.RegisterHypothesis(&models.Hypothesis{
		ID:     id,
		Title:  "hypothesis " + id,
		Status: models.StatusDraft,
		Falsifiers: []models.Falsifier{
			{Metric: "m", Operator: "<", Threshold: 0, Window: "30d", Trigger: models.TriggerReview},
		},
	}))
	_, err := s.Approve(id, "test")
	require.NoError(t, err)
}

func newTestResolver(t *testing.T, s *registry.Store) (*Resolver, *repositoryFixtures) {
	t.Helper()
	fx := &repositoryFixtures{
		audit:   internalrepo.NewMemoryAuditStore(),
		metrics: newRecordingMetrics(),
		clock:   newFakeClock(time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)),
	}
	c := cache.NewMemoryCache()
	t.Cleanup(func() { _ = c.Close() })
	r := NewResolver(s, c, time.Minute, fx.audit, fx.metrics, fx.clock, logger.Nop())
	return r, fx
}

type repositoryFixtures struct {
	audit   repository.AuditStore
	metrics *recordingMetrics
	clock   *fakeClock
}

func TestResolveCombinesActions(t *testing.T) {
	s := registry.NewStore(logger.Nop())
	activeHypothesis(t, s, "H-A")
	activeHypothesis(t, s, "H-B")

	require.NoError(t, s.RegisterConstraint(&models.Constraint{
		ID:         "C-LOW",
		Title:      "derisk",
		Activation: models.ActivationRule{RequiresActive: []string{"H-A"}},
		Actions: models.Actions{
			RiskBudgetMultiplier: 1.5,
			StopMode:             models.StopModeTight,
			HoldingExtensionDays: 5,
		},
		Guardrails: models.Guardrails{MaxPositionPct: 0.05},
		Priority:   10,
	}))
	require.NoError(t, s.RegisterConstraint(&models.Constraint{
		ID:         "C-HIGH",
		Title:      "extend",
		Activation: models.ActivationRule{RequiresActive: []string{"H-B"}},
		Actions: models.Actions{
			RiskBudgetMultiplier: 2.0,
			StopMode:             models.StopModeWide,
			HoldingExtensionDays: 12,
			VetoDowngrade:        true,
		},
		Guardrails: models.Guardrails{MaxPositionPct: 0.03},
		Priority:   80,
	}))

	r, _ := newTestResolver(t, s)
	rc, err := r.Resolve(context.Background(), "CAT")
	require.NoError(t, err)

	assert.InDelta(t, 3.0, rc.RiskBudgetMultiplier, 1e-9)
	assert.Equal(t, models.StopModeTight, rc.StopMode, "lowest priority number sets stop mode")
	assert.Equal(t, 12, rc.HoldingExtensionDays)
	assert.True(t, rc.VetoDowngrade)
	assert.InDelta(t, 0.03, rc.Guardrails.MaxPositionPct, 1e-9, "most restrictive ceiling wins")
	require.Len(t, rc.Contributing, 2)
	assert.Equal(t, "C-LOW", rc.Contributing[0].ConstraintID)
}

func TestResolveFailsClosedOnUnknownHypothesis(t *testing.T) {
	s := registry.NewStore(logger.Nop())
	require.NoError(t, s.RegisterConstraint(&models.Constraint{
		ID:         "C-DANGLING",
		Title:      "dangling",
		Activation: models.ActivationRule{RequiresActive: []string{"H-missing"}},
		Actions:    models.Actions{RiskBudgetMultiplier: 0.5},
		Priority:   10,
	}))

	r, fx := newTestResolver(t, s)
	rc, err := r.Resolve(context.Background(), "CAT")
	require.NoError(t, err)

	assert.InDelta(t, 1.0, rc.RiskBudgetMultiplier, 1e-9)
	assert.Empty(t, rc.Contributing)
	assert.Equal(t, 1, fx.metrics.errors["activation_resolution"])
}

func TestResolveCacheHitAndInvalidation(t *testing.T) {
	s := registry.NewStore(logger.Nop())
	activeHypothesis(t, s, "H-A")
	require.NoError(t, s.RegisterConstraint(&models.Constraint{
		ID:         "C-1",
		Title:      "derisk",
		Activation: models.ActivationRule{RequiresActive: []string{"H-A"}},
		Actions:    models.Actions{RiskBudgetMultiplier: 0.5},
		Priority:   10,
	}))

	r, fx := newTestResolver(t, s)
	ctx := context.Background()

	rc, err := r.Resolve(ctx, "CAT")
	require.NoError(t, err)
	assert.InDelta(t, 0.5, rc.RiskBudgetMultiplier, 1e-9)

	_, err = r.Resolve(ctx, "CAT")
	require.NoError(t, err)
	assert.Equal(t, 1, fx.metrics.hits)
	assert.Equal(t, 1, fx.metrics.misses)

	// Sunsetting the backing hypothesis bumps the generation; the next
	// resolution must not see the retired constraint.
	_, err = s.Sunset("H-A", "test")
	require.NoError(t, err)

	rc, err = r.Resolve(ctx, "CAT")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, rc.RiskBudgetMultiplier, 1e-9)
	assert.Empty(t, rc.Contributing)
	assert.Equal(t, 2, fx.metrics.misses)
}

func TestResolveRespectsApplicability(t *testing.T) {
	s := registry.NewStore(logger.Nop())
	activeHypothesis(t, s, "H-A")
	require.NoError(t, s.RegisterConstraint(&models.Constraint{
		ID:            "C-ENERGY",
		Title:         "energy only",
		Applicability: models.Applicability{Symbols: []string{"XOM", "CVX"}},
		Activation:    models.ActivationRule{RequiresActive: []string{"H-A"}},
		Actions:       models.Actions{VetoDowngrade: true},
		Priority:      10,
	}))

	r, _ := newTestResolver(t, s)
	ctx := context.Background()

	rc, err := r.Resolve(ctx, "XOM")
	require.NoError(t, err)
	assert.True(t, rc.VetoDowngrade)

	rc, err = r.Resolve(ctx, "CAT")
	require.NoError(t, err)
	assert.False(t, rc.VetoDowngrade)
	assert.Empty(t, rc.Contributing)
}

func TestResolveAuditsEffects(t *testing.T) {
	s := registry.NewStore(logger.Nop())
	activeHypothesis(t, s, "H-A")
	require.NoError(t, s.RegisterConstraint(&models.Constraint{
		ID:         "C-1",
		Title:      "derisk and veto",
		Activation: models.ActivationRule{RequiresActive: []string{"H-A"}},
		Actions: models.Actions{
			RiskBudgetMultiplier:  0.5,
			PositionCapMultiplier: 0.8,
			VetoDowngrade:         true,
		},
		Priority: 10,
	}))

	r, fx := newTestResolver(t, s)
	ctx := context.Background()
	_, err := r.Resolve(ctx, "CAT")
	require.NoError(t, err)

	// One symbol+range query answers "what did governance do here".
	entries, err := fx.audit.Query(ctx, models.AuditQuery{
		Symbol: "CAT",
		From:   fx.clock.Now().Add(-time.Hour),
		To:     fx.clock.Now().Add(time.Hour),
	})
	require.NoError(t, err)
	require.Len(t, entries, 3)

	byEvent := make(map[models.AuditEventType]models.AuditEntry)
	for _, e := range entries {
		byEvent[e.EventType] = e
	}
	risk, ok := byEvent[models.EventRiskBudgetAdjusted]
	require.True(t, ok)
	assert.Equal(t, "C-1", risk.ConstraintID)
	assert.InDelta(t, 0.5, risk.ActionDetails["multiplier"].(float64), 1e-9)
	_, ok = byEvent[models.EventVetoDowngrade]
	assert.True(t, ok)
	_, ok = byEvent[models.EventPositionCapApplied]
	assert.True(t, ok)

	// The cache-hit path must not append again.
	_, err = r.Resolve(ctx, "CAT")
	require.NoError(t, err)
	entries, err = fx.audit.Query(ctx, models.AuditQuery{Symbol: "CAT"})
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestDirectivesStripAuthoredContent(t *testing.T) {
	s := registry.NewStore(logger.Nop())
	activeHypothesis(t, s, "H-A")
	require.NoError(t, s.RegisterConstraint(&models.Constraint{
		ID:         "C-1",
		Title:      "cap",
		Activation: models.ActivationRule{RequiresActive: []string{"H-A"}},
		Actions:    models.Actions{PositionCapMultiplier: 0.8},
		Guardrails: models.Guardrails{MaxPositionPct: 0.04},
		Priority:   10,
	}))

	r, _ := newTestResolver(t, s)
	d, err := r.Directives(context.Background(), "CAT")
	require.NoError(t, err)
	assert.Equal(t, "CAT", d.Symbol)
	assert.InDelta(t, 0.8, d.PositionCapMultiplier, 1e-9)
	assert.InDelta(t, 0.04, d.MaxPositionPct, 1e-9)
}
