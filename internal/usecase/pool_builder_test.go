package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"StratGov/internal/domain/models"
	"StratGov/internal/registry"
	internalrepo "StratGov/internal/repository"
	"StratGov/pkg/logger"
)

func testUniverse() []models.UniverseEntry {
	return []models.UniverseEntry{
		{Symbol: "CAT", Sector: "industrials", AvgDailyVolume: 2_800_000, MarketCap: 170e9, Price: 345.20},
		{Symbol: "XOM", Sector: "energy", AvgDailyVolume: 17_000_000, MarketCap: 470e9, Price: 112.80},
		{Symbol: "NEE", Sector: "utilities", AvgDailyVolume: 9_000_000, MarketCap: 150e9, Price: 72.40},
		{Symbol: "PENNY", Sector: "technology", AvgDailyVolume: 5_000_000, MarketCap: 3e9, Price: 2.10},
		{Symbol: "THIN", Sector: "technology", AvgDailyVolume: 200_000, MarketCap: 5e9, Price: 44.00},
	}
}

func testFilters() models.FilterConfig {
	return models.FilterConfig{
		MinAvgDailyVolume: 1_000_000,
		MinMarketCap:      2e9,
		MinPrice:          5.0,
		ExcludedSectors:   []string{"utilities"},
	}
}

type poolFixture struct {
	store   *registry.Store
	audit   *internalrepo.MemoryAuditStore
	alerts  *captureSink
	metrics *recordingMetrics
	clock   *fakeClock
}

func newPoolBuilderUnder(t *testing.T, universe []models.UniverseEntry, filters models.FilterConfig) (*PoolBuilder, *poolFixture) {
	t.Helper()
	fx := &poolFixture{
		store:   registry.NewStore(logger.Nop()),
		audit:   internalrepo.NewMemoryAuditStore(),
		alerts:  &captureSink{},
		metrics: newRecordingMetrics(),
		clock:   newFakeClock(time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)),
	}
	b := NewPoolBuilder(fx.store, fx.audit, fx.alerts, fx.metrics, fx.clock, logger.Nop(), universe, filters)
	return b, fx
}

func decisionFor(decisions []models.PoolDecision, symbol string, kind models.PoolDecisionKind) (models.PoolDecision, bool) {
	for _, d := range decisions {
		if d.Symbol == symbol && d.Kind == kind {
			return d, true
		}
	}
	return models.PoolDecision{}, false
}

func TestPoolBuildAppliesStructuralFilters(t *testing.T) {
	b, _ := newPoolBuilderUnder(t, testUniverse(), testFilters())

	pool, err := b.Build(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"CAT", "XOM"}, pool.Symbols)

	d, ok := decisionFor(pool.Decisions, "NEE", models.DecisionExcluded)
	require.True(t, ok)
	assert.Equal(t, "sector_exclusion", d.Origin)

	d, ok = decisionFor(pool.Decisions, "PENNY", models.DecisionExcluded)
	require.True(t, ok)
	assert.Equal(t, "price_bounds", d.Origin)

	d, ok = decisionFor(pool.Decisions, "THIN", models.DecisionExcluded)
	require.True(t, ok)
	assert.Equal(t, "volume_floor", d.Origin)
}

func TestPoolBuildIsDeterministic(t *testing.T) {
	b, fx := newPoolBuilderUnder(t, testUniverse(), testFilters())
	ctx := context.Background()

	first, err := b.Build(ctx)
	require.NoError(t, err)

	// Time moves on between builds; the content hash must not.
	fx.clock.Advance(3 * time.Hour)
	second, err := b.Build(ctx)
	require.NoError(t, err)

	assert.Equal(t, first.Symbols, second.Symbols)
	assert.Equal(t, first.Hash, second.Hash)
	assert.NotEqual(t, first.Version, second.Version, "version carries the build timestamp")

	// Reversed document order must not change the output either.
	u := testUniverse()
	for i, j := 0, len(u)-1; i < j; i, j = i+1, j-1 {
		u[i], u[j] = u[j], u[i]
	}
	b2, _ := newPoolBuilderUnder(t, u, testFilters())
	third, err := b2.Build(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.Symbols, third.Symbols)
	assert.Equal(t, first.Hash, third.Hash)
}

func TestPoolBuildHypothesisGating(t *testing.T) {
	b, fx := newPoolBuilderUnder(t, testUniverse(), testFilters())

	require.NoError(t, fx.store.RegisterHypothesis(&models.Hypothesis{
		ID:     "H-ENERGY",
		Title:  "energy stress",
		Status: models.StatusDraft,
		Scope:  models.Scope{Sectors: []string{"energy"}},
		Falsifiers: []models.Falsifier{
			{Metric: "m", Operator: "<", Threshold: 0, Window: "30d", Trigger: models.TriggerReview},
		},
		ConstraintIDs: []string{"C-EXCL"},
	}))
	require.NoError(t, fx.store.RegisterConstraint(&models.Constraint{
		ID:         "C-EXCL",
		Title:      "drop energy",
		Activation: models.ActivationRule{RequiresActive: []string{"H-ENERGY"}},
		Actions:    models.Actions{PoolBias: "exclude"},
		Priority:   10,
	}))

	ctx := context.Background()

	// Gating only follows ACTIVE hypotheses: a draft changes nothing.
	pool, err := b.Build(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"CAT", "XOM"}, pool.Symbols)

	_, err = fx.store.Approve("H-ENERGY", "test")
	require.NoError(t, err)

	pool, err = b.Build(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"CAT"}, pool.Symbols)
	d, ok := decisionFor(pool.Decisions, "XOM", models.DecisionExcluded)
	require.True(t, ok)
	assert.Equal(t, "H-ENERGY", d.Origin)
}

func TestPoolBuildPrioritize(t *testing.T) {
	b, fx := newPoolBuilderUnder(t, testUniverse(), testFilters())

	require.NoError(t, fx.store.RegisterHypothesis(&models.Hypothesis{
		ID:     "H-IND",
		Title:  "industrials momentum",
		Status: models.StatusDraft,
		Scope:  models.Scope{Sectors: []string{"industrials"}},
		Falsifiers: []models.Falsifier{
			{Metric: "m", Operator: "<", Threshold: 0, Window: "30d", Trigger: models.TriggerReview},
		},
		ConstraintIDs: []string{"C-PRIO"},
	}))
	require.NoError(t, fx.store.RegisterConstraint(&models.Constraint{
		ID:         "C-PRIO",
		Title:      "prioritize industrials",
		Activation: models.ActivationRule{RequiresActive: []string{"H-IND"}},
		Actions:    models.Actions{PoolBias: "prioritize"},
		Priority:   50,
	}))
	_, err := fx.store.Approve("H-IND", "test")
	require.NoError(t, err)

	pool, err := b.Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"CAT", "XOM"}, pool.Symbols, "prioritize never changes membership")
	assert.Equal(t, []string{"CAT"}, pool.Prioritized)
}

func TestPoolBuildEmptyIsFatal(t *testing.T) {
	filters := testFilters()
	filters.MinMarketCap = 1e15
	b, fx := newPoolBuilderUnder(t, testUniverse(), filters)

	pool, err := b.Build(context.Background())
	require.Nil(t, pool)

	var empty *models.EmptyPoolError
	require.ErrorAs(t, err, &empty)
	assert.Equal(t, len(testUniverse()), empty.UniverseSize)

	alerts := fx.alerts.all()
	require.Len(t, alerts, 1)
	assert.Equal(t, models.SeverityCritical, alerts[0].Severity)

	// No pool, no audit record of a successful build.
	entries, qerr := fx.audit.Query(context.Background(), models.AuditQuery{EventType: models.EventPoolBuilt})
	require.NoError(t, qerr)
	assert.Empty(t, entries)
}

func TestPoolBuildIsAudited(t *testing.T) {
	b, fx := newPoolBuilderUnder(t, testUniverse(), testFilters())

	pool, err := b.Build(context.Background())
	require.NoError(t, err)

	entries, err := fx.audit.Query(context.Background(), models.AuditQuery{EventType: models.EventPoolBuilt})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, pool.Version, entries[0].ActionDetails["version"])
	assert.Equal(t, pool.Hash, entries[0].ActionDetails["hash"])
	assert.Equal(t, 2, entries[0].ActionDetails["size"])
}
