package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"StratGov/internal/domain/models"
	internalrepo "StratGov/internal/repository"
	"StratGov/internal/registry"
	"StratGov/internal/services/regime"
	"StratGov/internal/usecase"
	"StratGov/pkg/cache"
	"StratGov/pkg/logger"
)

type nopMetrics struct{}

func (nopMetrics) RecordResolution(string, bool)     {}
func (nopMetrics) RecordPoolBuild(int, float64)      {}
func (nopMetrics) RecordFalsifierCheck(string, bool) {}
func (nopMetrics) RecordAuditAppend(string)          {}
func (nopMetrics) RecordAlert(string)                {}
func (nopMetrics) RecordError(string)                {}
func (nopMetrics) RecordRegime(string)               {}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type nopSink struct{}

func (nopSink) Publish(context.Context, models.Alert) error { return nil }
func (nopSink) Close() error                                { return nil }

type staticProvider struct{ values map[string]float64 }

func (p staticProvider) GetValue(_ context.Context, metric string, _ models.Scope, _ string) (float64, error) {
	v, ok := p.values[metric]
	if !ok {
		return 0, &models.MetricUnavailableError{Metric: metric}
	}
	return v, nil
}

type apiFixture struct {
	e     *echo.Echo
	store *registry.Store
	audit *internalrepo.MemoryAuditStore
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	log := logger.Nop()
	store := registry.NewStore(log)
	audit := internalrepo.NewMemoryAuditStore()
	clock := fixedClock{now: time.Date(2026, 3, 2, 16, 0, 0, 0, time.UTC)}

	c := cache.NewMemoryCache()
	t.Cleanup(func() { _ = c.Close() })
	resolver := usecase.NewResolver(store, c, time.Minute, audit, nopMetrics{}, clock, log)

	universe := []models.UniverseEntry{
		{Symbol: "CAT", Sector: "industrials", AvgDailyVolume: 2_000_000, MarketCap: 170e9, Price: 345},
		{Symbol: "XOM", Sector: "energy", AvgDailyVolume: 17_000_000, MarketCap: 470e9, Price: 112},
	}
	pool := usecase.NewPoolBuilder(store, audit, nopSink{}, nopMetrics{}, clock, log, universe, models.FilterConfig{})

	detector := regime.NewDetector(
		staticProvider{values: map[string]float64{
			regime.MetricVolatility: 0.10,
			regime.MetricDrawdown:   0.02,
			regime.MetricDispersion: 0.10,
		}},
		audit, nopMetrics{}, clock, log,
		models.RegimeThresholds{
			VolatilityTransition: 0.18, VolatilityStress: 0.30,
			DrawdownTransition: 0.05, DrawdownStress: 0.12,
			DispersionTransition: 0.22, DispersionStress: 0.35,
		},
		"20d",
	)

	h := NewGovernanceHandler(log, store, resolver, pool, detector, audit)
	e := echo.New()
	h.RegisterRoutes(e)
	return &apiFixture{e: e, store: store, audit: audit}
}

type envelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (fx *apiFixture) get(t *testing.T, target string) envelope {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	fx.e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func TestHealthEndpoint(t *testing.T) {
	fx := newAPIFixture(t)
	env := fx.get(t, "/healthz")
	assert.Equal(t, http.StatusOK, env.Status)
}

func TestResolvedEndpointReturnsDirectivesOnly(t *testing.T) {
	fx := newAPIFixture(t)
	require.NoError(t, fx.store.RegisterHypothesis(&models.Hypothesis{
		ID:        "H-1",
		Title:     "energy stress",
		Statement: "sector-wide drawdown risk is elevated",
		Status:    models.StatusDraft,
		Falsifiers: []models.Falsifier{
			{Metric: "m", Operator: "<", Threshold: 0, Window: "30d", Trigger: models.TriggerReview},
		},
	}))
	require.NoError(t, fx.store.RegisterConstraint(&models.Constraint{
		ID:         "C-1",
		Title:      "derisk energy",
		Activation: models.ActivationRule{RequiresActive: []string{"H-1"}},
		Actions:    models.Actions{RiskBudgetMultiplier: 0.5, VetoDowngrade: true},
		Priority:   10,
	}))
	_, err := fx.store.Approve("H-1", "test")
	require.NoError(t, err)

	env := fx.get(t, "/api/resolved/XOM")
	require.Equal(t, http.StatusOK, env.Status)

	var d models.SymbolDirectives
	require.NoError(t, json.Unmarshal(env.Data, &d))
	assert.Equal(t, "XOM", d.Symbol)
	assert.InDelta(t, 0.5, d.RiskBudgetMultiplier, 1e-9)
	assert.True(t, d.VetoDowngrade)

	// The strategy boundary: no authored content in the payload.
	assert.NotContains(t, string(env.Data), "statement")
	assert.NotContains(t, string(env.Data), "drawdown risk is elevated")
	assert.NotContains(t, string(env.Data), "C-1")
}

func TestPoolEndpoint(t *testing.T) {
	fx := newAPIFixture(t)
	env := fx.get(t, "/api/pool")
	require.Equal(t, http.StatusOK, env.Status)

	var pool models.Pool
	require.NoError(t, json.Unmarshal(env.Data, &pool))
	assert.Equal(t, []string{"CAT", "XOM"}, pool.Symbols)
	assert.NotEmpty(t, pool.Hash)
}

func TestRegimeEndpoint(t *testing.T) {
	fx := newAPIFixture(t)
	env := fx.get(t, "/api/regime")
	require.Equal(t, http.StatusOK, env.Status)

	var r models.Regime
	require.NoError(t, json.Unmarshal(env.Data, &r))
	assert.Equal(t, models.RegimeNormal, r.State)
}

func TestAuditEndpointFilters(t *testing.T) {
	fx := newAPIFixture(t)
	ctx := context.Background()
	require.NoError(t, fx.audit.Append(ctx, models.AuditEntry{
		Timestamp: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
		EventType: models.EventRiskBudgetAdjusted,
		Symbol:    "XOM",
	}))
	require.NoError(t, fx.audit.Append(ctx, models.AuditEntry{
		Timestamp: time.Date(2026, 3, 2, 11, 0, 0, 0, time.UTC),
		EventType: models.EventPoolBuilt,
	}))

	env := fx.get(t, "/api/audit?symbol=XOM")
	require.Equal(t, http.StatusOK, env.Status)

	var list struct {
		Rows  []models.AuditEntry `json:"rows"`
		Total int64               `json:"total"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.EqualValues(t, 1, list.Total)
	assert.Equal(t, "XOM", list.Rows[0].Symbol)

	// The date shortcut expands to the whole UTC day.
	env = fx.get(t, "/api/audit?date=2026-03-02")
	require.Equal(t, http.StatusOK, env.Status)
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.EqualValues(t, 2, list.Total)

	env = fx.get(t, "/api/audit?date=2026-03-03")
	require.Equal(t, http.StatusOK, env.Status)
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.EqualValues(t, 0, list.Total)
}

func TestHypothesesEndpointOmitsStatementAndEvidence(t *testing.T) {
	fx := newAPIFixture(t)
	require.NoError(t, fx.store.RegisterHypothesis(&models.Hypothesis{
		ID:        "H-1",
		Title:     "post-earnings drift",
		Statement: "secret sauce",
		Evidence:  "internal research memo",
		Status:    models.StatusDraft,
		Falsifiers: []models.Falsifier{
			{Metric: "m", Operator: "<", Threshold: 0, Window: "30d", Trigger: models.TriggerReview},
		},
	}))

	env := fx.get(t, "/api/hypotheses")
	require.Equal(t, http.StatusOK, env.Status)
	assert.Contains(t, string(env.Data), "post-earnings drift")
	assert.NotContains(t, string(env.Data), "secret sauce")
	assert.NotContains(t, string(env.Data), "internal research memo")

	env = fx.get(t, "/api/hypotheses?status=ACTIVE")
	var list struct {
		Rows  []models.HypothesisSummary `json:"rows"`
		Total int64                      `json:"total"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.EqualValues(t, 0, list.Total)
}
