package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"StratGov/internal/domain/models"
	domrepo "StratGov/internal/domain/repository"
)

func TestMemoryAuditAppendAssignsIdentity(t *testing.T) {
	s := NewMemoryAuditStore()
	ctx := context.Background()

	require.NoError(t, s.Append(ctx, models.AuditEntry{
		EventType: models.EventPoolBuilt,
	}))

	entries, err := s.Query(ctx, models.AuditQuery{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.NotEmpty(t, entries[0].ID)
	assert.False(t, entries[0].Timestamp.IsZero())
}

func TestMemoryAuditQueryBySymbolAndRange(t *testing.T) {
	s := NewMemoryAuditStore()
	ctx := context.Background()
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.Append(ctx, models.AuditEntry{
		Timestamp:    day.Add(10 * time.Hour),
		EventType:    models.EventRiskBudgetAdjusted,
		ConstraintID: "C-ENERGY-DERISK",
		Symbol:       "XOM",
		ActionDetails: map[string]interface{}{
			"multiplier": 0.5,
		},
	}))
	require.NoError(t, s.Append(ctx, models.AuditEntry{
		Timestamp:    day.Add(11 * time.Hour),
		EventType:    models.EventVetoDowngrade,
		ConstraintID: "C-ENERGY-DERISK",
		Symbol:       "XOM",
	}))
	require.NoError(t, s.Append(ctx, models.AuditEntry{
		Timestamp: day.Add(12 * time.Hour),
		EventType: models.EventRiskBudgetAdjusted,
		Symbol:    "CAT",
	}))
	require.NoError(t, s.Append(ctx, models.AuditEntry{
		Timestamp: day.Add(-30 * time.Hour),
		EventType: models.EventRiskBudgetAdjusted,
		Symbol:    "XOM",
	}))

	// What did governance do to XOM that day.
	entries, err := s.Query(ctx, models.AuditQuery{
		Symbol: "XOM",
		From:   day,
		To:     day.Add(24 * time.Hour),
	})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, models.EventRiskBudgetAdjusted, entries[0].EventType)
	assert.Equal(t, "C-ENERGY-DERISK", entries[0].ConstraintID)
	assert.InDelta(t, 0.5, entries[0].ActionDetails["multiplier"].(float64), 1e-9)
	assert.Equal(t, models.EventVetoDowngrade, entries[1].EventType)
}

func TestMemoryAuditQueryOrderAndLimit(t *testing.T) {
	s := NewMemoryAuditStore()
	ctx := context.Background()
	base := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	// Appended out of order; queries come back in timestamp order.
	for _, offset := range []time.Duration{3 * time.Hour, time.Hour, 2 * time.Hour} {
		require.NoError(t, s.Append(ctx, models.AuditEntry{
			Timestamp: base.Add(offset),
			EventType: models.EventFalsifierPass,
		}))
	}

	entries, err := s.Query(ctx, models.AuditQuery{})
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.True(t, entries[0].Timestamp.Before(entries[1].Timestamp))
	assert.True(t, entries[1].Timestamp.Before(entries[2].Timestamp))

	entries, err = s.Query(ctx, models.AuditQuery{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

type valueProvider struct{ value float64 }

func (p valueProvider) GetValue(context.Context, string, models.Scope, string) (float64, error) {
	return p.value, nil
}

type unavailableProvider struct{}

func (unavailableProvider) GetValue(_ context.Context, metric string, scope models.Scope, _ string) (float64, error) {
	return 0, &models.MetricUnavailableError{Metric: metric, Scope: scopeString(scope)}
}

type failingProvider struct{ err error }

func (p failingProvider) GetValue(context.Context, string, models.Scope, string) (float64, error) {
	return 0, p.err
}

func TestFallbackMetricProviderChains(t *testing.T) {
	ctx := context.Background()

	p := NewFallbackMetricProvider(unavailableProvider{}, valueProvider{value: 0.7})
	v, err := p.GetValue(ctx, "m", models.Scope{}, "30d")
	require.NoError(t, err)
	assert.InDelta(t, 0.7, v, 1e-9)

	// First hit short-circuits.
	p = NewFallbackMetricProvider(valueProvider{value: 0.1}, valueProvider{value: 0.9})
	v, err = p.GetValue(ctx, "m", models.Scope{}, "30d")
	require.NoError(t, err)
	assert.InDelta(t, 0.1, v, 1e-9)
}

func TestFallbackMetricProviderStopsOnHardError(t *testing.T) {
	boom := errors.New("connection refused")
	p := NewFallbackMetricProvider(failingProvider{err: boom}, valueProvider{value: 0.7})

	_, err := p.GetValue(context.Background(), "m", models.Scope{}, "30d")
	require.ErrorIs(t, err, boom)
}

func TestFallbackMetricProviderAllUnavailable(t *testing.T) {
	p := NewFallbackMetricProvider(unavailableProvider{}, unavailableProvider{})

	_, err := p.GetValue(context.Background(), "m", models.Scope{Symbols: []string{"XOM"}}, "30d")
	var unavailable *models.MetricUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, "m", unavailable.Metric)
}

var _ domrepo.MetricProvider = (*FallbackMetricProvider)(nil)
