package metricfeed

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"StratGov/internal/domain/models"
)

type stubClock struct{ now time.Time }

func (c *stubClock) Now() time.Time { return c.now }

func TestStoreWindowedMean(t *testing.T) {
	clock := &stubClock{now: time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)}
	s := NewStore(clock, 90*24*time.Hour)

	s.Record(Observation{Metric: "market_volatility", Value: 0.10, Timestamp: clock.now.Add(-48 * time.Hour)})
	s.Record(Observation{Metric: "market_volatility", Value: 0.20, Timestamp: clock.now.Add(-24 * time.Hour)})
	s.Record(Observation{Metric: "market_volatility", Value: 0.60, Timestamp: clock.now.Add(-10 * 24 * time.Hour)})

	v, err := s.GetValue(context.Background(), "market_volatility", models.Scope{}, "3d")
	require.NoError(t, err)
	assert.InDelta(t, 0.15, v, 1e-9, "only points inside the window contribute")

	v, err = s.GetValue(context.Background(), "market_volatility", models.Scope{}, "30d")
	require.NoError(t, err)
	assert.InDelta(t, 0.30, v, 1e-9)
}

func TestStoreScopedLookupFallsBackToGlobal(t *testing.T) {
	clock := &stubClock{now: time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)}
	s := NewStore(clock, 90*24*time.Hour)

	s.Record(Observation{Metric: "rolling_sharpe_60d", Symbol: "XOM", Value: 0.8, Timestamp: clock.now.Add(-time.Hour)})
	s.Record(Observation{Metric: "rolling_sharpe_60d", Value: 0.2, Timestamp: clock.now.Add(-time.Hour)})

	v, err := s.GetValue(context.Background(), "rolling_sharpe_60d", models.Scope{Symbols: []string{"XOM"}}, "60d")
	require.NoError(t, err)
	assert.InDelta(t, 0.8, v, 1e-9, "the symbol series wins over the global one")

	v, err = s.GetValue(context.Background(), "rolling_sharpe_60d", models.Scope{Symbols: []string{"CVX"}}, "60d")
	require.NoError(t, err)
	assert.InDelta(t, 0.2, v, 1e-9, "unknown symbol falls back to the unscoped series")
}

func TestStoreEmptyWindowIsUnavailable(t *testing.T) {
	clock := &stubClock{now: time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)}
	s := NewStore(clock, 90*24*time.Hour)

	s.Record(Observation{Metric: "market_drawdown", Value: 0.05, Timestamp: clock.now.Add(-20 * 24 * time.Hour)})

	_, err := s.GetValue(context.Background(), "market_drawdown", models.Scope{}, "5d")
	var unavailable *models.MetricUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, "market_drawdown", unavailable.Metric)

	_, err = s.GetValue(context.Background(), "never_recorded", models.Scope{}, "30d")
	require.ErrorAs(t, err, &unavailable)
}

func TestStorePrunesBeyondRetention(t *testing.T) {
	clock := &stubClock{now: time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)}
	s := NewStore(clock, 24*time.Hour)

	s.Record(Observation{Metric: "m", Value: 1.0, Timestamp: clock.now.Add(-48 * time.Hour)})
	s.Record(Observation{Metric: "m", Value: 2.0, Timestamp: clock.now.Add(-time.Hour)})

	v, err := s.GetValue(context.Background(), "m", models.Scope{}, "72h")
	require.NoError(t, err)
	assert.InDelta(t, 2.0, v, 1e-9, "points beyond retention are gone even for wide windows")
}

func TestParseWindow(t *testing.T) {
	cases := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"30d", 30 * 24 * time.Hour, false},
		{"1d", 24 * time.Hour, false},
		{"90m", 90 * time.Minute, false},
		{"", 30 * 24 * time.Hour, false},
		{"0d", 0, true},
		{"-5d", 0, true},
		{"soon", 0, true},
	}
	for _, tc := range cases {
		got, err := ParseWindow(tc.in)
		if tc.wantErr {
			assert.Error(t, err, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}
