package metricfeed

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"StratGov/internal/domain/models"
	"StratGov/internal/domain/repository"
)

// Observation is one metric reading from the feed.
type Observation struct {
	Metric    string    `json:"metric"`
	Symbol    string    `json:"symbol,omitempty"`
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

type point struct {
	value float64
	at    time.Time
}

// Store is a windowed in-memory metric store fed by the live feed. It
// implements MetricProvider: GetValue averages the observations inside
// the requested window and returns MetricUnavailableError when the
// window holds no data. Absence of data is reported, never defaulted.
type Store struct {
	clock     repository.Clock
	retention time.Duration

	mu     sync.RWMutex
	points map[string][]point
}

var _ repository.MetricProvider = (*Store)(nil)

// NewStore creates a metric store. retention bounds how far back any
// window may reach; older points are pruned on write.
func NewStore(clock repository.Clock, retention time.Duration) *Store {
	if retention <= 0 {
		retention = 90 * 24 * time.Hour
	}
	return &Store{
		clock:     clock,
		retention: retention,
		points:    make(map[string][]point),
	}
}

// Record appends one observation and prunes expired points for its key.
func (s *Store) Record(obs Observation) {
	key := metricKey(obs.Metric, obs.Symbol)
	at := obs.Timestamp
	if at.IsZero() {
		at = s.clock.Now()
	}
	cutoff := s.clock.Now().Add(-s.retention)

	s.mu.Lock()
	defer s.mu.Unlock()

	pts := append(s.points[key], point{value: obs.Value, at: at})
	live := pts[:0]
	for _, p := range pts {
		if p.at.After(cutoff) {
			live = append(live, p)
		}
	}
	s.points[key] = live
}

// GetValue returns the mean of the observations for the metric inside the
// window. Scoped lookups read the symbol series first and fall back to
// the unscoped series.
func (s *Store) GetValue(ctx context.Context, metric string, scope models.Scope, window string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	dur, err := ParseWindow(window)
	if err != nil {
		return 0, fmt.Errorf("metric %q: %w", metric, err)
	}
	cutoff := s.clock.Now().Add(-dur)

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, key := range s.candidateKeys(metric, scope) {
		sum, n := 0.0, 0
		for _, p := range s.points[key] {
			if p.at.After(cutoff) {
				sum += p.value
				n++
			}
		}
		if n > 0 {
			return sum / float64(n), nil
		}
	}
	return 0, &models.MetricUnavailableError{Metric: metric, Scope: scopeLabel(scope)}
}

func (s *Store) candidateKeys(metric string, scope models.Scope) []string {
	keys := make([]string, 0, len(scope.Symbols)+1)
	for _, sym := range scope.Symbols {
		keys = append(keys, metricKey(metric, sym))
	}
	keys = append(keys, metricKey(metric, ""))
	return keys
}

func metricKey(metric, symbol string) string {
	if symbol == "" {
		return metric
	}
	return metric + ":" + symbol
}

func scopeLabel(scope models.Scope) string {
	switch {
	case len(scope.Symbols) > 0:
		return strings.Join(scope.Symbols, ",")
	case len(scope.Sectors) > 0:
		return strings.Join(scope.Sectors, ",")
	default:
		return "global"
	}
}

// ParseWindow accepts the definition documents' "Nd" day windows as well
// as anything time.ParseDuration takes.
func ParseWindow(window string) (time.Duration, error) {
	if window == "" {
		return 30 * 24 * time.Hour, nil
	}
	if strings.HasSuffix(window, "d") {
		days, err := strconv.Atoi(strings.TrimSuffix(window, "d"))
		if err != nil || days <= 0 {
			return 0, fmt.Errorf("invalid window %q", window)
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	dur, err := time.ParseDuration(window)
	if err != nil || dur <= 0 {
		return 0, fmt.Errorf("invalid window %q", window)
	}
	return dur, nil
}
