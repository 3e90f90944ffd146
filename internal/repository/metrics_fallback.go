package repository

import (
	"context"
	"errors"

	"StratGov/internal/domain/models"
	domrepo "StratGov/internal/domain/repository"
)

// FallbackMetricProvider tries providers in order and returns the first
// available value. Only MetricUnavailableError falls through; any other
// failure stops the chain. Used to put the live feed's window in front
// of the historical store.
type FallbackMetricProvider struct {
	providers []domrepo.MetricProvider
}

// NewFallbackMetricProvider chains providers, highest priority first.
func NewFallbackMetricProvider(providers ...domrepo.MetricProvider) *FallbackMetricProvider {
	return &FallbackMetricProvider{providers: providers}
}

func (p *FallbackMetricProvider) GetValue(ctx context.Context, metric string, scope models.Scope, window string) (float64, error) {
	var lastErr error = &models.MetricUnavailableError{Metric: metric, Scope: scopeString(scope)}
	for _, provider := range p.providers {
		value, err := provider.GetValue(ctx, metric, scope, window)
		if err == nil {
			return value, nil
		}
		var unavailable *models.MetricUnavailableError
		if !errors.As(err, &unavailable) {
			return 0, err
		}
		lastErr = err
	}
	return 0, lastErr
}
