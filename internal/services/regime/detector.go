package regime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"StratGov/internal/domain/models"
	"StratGov/internal/domain/repository"
	"StratGov/pkg/logger"
)

// Metric names the detector asks the provider for. The provider decides
// where they come from; the detector only classifies.
const (
	MetricVolatility = "market_volatility"
	MetricDrawdown   = "market_drawdown"
	MetricDispersion = "cross_sectional_dispersion"
)

// Detector classifies the market environment into NORMAL, TRANSITION, or
// STRESS from three observable inputs. Classification is worst-of: any
// single input past its stress boundary puts the whole regime in STRESS.
// The result feeds position pacing only; it never touches signal content.
//
// Exits from an elevated state are sticky. The detector requires
// exitConfirmations consecutive calmer observations before stepping the
// state down, so a single quiet reading inside a storm does not flap the
// pacing back up.
type Detector struct {
	provider          repository.MetricProvider
	audit             repository.AuditStore
	metrics           repository.Metrics
	clock             repository.Clock
	log               *logger.Logger
	thresholds        models.RegimeThresholds
	window            string
	exitConfirmations int

	mu          sync.RWMutex
	current     models.Regime
	calmStreak  int
	initialized bool
}

// NewDetector creates a detector. window is the lookback the provider is
// asked to aggregate over, e.g. "20d".
func NewDetector(
	provider repository.MetricProvider,
	audit repository.AuditStore,
	metrics repository.Metrics,
	clock repository.Clock,
	log *logger.Logger,
	thresholds models.RegimeThresholds,
	window string,
) *Detector {
	if window == "" {
		window = "20d"
	}
	return &Detector{
		provider:          provider,
		audit:             audit,
		metrics:           metrics,
		clock:             clock,
		log:               log,
		thresholds:        thresholds,
		window:            window,
		exitConfirmations: 3,
		current: models.Regime{
			State:      models.RegimeNormal,
			Thresholds: thresholds,
		},
	}
}

// Current returns the last published regime.
func (d *Detector) Current() models.Regime {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.current
}

// Evaluate fetches the three inputs, classifies, and publishes a state
// change if one occurred. An unavailable input skips the cycle; the
// previous state stands.
func (d *Detector) Evaluate(ctx context.Context) (models.Regime, error) {
	obs, err := d.observe(ctx)
	if err != nil {
		var unavailable *models.MetricUnavailableError
		if errors.As(err, &unavailable) {
			d.log.Warn("regime input unavailable, keeping previous state",
				logger.String("metric", unavailable.Metric),
				logger.String("state", string(d.Current().State)),
			)
			d.metrics.RecordError("regime_input_unavailable")
			return d.Current(), nil
		}
		return d.Current(), err
	}

	raw := d.classify(obs)

	d.mu.Lock()
	prev := d.current.State
	next := d.damp(prev, raw)
	regime := models.Regime{
		State:      next,
		Observed:   obs,
		DetectedAt: d.clock.Now(),
		Thresholds: d.thresholds,
	}
	d.current = regime
	changed := d.initialized && next != prev
	d.initialized = true
	d.mu.Unlock()

	d.metrics.RecordRegime(string(next))

	if changed {
		if err := d.audit.Append(ctx, models.AuditEntry{
			Timestamp: regime.DetectedAt,
			EventType: models.EventRegimeChanged,
			ActionDetails: map[string]interface{}{
				"from":       string(prev),
				"to":         string(next),
				"volatility": obs.Volatility,
				"drawdown":   obs.Drawdown,
				"dispersion": obs.Dispersion,
			},
		}); err != nil {
			return regime, fmt.Errorf("audit regime change: %w", err)
		}
		d.metrics.RecordAuditAppend(string(models.EventRegimeChanged))
		d.log.Info("regime changed",
			logger.String("from", string(prev)),
			logger.String("to", string(next)),
			logger.Float64("volatility", obs.Volatility),
			logger.Float64("drawdown", obs.Drawdown),
			logger.Float64("dispersion", obs.Dispersion),
		)
	}
	return regime, nil
}

// Run re-evaluates on a fixed cadence until ctx is done.
func (d *Detector) Run(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = 5 * time.Minute
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := d.Evaluate(ctx); err != nil {
				d.log.Error("regime evaluation failed", logger.Error(err))
				d.metrics.RecordError("regime_evaluation")
			}
		}
	}
}

func (d *Detector) observe(ctx context.Context) (models.RegimeObservation, error) {
	var obs models.RegimeObservation
	var err error
	if obs.Volatility, err = d.provider.GetValue(ctx, MetricVolatility, models.Scope{}, d.window); err != nil {
		return obs, err
	}
	if obs.Drawdown, err = d.provider.GetValue(ctx, MetricDrawdown, models.Scope{}, d.window); err != nil {
		return obs, err
	}
	if obs.Dispersion, err = d.provider.GetValue(ctx, MetricDispersion, models.Scope{}, d.window); err != nil {
		return obs, err
	}
	return obs, nil
}

// classify is pure worst-of thresholding, no hysteresis.
func (d *Detector) classify(obs models.RegimeObservation) models.RegimeState {
	t := d.thresholds
	if obs.Volatility >= t.VolatilityStress ||
		obs.Drawdown >= t.DrawdownStress ||
		obs.Dispersion >= t.DispersionStress {
		return models.RegimeStress
	}
	if obs.Volatility >= t.VolatilityTransition ||
		obs.Drawdown >= t.DrawdownTransition ||
		obs.Dispersion >= t.DispersionTransition {
		return models.RegimeTransition
	}
	return models.RegimeNormal
}

// damp applies exit stickiness. Escalations are immediate; de-escalations
// step down one level after exitConfirmations consecutive calmer reads.
// Caller holds d.mu.
func (d *Detector) damp(prev, raw models.RegimeState) models.RegimeState {
	if severity(raw) >= severity(prev) {
		d.calmStreak = 0
		return raw
	}
	d.calmStreak++
	if d.calmStreak < d.exitConfirmations {
		return prev
	}
	d.calmStreak = 0
	switch prev {
	case models.RegimeStress:
		return models.RegimeTransition
	default:
		return models.RegimeNormal
	}
}

func severity(s models.RegimeState) int {
	switch s {
	case models.RegimeStress:
		return 2
	case models.RegimeTransition:
		return 1
	default:
		return 0
	}
}
