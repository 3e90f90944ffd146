package usecase

import (
	"context"
	"fmt"
	"sort"
	"time"

	"StratGov/internal/domain/models"
	"StratGov/internal/domain/repository"
	"StratGov/internal/registry"
	"StratGov/pkg/cache"
	"StratGov/pkg/logger"
)

// Resolver computes the aggregate risk/timing effect of all active
// constraints for a symbol. It sits on the strategy's hot path: a cache
// hit costs no I/O with the default memory backend, and a miss recomputes
// from the in-memory registry snapshot, never from disk or network.
//
// Invalidation is a broadcast. The registry's generation number is part
// of every cache key, so one publish orphans the entire previous epoch
// at once; the TTL only bounds staleness for backends shared across
// processes.
type Resolver struct {
	store   *registry.Store
	cache   cache.Service
	ttl     time.Duration
	audit   repository.AuditStore
	metrics repository.Metrics
	clock   repository.Clock
	log     *logger.Logger
}

// NewResolver creates a resolver and hooks cache invalidation to
// registry publishes.
func NewResolver(
	store *registry.Store,
	c cache.Service,
	ttl time.Duration,
	audit repository.AuditStore,
	metrics repository.Metrics,
	clock repository.Clock,
	log *logger.Logger,
) *Resolver {
	r := &Resolver{
		store:   store,
		cache:   c,
		ttl:     ttl,
		audit:   audit,
		metrics: metrics,
		clock:   clock,
		log:     log,
	}
	store.OnInvalidate(func(generation uint64) {
		// Generation-keyed entries are already unreachable; the flush
		// reclaims them so a shared backend does not accumulate epochs.
		if err := c.Flush(context.Background()); err != nil {
			log.Warn("resolver cache flush failed", logger.Error(err), logger.Uint64("generation", generation))
		}
	})
	return r
}

// Resolve returns the resolved constraints for one symbol.
func (r *Resolver) Resolve(ctx context.Context, symbol string) (*models.ResolvedConstraints, error) {
	snap := r.store.Snapshot()
	key := fmt.Sprintf("resolved:g%d:%s", snap.Generation, symbol)

	var cached *models.ResolvedConstraints
	if err := r.cache.Get(ctx, key, &cached); err == nil && cached != nil {
		r.metrics.RecordResolution(symbol, true)
		return cached, nil
	}

	rc := r.resolveFromSnapshot(snap, symbol)
	if err := r.cache.Set(ctx, key, rc, r.ttl); err != nil {
		// A failed cache write degrades performance, not correctness.
		r.log.Warn("resolver cache set failed", logger.Error(err), logger.String("symbol", symbol))
	}
	r.metrics.RecordResolution(symbol, false)

	// Effects are audited once per resolution epoch, on the miss path,
	// so the hot path stays free of audit I/O.
	if err := r.auditEffects(ctx, rc); err != nil {
		return nil, fmt.Errorf("audit resolution effects: %w", err)
	}
	return rc, nil
}

// auditEffects records every non-neutral governance effect so a single
// symbol+time-range query finds what governance did to a decision.
func (r *Resolver) auditEffects(ctx context.Context, rc *models.ResolvedConstraints) error {
	if len(rc.Contributing) == 0 {
		return nil
	}
	ids := make([]string, len(rc.Contributing))
	for i, e := range rc.Contributing {
		ids[i] = e.ConstraintID
	}

	append1 := func(event models.AuditEventType, constraintID string, details map[string]interface{}) error {
		details["version"] = rc.Version
		if err := r.audit.Append(ctx, models.AuditEntry{
			Timestamp:     rc.ResolvedAt,
			EventType:     event,
			ConstraintID:  constraintID,
			Symbol:        rc.Symbol,
			ActionDetails: details,
		}); err != nil {
			return err
		}
		r.metrics.RecordAuditAppend(string(event))
		return nil
	}

	if rc.RiskBudgetMultiplier != 1.0 {
		// Attribute to the highest-priority contributor that set it.
		var origin string
		for _, e := range rc.Contributing {
			if e.Actions.RiskBudgetMultiplier > 0 {
				origin = e.ConstraintID
				break
			}
		}
		if err := append1(models.EventRiskBudgetAdjusted, origin, map[string]interface{}{
			"multiplier":   rc.RiskBudgetMultiplier,
			"contributing": ids,
		}); err != nil {
			return err
		}
	}
	if rc.VetoDowngrade {
		var origin string
		for _, e := range rc.Contributing {
			if e.Actions.VetoDowngrade {
				origin = e.ConstraintID
				break
			}
		}
		if err := append1(models.EventVetoDowngrade, origin, map[string]interface{}{
			"contributing": ids,
		}); err != nil {
			return err
		}
	}
	if rc.PositionCapMultiplier != 1.0 {
		var origin string
		for _, e := range rc.Contributing {
			if e.Actions.PositionCapMultiplier > 0 {
				origin = e.ConstraintID
				break
			}
		}
		if err := append1(models.EventPositionCapApplied, origin, map[string]interface{}{
			"multiplier":   rc.PositionCapMultiplier,
			"contributing": ids,
		}); err != nil {
			return err
		}
	}
	return nil
}

// Directives is the strategy-boundary view: pre-resolved scalars only.
func (r *Resolver) Directives(ctx context.Context, symbol string) (models.SymbolDirectives, error) {
	rc, err := r.Resolve(ctx, symbol)
	if err != nil {
		return models.SymbolDirectives{}, err
	}
	return rc.Directives(), nil
}

// resolveFromSnapshot folds all applicable active constraints in priority
// order. Each Actions field has its own combination semantics:
//
//	risk_budget_multiplier   multiplicative product
//	position_cap_multiplier  multiplicative product
//	veto_downgrade           OR across contributors
//	stop_mode                highest-priority (lowest number) setter wins
//	holding_extension_days   maximum across contributors
//	disable_strategy         union
//	guardrails               minimum per ceiling, dominant over actions
//	                         regardless of any contributor's priority
func (r *Resolver) resolveFromSnapshot(snap *registry.Snapshot, symbol string) *models.ResolvedConstraints {
	rc := &models.ResolvedConstraints{
		Symbol:               symbol,
		RiskBudgetMultiplier: 1.0,
		PositionCapMultiplier: 1.0,
		Version:              fmt.Sprintf("g%d", snap.Generation),
		ResolvedAt:           r.clock.Now(),
	}

	applicable := snap.ConstraintsForSymbol(symbol)
	active := applicable[:0:0]
	for _, c := range applicable {
		ok, missing := snap.ConstraintIsActive(c)
		if missing != "" {
			// Fail closed: an activation rule naming an unknown
			// hypothesis never activates its constraint.
			r.log.Warn("constraint references unknown hypothesis; treating as inactive",
				logger.String("constraint_id", c.ID),
				logger.String("hypothesis_id", missing),
			)
			r.metrics.RecordError("activation_resolution")
			continue
		}
		if ok {
			active = append(active, c)
		}
	}

	sort.SliceStable(active, func(i, j int) bool {
		if active[i].Priority != active[j].Priority {
			return active[i].Priority < active[j].Priority
		}
		return active[i].ID < active[j].ID
	})

	stopModeSet := false
	disabled := make(map[string]bool)
	for _, c := range active {
		rc.Contributing = append(rc.Contributing, models.ConstraintEffect{
			ConstraintID: c.ID,
			Priority:     c.Priority,
			Actions:      c.Actions,
			Guardrails:   c.Guardrails,
		})

		a := c.Actions
		if a.RiskBudgetMultiplier > 0 {
			rc.RiskBudgetMultiplier *= a.RiskBudgetMultiplier
		}
		if a.PositionCapMultiplier > 0 {
			rc.PositionCapMultiplier *= a.PositionCapMultiplier
		}
		if a.VetoDowngrade {
			rc.VetoDowngrade = true
		}
		if a.StopMode != models.StopModeDefault && !stopModeSet {
			rc.StopMode = a.StopMode
			stopModeSet = true
		}
		if a.HoldingExtensionDays > rc.HoldingExtensionDays {
			rc.HoldingExtensionDays = a.HoldingExtensionDays
		}
		if a.DisableStrategy != "" {
			disabled[a.DisableStrategy] = true
		}

		rc.Guardrails = mergeGuardrails(rc.Guardrails, c.Guardrails)
	}

	for s := range disabled {
		rc.DisabledStrategies = append(rc.DisabledStrategies, s)
	}
	sort.Strings(rc.DisabledStrategies)

	return rc
}

// mergeGuardrails keeps the most restrictive (minimum) value per ceiling.
// Zero means "no ceiling set".
func mergeGuardrails(agg, next models.Guardrails) models.Guardrails {
	agg.MaxPositionPct = minCeiling(agg.MaxPositionPct, next.MaxPositionPct)
	agg.MaxGrossExposureDelta = minCeiling(agg.MaxGrossExposureDelta, next.MaxGrossExposureDelta)
	agg.MaxDrawdownAddOn = minCeiling(agg.MaxDrawdownAddOn, next.MaxDrawdownAddOn)
	return agg
}

func minCeiling(a, b float64) float64 {
	if b <= 0 {
		return a
	}
	if a <= 0 || b < a {
		return b
	}
	return a
}
