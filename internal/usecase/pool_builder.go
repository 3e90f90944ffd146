package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"StratGov/internal/domain/models"
	"StratGov/internal/domain/repository"
	"StratGov/internal/registry"
	"StratGov/pkg/logger"
)

// PoolBuilder combines the base universe, the structural filters, and
// hypothesis-driven gating into a deterministic, versioned, audited pool.
// It runs on-demand or on a coarse schedule; it is allowed to block.
type PoolBuilder struct {
	store    *registry.Store
	audit    repository.AuditStore
	alerts   repository.AlertSink
	metrics  repository.Metrics
	clock    repository.Clock
	log      *logger.Logger
	universe []models.UniverseEntry
	filters  models.FilterConfig
}

// NewPoolBuilder creates a pool builder over a fixed universe and filter
// configuration.
func NewPoolBuilder(
	store *registry.Store,
	audit repository.AuditStore,
	alerts repository.AlertSink,
	metrics repository.Metrics,
	clock repository.Clock,
	log *logger.Logger,
	universe []models.UniverseEntry,
	filters models.FilterConfig,
) *PoolBuilder {
	// Sorted copy: build output must not depend on document order.
	u := make([]models.UniverseEntry, len(universe))
	copy(u, universe)
	sort.Slice(u, func(i, j int) bool { return u[i].Symbol < u[j].Symbol })

	return &PoolBuilder{
		store:    store,
		audit:    audit,
		alerts:   alerts,
		metrics:  metrics,
		clock:    clock,
		log:      log,
		universe: u,
		filters:  filters,
	}
}

// gatingEffect is one hypothesis-driven pool decision source, canonical
// for hashing.
type gatingEffect struct {
	HypothesisID string   `json:"hypothesis_id"`
	ConstraintID string   `json:"constraint_id"`
	Bias         string   `json:"bias"`
	Symbols      []string `json:"symbols"`
}

// Build produces a Pool. Identical inputs (universe, filters, active
// hypothesis set) always yield byte-identical symbol lists and identical
// hashes: the content hash covers a canonical serialization of the
// inputs and excludes the build timestamp.
func (b *PoolBuilder) Build(ctx context.Context) (*models.Pool, error) {
	start := b.clock.Now()
	snap := b.store.Snapshot()

	decisions := make([]models.PoolDecision, 0, len(b.universe))
	included := make(map[string]bool, len(b.universe))

	// Structural filters in fixed order. Each exclusion is recorded with
	// the filter's name as the reason.
	for _, e := range b.universe {
		if origin, reason := b.structuralExclusion(e); origin != "" {
			decisions = append(decisions, models.PoolDecision{
				Symbol: e.Symbol,
				Kind:   models.DecisionExcluded,
				Reason: reason,
				Origin: origin,
			})
			continue
		}
		included[e.Symbol] = true
		decisions = append(decisions, models.PoolDecision{
			Symbol: e.Symbol,
			Kind:   models.DecisionIncluded,
			Reason: "passed structural filters",
			Origin: "structural_filters",
		})
	}

	// Hypothesis-driven gating over the ACTIVE set, deterministic order.
	effects := b.gatingEffects(snap)
	prioritized := make(map[string]bool)
	for _, g := range effects {
		for _, sym := range g.Symbols {
			switch g.Bias {
			case "include":
				if !included[sym] {
					included[sym] = true
					decisions = append(decisions, models.PoolDecision{
						Symbol: sym,
						Kind:   models.DecisionIncluded,
						Reason: fmt.Sprintf("inclusion override by constraint %s", g.ConstraintID),
						Origin: g.HypothesisID,
					})
				}
			case "exclude":
				if included[sym] {
					delete(included, sym)
					decisions = append(decisions, models.PoolDecision{
						Symbol: sym,
						Kind:   models.DecisionExcluded,
						Reason: fmt.Sprintf("exclusion override by constraint %s", g.ConstraintID),
						Origin: g.HypothesisID,
					})
				}
			case "prioritize":
				if included[sym] && !prioritized[sym] {
					prioritized[sym] = true
					decisions = append(decisions, models.PoolDecision{
						Symbol: sym,
						Kind:   models.DecisionPrioritized,
						Reason: fmt.Sprintf("priority bias by constraint %s", g.ConstraintID),
						Origin: g.HypothesisID,
					})
				}
			}
		}
	}

	symbols := make([]string, 0, len(included))
	for sym := range included {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	if len(symbols) == 0 {
		err := &models.EmptyPoolError{UniverseSize: len(b.universe)}
		b.metrics.RecordError("empty_pool")
		b.emitAlert(ctx, models.Alert{
			Severity:          models.SeverityCritical,
			Title:             "pool build produced no symbols",
			Message:           err.Error(),
			RecommendedAction: "review structural filters and exclusion constraints before the next session",
		})
		return nil, err
	}

	prio := make([]string, 0, len(prioritized))
	for sym := range prioritized {
		prio = append(prio, sym)
	}
	sort.Strings(prio)

	hash, err := b.contentHash(effects)
	if err != nil {
		return nil, fmt.Errorf("pool content hash: %w", err)
	}

	builtAt := b.clock.Now()
	pool := &models.Pool{
		Symbols:     symbols,
		Hash:        hash,
		Version:     fmt.Sprintf("%s_%s", builtAt.UTC().Format("20060102T150405Z"), hash[:16]),
		BuiltAt:     builtAt,
		Decisions:   decisions,
		Prioritized: prio,
	}

	if err := b.audit.Append(ctx, models.AuditEntry{
		Timestamp: builtAt,
		EventType: models.EventPoolBuilt,
		ActionDetails: map[string]interface{}{
			"version":     pool.Version,
			"hash":        pool.Hash,
			"size":        len(symbols),
			"excluded":    len(b.universe) - len(symbols),
			"prioritized": len(prio),
		},
	}); err != nil {
		return nil, fmt.Errorf("audit pool build: %w", err)
	}
	b.metrics.RecordAuditAppend(string(models.EventPoolBuilt))
	b.metrics.RecordPoolBuild(len(symbols), b.clock.Now().Sub(start).Seconds())

	b.log.Info("pool built",
		logger.String("version", pool.Version),
		logger.Int("size", len(symbols)),
		logger.Int("prioritized", len(prio)),
	)
	return pool, nil
}

// structuralExclusion applies the filters in their fixed, documented
// order: volume floor, market-cap floor, price bounds, sector exclusion,
// ownership exclusion, yield exclusion. Returns the filter name and a
// reason, or "" if the entry survives.
func (b *PoolBuilder) structuralExclusion(e models.UniverseEntry) (string, string) {
	f := b.filters
	if f.MinAvgDailyVolume > 0 && e.AvgDailyVolume < f.MinAvgDailyVolume {
		return "volume_floor", fmt.Sprintf("avg daily volume %.0f below floor %.0f", e.AvgDailyVolume, f.MinAvgDailyVolume)
	}
	if f.MinMarketCap > 0 && e.MarketCap < f.MinMarketCap {
		return "market_cap_floor", fmt.Sprintf("market cap %.0f below floor %.0f", e.MarketCap, f.MinMarketCap)
	}
	if f.MinPrice > 0 && e.Price < f.MinPrice {
		return "price_bounds", fmt.Sprintf("price %.2f below minimum %.2f", e.Price, f.MinPrice)
	}
	if f.MaxPrice > 0 && e.Price > f.MaxPrice {
		return "price_bounds", fmt.Sprintf("price %.2f above maximum %.2f", e.Price, f.MaxPrice)
	}
	for _, sector := range f.ExcludedSectors {
		if sector == e.Sector {
			return "sector_exclusion", fmt.Sprintf("sector %q is excluded", e.Sector)
		}
	}
	if f.MaxInsiderOwnershipPct > 0 && e.InsiderOwnershipPct > f.MaxInsiderOwnershipPct {
		return "ownership_exclusion", fmt.Sprintf("insider ownership %.1f%% above cap %.1f%%", e.InsiderOwnershipPct, f.MaxInsiderOwnershipPct)
	}
	if f.MaxDividendYieldPct > 0 && e.DividendYieldPct > f.MaxDividendYieldPct {
		return "yield_exclusion", fmt.Sprintf("dividend yield %.1f%% above cap %.1f%%", e.DividendYieldPct, f.MaxDividendYieldPct)
	}
	return "", ""
}

// gatingEffects collects the pool-bias effects of every constraint linked
// to an ACTIVE hypothesis, in deterministic (hypothesis, constraint)
// order, with each effect's covered symbols resolved against the
// universe and sorted.
func (b *PoolBuilder) gatingEffects(snap *registry.Snapshot) []gatingEffect {
	var effects []gatingEffect
	for _, h := range snap.Hypotheses(models.StatusActive) {
		cids := append([]string(nil), h.ConstraintIDs...)
		sort.Strings(cids)
		for _, cid := range cids {
			c, ok := snap.Constraint(cid)
			if !ok {
				b.log.Warn("active hypothesis links unknown constraint",
					logger.String("hypothesis_id", h.ID),
					logger.String("constraint_id", cid),
				)
				continue
			}
			active, missing := snap.ConstraintIsActive(c)
			if missing != "" {
				b.log.Warn("constraint activation references unknown hypothesis; treating as inactive",
					logger.String("constraint_id", c.ID),
					logger.String("hypothesis_id", missing),
				)
			}
			if !active || c.Actions.PoolBias == "" {
				continue
			}
			var symbols []string
			for _, e := range b.universe {
				if h.Scope.Covers(e.Symbol, e.Sector) && c.Applicability.CoversSymbol(e.Symbol) {
					symbols = append(symbols, e.Symbol)
				}
			}
			sort.Strings(symbols)
			effects = append(effects, gatingEffect{
				HypothesisID: h.ID,
				ConstraintID: c.ID,
				Bias:         c.Actions.PoolBias,
				Symbols:      symbols,
			})
		}
	}
	return effects
}

// contentHash hashes a canonical serialization of universe + filter
// config + gating config. The timestamp is deliberately outside the hash.
func (b *PoolBuilder) contentHash(effects []gatingEffect) (string, error) {
	canonical := struct {
		Universe []models.UniverseEntry `json:"universe"`
		Filters  models.FilterConfig    `json:"filters"`
		Gating   []gatingEffect         `json:"gating"`
	}{
		Universe: b.universe,
		Filters:  b.filters,
		Gating:   effects,
	}
	raw, err := json.Marshal(canonical)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

func (b *PoolBuilder) emitAlert(ctx context.Context, a models.Alert) {
	a.ID = newAlertID(b.clock.Now())
	a.Timestamp = b.clock.Now()
	if err := b.alerts.Publish(ctx, a); err != nil {
		b.log.Error("alert publish failed", logger.Error(err), logger.String("title", a.Title))
		b.metrics.RecordError("alert_publish")
		return
	}
	b.metrics.RecordAlert(string(a.Severity))
}
