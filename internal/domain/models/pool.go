package models

import "time"

// UniverseEntry is one symbol in the base universe with the static
// attributes the structural filters read.
type UniverseEntry struct {
	Symbol        string  `yaml:"symbol" json:"symbol" validate:"required"`
	Sector        string  `yaml:"sector" json:"sector"`
	AvgDailyVolume float64 `yaml:"avg_daily_volume" json:"avg_daily_volume" validate:"gte=0"`
	MarketCap     float64 `yaml:"market_cap" json:"market_cap" validate:"gte=0"`
	Price         float64 `yaml:"price" json:"price" validate:"gte=0"`
	InsiderOwnershipPct float64 `yaml:"insider_ownership_pct" json:"insider_ownership_pct"`
	DividendYieldPct    float64 `yaml:"dividend_yield_pct" json:"dividend_yield_pct"`
}

// FilterConfig is the structural filter set applied to the base universe,
// in the fixed order documented on PoolBuilder.
type FilterConfig struct {
	MinAvgDailyVolume float64  `yaml:"min_avg_daily_volume" json:"min_avg_daily_volume" validate:"gte=0"`
	MinMarketCap      float64  `yaml:"min_market_cap" json:"min_market_cap" validate:"gte=0"`
	MinPrice          float64  `yaml:"min_price" json:"min_price" validate:"gte=0"`
	MaxPrice          float64  `yaml:"max_price" json:"max_price" validate:"gte=0"`
	ExcludedSectors   []string `yaml:"excluded_sectors" json:"excluded_sectors,omitempty"`
	MaxInsiderOwnershipPct float64 `yaml:"max_insider_ownership_pct" json:"max_insider_ownership_pct"`
	MaxDividendYieldPct    float64 `yaml:"max_dividend_yield_pct" json:"max_dividend_yield_pct"`
}

// PoolDecisionKind classifies a per-symbol pool decision.
type PoolDecisionKind string

const (
	DecisionIncluded    PoolDecisionKind = "included"
	DecisionExcluded    PoolDecisionKind = "excluded"
	DecisionPrioritized PoolDecisionKind = "prioritized"
)

// PoolDecision records why one symbol was included, excluded, or
// prioritized, and which filter or constraint made the call.
type PoolDecision struct {
	Symbol string           `json:"symbol"`
	Kind   PoolDecisionKind `json:"kind"`
	Reason string           `json:"reason"`
	Origin string           `json:"origin"` // filter name or hypothesis/constraint id
}

// Pool is the deterministic, audited set of symbols eligible for trading.
// Version is "<build timestamp>_<content hash>"; the hash covers the
// canonical inputs and excludes the timestamp, so identical inputs always
// carry an identical hash.
type Pool struct {
	Symbols    []string       `json:"symbols"`
	Version    string         `json:"version"`
	Hash       string         `json:"hash"`
	BuiltAt    time.Time      `json:"built_at"`
	Decisions  []PoolDecision `json:"decisions"`
	Prioritized []string      `json:"prioritized,omitempty"`
}

// Contains reports membership in the pool's sorted symbol list.
func (p *Pool) Contains(symbol string) bool {
	for _, s := range p.Symbols {
		if s == symbol {
			return true
		}
	}
	return false
}
