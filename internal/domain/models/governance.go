package models

import (
	"fmt"
	"time"
)

// HypothesisStatus is the lifecycle state of a market hypothesis.
type HypothesisStatus string

const (
	StatusDraft    HypothesisStatus = "DRAFT"
	StatusActive   HypothesisStatus = "ACTIVE"
	StatusSunset   HypothesisStatus = "SUNSET"
	StatusRejected HypothesisStatus = "REJECTED"
)

// Terminal reports whether the status admits no further transitions.
func (s HypothesisStatus) Terminal() bool {
	return s == StatusSunset || s == StatusRejected
}

// FalsifierTrigger is what happens when a falsifier condition is met.
type FalsifierTrigger string

const (
	TriggerReview FalsifierTrigger = "review"
	TriggerSunset FalsifierTrigger = "sunset"
)

// Falsifier is a quantitative rule that, if met, casts doubt on its
// owning hypothesis. It is a pure value object.
type Falsifier struct {
	Metric    string           `yaml:"metric" json:"metric" validate:"required"`
	Operator  string           `yaml:"operator" json:"operator" validate:"required,oneof=< <= > >= == !="`
	Threshold float64          `yaml:"threshold" json:"threshold"`
	Window    string           `yaml:"window" json:"window" default:"30d"`
	Trigger   FalsifierTrigger `yaml:"trigger" json:"trigger" default:"review" validate:"oneof=review sunset"`
	// Interval overrides the monitor's default check cadence for this rule.
	Interval time.Duration `yaml:"interval" json:"interval,omitempty"`
}

// Compare applies the falsifier's operator to an observed metric value.
func (f Falsifier) Compare(value float64) (bool, error) {
	switch f.Operator {
	case "<":
		return value < f.Threshold, nil
	case "<=":
		return value <= f.Threshold, nil
	case ">":
		return value > f.Threshold, nil
	case ">=":
		return value >= f.Threshold, nil
	case "==":
		return value == f.Threshold, nil
	case "!=":
		return value != f.Threshold, nil
	default:
		return false, fmt.Errorf("unknown operator %q", f.Operator)
	}
}

// Scope restricts a hypothesis to symbols and/or sectors. Empty means all.
type Scope struct {
	Symbols []string `yaml:"symbols" json:"symbols,omitempty"`
	Sectors []string `yaml:"sectors" json:"sectors,omitempty"`
}

// Covers reports whether a symbol (with its sector) falls inside the scope.
func (s Scope) Covers(symbol, sector string) bool {
	if len(s.Symbols) == 0 && len(s.Sectors) == 0 {
		return true
	}
	for _, sym := range s.Symbols {
		if sym == symbol {
			return true
		}
	}
	for _, sec := range s.Sectors {
		if sec != "" && sec == sector {
			return true
		}
	}
	return false
}

// Hypothesis is a human-authored market belief. The engine never parses
// Statement or Evidence; they are opaque text carried for the humans.
type Hypothesis struct {
	ID            string           `yaml:"id" json:"id" validate:"required"`
	Title         string           `yaml:"title" json:"title" validate:"required"`
	Statement     string           `yaml:"statement" json:"statement"`
	Scope         Scope            `yaml:"scope" json:"scope"`
	Status        HypothesisStatus `yaml:"status" json:"status" default:"DRAFT" validate:"oneof=DRAFT ACTIVE SUNSET REJECTED"`
	ReviewCadence string           `yaml:"review_cadence" json:"review_cadence" default:"monthly"`
	CreatedAt     time.Time        `yaml:"created_at" json:"created_at"`
	Evidence      string           `yaml:"evidence" json:"evidence,omitempty"`
	Falsifiers    []Falsifier      `yaml:"falsifiers" json:"falsifiers"`
	ConstraintIDs []string         `yaml:"constraint_ids" json:"constraint_ids,omitempty"`
}

// CanTransition reports whether moving to next is a legal lifecycle step.
func (h *Hypothesis) CanTransition(next HypothesisStatus) bool {
	if h.Status.Terminal() {
		return false
	}
	switch next {
	case StatusActive:
		return h.Status == StatusDraft
	case StatusSunset, StatusRejected:
		return true
	default:
		return false
	}
}

// StopMode controls how exits behave while a constraint is active.
type StopMode string

const (
	StopModeDefault StopMode = ""
	StopModeWide    StopMode = "wide"
	StopModeTight   StopMode = "tight"
	StopModeTime    StopMode = "time"
)

// Actions is the closed set of effects a constraint may apply. Anything
// outside these fields fails validation at load time; the allowlist is
// enforced again by the standalone isolation gate check.
type Actions struct {
	EnableStrategy       string   `yaml:"enable_strategy" json:"enable_strategy,omitempty"`
	DisableStrategy      string   `yaml:"disable_strategy" json:"disable_strategy,omitempty"`
	PoolBias             string   `yaml:"pool_bias" json:"pool_bias,omitempty" validate:"omitempty,oneof=include exclude prioritize"`
	VetoDowngrade        bool     `yaml:"veto_downgrade" json:"veto_downgrade,omitempty"`
	RiskBudgetMultiplier float64  `yaml:"risk_budget_multiplier" json:"risk_budget_multiplier,omitempty" validate:"omitempty,gt=0"`
	HoldingExtensionDays int      `yaml:"holding_extension_days" json:"holding_extension_days,omitempty" validate:"omitempty,gte=0"`
	PositionCapMultiplier float64 `yaml:"position_cap_multiplier" json:"position_cap_multiplier,omitempty" validate:"omitempty,gt=0"`
	StopMode             StopMode `yaml:"stop_mode" json:"stop_mode,omitempty" validate:"omitempty,oneof=wide tight time"`
}

// ActionFieldAllowlist is the closed set of YAML keys an Actions block may
// carry in configuration. The loader and the isolation gate both check
// raw documents against this set.
var ActionFieldAllowlist = map[string]bool{
	"enable_strategy":         true,
	"disable_strategy":        true,
	"pool_bias":               true,
	"veto_downgrade":          true,
	"risk_budget_multiplier":  true,
	"holding_extension_days":  true,
	"position_cap_multiplier": true,
	"stop_mode":               true,
}

// Guardrails are hard ceilings. They dominate any Actions value from any
// constraint regardless of priority.
type Guardrails struct {
	MaxPositionPct      float64 `yaml:"max_position_pct" json:"max_position_pct,omitempty" validate:"omitempty,gt=0,lte=1"`
	MaxGrossExposureDelta float64 `yaml:"max_gross_exposure_delta" json:"max_gross_exposure_delta,omitempty" validate:"omitempty,gt=0"`
	MaxDrawdownAddOn    float64 `yaml:"max_drawdown_addon" json:"max_drawdown_addon,omitempty" validate:"omitempty,gt=0"`
}

// Empty reports whether no ceiling is set.
func (g Guardrails) Empty() bool {
	return g.MaxPositionPct == 0 && g.MaxGrossExposureDelta == 0 && g.MaxDrawdownAddOn == 0
}

// Applicability restricts a constraint to symbols and/or strategies.
// Empty means unrestricted.
type Applicability struct {
	Symbols    []string `yaml:"symbols" json:"symbols,omitempty"`
	Strategies []string `yaml:"strategies" json:"strategies,omitempty"`
}

// CoversSymbol reports whether the constraint applies to a symbol.
func (a Applicability) CoversSymbol(symbol string) bool {
	if len(a.Symbols) == 0 {
		return true
	}
	for _, s := range a.Symbols {
		if s == symbol {
			return true
		}
	}
	return false
}

// CoversStrategy reports whether the constraint applies to a strategy.
func (a Applicability) CoversStrategy(strategy string) bool {
	if len(a.Strategies) == 0 {
		return true
	}
	for _, s := range a.Strategies {
		if s == strategy {
			return true
		}
	}
	return false
}

// ActivationRule gates a constraint on its backing hypotheses.
type ActivationRule struct {
	RequiresActive     []string `yaml:"requires_active" json:"requires_active" validate:"required,min=1"`
	DisabledIfFalsified bool    `yaml:"disabled_if_falsified" json:"disabled_if_falsified"`
}

// Constraint translates hypotheses into risk and timing effects. It never
// carries signal content; the resolver folds Actions into scalars before
// anything crosses the strategy boundary.
type Constraint struct {
	ID            string         `yaml:"id" json:"id" validate:"required"`
	Title         string         `yaml:"title" json:"title" validate:"required"`
	Applicability Applicability  `yaml:"applicability" json:"applicability"`
	Activation    ActivationRule `yaml:"activation" json:"activation" validate:"required"`
	Actions       Actions        `yaml:"actions" json:"actions"`
	Guardrails    Guardrails     `yaml:"guardrails" json:"guardrails"`
	// Priority orders conflict resolution; lower number wins.
	Priority int `yaml:"priority" json:"priority" default:"100" validate:"gte=0"`
}

// ConstraintEffect is one constraint's contribution to a resolution.
type ConstraintEffect struct {
	ConstraintID string     `json:"constraint_id"`
	Priority     int        `json:"priority"`
	Actions      Actions    `json:"actions"`
	Guardrails   Guardrails `json:"guardrails"`
}

// ResolvedConstraints is the per-symbol aggregate of all active applicable
// constraints for one resolution epoch. Derived data only, never authored.
type ResolvedConstraints struct {
	Symbol               string             `json:"symbol"`
	Contributing         []ConstraintEffect `json:"contributing"`
	RiskBudgetMultiplier float64            `json:"risk_budget_multiplier"`
	PositionCapMultiplier float64           `json:"position_cap_multiplier"`
	VetoDowngrade        bool               `json:"veto_downgrade"`
	StopMode             StopMode           `json:"stop_mode"`
	HoldingExtensionDays int                `json:"holding_extension_days"`
	DisabledStrategies   []string           `json:"disabled_strategies,omitempty"`
	Guardrails           Guardrails         `json:"guardrails"`
	Version              string             `json:"version"`
	ResolvedAt           time.Time          `json:"resolved_at"`
}

// SymbolDirectives is the scalar-only projection of ResolvedConstraints
// handed across the strategy boundary. No hypothesis or constraint content
// crosses; only pre-resolved numbers and flags.
type SymbolDirectives struct {
	Symbol               string   `json:"symbol"`
	RiskBudgetMultiplier float64  `json:"risk_budget_multiplier"`
	PositionCapMultiplier float64 `json:"position_cap_multiplier"`
	VetoDowngrade        bool     `json:"veto_downgrade"`
	StopMode             StopMode `json:"stop_mode"`
	HoldingExtensionDays int      `json:"holding_extension_days"`
	MaxPositionPct       float64  `json:"max_position_pct,omitempty"`
	MaxGrossExposureDelta float64 `json:"max_gross_exposure_delta,omitempty"`
	MaxDrawdownAddOn     float64  `json:"max_drawdown_addon,omitempty"`
}

// Directives strips a resolution down to what the strategy may see.
func (r *ResolvedConstraints) Directives() SymbolDirectives {
	return SymbolDirectives{
		Symbol:               r.Symbol,
		RiskBudgetMultiplier: r.RiskBudgetMultiplier,
		PositionCapMultiplier: r.PositionCapMultiplier,
		VetoDowngrade:        r.VetoDowngrade,
		StopMode:             r.StopMode,
		HoldingExtensionDays: r.HoldingExtensionDays,
		MaxPositionPct:       r.Guardrails.MaxPositionPct,
		MaxGrossExposureDelta: r.Guardrails.MaxGrossExposureDelta,
		MaxDrawdownAddOn:     r.Guardrails.MaxDrawdownAddOn,
	}
}

// AlertSeverity levels.
type AlertSeverity string

const (
	SeverityInfo     AlertSeverity = "info"
	SeverityWarning  AlertSeverity = "warning"
	SeverityCritical AlertSeverity = "critical"
)

// Alert is a structured notification handed to an external delivery
// mechanism. Delivery itself is outside this engine.
type Alert struct {
	ID                string        `json:"id"`
	Timestamp         time.Time     `json:"timestamp"`
	Severity          AlertSeverity `json:"severity"`
	Title             string        `json:"title"`
	Message           string        `json:"message"`
	HypothesisID      string        `json:"hypothesis_id,omitempty"`
	ConstraintID      string        `json:"constraint_id,omitempty"`
	RecommendedAction string        `json:"recommended_action,omitempty"`
	Channels          []string      `json:"channels,omitempty"`
}
