package models

import "time"

// RegimeState classifies the market environment. Regime never feeds into
// alpha; the strategy consumes it only for position pacing.
type RegimeState string

const (
	RegimeNormal     RegimeState = "NORMAL"
	RegimeTransition RegimeState = "TRANSITION"
	RegimeStress     RegimeState = "STRESS"
)

// RegimeThresholds is the boundary set the detector classified against.
type RegimeThresholds struct {
	VolatilityTransition float64 `yaml:"volatility_transition" json:"volatility_transition" validate:"gt=0"`
	VolatilityStress     float64 `yaml:"volatility_stress" json:"volatility_stress" validate:"gt=0"`
	DrawdownTransition   float64 `yaml:"drawdown_transition" json:"drawdown_transition" validate:"gt=0"`
	DrawdownStress       float64 `yaml:"drawdown_stress" json:"drawdown_stress" validate:"gt=0"`
	DispersionTransition float64 `yaml:"dispersion_transition" json:"dispersion_transition" validate:"gt=0"`
	DispersionStress     float64 `yaml:"dispersion_stress" json:"dispersion_stress" validate:"gt=0"`
}

// RegimeObservation holds the raw inputs a classification was made from.
type RegimeObservation struct {
	Volatility float64 `json:"volatility"`
	Drawdown   float64 `json:"drawdown"`
	Dispersion float64 `json:"dispersion"`
}

// Regime is one classified market regime with its provenance.
type Regime struct {
	State      RegimeState       `json:"state"`
	Observed   RegimeObservation `json:"observed"`
	DetectedAt time.Time         `json:"detected_at"`
	Thresholds RegimeThresholds  `json:"thresholds"`
}
