package models

// FailureAction is what happens when a factor's failure rule fires.
type FailureAction string

const (
	FailureDisable FailureAction = "disable"
	FailureReview  FailureAction = "review"
)

// FailureRule is the mandatory quality gate on a registered factor.
// A factor definition without one is rejected at load time.
type FailureRule struct {
	Metric    string        `yaml:"metric" json:"metric" validate:"required"`
	Operator  string        `yaml:"operator" json:"operator" validate:"required,oneof=< <= > >= == !="`
	Threshold float64       `yaml:"threshold" json:"threshold"`
	Window    string        `yaml:"window" json:"window" default:"60d"`
	Action    FailureAction `yaml:"action" json:"action" default:"review" validate:"oneof=disable review"`
}

// ICConfig describes how the factor's information coefficient is
// evaluated. The evaluation itself happens in the strategy engine; the
// registry only carries the configuration.
type ICConfig struct {
	Horizon   string `yaml:"horizon" json:"horizon" default:"20d"`
	Method    string `yaml:"method" json:"method" default:"spearman" validate:"oneof=spearman pearson"`
	MinSample int    `yaml:"min_sample" json:"min_sample" default:"60" validate:"gte=0"`
}

// Factor registers an alpha factor with the governance layer. Factor
// computation is external; this record only enforces the failure-rule
// gate and the enabled flag.
type Factor struct {
	Name        string      `yaml:"name" json:"name" validate:"required"`
	Inputs      []string    `yaml:"inputs" json:"inputs" validate:"required,min=1"`
	Transform   string      `yaml:"transform" json:"transform,omitempty"`
	IC          ICConfig    `yaml:"ic" json:"ic"`
	FailureRule FailureRule `yaml:"failure_rule" json:"failure_rule" validate:"required"`
	Enabled     bool        `yaml:"enabled" json:"enabled" default:"true"`
}
