// Package loader parses the declarative governance documents into typed,
// validated objects. Any violation fails the whole load with a
// ValidationError naming the file and field; nothing is partially applied.
package loader

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"StratGov/internal/domain/models"
	"StratGov/pkg/config"
	"StratGov/pkg/logger"
)

// Definitions is the full validated set of governance documents.
type Definitions struct {
	Hypotheses  []*models.Hypothesis
	Constraints []*models.Constraint
	Universe    []models.UniverseEntry
	Filters     models.FilterConfig
	Factors     []*models.Factor
	Regime      models.RegimeThresholds
}

// Loader validates definition documents against the schemas and the
// gate-level invariants.
type Loader struct {
	validate *validator.Validate
	log      *logger.Logger
}

// New creates a definitions loader.
func New(log *logger.Logger) *Loader {
	return &Loader{
		validate: validator.New(),
		log:      log,
	}
}

// LoadAll reads every document named in the runtime config. Regime and
// factor documents are optional; the core three are not.
func (l *Loader) LoadAll(cfg *config.Config) (*Definitions, error) {
	defs := &Definitions{}

	var err error
	if defs.Hypotheses, err = l.LoadHypotheses(cfg.Definitions.Hypotheses); err != nil {
		return nil, err
	}
	if defs.Constraints, err = l.LoadConstraints(cfg.Definitions.Constraints); err != nil {
		return nil, err
	}
	if defs.Universe, err = l.LoadUniverse(cfg.Definitions.Universe); err != nil {
		return nil, err
	}
	if cfg.Definitions.Filters != "" {
		if defs.Filters, err = l.LoadFilters(cfg.Definitions.Filters); err != nil {
			return nil, err
		}
	}
	if cfg.Definitions.Factors != "" {
		if defs.Factors, err = l.LoadFactors(cfg.Definitions.Factors); err != nil {
			return nil, err
		}
	}
	if cfg.Definitions.Regime != "" {
		if defs.Regime, err = l.LoadRegimeThresholds(cfg.Definitions.Regime); err != nil {
			return nil, err
		}
	}

	// Cross-document check: constraints may only link hypotheses that exist.
	known := make(map[string]bool, len(defs.Hypotheses))
	for _, h := range defs.Hypotheses {
		known[h.ID] = true
	}
	for _, c := range defs.Constraints {
		for _, id := range c.Activation.RequiresActive {
			if !known[id] {
				// Fail closed at resolution time, but warn loudly now.
				l.log.Warn("constraint references unknown hypothesis",
					logger.String("constraint_id", c.ID),
					logger.String("hypothesis_id", id),
				)
			}
		}
	}

	l.log.Info("definitions loaded",
		logger.Int("hypotheses", len(defs.Hypotheses)),
		logger.Int("constraints", len(defs.Constraints)),
		logger.Int("universe", len(defs.Universe)),
		logger.Int("factors", len(defs.Factors)),
	)
	return defs, nil
}

type hypothesesDoc struct {
	Hypotheses []*models.Hypothesis `yaml:"hypotheses"`
}

// LoadHypotheses parses and validates a hypotheses document. Every loaded
// hypothesis starts as DRAFT (activation is a human action, never a
// document property) and must carry at least one falsifier, since every
// draft is reachable for ACTIVE.
func (l *Loader) LoadHypotheses(path string) ([]*models.Hypothesis, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read hypotheses: %w", err)
	}
	return l.ParseHypotheses(path, b)
}

// ParseHypotheses parses hypotheses from raw YAML.
func (l *Loader) ParseHypotheses(file string, b []byte) ([]*models.Hypothesis, error) {
	var doc hypothesesDoc
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, &models.ValidationError{File: file, Field: "hypotheses", Message: err.Error()}
	}

	seen := make(map[string]bool)
	for _, h := range doc.Hypotheses {
		if err := defaults.Set(h); err != nil {
			return nil, &models.ValidationError{File: file, Field: "hypotheses", Message: err.Error()}
		}
		if h.Status != models.StatusDraft {
			return nil, &models.ValidationError{
				File:    file,
				Field:   fmt.Sprintf("hypotheses[%s].status", h.ID),
				Message: "hypotheses load as DRAFT; status transitions are lifecycle actions, not document fields",
			}
		}
		if len(h.Falsifiers) == 0 {
			return nil, &models.ValidationError{
				File:    file,
				Field:   fmt.Sprintf("hypotheses[%s].falsifiers", h.ID),
				Message: "at least one falsifier is required for any hypothesis reachable for ACTIVE",
			}
		}
		if seen[h.ID] {
			return nil, &models.ValidationError{
				File:    file,
				Field:   fmt.Sprintf("hypotheses[%s].id", h.ID),
				Message: "duplicate hypothesis identifier",
			}
		}
		seen[h.ID] = true
		if h.CreatedAt.IsZero() {
			h.CreatedAt = time.Now().UTC()
		}
		if err := l.validateStruct(file, "hypotheses", h.ID, h); err != nil {
			return nil, err
		}
	}
	return doc.Hypotheses, nil
}

type constraintsDoc struct {
	Constraints []*models.Constraint `yaml:"constraints"`
}

// LoadConstraints parses and validates a constraints document, including
// the closed-allowlist check on every Actions block.
func (l *Loader) LoadConstraints(path string) ([]*models.Constraint, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read constraints: %w", err)
	}
	return l.ParseConstraints(path, b)
}

// ParseConstraints parses constraints from raw YAML.
func (l *Loader) ParseConstraints(file string, b []byte) ([]*models.Constraint, error) {
	// The allowlist check runs on the raw document, before typed decoding
	// can silently drop unknown keys.
	if err := CheckActionsAllowlist(file, b); err != nil {
		return nil, err
	}

	var doc constraintsDoc
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, &models.ValidationError{File: file, Field: "constraints", Message: err.Error()}
	}

	seen := make(map[string]bool)
	for _, c := range doc.Constraints {
		if err := defaults.Set(c); err != nil {
			return nil, &models.ValidationError{File: file, Field: "constraints", Message: err.Error()}
		}
		if seen[c.ID] {
			return nil, &models.ValidationError{
				File:    file,
				Field:   fmt.Sprintf("constraints[%s].id", c.ID),
				Message: "duplicate constraint identifier",
			}
		}
		seen[c.ID] = true
		if err := l.validateStruct(file, "constraints", c.ID, c); err != nil {
			return nil, err
		}
	}
	return doc.Constraints, nil
}

// CheckActionsAllowlist walks the raw constraints document and rejects
// any actions mapping that carries a key outside the closed field set.
// The isolation gate invokes the same check standalone in CI.
func CheckActionsAllowlist(file string, b []byte) error {
	var root yaml.Node
	if err := yaml.Unmarshal(b, &root); err != nil {
		return &models.ValidationError{File: file, Field: "constraints", Message: err.Error()}
	}
	if len(root.Content) == 0 {
		return nil
	}

	doc := root.Content[0]
	seq := mappingValue(doc, "constraints")
	if seq == nil || seq.Kind != yaml.SequenceNode {
		return nil
	}

	for _, item := range seq.Content {
		if item.Kind != yaml.MappingNode {
			continue
		}
		id := scalarValue(item, "id")
		actions := mappingValue(item, "actions")
		if actions == nil || actions.Kind != yaml.MappingNode {
			continue
		}
		for i := 0; i < len(actions.Content)-1; i += 2 {
			key := actions.Content[i]
			if !models.ActionFieldAllowlist[key.Value] {
				return &models.ValidationError{
					File:    file,
					Field:   fmt.Sprintf("constraints[%s].actions.%s", id, key.Value),
					Message: fmt.Sprintf("field %q is not in the actions allowlist (line %d)", key.Value, key.Line),
				}
			}
		}
	}
	return nil
}

func mappingValue(m *yaml.Node, key string) *yaml.Node {
	if m.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i < len(m.Content)-1; i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i+1]
		}
	}
	return nil
}

func scalarValue(m *yaml.Node, key string) string {
	if v := mappingValue(m, key); v != nil {
		return v.Value
	}
	return ""
}

type universeDoc struct {
	Universe []models.UniverseEntry `yaml:"universe"`
}

// LoadUniverse parses and validates the base universe document.
func (l *Loader) LoadUniverse(path string) ([]models.UniverseEntry, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read universe: %w", err)
	}
	return l.ParseUniverse(path, b)
}

// ParseUniverse parses universe entries from raw YAML.
func (l *Loader) ParseUniverse(file string, b []byte) ([]models.UniverseEntry, error) {
	var doc universeDoc
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, &models.ValidationError{File: file, Field: "universe", Message: err.Error()}
	}
	if len(doc.Universe) == 0 {
		return nil, &models.ValidationError{File: file, Field: "universe", Message: "base universe cannot be empty"}
	}
	for i := range doc.Universe {
		e := &doc.Universe[i]
		if err := l.validateStruct(file, "universe", e.Symbol, e); err != nil {
			return nil, err
		}
	}
	return doc.Universe, nil
}

type filtersDoc struct {
	Filters models.FilterConfig `yaml:"filters"`
}

// LoadFilters parses the structural filter configuration.
func (l *Loader) LoadFilters(path string) (models.FilterConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return models.FilterConfig{}, fmt.Errorf("read filters: %w", err)
	}
	var doc filtersDoc
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return models.FilterConfig{}, &models.ValidationError{File: path, Field: "filters", Message: err.Error()}
	}
	if doc.Filters.MaxPrice > 0 && doc.Filters.MaxPrice < doc.Filters.MinPrice {
		return models.FilterConfig{}, &models.ValidationError{
			File: path, Field: "filters.max_price",
			Message: "max_price must not be below min_price",
		}
	}
	if err := l.validateStruct(path, "filters", "", &doc.Filters); err != nil {
		return models.FilterConfig{}, err
	}
	return doc.Filters, nil
}

type factorsDoc struct {
	Factors []*models.Factor `yaml:"factors"`
}

// LoadFactors parses factor registrations. A factor without a failure
// rule is rejected; that gate is the whole point of registering factors
// here.
func (l *Loader) LoadFactors(path string) ([]*models.Factor, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read factors: %w", err)
	}
	return l.ParseFactors(path, b)
}

// ParseFactors parses factors from raw YAML.
func (l *Loader) ParseFactors(file string, b []byte) ([]*models.Factor, error) {
	var doc factorsDoc
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, &models.ValidationError{File: file, Field: "factors", Message: err.Error()}
	}
	for _, f := range doc.Factors {
		if err := defaults.Set(f); err != nil {
			return nil, &models.ValidationError{File: file, Field: "factors", Message: err.Error()}
		}
		if f.FailureRule.Metric == "" {
			return nil, &models.ValidationError{
				File:    file,
				Field:   fmt.Sprintf("factors[%s].failure_rule", f.Name),
				Message: "a failure rule is mandatory for every registered factor",
			}
		}
		if err := l.validateStruct(file, "factors", f.Name, f); err != nil {
			return nil, err
		}
	}
	return doc.Factors, nil
}

type regimeDoc struct {
	RegimeThresholds models.RegimeThresholds `yaml:"regime_thresholds"`
}

// LoadRegimeThresholds parses the regime threshold set.
func (l *Loader) LoadRegimeThresholds(path string) (models.RegimeThresholds, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return models.RegimeThresholds{}, fmt.Errorf("read regime thresholds: %w", err)
	}
	var doc regimeDoc
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return models.RegimeThresholds{}, &models.ValidationError{File: path, Field: "regime_thresholds", Message: err.Error()}
	}
	t := doc.RegimeThresholds
	if t.VolatilityStress < t.VolatilityTransition || t.DrawdownStress < t.DrawdownTransition || t.DispersionStress < t.DispersionTransition {
		return models.RegimeThresholds{}, &models.ValidationError{
			File: path, Field: "regime_thresholds",
			Message: "stress thresholds must not be below transition thresholds",
		}
	}
	if err := l.validateStruct(path, "regime_thresholds", "", &t); err != nil {
		return models.RegimeThresholds{}, err
	}
	return t, nil
}

// validateStruct runs validator tags and converts the first failure into
// a ValidationError with file and field context.
func (l *Loader) validateStruct(file, section, id string, v interface{}) error {
	err := l.validate.Struct(v)
	if err == nil {
		return nil
	}
	if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
		fe := verrs[0]
		field := fieldPath(section, id, fe)
		return &models.ValidationError{
			File:    file,
			Field:   field,
			Message: fmt.Sprintf("failed %q validation (value %v)", fe.Tag(), fe.Value()),
		}
	}
	return &models.ValidationError{File: file, Field: section, Message: err.Error()}
}

func fieldPath(section, id string, fe validator.FieldError) string {
	// Namespace looks like "Constraint.Actions.PoolBias"; drop the type name.
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		ns = ns[i+1:]
	}
	if id != "" {
		return fmt.Sprintf("%s[%s].%s", section, id, ns)
	}
	return fmt.Sprintf("%s.%s", section, ns)
}
