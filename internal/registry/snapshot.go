package registry

import (
	"sort"
	"time"

	"StratGov/internal/domain/models"
)

// Snapshot is one immutable, versioned view of every governance entity.
// Readers hold a snapshot for the duration of one resolution; writers
// build a new snapshot and publish it atomically. Nothing in a published
// snapshot is ever mutated in place.
type Snapshot struct {
	Generation  uint64
	PublishedAt time.Time

	hypotheses  map[string]*models.Hypothesis
	constraints map[string]*models.Constraint
	factors     map[string]*models.Factor
}

func newSnapshot(generation uint64, now time.Time) *Snapshot {
	return &Snapshot{
		Generation:  generation,
		PublishedAt: now,
		hypotheses:  make(map[string]*models.Hypothesis),
		constraints: make(map[string]*models.Constraint),
		factors:     make(map[string]*models.Factor),
	}
}

// clone copies the maps (shallow: entities are treated as immutable once
// published; mutations replace the entity value).
func (s *Snapshot) clone(generation uint64, now time.Time) *Snapshot {
	next := newSnapshot(generation, now)
	for id, h := range s.hypotheses {
		next.hypotheses[id] = h
	}
	for id, c := range s.constraints {
		next.constraints[id] = c
	}
	for name, f := range s.factors {
		next.factors[name] = f
	}
	return next
}

// Hypothesis looks up a hypothesis by id.
func (s *Snapshot) Hypothesis(id string) (*models.Hypothesis, bool) {
	h, ok := s.hypotheses[id]
	return h, ok
}

// Constraint looks up a constraint by id.
func (s *Snapshot) Constraint(id string) (*models.Constraint, bool) {
	c, ok := s.constraints[id]
	return c, ok
}

// Factor looks up a factor by name.
func (s *Snapshot) Factor(name string) (*models.Factor, bool) {
	f, ok := s.factors[name]
	return f, ok
}

// Hypotheses returns all hypotheses, optionally filtered by status,
// ordered by id for deterministic iteration.
func (s *Snapshot) Hypotheses(status models.HypothesisStatus) []*models.Hypothesis {
	out := make([]*models.Hypothesis, 0, len(s.hypotheses))
	for _, h := range s.hypotheses {
		if status != "" && h.Status != status {
			continue
		}
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Constraints returns all constraints ordered by id.
func (s *Snapshot) Constraints() []*models.Constraint {
	out := make([]*models.Constraint, 0, len(s.constraints))
	for _, c := range s.constraints {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ConstraintsForSymbol returns constraints whose applicability covers the
// symbol (or is unrestricted), ordered by id.
func (s *Snapshot) ConstraintsForSymbol(symbol string) []*models.Constraint {
	out := make([]*models.Constraint, 0)
	for _, c := range s.constraints {
		if c.Applicability.CoversSymbol(symbol) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ConstraintsForStrategy returns constraints applicable to a strategy.
func (s *Snapshot) ConstraintsForStrategy(strategy string) []*models.Constraint {
	out := make([]*models.Constraint, 0)
	for _, c := range s.constraints {
		if c.Applicability.CoversStrategy(strategy) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Factors returns all factors ordered by name.
func (s *Snapshot) Factors() []*models.Factor {
	out := make([]*models.Factor, 0, len(s.factors))
	for _, f := range s.factors {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ConstraintIsActive reports whether every hypothesis in the constraint's
// activation rule is currently ACTIVE in this snapshot. A reference to an
// unknown hypothesis evaluates to false (fail closed); the second return
// carries the missing id for the caller to log.
func (s *Snapshot) ConstraintIsActive(c *models.Constraint) (bool, string) {
	for _, id := range c.Activation.RequiresActive {
		h, ok := s.hypotheses[id]
		if !ok {
			return false, id
		}
		if h.Status != models.StatusActive {
			return false, ""
		}
	}
	return true, ""
}
