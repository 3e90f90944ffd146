package registry

import (
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"StratGov/internal/domain/models"
	"StratGov/pkg/logger"
)

// InvalidateFunc is notified after every snapshot publish. The resolver
// registers its cache invalidation here; a single mutation invalidates
// the whole cache rather than repairing it piecemeal.
type InvalidateFunc func(generation uint64)

// Store owns the governance entity sets behind immutable snapshots. All
// reads go through Snapshot(); writes serialize on a mutex, build a new
// snapshot, and publish it with an atomic pointer swap so concurrent
// readers see either the old or the new state, never a partial update.
type Store struct {
	mu        sync.Mutex
	current   atomic.Pointer[Snapshot]
	listeners []InvalidateFunc
	log       *logger.Logger
}

// NewStore creates an empty registry store at generation zero.
func NewStore(log *logger.Logger) *Store {
	s := &Store{log: log}
	s.current.Store(newSnapshot(0, time.Now()))
	return s
}

// Snapshot returns the current immutable view. Hot-path readers call this
// once per resolution and hold the result.
func (s *Store) Snapshot() *Snapshot {
	return s.current.Load()
}

// OnInvalidate registers a callback fired after each publish.
func (s *Store) OnInvalidate(fn InvalidateFunc) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// publish swaps in the new snapshot and fans out invalidation. Caller
// must hold s.mu.
func (s *Store) publish(next *Snapshot) {
	s.current.Store(next)
	for _, fn := range s.listeners {
		fn(next.Generation)
	}
}

func (s *Store) nextSnapshot() *Snapshot {
	cur := s.current.Load()
	return cur.clone(cur.Generation+1, time.Now())
}

// RegisterHypothesis adds a hypothesis. Registering an identical id with
// identical content is a no-op; identical id with different content is a
// conflict.
func (s *Store) RegisterHypothesis(h *models.Hypothesis) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.current.Load()
	if existing, ok := cur.hypotheses[h.ID]; ok {
		if reflect.DeepEqual(existing, h) {
			return nil
		}
		return fmt.Errorf("hypothesis %q: %w", h.ID, models.ErrConflict)
	}

	next := s.nextSnapshot()
	next.hypotheses[h.ID] = h
	s.publish(next)
	return nil
}

// RegisterConstraint adds a constraint with the same idempotency rules.
func (s *Store) RegisterConstraint(c *models.Constraint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.current.Load()
	if existing, ok := cur.constraints[c.ID]; ok {
		if reflect.DeepEqual(existing, c) {
			return nil
		}
		return fmt.Errorf("constraint %q: %w", c.ID, models.ErrConflict)
	}

	next := s.nextSnapshot()
	next.constraints[c.ID] = c
	s.publish(next)
	return nil
}

// RegisterFactor adds a factor with the same idempotency rules.
func (s *Store) RegisterFactor(f *models.Factor) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.current.Load()
	if existing, ok := cur.factors[f.Name]; ok {
		if reflect.DeepEqual(existing, f) {
			return nil
		}
		return fmt.Errorf("factor %q: %w", f.Name, models.ErrConflict)
	}

	next := s.nextSnapshot()
	next.factors[f.Name] = f
	s.publish(next)
	return nil
}

// Load replaces or adds a whole batch of validated definitions in one
// publish, so a config reload is visible to readers as a single step.
func (s *Store) Load(hs []*models.Hypothesis, cs []*models.Constraint, fs []*models.Factor) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.current.Load()
	for _, h := range hs {
		if existing, ok := cur.hypotheses[h.ID]; ok && !reflect.DeepEqual(existing, h) {
			// Reload may revise content, but never resurrect a terminal
			// hypothesis or self-activate a draft.
			if existing.Status.Terminal() {
				return fmt.Errorf("hypothesis %q: cannot reload terminal hypothesis", h.ID)
			}
		}
	}

	next := s.nextSnapshot()
	for _, h := range hs {
		if existing, ok := next.hypotheses[h.ID]; ok {
			// Status is owned by the lifecycle, not the document.
			revised := *h
			revised.Status = existing.Status
			next.hypotheses[h.ID] = &revised
			continue
		}
		next.hypotheses[h.ID] = h
	}
	for _, c := range cs {
		next.constraints[c.ID] = c
	}
	for _, f := range fs {
		next.factors[f.Name] = f
	}
	s.publish(next)
	return nil
}

// Approve is the explicit human action moving a hypothesis DRAFT→ACTIVE.
// The engine never performs this transition on its own.
func (s *Store) Approve(id, actor string) (*models.Hypothesis, error) {
	return s.transition(id, models.StatusActive, actor)
}

// Sunset retires a hypothesis, either by falsifier trigger or by hand.
func (s *Store) Sunset(id, actor string) (*models.Hypothesis, error) {
	return s.transition(id, models.StatusSunset, actor)
}

// Reject marks a hypothesis REJECTED.
func (s *Store) Reject(id, actor string) (*models.Hypothesis, error) {
	return s.transition(id, models.StatusRejected, actor)
}

func (s *Store) transition(id string, next models.HypothesisStatus, actor string) (*models.Hypothesis, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.current.Load()
	h, ok := cur.hypotheses[id]
	if !ok {
		return nil, fmt.Errorf("hypothesis %q: %w", id, models.ErrNotFound)
	}
	if !h.CanTransition(next) {
		return nil, fmt.Errorf("hypothesis %q: illegal transition %s -> %s", id, h.Status, next)
	}

	revised := *h
	revised.Status = next

	snap := s.nextSnapshot()
	snap.hypotheses[id] = &revised
	s.publish(snap)

	s.log.Info("hypothesis status changed",
		logger.String("hypothesis_id", id),
		logger.String("from", string(h.Status)),
		logger.String("to", string(next)),
		logger.String("actor", actor),
	)
	return &revised, nil
}
