package registry

import (
	"testing"

	"github.com/stretchr/testify/require"

	"StratGov/internal/domain/models"
	"StratGov/pkg/logger"
)

func draftHypothesis(id string) *models.Hypothesis {
	return &models.Hypothesis{
		ID:     id,
		Title:  "test hypothesis " + id,
		Status: models.StatusDraft,
		Falsifiers: []models.Falsifier{
			{Metric: "m", Operator: "<", Threshold: 0, Window: "30d", Trigger: models.TriggerReview},
		},
	}
}

func TestRegisterHypothesisIdempotent(t *testing.T) {
	s := NewStore(logger.Nop())
	h := draftHypothesis("H-1")

	require.NoError(t, s.RegisterHypothesis(h))
	gen := s.Snapshot().Generation

	// Same id, same content: no-op, no new snapshot.
	require.NoError(t, s.RegisterHypothesis(h))
	require.Equal(t, gen, s.Snapshot().Generation)

	// Same id, different content: conflict.
	changed := draftHypothesis("H-1")
	changed.Title = "different"
	err := s.RegisterHypothesis(changed)
	require.ErrorIs(t, err, models.ErrConflict)
}

func TestRegisterConstraintConflict(t *testing.T) {
	s := NewStore(logger.Nop())
	c := &models.Constraint{
		ID:         "C-1",
		Title:      "cap risk",
		Activation: models.ActivationRule{RequiresActive: []string{"H-1"}},
		Priority:   50,
	}
	require.NoError(t, s.RegisterConstraint(c))
	require.NoError(t, s.RegisterConstraint(c))

	changed := *c
	changed.Priority = 10
	require.ErrorIs(t, s.RegisterConstraint(&changed), models.ErrConflict)
}

func TestLifecycleTransitions(t *testing.T) {
	s := NewStore(logger.Nop())
	require.NoError(t, s.RegisterHypothesis(draftHypothesis("H-1")))

	h, err := s.Approve("H-1", "pm")
	require.NoError(t, err)
	require.Equal(t, models.StatusActive, h.Status)

	// ACTIVE cannot go back to ACTIVE.
	_, err = s.Approve("H-1", "pm")
	require.Error(t, err)

	h, err = s.Sunset("H-1", "pm")
	require.NoError(t, err)
	require.Equal(t, models.StatusSunset, h.Status)

	// Terminal states admit nothing further.
	_, err = s.Approve("H-1", "pm")
	require.Error(t, err)
	_, err = s.Reject("H-1", "pm")
	require.Error(t, err)

	_, err = s.Approve("H-unknown", "pm")
	require.ErrorIs(t, err, models.ErrNotFound)
}

func TestSnapshotIsolation(t *testing.T) {
	s := NewStore(logger.Nop())
	require.NoError(t, s.RegisterHypothesis(draftHypothesis("H-1")))

	before := s.Snapshot()
	_, err := s.Approve("H-1", "pm")
	require.NoError(t, err)

	// The old snapshot still shows DRAFT; the new one shows ACTIVE.
	h, ok := before.Hypothesis("H-1")
	require.True(t, ok)
	require.Equal(t, models.StatusDraft, h.Status)

	h, ok = s.Snapshot().Hypothesis("H-1")
	require.True(t, ok)
	require.Equal(t, models.StatusActive, h.Status)
}

func TestLoadPreservesLifecycleStatus(t *testing.T) {
	s := NewStore(logger.Nop())
	require.NoError(t, s.RegisterHypothesis(draftHypothesis("H-1")))
	_, err := s.Approve("H-1", "pm")
	require.NoError(t, err)

	// Reload with revised content; document status is DRAFT but the
	// lifecycle owns status.
	revised := draftHypothesis("H-1")
	revised.Title = "revised title"
	require.NoError(t, s.Load([]*models.Hypothesis{revised}, nil, nil))

	h, ok := s.Snapshot().Hypothesis("H-1")
	require.True(t, ok)
	require.Equal(t, models.StatusActive, h.Status)
	require.Equal(t, "revised title", h.Title)
}

func TestLoadRejectsTerminalRevision(t *testing.T) {
	s := NewStore(logger.Nop())
	require.NoError(t, s.RegisterHypothesis(draftHypothesis("H-1")))
	_, err := s.Sunset("H-1", "pm")
	require.NoError(t, err)

	revised := draftHypothesis("H-1")
	revised.Title = "resurrection attempt"
	require.Error(t, s.Load([]*models.Hypothesis{revised}, nil, nil))
}

func TestOnInvalidateFiresPerPublish(t *testing.T) {
	s := NewStore(logger.Nop())
	var generations []uint64
	s.OnInvalidate(func(gen uint64) { generations = append(generations, gen) })

	require.NoError(t, s.RegisterHypothesis(draftHypothesis("H-1")))
	_, err := s.Approve("H-1", "pm")
	require.NoError(t, err)

	require.Equal(t, []uint64{1, 2}, generations)
}

func TestConstraintIsActive(t *testing.T) {
	s := NewStore(logger.Nop())
	require.NoError(t, s.RegisterHypothesis(draftHypothesis("H-1")))
	require.NoError(t, s.RegisterHypothesis(draftHypothesis("H-2")))

	c := &models.Constraint{
		ID:         "C-1",
		Title:      "needs both",
		Activation: models.ActivationRule{RequiresActive: []string{"H-1", "H-2"}},
	}
	require.NoError(t, s.RegisterConstraint(c))

	active, missing := s.Snapshot().ConstraintIsActive(c)
	require.False(t, active)
	require.Empty(t, missing)

	_, err := s.Approve("H-1", "pm")
	require.NoError(t, err)
	active, _ = s.Snapshot().ConstraintIsActive(c)
	require.False(t, active)

	_, err = s.Approve("H-2", "pm")
	require.NoError(t, err)
	active, _ = s.Snapshot().ConstraintIsActive(c)
	require.True(t, active)

	// Unknown reference fails closed and names the missing id.
	dangling := &models.Constraint{
		ID:         "C-2",
		Title:      "dangling",
		Activation: models.ActivationRule{RequiresActive: []string{"H-missing"}},
	}
	active, missing = s.Snapshot().ConstraintIsActive(dangling)
	require.False(t, active)
	require.Equal(t, "H-missing", missing)
}
