package isogate

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSource(t *testing.T, dir, name, src string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	return path
}

func TestScanDetectsForbiddenImport(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "signal.go", `package alpha

import (
	"fmt"

	"StratGov/internal/registry"
)

func peek(s *registry.Store) {
	fmt.Println(s.Snapshot())
}
`)

	s := NewScanner("StratGov")
	violations, err := s.ScanDir(dir)
	require.NoError(t, err)
	require.Len(t, violations, 1)
	assert.Equal(t, "forbidden_import", violations[0].Kind)
	assert.Equal(t, 6, violations[0].Line)
	assert.Contains(t, violations[0].Message, "StratGov/internal/registry")
}

func TestScanDetectsContentReference(t *testing.T) {
	dir := t.TempDir()
	path := writeSource(t, dir, "leak.go", `package alpha

import "StratGov/internal/domain/models"

func read(h *models.Hypothesis) string {
	return h.Statement
}
`)

	s := NewScanner("StratGov")
	violations, err := s.ScanFile(path)
	require.NoError(t, err)
	require.Len(t, violations, 2, "the import and the selector both count")
	assert.Equal(t, "forbidden_import", violations[0].Kind)
	assert.Equal(t, "forbidden_reference", violations[1].Kind)
	assert.Contains(t, violations[1].Message, "models.Hypothesis")
	assert.Equal(t, 5, violations[1].Line)
}

func TestScanDetectsAliasedImport(t *testing.T) {
	dir := t.TempDir()
	path := writeSource(t, dir, "alias.go", `package alpha

import reg "StratGov/internal/usecase"

var _ = reg.Resolver{}
`)

	s := NewScanner("StratGov")
	violations, err := s.ScanFile(path)
	require.NoError(t, err)
	require.Len(t, violations, 1)
	assert.Equal(t, "forbidden_import", violations[0].Kind)
}

func TestScanIgnoresLocalTypes(t *testing.T) {
	dir := t.TempDir()
	path := writeSource(t, dir, "own.go", `package alpha

type model struct{ Constraint string }

func use(m model) string { return m.Constraint }
`)

	s := NewScanner("StratGov")
	violations, err := s.ScanFile(path)
	require.NoError(t, err)
	assert.Empty(t, violations, "a local field named Constraint is the strategy's own business")
}

func TestScanCleanTreeAllowsDirectives(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "strategy.go", `package alpha

import "context"

type Directives struct {
	RiskBudgetMultiplier float64
	VetoDowngrade        bool
}

type Client interface {
	Resolved(ctx context.Context, symbol string) (Directives, error)
}

func size(d Directives, base float64) float64 {
	return base * d.RiskBudgetMultiplier
}
`)
	writeSource(t, dir, "testdata/fixture.go", `package fixture

import "StratGov/internal/registry"

var _ = registry.Store{}
`)
	writeSource(t, dir, "strategy_test.go", `package alpha

import "StratGov/internal/registry"

var _ = registry.Store{}
`)

	s := NewScanner("StratGov")
	violations, err := s.ScanDir(dir)
	require.NoError(t, err)
	assert.Empty(t, violations, "testdata and _test.go files are outside the boundary")
}

func TestScanSortsViolations(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "b.go", `package alpha

import "StratGov/internal/registry"

var _ = registry.Store{}
`)
	writeSource(t, dir, "a.go", `package alpha

import "StratGov/internal/usecase"

var _ = usecase.Resolver{}
`)

	s := NewScanner("StratGov")
	violations, err := s.ScanDir(dir)
	require.NoError(t, err)
	require.Len(t, violations, 2)
	assert.Equal(t, filepath.Join(dir, "a.go"), violations[0].File)
	assert.Equal(t, filepath.Join(dir, "b.go"), violations[1].File)
}
