package isogate

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"io/fs"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// Violation is one isolation breach found in the alpha source tree.
type Violation struct {
	File    string
	Line    int
	Column  int
	Kind    string
	Message string
}

func (v Violation) Error() string {
	return fmt.Sprintf("%s:%d:%d: %s: %s", v.File, v.Line, v.Column, v.Kind, v.Message)
}

const (
	kindForbiddenImport = "forbidden_import"
	kindForbiddenRef    = "forbidden_reference"
)

// Scanner statically checks that strategy code cannot read hypothesis or
// constraint content. Strategies may depend only on the resolved scalar
// directives; any import of the governance internals from the alpha tree
// is a breach regardless of what the code does with it.
//
// The scanner is pure: it parses sources with go/parser and walks the
// ASTs, touching nothing. Safe to run concurrently with a live engine
// and from CI.
type Scanner struct {
	// ForbiddenImportPrefixes are package paths the alpha tree must not
	// import. Matched by path prefix so subpackages are covered.
	ForbiddenImportPrefixes []string
	// ForbiddenSelectors are identifier names whose mere mention in alpha
	// code indicates governance content leaking across the boundary.
	ForbiddenSelectors []string
}

// NewScanner returns a scanner with the default governance boundary.
func NewScanner(modulePath string) *Scanner {
	return &Scanner{
		ForbiddenImportPrefixes: []string{
			modulePath + "/internal/registry",
			modulePath + "/internal/service/loader",
			modulePath + "/internal/usecase",
			modulePath + "/internal/domain/models",
		},
		ForbiddenSelectors: []string{
			"Hypothesis", "Hypotheses", "Constraint", "Constraints",
			"Falsifier", "Falsifiers", "Evidence", "ActivationRule",
		},
	}
}

// ScanDir walks root recursively and scans every non-test .go file.
// Violations come back sorted by file, then line.
func (s *Scanner) ScanDir(root string) ([]Violation, error) {
	var violations []Violation
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			name := d.Name()
			if name == "vendor" || name == "testdata" || strings.HasPrefix(name, ".") {
				return fs.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
			return nil
		}
		vs, err := s.ScanFile(path)
		if err != nil {
			return err
		}
		violations = append(violations, vs...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", root, err)
	}
	sort.Slice(violations, func(i, j int) bool {
		if violations[i].File != violations[j].File {
			return violations[i].File < violations[j].File
		}
		return violations[i].Line < violations[j].Line
	})
	return violations, nil
}

// ScanFile parses one source file and reports its violations.
func (s *Scanner) ScanFile(path string) ([]Violation, error) {
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, path, nil, parser.ParseComments)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	var violations []Violation
	forbiddenAliases := make(map[string]string)

	for _, imp := range f.Imports {
		importPath, err := strconv.Unquote(imp.Path.Value)
		if err != nil {
			continue
		}
		for _, prefix := range s.ForbiddenImportPrefixes {
			if importPath == prefix || strings.HasPrefix(importPath, prefix+"/") {
				pos := fset.Position(imp.Pos())
				violations = append(violations, Violation{
					File:    path,
					Line:    pos.Line,
					Column:  pos.Column,
					Kind:    kindForbiddenImport,
					Message: fmt.Sprintf("import of governance package %q", importPath),
				})
				alias := filepath.Base(importPath)
				if imp.Name != nil {
					alias = imp.Name.Name
				}
				forbiddenAliases[alias] = importPath
				break
			}
		}
	}

	forbidden := make(map[string]bool, len(s.ForbiddenSelectors))
	for _, name := range s.ForbiddenSelectors {
		forbidden[name] = true
	}

	ast.Inspect(f, func(n ast.Node) bool {
		sel, ok := n.(*ast.SelectorExpr)
		if !ok {
			return true
		}
		ident, ok := sel.X.(*ast.Ident)
		if !ok {
			return true
		}
		// Only selectors through a forbidden import count; a local type
		// that happens to be called Constraint is the strategy's own
		// business.
		if _, bad := forbiddenAliases[ident.Name]; !bad {
			return true
		}
		if forbidden[sel.Sel.Name] {
			pos := fset.Position(sel.Pos())
			violations = append(violations, Violation{
				File:    path,
				Line:    pos.Line,
				Column:  pos.Column,
				Kind:    kindForbiddenRef,
				Message: fmt.Sprintf("reference to governance content %s.%s", ident.Name, sel.Sel.Name),
			})
		}
		return true
	})

	return violations, nil
}
