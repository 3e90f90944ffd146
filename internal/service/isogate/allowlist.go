package isogate

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"StratGov/internal/service/loader"
)

// CheckConstraintDocs runs the actions-allowlist check over every
// constraint document matched by the glob patterns. This is the same
// check the loader applies at startup, exposed standalone so CI can
// reject a document before it ever reaches a running engine.
func CheckConstraintDocs(patterns ...string) error {
	var files []string
	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return fmt.Errorf("glob %q: %w", pattern, err)
		}
		files = append(files, matches...)
	}
	if len(files) == 0 {
		return fmt.Errorf("no constraint documents matched %v", patterns)
	}
	sort.Strings(files)

	for _, file := range files {
		b, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("read %s: %w", file, err)
		}
		if err := loader.CheckActionsAllowlist(file, b); err != nil {
			return err
		}
	}
	return nil
}
