// Package checks ships the built-in checks: line limits, escape-hatch
// patterns and import rules. Each is an ordinary quench.Check; embedders can
// mix them with their own.
package checks

import (
	"path/filepath"
	"strings"

	"github.com/gophersatwork/quench"
)

// Enabled builds the built-in checks allowed by cfg. An empty cfg.Checks
// enables all of them.
func Enabled(cfg quench.Config) ([]quench.Check, error) {
	escapes, err := NewEscapes(cfg.Escapes)
	if err != nil {
		return nil, err
	}

	all := []quench.Check{
		NewLineLimit(cfg.LineLimit),
		escapes,
		NewImportGuard(cfg.ImportRules),
	}

	if len(cfg.Checks) == 0 {
		return all, nil
	}

	want := make(map[string]bool, len(cfg.Checks))
	for _, name := range cfg.Checks {
		want[name] = true
	}

	var enabled []quench.Check
	for _, c := range all {
		if want[c.Name()] {
			enabled = append(enabled, c)
		}
	}
	return enabled, nil
}

// sourceExtensions lists the file types the text-oriented checks look at.
var sourceExtensions = map[string]bool{
	".go":   true,
	".rs":   true,
	".py":   true,
	".js":   true,
	".jsx":  true,
	".ts":   true,
	".tsx":  true,
	".java": true,
	".c":    true,
	".h":    true,
	".cpp":  true,
	".hpp":  true,
	".rb":   true,
	".sh":   true,
}

func isSourceFile(path string) bool {
	return sourceExtensions[strings.ToLower(filepath.Ext(path))]
}
