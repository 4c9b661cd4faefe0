package checks

import (
	"bytes"
	"context"
	"fmt"
	"regexp"

	"github.com/gophersatwork/quench"
)

// defaultEscapePatterns flags the common ways of silencing tooling.
var defaultEscapePatterns = []string{
	`//nolint`,
	`#\s*noqa`,
	`#\s*type:\s*ignore`,
	`@ts-ignore`,
	`@ts-nocheck`,
	`eslint-disable`,
}

// Escapes flags escape-hatch markers — comments that suppress linters or
// type checkers. Every hit is expected to carry a justification somewhere;
// the check surfaces them so reviewers can judge.
type Escapes struct {
	patterns []*regexp.Regexp
}

// NewEscapes compiles the configured patterns, falling back to the default
// set when none are configured.
func NewEscapes(cfg quench.EscapesConfig) (*Escapes, error) {
	raw := cfg.Patterns
	if len(raw) == 0 {
		raw = defaultEscapePatterns
	}

	patterns := make([]*regexp.Regexp, 0, len(raw))
	for _, p := range raw {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, quench.NewConfigError(fmt.Sprintf("invalid escape pattern %q", p), err)
		}
		patterns = append(patterns, re)
	}
	return &Escapes{patterns: patterns}, nil
}

func (c *Escapes) Name() string {
	return "escape-hatch"
}

func (c *Escapes) AppliesTo(fd quench.FileDescriptor) bool {
	return isSourceFile(fd.Path)
}

func (c *Escapes) Run(ctx context.Context, files []quench.FileDescriptor, cc *quench.CheckContext) (*quench.CheckResult, error) {
	result := &quench.CheckResult{}

	for _, fd := range files {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		content, err := cc.Reader.Read(fd.Path)
		if err != nil {
			if quench.IsTooLarge(err) {
				continue
			}
			cc.Logger.Warn("Failed to read file", "check", c.Name(), "path", fd.Path, "error", err)
			continue
		}

		for i, line := range bytes.Split(content.Data, []byte("\n")) {
			for _, re := range c.patterns {
				if loc := re.Find(line); loc != nil {
					result.Violations = append(result.Violations, quench.Violation{
						File:     fd.Path,
						Line:     i + 1,
						Check:    c.Name(),
						Kind:     "escape-hatch",
						Message:  fmt.Sprintf("escape hatch %q", string(loc)),
						Advice:   "remove the suppression or document why it is needed",
						Severity: quench.SeverityWarning,
					})
					break
				}
			}
		}
	}

	return result, nil
}
