package checks

import (
	"bytes"
	"context"
	"fmt"

	"github.com/gophersatwork/quench"
)

// LineLimit flags files and individual lines that exceed configured length
// budgets. Zero budgets disable the corresponding rule.
type LineLimit struct {
	cfg quench.LineLimitConfig
}

// NewLineLimit creates the check for the given budgets.
func NewLineLimit(cfg quench.LineLimitConfig) *LineLimit {
	return &LineLimit{cfg: cfg}
}

func (c *LineLimit) Name() string {
	return "line-limit"
}

func (c *LineLimit) AppliesTo(fd quench.FileDescriptor) bool {
	return isSourceFile(fd.Path)
}

func (c *LineLimit) Run(ctx context.Context, files []quench.FileDescriptor, cc *quench.CheckContext) (*quench.CheckResult, error) {
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
			// A read failure loses this file for this check only.
			cc.Logger.Warn("Failed to read file", "check", c.Name(), "path", fd.Path, "error", err)
			continue
		}

		result.Violations = append(result.Violations, c.scan(fd.Path, content.Data)...)
	}

	return result, nil
}

func (c *LineLimit) scan(path string, data []byte) []quench.Violation {
	var violations []quench.Violation

	lines := bytes.Split(data, []byte("\n"))
	lineCount := len(lines)
	if lineCount > 0 && len(lines[lineCount-1]) == 0 {
		lineCount-- // trailing newline does not open a line
	}

	if c.cfg.MaxLines > 0 && lineCount > c.cfg.MaxLines {
		violations = append(violations, quench.Violation{
			File:     path,
			Check:    c.Name(),
			Kind:     "file-length",
			Message:  fmt.Sprintf("file has %d lines, limit is %d", lineCount, c.cfg.MaxLines),
			Advice:   "split the file into smaller, focused units",
			Severity: quench.SeverityError,
		})
	}

	if c.cfg.MaxLineLength > 0 {
		for i, line := range lines {
			if len(line) > c.cfg.MaxLineLength {
				violations = append(violations, quench.Violation{
					File:     path,
					Line:     i + 1,
					Check:    c.Name(),
					Kind:     "line-length",
					Message:  fmt.Sprintf("line is %d bytes, limit is %d", len(line), c.cfg.MaxLineLength),
					Advice:   "wrap or restructure the line",
					Severity: quench.SeverityWarning,
				})
			}
		}
	}

	return violations
}
