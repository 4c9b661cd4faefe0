package quench

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
)

// OutputFormat represents the output format type
type OutputFormat string

const (
	// FormatText outputs human-readable text (default)
	FormatText OutputFormat = "text"
	// FormatJSON outputs machine-readable JSON
	FormatJSON OutputFormat = "json"
)

// Formatter renders a RunResult for a consumer.
type Formatter interface {
	Format(result *RunResult) ([]byte, error)
	ContentType() string
}

// NewFormatter creates a formatter for the requested format.
func NewFormatter(format OutputFormat) (Formatter, error) {
	switch format {
	case FormatJSON:
		return &JSONFormatter{Pretty: true}, nil
	case FormatText, "":
		return &TextFormatter{}, nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}

// JSONFormatter outputs the run result in JSON format
type JSONFormatter struct {
	Pretty bool
}

type jsonOutput struct {
	Summary    jsonSummary    `json:"summary"`
	Checks     []CheckOutcome `json:"checks"`
	Violations []Violation    `json:"violations"`
	Counters   Counters       `json:"counters"`
	Warnings   []string       `json:"warnings,omitempty"`
	Timestamp  string         `json:"timestamp"`
}

type jsonSummary struct {
	Status          string `json:"status"`
	TotalViolations int    `json:"total_violations"`
	Truncated       bool   `json:"truncated"`
	DurationMs      int64  `json:"duration_ms"`
}

func (f *JSONFormatter) Format(result *RunResult) ([]byte, error) {
	status := "passed"
	if result.Failed() {
		status = "failed"
	}

	out := jsonOutput{
		Summary: jsonSummary{
			Status:          status,
			TotalViolations: result.TotalViolations,
			Truncated:       result.Truncated,
			DurationMs:      result.Duration.Milliseconds(),
		},
		Checks:     result.Outcomes,
		Violations: result.Violations,
		Counters:   result.Counters,
		Warnings:   result.Warnings,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}

	if f.Pretty {
		return json.MarshalIndent(out, "", "  ")
	}
	return json.Marshal(out)
}

func (f *JSONFormatter) ContentType() string {
	return "application/json"
}

// TextFormatter outputs a colored human-readable report grouped by file.
type TextFormatter struct {
	NoColor bool
}

func (f *TextFormatter) Format(result *RunResult) ([]byte, error) {
	if f.NoColor {
		color.NoColor = true
	}

	var out strings.Builder

	for _, o := range result.Outcomes {
		switch o.State {
		case StateSkipped:
			out.WriteString(color.New(color.FgYellow, color.Bold).Sprintf("⚠ %s skipped", o.Check))
			out.WriteString(color.HiBlackString(" (%s)\n", o.Reason))
		case StateFailed:
			out.WriteString(color.New(color.FgRed, color.Bold).Sprintf("✗ %s", o.Check))
			out.WriteString(color.HiBlackString(" (%d violations)\n", o.Violations))
		default:
			out.WriteString(color.New(color.FgGreen).Sprintf("✓ %s\n", o.Check))
		}
	}
	out.WriteString("\n")

	if len(result.Violations) > 0 {
		byFile := make(map[string][]Violation)
		var order []string
		for _, v := range result.Violations {
			if _, seen := byFile[v.File]; !seen {
				order = append(order, v.File)
			}
			byFile[v.File] = append(byFile[v.File], v)
		}

		for _, file := range order {
			viols := byFile[file]
			out.WriteString(color.New(color.FgCyan, color.Bold).Sprintf("%s\n", file))
			for _, v := range viols {
				f.formatViolation(&out, &v)
			}
			out.WriteString("\n")
		}
	}

	if result.Truncated {
		dropped := result.TotalViolations - len(result.Violations)
		out.WriteString(color.New(color.FgYellow).Sprintf("… %d more violations not shown (limit reached)\n", dropped))
	}

	for _, w := range result.Warnings {
		out.WriteString(color.HiBlackString("warning: %s\n", w))
	}

	out.WriteString(fmt.Sprintf("\n%d files scanned (%d cached, %d fresh), %d violations in %s\n",
		result.Counters.FilesScanned,
		result.Counters.CacheHits,
		result.Counters.CacheMisses,
		result.TotalViolations,
		result.Duration.Round(time.Millisecond)))

	return []byte(out.String()), nil
}

func (f *TextFormatter) formatViolation(out *strings.Builder, v *Violation) {
	location := ""
	if v.Line > 0 {
		location = fmt.Sprintf(":%d", v.Line)
	}

	out.WriteString("  ")
	out.WriteString(color.HiBlackString("%s%s ", v.Kind, location))
	out.WriteString(v.Message)
	out.WriteString("\n")
	if v.Advice != "" {
		out.WriteString("    ")
		out.WriteString(color.HiBlackString("advice: "))
		out.WriteString(v.Advice)
		out.WriteString("\n")
	}
}

func (f *TextFormatter) ContentType() string {
	return "text/plain"
}
