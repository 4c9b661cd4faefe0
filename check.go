package quench

import (
	"context"
	"log/slog"

	"github.com/spf13/afero"
)

// Check is an independent, pluggable unit of quality analysis. A check may
// receive only a subset of the project's files and must not assume
// visibility beyond what it is given. Results must be deterministic per file
// regardless of invocation order; the runner relies on this to make cached
// and fresh results interchangeable.
type Check interface {
	// Name identifies the check in results, logs and configuration.
	Name() string

	// AppliesTo reports interest in a file without reading its content.
	AppliesTo(fd FileDescriptor) bool

	// Run analyzes the given files. Content is loaded on demand through
	// the context's Reader. Run must honor ctx cancellation on long work.
	Run(ctx context.Context, files []FileDescriptor, cc *CheckContext) (*CheckResult, error)
}

// CheckContext is the shared, read-only environment handed to every check
// invocation. Checks write to their private CheckResult only.
type CheckContext struct {
	Root   string
	Config Config
	Reader *Reader
	Logger *slog.Logger
	FS     afero.Fs
}

// CheckResult is the private output of one check invocation.
type CheckResult struct {
	Violations []Violation
}

// CheckState is the per-run lifecycle of a check:
// Pending -> Running -> Passed | Failed | Skipped.
type CheckState int

const (
	StatePending CheckState = iota
	StateRunning
	StatePassed
	StateFailed
	StateSkipped
)

// String implements the Stringer interface
func (s CheckState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StatePassed:
		return "passed"
	case StateFailed:
		return "failed"
	case StateSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// CheckOutcome is the terminal state of one check for one run. A skipped
// check is surfaced for the user to re-run; there are no automatic retries.
type CheckOutcome struct {
	Check      string     `json:"check"`
	State      CheckState `json:"-"`
	Violations int        `json:"violations"`
	Reason     string     `json:"reason,omitempty"`
}
