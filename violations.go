package quench

import "fmt"

// Severity represents the importance level of a violation
type Severity string

const (
	SeverityError   Severity = "error"   // Fails the run
	SeverityWarning Severity = "warning" // Reported but does not fail the run
	SeverityInfo    Severity = "info"    // Informational only
)

// String implements the Stringer interface for Severity
func (s Severity) String() string {
	return string(s)
}

// ParseSeverity converts a string to a Severity level
func ParseSeverity(s string) Severity {
	switch s {
	case "warning", "warn":
		return SeverityWarning
	case "info", "information":
		return SeverityInfo
	case "error":
		return SeverityError
	default:
		return SeverityError // Default to error
	}
}

// Violation is a single quality issue tied to a file and line.
//
// A Violation is a plain value: one produced fresh by a check and one
// restored from the cache for the same file content are identical. Nothing
// in it records provenance; hit/miss accounting lives in Counters.
type Violation struct {
	File     string   `json:"file"`              // The file where the violation was found
	Line     int      `json:"line,omitempty"`    // 1-indexed line, 0 when the violation is file-scoped
	Check    string   `json:"check"`             // Name of the check that produced it
	Kind     string   `json:"kind"`              // Machine-readable violation type within the check
	Message  string   `json:"message"`           // What is wrong
	Advice   string   `json:"advice,omitempty"`  // How to remediate
	Severity Severity `json:"severity,omitempty"`
}

// Error implements the error interface
func (v *Violation) Error() string {
	if v.Line > 0 {
		return fmt.Sprintf("%s:%d: [%s] %s", v.File, v.Line, v.Check, v.Message)
	}
	return fmt.Sprintf("%s: [%s] %s", v.File, v.Check, v.Message)
}

// SharedViolations is an immutable violation list shared by reference.
// Cache lookups hand out the same instance to every consumer in a run, so
// reuse is a pointer copy, never a deep clone. Callers must not modify the
// slice returned by Items.
type SharedViolations struct {
	items []Violation
}

// ShareViolations wraps items in an immutable shared list. The input slice
// is copied so later caller mutations cannot leak into the cache.
func ShareViolations(items []Violation) *SharedViolations {
	if len(items) == 0 {
		return &SharedViolations{}
	}
	owned := make([]Violation, len(items))
	copy(owned, items)
	return &SharedViolations{items: owned}
}

// Len returns the number of violations in the list.
func (s *SharedViolations) Len() int {
	if s == nil {
		return 0
	}
	return len(s.items)
}

// Items returns the underlying violations. The slice is shared; treat it as
// read-only.
func (s *SharedViolations) Items() []Violation {
	if s == nil {
		return nil
	}
	return s.items
}
