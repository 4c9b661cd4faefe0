package quench

import "time"

// Counters accounts for everything the pipeline touched or deliberately
// skipped during one run.
type Counters struct {
	FilesScanned  int `json:"files_scanned"`
	CacheHits     int `json:"cache_hits"`
	CacheMisses   int `json:"cache_misses"`
	ChecksSkipped int `json:"checks_skipped"`
	FilesSkipped  int `json:"files_skipped"`
}

// RunResult is the aggregated output of one run: per-check outcomes, the
// merged (possibly truncated) violation list and the counters.
type RunResult struct {
	Outcomes []CheckOutcome `json:"checks"`

	// Violations holds at most the configured limit; TotalViolations is
	// the true count and Truncated marks that some were dropped.
	Violations      []Violation `json:"violations"`
	TotalViolations int         `json:"total_violations"`
	Truncated       bool        `json:"truncated"`

	Counters Counters      `json:"counters"`
	Warnings []string      `json:"warnings,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Failed reports whether any check ended in the failed state.
func (r *RunResult) Failed() bool {
	for _, o := range r.Outcomes {
		if o.State == StateFailed {
			return true
		}
	}
	return false
}

// Outcome returns the outcome for the named check, or nil.
func (r *RunResult) Outcome(name string) *CheckOutcome {
	for i := range r.Outcomes {
		if r.Outcomes[i].Check == name {
			return &r.Outcomes[i]
		}
	}
	return nil
}
