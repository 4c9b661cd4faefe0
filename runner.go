package quench

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
)

// Runner turns {file set, enabled checks, cache} into a RunResult with
// bounded cost and per-check fault isolation.
type Runner struct {
	cfg    Config
	logger *slog.Logger
	fs     afero.Fs
	root   string
	checks []Check

	cache     *FileCache
	cachePath string
	reader    *Reader
}

// NewRunner creates a runner for the project at root. The cache is loaded
// once here; a load failure of any kind degrades to an empty cache.
func NewRunner(cfg Config, logger *slog.Logger, fs afero.Fs, root string, checks []Check) *Runner {
	logger = ensureLogger(logger)
	gen := CurrentGeneration(cfg)

	cachePath := cfg.CachePath
	if cachePath == "" {
		cachePath = DefaultCachePath
	}
	if !filepath.IsAbs(cachePath) {
		cachePath = JoinPaths(root, cachePath)
	}

	var cache *FileCache
	if cfg.CacheEnabled {
		cache = LoadCache(fs, cachePath, gen, logger)
		logger.Debug("Cache loaded", "path", cachePath, "entries", cache.Len())
	} else {
		cache = NewFileCache(gen)
	}

	return &Runner{
		cfg:       cfg,
		logger:    logger,
		fs:        fs,
		root:      NormalizePath(root),
		checks:    checks,
		cache:     cache,
		cachePath: cachePath,
		reader:    NewReader(fs, logger),
	}
}

// Cache exposes the runner's cache, mainly for tests and embedders.
func (r *Runner) Cache() *FileCache {
	return r.cache
}

// Run executes one full pass: walk, partition against the cache, dispatch
// misses to checks, merge under the violation limit.
func (r *Runner) Run(ctx context.Context) (*RunResult, error) {
	start := time.Now()

	walker := NewWalker(r.cfg, r.logger, r.fs)
	descriptors, report, err := walker.Walk(ctx, r.root)
	if err != nil {
		return nil, err
	}

	var (
		counters Counters
		warnings []string
		cached   []*SharedViolations
		misses   []FileDescriptor
	)

	// Partition as descriptors stream in; checks start only once the
	// miss set is known, but cache lookups overlap the walk.
	for fd := range descriptors {
		counters.FilesScanned++

		if fd.Size > MaxReadSize {
			counters.FilesSkipped++
			warnings = append(warnings, (&TooLargeError{Path: fd.Path, Size: fd.Size}).Error())
			continue
		}

		if sv, ok := r.cache.Lookup(fd.Path, fd.Key()); ok {
			counters.CacheHits++
			cached = append(cached, sv)
			continue
		}
		counters.CacheMisses++
		misses = append(misses, fd)
	}
	if ctx.Err() != nil {
		return nil, NewCheckError("run canceled", ctx.Err())
	}

	for _, we := range report.Errors() {
		warnings = append(warnings, we.Error())
	}
	if n := report.DepthLimited(); n > 0 {
		warnings = append(warnings, fmt.Sprintf("%d directories skipped beyond max depth", n))
	}
	if n := report.LoopsSkipped(); n > 0 {
		warnings = append(warnings, fmt.Sprintf("%d directory cycles skipped", n))
	}

	runs := r.executeChecks(ctx, misses)
	r.cacheFreshResults(misses, runs)

	result := r.merge(cached, runs, counters, warnings)
	result.Duration = time.Since(start)

	r.logger.Debug("Run complete",
		"files", counters.FilesScanned,
		"hits", counters.CacheHits,
		"misses", counters.CacheMisses,
		"violations", result.TotalViolations,
		"duration", result.Duration)
	return result, nil
}

type checkRun struct {
	check   Check
	files   []FileDescriptor
	outcome CheckOutcome
	result  *CheckResult
}

// executeChecks runs every enabled check over the subset of miss files it
// declares interest in. Checks run concurrently; each invocation sits
// inside a supervised boundary so a panic, error or timeout isolates to a
// Skipped outcome without touching the rest of the run.
func (r *Runner) executeChecks(ctx context.Context, misses []FileDescriptor) []checkRun {
	cc := &CheckContext{
		Root:   r.root,
		Config: r.cfg,
		Reader: r.reader,
		Logger: r.logger,
		FS:     r.fs,
	}

	runs := make([]checkRun, len(r.checks))
	var g errgroup.Group
	g.SetLimit(r.workerCount())

	for i, chk := range r.checks {
		runs[i] = checkRun{
			check:   chk,
			outcome: CheckOutcome{Check: chk.Name(), State: StatePending},
		}
		for _, fd := range misses {
			if chk.AppliesTo(fd) {
				runs[i].files = append(runs[i].files, fd)
			}
		}

		i, chk := i, chk
		g.Go(func() error {
			runs[i].outcome.State = StateRunning
			res, err := r.runCheckGuarded(ctx, chk, runs[i].files, cc)
			if err != nil {
				r.logger.Warn("Check skipped", "check", chk.Name(), "reason", err)
				runs[i].outcome.State = StateSkipped
				runs[i].outcome.Reason = err.Error()
				return nil
			}
			runs[i].result = res
			runs[i].outcome.State = StatePassed // may move to failed in merge
			return nil
		})
	}

	g.Wait()
	return runs
}

// runCheckGuarded is the supervised execution boundary around one check
// invocation: a catch-all for panics plus a best-effort timeout so one
// pathological check or file cannot stall the run.
func (r *Runner) runCheckGuarded(ctx context.Context, chk Check, files []FileDescriptor, cc *CheckContext) (*CheckResult, error) {
	timeout := r.cfg.CheckTimeout
	if timeout <= 0 {
		timeout = DefaultConfig().CheckTimeout
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type payload struct {
		res *CheckResult
		err error
	}
	done := make(chan payload, 1)

	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- payload{err: NewCheckError(fmt.Sprintf("check panicked: %v", p), nil)}
			}
		}()
		res, err := chk.Run(cctx, files, cc)
		done <- payload{res: res, err: err}
	}()

	select {
	case p := <-done:
		if p.err != nil {
			return nil, NewCheckError("check failed internally", p.err)
		}
		if p.res == nil {
			return &CheckResult{}, nil
		}
		return p.res, nil
	case <-cctx.Done():
		return nil, NewCheckError(fmt.Sprintf("check timed out after %s", timeout), cctx.Err())
	}
}

// cacheFreshResults inserts one entry per successfully scanned miss file,
// including clean files as empty entries. Files a skipped check applied to
// are left uncached: an entry must reflect every enabled applicable check,
// or the next run would serve an incomplete result as a hit.
func (r *Runner) cacheFreshResults(misses []FileDescriptor, runs []checkRun) {
	uncacheable := make(map[string]bool)
	for _, cr := range runs {
		if cr.outcome.State != StateSkipped {
			continue
		}
		for _, fd := range cr.files {
			uncacheable[fd.Path] = true
		}
	}

	fresh := make(map[string][]Violation, len(misses))
	for _, cr := range runs {
		if cr.result == nil {
			continue
		}
		for _, v := range cr.result.Violations {
			fresh[v.File] = append(fresh[v.File], v)
		}
	}

	for _, fd := range misses {
		if uncacheable[fd.Path] {
			continue
		}
		r.cache.Insert(fd.Path, fd.Key(), ShareViolations(fresh[fd.Path]))
	}
}

// merge combines cache hits with fresh results, applies the violation
// limit and finalizes per-check outcomes.
func (r *Runner) merge(cached []*SharedViolations, runs []checkRun, counters Counters, warnings []string) *RunResult {
	var all []Violation
	for _, sv := range cached {
		all = append(all, sv.Items()...)
	}
	for _, cr := range runs {
		if cr.result != nil {
			all = append(all, cr.result.Violations...)
		}
	}

	// Aggregation is set-union; sort for stable output before limiting.
	sort.Slice(all, func(i, j int) bool {
		if all[i].File != all[j].File {
			return all[i].File < all[j].File
		}
		if all[i].Line != all[j].Line {
			return all[i].Line < all[j].Line
		}
		return all[i].Check < all[j].Check
	})

	perCheck := make(map[string]int)
	for _, v := range all {
		perCheck[v.Check]++
	}

	total := len(all)
	truncated := false
	limit := r.cfg.ViolationLimit
	if limit > 0 && total > limit {
		all = all[:limit]
		truncated = true
	}

	outcomes := make([]CheckOutcome, len(runs))
	for i, cr := range runs {
		o := cr.outcome
		o.Violations = perCheck[o.Check]
		if o.State != StateSkipped && o.Violations > 0 {
			o.State = StateFailed
		}
		if o.State == StateSkipped {
			counters.ChecksSkipped++
		}
		outcomes[i] = o
	}

	return &RunResult{
		Outcomes:        outcomes,
		Violations:      all,
		TotalViolations: total,
		Truncated:       truncated,
		Counters:        counters,
		Warnings:        warnings,
	}
}

// PersistCache writes the cache to disk synchronously.
func (r *Runner) PersistCache() error {
	if !r.cfg.CacheEnabled {
		return nil
	}
	return r.cache.Persist(r.fs, r.cachePath)
}

// PersistCacheAsync writes the cache on a background goroutine. Callers
// wanting durability join the returned handle; a persist failure is worth a
// warning at exit, never a failed run.
func (r *Runner) PersistCacheAsync() *PersistHandle {
	if !r.cfg.CacheEnabled {
		h := &PersistHandle{errc: make(chan error, 1)}
		h.errc <- nil
		return h
	}
	return r.cache.PersistAsync(r.fs, r.cachePath)
}

func (r *Runner) workerCount() int {
	if r.cfg.Threads > 0 {
		return r.cfg.Threads
	}
	return runtime.NumCPU()
}

// ensureLogger creates a default logger if none is provided
func ensureLogger(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}
	return logger
}
