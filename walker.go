package quench

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/spf13/afero"
)

// discoveryQueueSize bounds the descriptor channel between the walker's
// producers and the runner. Producers block when it is full; a discovered
// file is never dropped under load.
const discoveryQueueSize = 256

// FileDescriptor identifies one candidate regular file. It is produced once
// per walk and never mutated afterwards.
type FileDescriptor struct {
	Path      string
	Size      int64
	MTimeSec  int64
	MTimeNsec int64
	Depth     int
}

// Key derives the cache identity proxy for the descriptor.
func (fd FileDescriptor) Key() CacheKey {
	return CacheKey{MTimeSec: fd.MTimeSec, MTimeNsec: fd.MTimeNsec, Size: fd.Size}
}

// WalkError records a per-entry traversal failure that was skipped over.
type WalkError struct {
	Path string
	Err  error
}

// Error implements the error interface
func (e WalkError) Error() string {
	return fmt.Sprintf("walk %s: %v", e.Path, e.Err)
}

// WalkReport accumulates traversal accounting. It is safe for concurrent
// updates during the walk; read it after the descriptor channel closes.
type WalkReport struct {
	mu           sync.Mutex
	dirsWalked   int
	depthSkipped int
	loopsSkipped int
	errs         []WalkError
}

// DirsWalked returns the number of directories read.
func (r *WalkReport) DirsWalked() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dirsWalked
}

// DepthLimited returns the number of directories skipped for exceeding the
// depth limit.
func (r *WalkReport) DepthLimited() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.depthSkipped
}

// LoopsSkipped returns the number of already-visited directories skipped,
// which covers symlink cycles and aliased subtrees.
func (r *WalkReport) LoopsSkipped() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loopsSkipped
}

// Errors returns the recorded per-entry failures.
func (r *WalkReport) Errors() []WalkError {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]WalkError, len(r.errs))
	copy(out, r.errs)
	return out
}

func (r *WalkReport) addDir() {
	r.mu.Lock()
	r.dirsWalked++
	r.mu.Unlock()
}

func (r *WalkReport) addDepthSkipped() {
	r.mu.Lock()
	r.depthSkipped++
	r.mu.Unlock()
}

func (r *WalkReport) addLoop() {
	r.mu.Lock()
	r.loopsSkipped++
	r.mu.Unlock()
}

func (r *WalkReport) addError(path string, err error) {
	r.mu.Lock()
	r.errs = append(r.errs, WalkError{Path: path, Err: err})
	r.mu.Unlock()
}

// Walker enumerates candidate regular files under a root with bounded
// resources: a fixed worker pool, an iterative directory queue and a bounded
// output channel.
type Walker struct {
	fs     afero.Fs
	cfg    Config
	logger *slog.Logger
	osFS   bool
}

// NewWalker creates a walker for cfg bound to fs.
func NewWalker(cfg Config, logger *slog.Logger, fs afero.Fs) *Walker {
	_, isOs := fs.(*afero.OsFs)
	return &Walker{
		fs:     fs,
		cfg:    cfg,
		logger: ensureLogger(logger),
		osFS:   isOs,
	}
}

// Walk streams descriptors for every candidate file under root. The channel
// is closed when traversal finishes; the report is complete at that point.
// Only an inaccessible root is an error — everything below degrades to
// recorded, skipped entries.
func (w *Walker) Walk(ctx context.Context, root string) (<-chan FileDescriptor, *WalkReport, error) {
	root = NormalizePath(root)
	info, err := w.fs.Stat(root)
	if err != nil {
		return nil, nil, NewWalkError("root path is not accessible", err).WithFile(root)
	}

	report := &WalkReport{}
	out := make(chan FileDescriptor, discoveryQueueSize)

	if !info.IsDir() {
		// A single-file root is a one-descriptor walk.
		go func() {
			defer close(out)
			fd := descriptorFor(root, info, 0)
			select {
			case out <- fd:
			case <-ctx.Done():
			}
		}()
		return out, report, nil
	}

	matcher := NewIgnoreMatcher(w.cfg.IgnoreGlobs)
	if w.cfg.RespectGitignore {
		if err := matcher.LoadGitignore(w.fs, root); err != nil {
			report.addError(JoinPaths(root, ".gitignore"), err)
		}
	}

	go func() {
		defer close(out)
		w.run(ctx, root, matcher, out, report)
	}()
	return out, report, nil
}

func (w *Walker) run(ctx context.Context, root string, matcher *IgnoreMatcher, out chan<- FileDescriptor, report *WalkReport) {
	q := newWalkQueue()
	visited := &visitSet{seen: make(map[string]struct{})}
	visited.add(w.realKey(root))
	q.push(dirWork{path: root, depth: 0})

	var wg sync.WaitGroup
	for i := 0; i < w.workerCount(); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				if ctx.Err() != nil {
					q.close()
					return
				}
				d, ok := q.next()
				if !ok {
					return
				}
				w.scanDir(ctx, d, root, matcher, visited, q, out, report)
				q.done()
			}
		}()
	}
	wg.Wait()
}

func (w *Walker) scanDir(ctx context.Context, d dirWork, root string, matcher *IgnoreMatcher, visited *visitSet, q *walkQueue, out chan<- FileDescriptor, report *WalkReport) {
	report.addDir()

	entries, err := afero.ReadDir(w.fs, d.path)
	if err != nil {
		// Permission denied, raced deletion: record and move on.
		report.addError(d.path, err)
		return
	}

	for _, entry := range entries {
		if ctx.Err() != nil {
			return
		}

		name := entry.Name()
		if !w.cfg.IncludeHidden && IsHidden(name) {
			continue
		}

		full := JoinPaths(d.path, name)
		rel := RelPath(root, full)

		info := entry
		symlink := entry.Mode()&os.ModeSymlink != 0
		if symlink {
			target, statErr := w.fs.Stat(full)
			if statErr != nil {
				report.addError(full, statErr)
				continue
			}
			info = target
		}

		switch {
		case info.IsDir():
			if matcher.Match(rel, true) {
				continue
			}
			depth := d.depth + 1
			if depth > w.maxDepth() {
				report.addDepthSkipped()
				continue
			}
			if !visited.add(w.realKey(full)) {
				// Second visit: a symlink cycle or an aliased subtree.
				// Skip it here, keep walking everywhere else.
				report.addLoop()
				w.logger.Warn("Skipping already-visited directory", "path", full)
				continue
			}
			q.push(dirWork{path: full, depth: depth})

		case info.Mode().IsRegular():
			if matcher.Match(rel, false) {
				continue
			}
			fd := descriptorFor(full, info, d.depth+1)
			select {
			case out <- fd:
			case <-ctx.Done():
				return
			}

		default:
			// Sockets, devices, pipes are never candidates.
		}
	}
}

func descriptorFor(path string, info os.FileInfo, depth int) FileDescriptor {
	return FileDescriptor{
		Path:      path,
		Size:      info.Size(),
		MTimeSec:  info.ModTime().Unix(),
		MTimeNsec: int64(info.ModTime().Nanosecond()),
		Depth:     depth,
	}
}

// realKey resolves symlinks on the OS filesystem so a cycle maps back to a
// key already in the visited set. In-memory filesystems have no symlinks;
// the path itself is identity enough.
func (w *Walker) realKey(path string) string {
	if w.osFS {
		if resolved, err := filepath.EvalSymlinks(path); err == nil {
			return NormalizePath(resolved)
		}
	}
	return path
}

func (w *Walker) workerCount() int {
	if w.cfg.Threads > 0 {
		return w.cfg.Threads
	}
	return runtime.NumCPU()
}

func (w *Walker) maxDepth() int {
	if w.cfg.MaxDepth > 0 {
		return w.cfg.MaxDepth
	}
	return DefaultConfig().MaxDepth
}

type dirWork struct {
	path  string
	depth int
}

// walkQueue is the shared directory worklist behind the worker pool.
// Workers both consume from and feed it, so completion is reached when the
// stack is empty and no worker is mid-directory.
type walkQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	stack  []dirWork
	active int
	closed bool
}

func newWalkQueue() *walkQueue {
	q := &walkQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *walkQueue) push(d dirWork) {
	q.mu.Lock()
	q.stack = append(q.stack, d)
	q.mu.Unlock()
	q.cond.Signal()
}

// next blocks until work is available or the walk is finished. It marks the
// caller active; pair with done.
func (q *walkQueue) next() (dirWork, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.stack) == 0 && q.active > 0 && !q.closed {
		q.cond.Wait()
	}
	if q.closed || len(q.stack) == 0 {
		q.cond.Broadcast()
		return dirWork{}, false
	}
	d := q.stack[len(q.stack)-1]
	q.stack = q.stack[:len(q.stack)-1]
	q.active++
	return d, true
}

func (q *walkQueue) done() {
	q.mu.Lock()
	q.active--
	finished := q.active == 0 && len(q.stack) == 0
	q.mu.Unlock()
	if finished {
		q.cond.Broadcast()
	} else {
		q.cond.Signal()
	}
}

func (q *walkQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cond.Broadcast()
}

type visitSet struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// add returns true on first sight of key.
func (s *visitSet) add(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[key]; ok {
		return false
	}
	s.seen[key] = struct{}{}
	return true
}
