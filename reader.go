package quench

import (
	"log/slog"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/spf13/afero"

	"github.com/gophersatwork/quench/internal/mmap"
)

// Size thresholds for the content-loading strategy.
const (
	// DirectReadLimit is the largest file loaded with a plain buffered read.
	DirectReadLimit = 64 << 10
	// SlowReadWarn marks the size above which a file is worth an
	// informational warning about slower runs.
	SlowReadWarn = 1 << 20
	// MaxReadSize is the ceiling above which files are refused outright.
	MaxReadSize = 10 << 20
)

// readerCacheSize bounds the in-run content cache. Entries are keyed by
// file identity, so a stale entry can only be served for content the cache
// heuristic would also consider unchanged.
const readerCacheSize = 128

// ReadStrategy identifies how file content was (or would be) loaded.
type ReadStrategy int

const (
	// ReadDirect is a plain buffered read for small files.
	ReadDirect ReadStrategy = iota
	// ReadMapped memory-maps the file, copies it into an owned buffer and
	// releases the mapping immediately.
	ReadMapped
	// ReadSkipped refuses the file for being over MaxReadSize.
	ReadSkipped
)

// String implements the Stringer interface
func (s ReadStrategy) String() string {
	switch s {
	case ReadDirect:
		return "direct"
	case ReadMapped:
		return "mapped"
	case ReadSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// StrategyForSize is a pure function of size.
func StrategyForSize(size int64) ReadStrategy {
	switch {
	case size > MaxReadSize:
		return ReadSkipped
	case size > DirectReadLimit:
		return ReadMapped
	default:
		return ReadDirect
	}
}

// FileContent is the loaded content of one file. The buffer is owned by the
// caller and outlives the source file; dropping it after use is expected.
type FileContent struct {
	Data     []byte
	Size     int64
	Strategy ReadStrategy
}

// clone copies the content into a private buffer. The master stays in the
// reader's cache; callers may mutate their copy freely.
func (c *FileContent) clone() *FileContent {
	data := make([]byte, len(c.Data))
	copy(data, c.Data)
	return &FileContent{Data: data, Size: c.Size, Strategy: c.Strategy}
}

type contentKey struct {
	path      string
	mtimeSec  int64
	mtimeNsec int64
	size      int64
}

// Reader loads file content with a size-appropriate strategy. It keeps a
// small LRU of recently loaded files so several checks reading the same
// cache-miss file in one run cost a single read; every caller still gets a
// private buffer, so one check mutating its copy cannot leak into another.
type Reader struct {
	fs       afero.Fs
	logger   *slog.Logger
	useMmap  bool
	contents *lru.Cache[contentKey, *FileContent]
}

// NewReader creates a Reader bound to fs. Memory mapping is only used on
// the OS filesystem; in-memory filesystems fall back to direct reads.
func NewReader(fs afero.Fs, logger *slog.Logger) *Reader {
	contents, err := lru.New[contentKey, *FileContent](readerCacheSize)
	if err != nil {
		// Only reachable with a non-positive size constant.
		panic(err)
	}

	_, isOs := fs.(*afero.OsFs)
	return &Reader{
		fs:       fs,
		logger:   ensureLogger(logger),
		useMmap:  isOs,
		contents: contents,
	}
}

// Read loads the content of path. Size is re-checked at read time since it
// may have changed since discovery. Oversized files return *TooLargeError;
// callers treat them as skipped, not failed. OS errors come back as typed,
// path-carrying read errors.
func (r *Reader) Read(path string) (*FileContent, error) {
	info, err := r.fs.Stat(path)
	if err != nil {
		return nil, NewReadError("failed to stat file", err).WithFile(path)
	}

	size := info.Size()
	strategy := StrategyForSize(size)
	if strategy == ReadSkipped {
		return nil, &TooLargeError{Path: path, Size: size}
	}

	key := contentKey{
		path:      path,
		mtimeSec:  info.ModTime().Unix(),
		mtimeNsec: int64(info.ModTime().Nanosecond()),
		size:      size,
	}
	if content, ok := r.contents.Get(key); ok {
		return content.clone(), nil
	}

	if size > SlowReadWarn {
		r.logger.Info("Large file slows down scanning",
			"path", path, "size", size, "limit", int64(MaxReadSize))
	}

	content, err := r.load(path, size, strategy)
	if err != nil {
		return nil, err
	}

	r.contents.Add(key, content)
	return content.clone(), nil
}

func (r *Reader) load(path string, size int64, strategy ReadStrategy) (*FileContent, error) {
	if strategy == ReadMapped && r.useMmap {
		content, err := r.loadMapped(path)
		if err == nil {
			return content, nil
		}
		r.logger.Debug("Memory mapping failed, falling back to direct read",
			"path", path, "error", err)
	}

	data, err := afero.ReadFile(r.fs, path)
	if err != nil {
		return nil, NewReadError("failed to read file", err).WithFile(path)
	}

	// The fallback really did a direct read, so report it as one.
	return &FileContent{Data: data, Size: int64(len(data)), Strategy: ReadDirect}, nil
}

// loadMapped maps the file, copies the bytes into an owned buffer and
// releases the mapping before returning. The returned buffer's lifetime is
// independent of the source file.
func (r *Reader) loadMapped(path string) (*FileContent, error) {
	m, err := mmap.Open(path)
	if err != nil {
		return nil, err
	}

	data := make([]byte, len(m.Data))
	copy(data, m.Data)

	if err := m.Close(); err != nil {
		r.logger.Warn("Failed to release file mapping", "path", path, "error", err)
	}

	return &FileContent{Data: data, Size: int64(len(data)), Strategy: ReadMapped}, nil
}
