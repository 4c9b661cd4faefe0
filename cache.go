package quench

import (
	"bytes"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/s2"
	"github.com/spf13/afero"
)

// CacheFormatVersion is bumped whenever the on-disk schema or the semantics
// of cached results change. A mismatch forces a full rebuild.
const CacheFormatVersion uint32 = 1

// cacheMagic prefixes the cache file so unrelated files are rejected before
// decompression is attempted.
var cacheMagic = []byte("QNC1")

const cacheShardCount = 16

// CacheKey is the (mtime, size) proxy for content identity. It is a
// heuristic, not a cryptographic guarantee: content edits that preserve both
// yield a stale hit, an accepted trade-off documented with the design.
type CacheKey struct {
	MTimeSec  int64
	MTimeNsec int64
	Size      int64
}

// CachedEntry pairs the identity key with the shared violation list
// computed for that identity.
type CachedEntry struct {
	Key        CacheKey
	Violations *SharedViolations
}

// Generation scopes cache validity. Any component mismatch on load discards
// the entire cache, never a subset.
type Generation struct {
	ToolVersion   string
	ConfigHash    uint64
	FormatVersion uint32
}

// CurrentGeneration derives the generation for this binary and config.
func CurrentGeneration(cfg Config) Generation {
	return Generation{
		ToolVersion:   Version,
		ConfigHash:    cfg.Hash(),
		FormatVersion: CacheFormatVersion,
	}
}

// FileCache maps file paths to previously computed violations for one
// project root. It is the only structure mutated from multiple goroutines
// during a run; all mutation goes through Lookup/Insert, which synchronize
// internally via sharded locks.
type FileCache struct {
	gen    Generation
	shards [cacheShardCount]cacheShard
}

type cacheShard struct {
	mu      sync.RWMutex
	entries map[string]CachedEntry
}

// NewFileCache returns an empty cache for the given generation.
func NewFileCache(gen Generation) *FileCache {
	c := &FileCache{gen: gen}
	for i := range c.shards {
		c.shards[i].entries = make(map[string]CachedEntry)
	}
	return c
}

// Generation returns the generation this cache is valid for.
func (c *FileCache) Generation() Generation {
	return c.gen
}

func (c *FileCache) shard(path string) *cacheShard {
	return &c.shards[xxhash.Sum64String(path)%cacheShardCount]
}

// Lookup returns the shared violations for path iff the stored key exactly
// equals key. Any mismatch is a miss; the stale entry stays until the next
// successful recompute overwrites it.
func (c *FileCache) Lookup(path string, key CacheKey) (*SharedViolations, bool) {
	s := c.shard(path)
	s.mu.RLock()
	entry, ok := s.entries[path]
	s.mu.RUnlock()
	if !ok || entry.Key != key {
		return nil, false
	}
	return entry.Violations, true
}

// Insert stores violations for path, overwriting any prior entry.
func (c *FileCache) Insert(path string, key CacheKey, violations *SharedViolations) {
	s := c.shard(path)
	s.mu.Lock()
	s.entries[path] = CachedEntry{Key: key, Violations: violations}
	s.mu.Unlock()
}

// Len returns the number of cached entries.
func (c *FileCache) Len() int {
	total := 0
	for i := range c.shards {
		s := &c.shards[i]
		s.mu.RLock()
		total += len(s.entries)
		s.mu.RUnlock()
	}
	return total
}

// snapshot flattens the cache into a deterministic, path-sorted record list
// for serialization.
func (c *FileCache) snapshot() cacheSnapshot {
	snap := cacheSnapshot{
		FormatVersion: c.gen.FormatVersion,
		ToolVersion:   c.gen.ToolVersion,
		ConfigHash:    c.gen.ConfigHash,
	}
	for i := range c.shards {
		s := &c.shards[i]
		s.mu.RLock()
		for path, entry := range s.entries {
			snap.Entries = append(snap.Entries, cacheEntryRecord{
				Path:       path,
				Key:        entry.Key,
				Violations: entry.Violations.Items(),
			})
		}
		s.mu.RUnlock()
	}
	sort.Slice(snap.Entries, func(i, j int) bool {
		return snap.Entries[i].Path < snap.Entries[j].Path
	})
	return snap
}

// LoadCache deserializes the cache at path. Every failure mode — missing
// file, corruption, an unsupported format, a generation mismatch — yields a
// fresh empty cache for gen. The cache is an optimization; loading never
// produces a hard error.
func LoadCache(fs afero.Fs, path string, gen Generation, logger *slog.Logger) *FileCache {
	logger = ensureLogger(logger)
	fresh := NewFileCache(gen)

	data, err := afero.ReadFile(fs, path)
	if err != nil {
		logger.Debug("No usable cache file, starting empty", "path", path, "error", err)
		return fresh
	}

	if len(data) < len(cacheMagic) || !bytes.Equal(data[:len(cacheMagic)], cacheMagic) {
		logger.Warn("Cache file has unrecognized header, rebuilding", "path", path)
		return fresh
	}

	raw, err := s2.Decode(nil, data[len(cacheMagic):])
	if err != nil {
		logger.Warn("Cache file is corrupt, rebuilding", "path", path, "error", err)
		return fresh
	}

	snap, err := unmarshalCacheSnapshot(raw)
	if err != nil {
		logger.Warn("Cache file failed to decode, rebuilding", "path", path, "error", err)
		return fresh
	}

	loaded := Generation{
		ToolVersion:   snap.ToolVersion,
		ConfigHash:    snap.ConfigHash,
		FormatVersion: snap.FormatVersion,
	}
	if loaded != gen {
		logger.Debug("Cache generation mismatch, rebuilding",
			"path", path,
			"cached_version", snap.ToolVersion,
			"cached_format", snap.FormatVersion)
		return fresh
	}

	for _, rec := range snap.Entries {
		fresh.Insert(rec.Path, rec.Key, ShareViolations(rec.Violations))
	}
	return fresh
}

// Persist serializes the cache to a temp file next to path and atomically
// renames it over the target, so a crash or concurrent reader never sees a
// partial write.
func (c *FileCache) Persist(fs afero.Fs, path string) error {
	raw := marshalCacheSnapshot(c.snapshot())

	blob := make([]byte, 0, len(cacheMagic)+s2.MaxEncodedLen(len(raw)))
	blob = append(blob, cacheMagic...)
	blob = append(blob, s2.Encode(nil, raw)...)

	dir := filepath.Dir(path)
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return NewCacheError("failed to create cache directory", err).WithFile(dir)
	}

	tmp := path + ".tmp"
	if err := afero.WriteFile(fs, tmp, blob, 0o644); err != nil {
		return NewCacheError("failed to write cache file", err).WithFile(tmp)
	}
	if err := fs.Rename(tmp, path); err != nil {
		return NewCacheError("failed to replace cache file", err).WithFile(path)
	}
	return nil
}

// PersistHandle joins a background persist. Wait returns the persist error,
// if any; callers wanting durability call it before exiting.
type PersistHandle struct {
	errc chan error
}

// Wait blocks until the persist finishes.
func (h *PersistHandle) Wait() error {
	return <-h.errc
}

// PersistAsync runs Persist on a background goroutine so process exit is
// not blocked on cache serialization.
func (c *FileCache) PersistAsync(fs afero.Fs, path string) *PersistHandle {
	h := &PersistHandle{errc: make(chan error, 1)}
	go func() {
		h.errc <- c.Persist(fs, path)
	}()
	return h
}
