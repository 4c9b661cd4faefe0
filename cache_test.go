package quench

import (
	"testing"
	"time"

	"github.com/klauspost/compress/s2"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testGeneration() Generation {
	return CurrentGeneration(DefaultConfig())
}

func testKey() CacheKey {
	return CacheKey{MTimeSec: 1700000000, MTimeNsec: 123456789, Size: 42}
}

func testViolations() []Violation {
	return []Violation{
		{
			File:     "/p/main.go",
			Line:     10,
			Check:    "line-limit",
			Kind:     "line-length",
			Message:  "line is 130 bytes, limit is 120",
			Advice:   "wrap or restructure the line",
			Severity: SeverityWarning,
		},
		{
			File:     "/p/main.go",
			Check:    "line-limit",
			Kind:     "file-length",
			Message:  "file has 1400 lines, limit is 1000",
			Severity: SeverityError,
		},
	}
}

func TestFileCacheLookupInsert(t *testing.T) {
	cache := NewFileCache(testGeneration())
	key := testKey()

	_, ok := cache.Lookup("/p/main.go", key)
	assert.False(t, ok)

	cache.Insert("/p/main.go", key, ShareViolations(testViolations()))
	assert.Equal(t, 1, cache.Len())

	sv, ok := cache.Lookup("/p/main.go", key)
	require.True(t, ok)
	assert.Equal(t, testViolations(), sv.Items())
}

func TestFileCacheKeyMismatchIsAMiss(t *testing.T) {
	cache := NewFileCache(testGeneration())
	key := testKey()
	cache.Insert("/p/main.go", key, ShareViolations(nil))

	tests := map[string]CacheKey{
		"different mtime seconds": {MTimeSec: key.MTimeSec + 1, MTimeNsec: key.MTimeNsec, Size: key.Size},
		"different mtime nanos":   {MTimeSec: key.MTimeSec, MTimeNsec: key.MTimeNsec + 1, Size: key.Size},
		"different size":          {MTimeSec: key.MTimeSec, MTimeNsec: key.MTimeNsec, Size: key.Size + 1},
	}
	for name, probe := range tests {
		t.Run(name, func(t *testing.T) {
			_, ok := cache.Lookup("/p/main.go", probe)
			assert.False(t, ok)
		})
	}
}

func TestFileCacheInsertOverwrites(t *testing.T) {
	cache := NewFileCache(testGeneration())
	old := testKey()
	cache.Insert("/p/a.go", old, ShareViolations(testViolations()))

	fresh := CacheKey{MTimeSec: old.MTimeSec + 5, Size: 99}
	cache.Insert("/p/a.go", fresh, ShareViolations(nil))

	_, ok := cache.Lookup("/p/a.go", old)
	assert.False(t, ok)

	sv, ok := cache.Lookup("/p/a.go", fresh)
	require.True(t, ok)
	assert.Equal(t, 0, sv.Len())
	assert.Equal(t, 1, cache.Len())
}

func TestCachePersistAndLoadRoundTrip(t *testing.T) {
	memFs := afero.NewMemMapFs()
	gen := testGeneration()
	path := "/p/.quench/cache.bin"

	cache := NewFileCache(gen)
	cache.Insert("/p/main.go", testKey(), ShareViolations(testViolations()))
	cache.Insert("/p/clean.go", CacheKey{MTimeSec: 1, Size: 7}, ShareViolations(nil))
	require.NoError(t, cache.Persist(memFs, path))

	loaded := LoadCache(memFs, path, gen, testLogger())
	assert.Equal(t, 2, loaded.Len())

	sv, ok := loaded.Lookup("/p/main.go", testKey())
	require.True(t, ok)
	assert.Equal(t, testViolations(), sv.Items())

	empty, ok := loaded.Lookup("/p/clean.go", CacheKey{MTimeSec: 1, Size: 7})
	require.True(t, ok)
	assert.Equal(t, 0, empty.Len())
}

func TestLoadCacheDegradesToEmpty(t *testing.T) {
	gen := testGeneration()

	tests := map[string]func(fs afero.Fs) string{
		"missing file": func(fs afero.Fs) string {
			return "/nope/cache.bin"
		},
		"empty file": func(fs afero.Fs) string {
			require.NoError(t, afero.WriteFile(fs, "/c.bin", nil, 0o644))
			return "/c.bin"
		},
		"wrong magic": func(fs afero.Fs) string {
			require.NoError(t, afero.WriteFile(fs, "/c.bin", []byte("not a cache file"), 0o644))
			return "/c.bin"
		},
		"corrupt body": func(fs afero.Fs) string {
			blob := append([]byte("QNC1"), 0xff, 0xfe, 0xfd, 0xfc, 0xfb)
			require.NoError(t, afero.WriteFile(fs, "/c.bin", blob, 0o644))
			return "/c.bin"
		},
		"implausible entry count": func(fs afero.Fs) string {
			// A valid header with a count no buffer could hold.
			body := snapshotWithEntryCount(1 << 60)
			blob := append([]byte("QNC1"), s2.Encode(nil, body)...)
			require.NoError(t, afero.WriteFile(fs, "/c.bin", blob, 0o644))
			return "/c.bin"
		},
		"truncated valid file": func(fs afero.Fs) string {
			cache := NewFileCache(gen)
			cache.Insert("/p/a.go", testKey(), ShareViolations(testViolations()))
			require.NoError(t, cache.Persist(fs, "/c.bin"))
			data, err := afero.ReadFile(fs, "/c.bin")
			require.NoError(t, err)
			require.NoError(t, afero.WriteFile(fs, "/c.bin", data[:len(data)/2], 0o644))
			return "/c.bin"
		},
	}

	for name, setup := range tests {
		t.Run(name, func(t *testing.T) {
			memFs := afero.NewMemMapFs()
			path := setup(memFs)

			loaded := LoadCache(memFs, path, gen, testLogger())
			require.NotNil(t, loaded)
			assert.Equal(t, 0, loaded.Len())
			assert.Equal(t, gen, loaded.Generation())
		})
	}
}

func TestLoadCacheGenerationMismatch(t *testing.T) {
	stored := testGeneration()

	tests := map[string]Generation{
		"tool version changed": {
			ToolVersion:   stored.ToolVersion + "-next",
			ConfigHash:    stored.ConfigHash,
			FormatVersion: stored.FormatVersion,
		},
		"config hash changed": {
			ToolVersion:   stored.ToolVersion,
			ConfigHash:    stored.ConfigHash + 1,
			FormatVersion: stored.FormatVersion,
		},
		"format version changed": {
			ToolVersion:   stored.ToolVersion,
			ConfigHash:    stored.ConfigHash,
			FormatVersion: stored.FormatVersion + 1,
		},
	}

	for name, current := range tests {
		t.Run(name, func(t *testing.T) {
			memFs := afero.NewMemMapFs()
			cache := NewFileCache(stored)
			cache.Insert("/p/a.go", testKey(), ShareViolations(testViolations()))
			require.NoError(t, cache.Persist(memFs, "/c.bin"))

			loaded := LoadCache(memFs, "/c.bin", current, testLogger())
			// The whole cache is discarded, never a subset.
			assert.Equal(t, 0, loaded.Len())
			assert.Equal(t, current, loaded.Generation())
		})
	}
}

func TestPersistLeavesNoTempFile(t *testing.T) {
	memFs := afero.NewMemMapFs()
	cache := NewFileCache(testGeneration())
	cache.Insert("/p/a.go", testKey(), ShareViolations(nil))

	require.NoError(t, cache.Persist(memFs, "/out/cache.bin"))

	exists, err := afero.Exists(memFs, "/out/cache.bin")
	require.NoError(t, err)
	assert.True(t, exists)

	tmpExists, err := afero.Exists(memFs, "/out/cache.bin.tmp")
	require.NoError(t, err)
	assert.False(t, tmpExists)
}

func TestPersistAsync(t *testing.T) {
	memFs := afero.NewMemMapFs()
	cache := NewFileCache(testGeneration())
	cache.Insert("/p/a.go", testKey(), ShareViolations(testViolations()))

	h := cache.PersistAsync(memFs, "/c.bin")
	require.NoError(t, h.Wait())

	loaded := LoadCache(memFs, "/c.bin", testGeneration(), testLogger())
	assert.Equal(t, 1, loaded.Len())
}

func TestPersistReportsWriteFailure(t *testing.T) {
	roFs := afero.NewReadOnlyFs(afero.NewMemMapFs())
	cache := NewFileCache(testGeneration())

	err := cache.Persist(roFs, "/c.bin")
	require.Error(t, err)

	info, ok := GetErrorInfo(err)
	require.True(t, ok)
	assert.Equal(t, ErrorTypeCache, info.Type)
}

func TestCurrentGeneration(t *testing.T) {
	cfg := DefaultConfig()
	gen := CurrentGeneration(cfg)

	assert.Equal(t, Version, gen.ToolVersion)
	assert.Equal(t, cfg.Hash(), gen.ConfigHash)
	assert.Equal(t, CacheFormatVersion, gen.FormatVersion)

	changed := cfg
	changed.LineLimit.MaxLines = 1
	assert.NotEqual(t, gen, CurrentGeneration(changed))

	// Runtime knobs do not start a new generation.
	tuned := cfg
	tuned.Threads = 32
	tuned.CheckTimeout = time.Minute
	assert.Equal(t, gen, CurrentGeneration(tuned))
}

func TestShareViolationsCopiesInput(t *testing.T) {
	input := testViolations()
	sv := ShareViolations(input)

	input[0].Message = "mutated after sharing"
	assert.Equal(t, "line is 130 bytes, limit is 120", sv.Items()[0].Message)
}
