package quench

import (
	"testing"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/varint"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSnapshot() cacheSnapshot {
	return cacheSnapshot{
		FormatVersion: CacheFormatVersion,
		ToolVersion:   Version,
		ConfigHash:    0xdeadbeefcafe,
		Entries: []cacheEntryRecord{
			{
				Path: "/p/a.go",
				Key:  CacheKey{MTimeSec: 1700000000, MTimeNsec: 987654321, Size: 2048},
				Violations: []Violation{
					{
						File:     "/p/a.go",
						Line:     3,
						Check:    "escape-hatch",
						Kind:     "escape-hatch",
						Message:  `escape hatch "//nolint"`,
						Advice:   "remove the suppression or document why it is needed",
						Severity: SeverityWarning,
					},
				},
			},
			{
				Path:       "/p/clean.go",
				Key:        CacheKey{MTimeSec: 1700000001, Size: 10},
				Violations: []Violation{},
			},
		},
	}
}

func TestCacheSnapshotRoundTrip(t *testing.T) {
	snap := sampleSnapshot()

	buf := marshalCacheSnapshot(snap)
	assert.Equal(t, cacheSnapshotSize(snap), len(buf))

	decoded, err := unmarshalCacheSnapshot(buf)
	require.NoError(t, err)

	assert.Equal(t, snap.FormatVersion, decoded.FormatVersion)
	assert.Equal(t, snap.ToolVersion, decoded.ToolVersion)
	assert.Equal(t, snap.ConfigHash, decoded.ConfigHash)
	require.Len(t, decoded.Entries, 2)
	assert.Equal(t, snap.Entries[0].Path, decoded.Entries[0].Path)
	assert.Equal(t, snap.Entries[0].Key, decoded.Entries[0].Key)
	assert.Equal(t, snap.Entries[0].Violations, decoded.Entries[0].Violations)
	assert.Equal(t, snap.Entries[1].Key, decoded.Entries[1].Key)
	assert.Empty(t, decoded.Entries[1].Violations)
}

func TestCacheSnapshotEmpty(t *testing.T) {
	snap := cacheSnapshot{
		FormatVersion: CacheFormatVersion,
		ToolVersion:   Version,
		ConfigHash:    1,
	}

	decoded, err := unmarshalCacheSnapshot(marshalCacheSnapshot(snap))
	require.NoError(t, err)
	assert.Empty(t, decoded.Entries)
}

func TestUnmarshalTruncatedBuffer(t *testing.T) {
	buf := marshalCacheSnapshot(sampleSnapshot())

	// Every proper prefix must fail cleanly, never panic.
	for cut := 0; cut < len(buf); cut++ {
		_, err := unmarshalCacheSnapshot(buf[:cut])
		assert.Error(t, err, "prefix of %d bytes decoded without error", cut)
	}
}

func TestUnmarshalStringBoundsCheck(t *testing.T) {
	// Length prefix claims more bytes than the buffer holds.
	_, _, err := unmarshalString([]byte{0x20, 'a', 'b'})
	require.Error(t, err)
}

// snapshotWithEntryCount encodes a valid header followed by the given entry
// count and no entry bytes.
func snapshotWithEntryCount(count uint64) []byte {
	buf := make([]byte, 64)
	n := varint.Uint32.Marshal(CacheFormatVersion, buf)
	n += ord.MarshalString(Version, varint.PositiveInt, buf[n:])
	n += varint.Uint64.Marshal(1, buf[n:])
	n += varint.Uint64.Marshal(count, buf[n:])
	return buf[:n]
}

func TestUnmarshalRejectsImplausibleEntryCount(t *testing.T) {
	// A flipped byte in the count must surface as a decode error, never a
	// panic or a giant allocation.
	for _, count := range []uint64{1 << 60, 1 << 45, 200} {
		_, err := unmarshalCacheSnapshot(snapshotWithEntryCount(count))
		require.Error(t, err, "count %d decoded without error", count)
	}
}

func TestUnmarshalRejectsImplausibleViolationCount(t *testing.T) {
	buf := make([]byte, 128)
	n := varint.Uint32.Marshal(CacheFormatVersion, buf)
	n += ord.MarshalString(Version, varint.PositiveInt, buf[n:])
	n += varint.Uint64.Marshal(1, buf[n:])
	n += varint.Uint64.Marshal(1, buf[n:]) // one entry follows
	n += ord.MarshalString("/p/a.go", varint.PositiveInt, buf[n:])
	n += varint.Int64.Marshal(1700000000, buf[n:])
	n += varint.Int64.Marshal(0, buf[n:])
	n += varint.Int64.Marshal(42, buf[n:])
	n += varint.Uint64.Marshal(1<<60, buf[n:])

	_, err := unmarshalCacheSnapshot(buf[:n])
	require.Error(t, err)
}
