package quench

import (
	"fmt"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/varint"
)

// The on-disk cache body is MUS-encoded: varint scalars, length-prefixed
// strings, no schema overhead. The layout is a header (format version, tool
// version, config hash) followed by path-sorted entry records. Bump
// CacheFormatVersion for any change here.

type cacheSnapshot struct {
	FormatVersion uint32
	ToolVersion   string
	ConfigHash    uint64
	Entries       []cacheEntryRecord
}

type cacheEntryRecord struct {
	Path       string
	Key        CacheKey
	Violations []Violation
}

func cacheSnapshotSize(s cacheSnapshot) int {
	size := varint.Uint32.Size(s.FormatVersion)
	size += ord.SizeString(s.ToolVersion, varint.PositiveInt)
	size += varint.Uint64.Size(s.ConfigHash)
	size += varint.Uint64.Size(uint64(len(s.Entries)))
	for _, e := range s.Entries {
		size += entryRecordSize(e)
	}
	return size
}

func marshalCacheSnapshot(s cacheSnapshot) []byte {
	buf := make([]byte, cacheSnapshotSize(s))
	n := varint.Uint32.Marshal(s.FormatVersion, buf)
	n += ord.MarshalString(s.ToolVersion, varint.PositiveInt, buf[n:])
	n += varint.Uint64.Marshal(s.ConfigHash, buf[n:])
	n += varint.Uint64.Marshal(uint64(len(s.Entries)), buf[n:])
	for _, e := range s.Entries {
		n += marshalEntryRecordTo(e, buf[n:])
	}
	return buf[:n]
}

func unmarshalCacheSnapshot(buf []byte) (cacheSnapshot, error) {
	var s cacheSnapshot

	version, n, err := varint.Uint32.Unmarshal(buf)
	if err != nil {
		return s, fmt.Errorf("failed to unmarshal format version: %w", err)
	}
	s.FormatVersion = version

	var m int
	s.ToolVersion, m, err = unmarshalString(buf[n:])
	if err != nil {
		return s, fmt.Errorf("failed to unmarshal tool version: %w", err)
	}
	n += m

	s.ConfigHash, m, err = varint.Uint64.Unmarshal(buf[n:])
	if err != nil {
		return s, fmt.Errorf("failed to unmarshal config hash: %w", err)
	}
	n += m

	count, m, err := varint.Uint64.Unmarshal(buf[n:])
	if err != nil {
		return s, fmt.Errorf("failed to unmarshal entry count: %w", err)
	}
	n += m

	// Each record occupies at least one byte; a count beyond the remaining
	// bytes is corruption. Reject it before allocating.
	if count > uint64(len(buf)-n) {
		return s, fmt.Errorf("implausible entry count %d with %d bytes remaining", count, len(buf)-n)
	}

	s.Entries = make([]cacheEntryRecord, count)
	for i := uint64(0); i < count; i++ {
		rec, read, err := unmarshalEntryRecordFrom(buf[n:])
		if err != nil {
			return s, fmt.Errorf("failed to unmarshal entry at index %d: %w", i, err)
		}
		s.Entries[i] = rec
		n += read
	}

	return s, nil
}

func entryRecordSize(e cacheEntryRecord) int {
	size := ord.SizeString(e.Path, varint.PositiveInt)
	size += varint.Int64.Size(e.Key.MTimeSec)
	size += varint.Int64.Size(e.Key.MTimeNsec)
	size += varint.Int64.Size(e.Key.Size)
	size += varint.Uint64.Size(uint64(len(e.Violations)))
	for _, v := range e.Violations {
		size += violationSize(v)
	}
	return size
}

func marshalEntryRecordTo(e cacheEntryRecord, buf []byte) int {
	n := ord.MarshalString(e.Path, varint.PositiveInt, buf)
	n += varint.Int64.Marshal(e.Key.MTimeSec, buf[n:])
	n += varint.Int64.Marshal(e.Key.MTimeNsec, buf[n:])
	n += varint.Int64.Marshal(e.Key.Size, buf[n:])
	n += varint.Uint64.Marshal(uint64(len(e.Violations)), buf[n:])
	for _, v := range e.Violations {
		n += marshalViolationTo(v, buf[n:])
	}
	return n
}

func unmarshalEntryRecordFrom(buf []byte) (cacheEntryRecord, int, error) {
	var e cacheEntryRecord
	var n, m int
	var err error

	e.Path, n, err = unmarshalString(buf)
	if err != nil {
		return e, n, fmt.Errorf("failed to unmarshal Path: %w", err)
	}

	e.Key.MTimeSec, m, err = varint.Int64.Unmarshal(buf[n:])
	if err != nil {
		return e, n, fmt.Errorf("failed to unmarshal MTimeSec: %w", err)
	}
	n += m

	e.Key.MTimeNsec, m, err = varint.Int64.Unmarshal(buf[n:])
	if err != nil {
		return e, n, fmt.Errorf("failed to unmarshal MTimeNsec: %w", err)
	}
	n += m

	e.Key.Size, m, err = varint.Int64.Unmarshal(buf[n:])
	if err != nil {
		return e, n, fmt.Errorf("failed to unmarshal Size: %w", err)
	}
	n += m

	count, m, err := varint.Uint64.Unmarshal(buf[n:])
	if err != nil {
		return e, n, fmt.Errorf("failed to unmarshal violation count: %w", err)
	}
	n += m

	if count > uint64(len(buf)-n) {
		return e, n, fmt.Errorf("implausible violation count %d with %d bytes remaining", count, len(buf)-n)
	}

	e.Violations = make([]Violation, count)
	for i := uint64(0); i < count; i++ {
		v, read, err := unmarshalViolationFrom(buf[n:])
		if err != nil {
			return e, n, fmt.Errorf("failed to unmarshal violation at index %d: %w", i, err)
		}
		e.Violations[i] = v
		n += read
	}

	return e, n, nil
}

func violationSize(v Violation) int {
	size := ord.SizeString(v.File, varint.PositiveInt)
	size += varint.PositiveInt.Size(v.Line)
	size += ord.SizeString(v.Check, varint.PositiveInt)
	size += ord.SizeString(v.Kind, varint.PositiveInt)
	size += ord.SizeString(v.Message, varint.PositiveInt)
	size += ord.SizeString(v.Advice, varint.PositiveInt)
	size += ord.SizeString(string(v.Severity), varint.PositiveInt)
	return size
}

func marshalViolationTo(v Violation, buf []byte) int {
	n := ord.MarshalString(v.File, varint.PositiveInt, buf)
	n += varint.PositiveInt.Marshal(v.Line, buf[n:])
	n += ord.MarshalString(v.Check, varint.PositiveInt, buf[n:])
	n += ord.MarshalString(v.Kind, varint.PositiveInt, buf[n:])
	n += ord.MarshalString(v.Message, varint.PositiveInt, buf[n:])
	n += ord.MarshalString(v.Advice, varint.PositiveInt, buf[n:])
	n += ord.MarshalString(string(v.Severity), varint.PositiveInt, buf[n:])
	return n
}

func unmarshalViolationFrom(buf []byte) (Violation, int, error) {
	var v Violation
	var n, m int
	var err error

	v.File, n, err = unmarshalString(buf)
	if err != nil {
		return v, n, fmt.Errorf("failed to unmarshal File: %w", err)
	}

	v.Line, m, err = varint.PositiveInt.Unmarshal(buf[n:])
	if err != nil {
		return v, n, fmt.Errorf("failed to unmarshal Line: %w", err)
	}
	n += m

	v.Check, m, err = unmarshalString(buf[n:])
	if err != nil {
		return v, n, fmt.Errorf("failed to unmarshal Check: %w", err)
	}
	n += m

	v.Kind, m, err = unmarshalString(buf[n:])
	if err != nil {
		return v, n, fmt.Errorf("failed to unmarshal Kind: %w", err)
	}
	n += m

	v.Message, m, err = unmarshalString(buf[n:])
	if err != nil {
		return v, n, fmt.Errorf("failed to unmarshal Message: %w", err)
	}
	n += m

	v.Advice, m, err = unmarshalString(buf[n:])
	if err != nil {
		return v, n, fmt.Errorf("failed to unmarshal Advice: %w", err)
	}
	n += m

	var severity string
	severity, m, err = unmarshalString(buf[n:])
	if err != nil {
		return v, n, fmt.Errorf("failed to unmarshal Severity: %w", err)
	}
	n += m
	v.Severity = Severity(severity)

	return v, n, nil
}

// unmarshalString decodes a varint-length-prefixed string, the counterpart
// of ord.MarshalString with varint.PositiveInt lengths.
func unmarshalString(data []byte) (string, int, error) {
	length, bytesRead, err := varint.PositiveInt.Unmarshal(data)
	if err != nil {
		return "", 0, fmt.Errorf("failed to read string length: %w", err)
	}

	if len(data[bytesRead:]) < length {
		return "", bytesRead, fmt.Errorf("buffer too small for string of length %d", length)
	}

	str := string(data[bytesRead : bytesRead+length])
	return str, bytesRead + length, nil
}
