package quench

import (
	"bufio"
	"bytes"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// IgnoreMatcher decides whether a discovered entry is excluded from a walk.
// Exclusion is the union of custom globs from the config and, when enabled,
// patterns from the project's .gitignore. No ignore-pattern library ships in
// our dependency set, so a pragmatic subset is implemented here: segment
// globs, `**/` prefixes, anchored patterns, dir-only patterns and `!`
// negation (gitignore only, last match wins).
type IgnoreMatcher struct {
	globs []string
	vcs   []vcsPattern
}

type vcsPattern struct {
	pattern  string
	negate   bool
	dirOnly  bool
	anchored bool
}

// NewIgnoreMatcher builds a matcher for the given custom globs.
func NewIgnoreMatcher(globs []string) *IgnoreMatcher {
	return &IgnoreMatcher{globs: globs}
}

// LoadGitignore reads root/.gitignore into the matcher. A missing file is
// fine; a read failure is surfaced so the walker can record it.
func (m *IgnoreMatcher) LoadGitignore(fs afero.Fs, root string) error {
	path := JoinPaths(root, ".gitignore")
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		if exists, _ := afero.Exists(fs, path); !exists {
			return nil
		}
		return NewWalkError("failed to read .gitignore", err).WithFile(path)
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		p := vcsPattern{pattern: line}
		if strings.HasPrefix(p.pattern, "!") {
			p.negate = true
			p.pattern = p.pattern[1:]
		}
		if strings.HasSuffix(p.pattern, "/") {
			p.dirOnly = true
			p.pattern = strings.TrimSuffix(p.pattern, "/")
		}
		if strings.HasPrefix(p.pattern, "/") {
			p.anchored = true
			p.pattern = p.pattern[1:]
		} else if strings.Contains(p.pattern, "/") && !strings.HasPrefix(p.pattern, "**/") {
			// gitignore treats a pattern with an inner slash as anchored.
			p.anchored = true
		}
		if p.pattern == "" {
			continue
		}
		m.vcs = append(m.vcs, p)
	}
	return scanner.Err()
}

// Match reports whether the entry at rel (slash-separated, relative to the
// walk root) is excluded.
func (m *IgnoreMatcher) Match(rel string, isDir bool) bool {
	rel = strings.TrimPrefix(NormalizePath(rel), "./")
	if rel == "" || rel == "." {
		return false
	}

	for _, g := range m.globs {
		if matchGlob(g, rel, isDir) {
			return true
		}
	}

	ignored := false
	for _, p := range m.vcs {
		if p.dirOnly && !isDir && !dirComponentMatch(p, rel) {
			continue
		}
		if vcsMatch(p, rel) {
			ignored = !p.negate
		}
	}
	return ignored
}

// matchGlob applies one custom glob against a relative path. Patterns with a
// trailing slash match directories only; `**/` prefixes match at any depth;
// bare patterns match the basename or the whole relative path.
func matchGlob(pattern, rel string, isDir bool) bool {
	if strings.HasSuffix(pattern, "/") {
		if !isDir {
			return false
		}
		pattern = strings.TrimSuffix(pattern, "/")
	}

	if rest, ok := strings.CutPrefix(pattern, "**/"); ok {
		return matchAtAnyDepth(rest, rel)
	}

	if ok, err := filepath.Match(pattern, rel); err == nil && ok {
		return true
	}
	if !strings.Contains(pattern, "/") {
		if ok, err := filepath.Match(pattern, filepath.Base(rel)); err == nil && ok {
			return true
		}
	}
	return false
}

// matchAtAnyDepth tries the pattern against every segment-aligned suffix of
// rel, which is what a leading `**/` means.
func matchAtAnyDepth(pattern, rel string) bool {
	segments := strings.Split(rel, "/")
	for i := range segments {
		suffix := strings.Join(segments[i:], "/")
		if ok, err := filepath.Match(pattern, suffix); err == nil && ok {
			return true
		}
	}
	return false
}

func vcsMatch(p vcsPattern, rel string) bool {
	pattern := strings.TrimPrefix(p.pattern, "**/")
	if p.anchored {
		if ok, err := filepath.Match(p.pattern, rel); err == nil && ok {
			return true
		}
		// An anchored directory pattern also ignores everything below it.
		return IsSubPath(p.pattern, rel) && p.pattern != rel
	}
	return matchAtAnyDepth(pattern, rel) || dirComponentMatch(p, rel)
}

// dirComponentMatch reports whether any ancestor directory component of rel
// matches the pattern, so files under an ignored directory are excluded too.
func dirComponentMatch(p vcsPattern, rel string) bool {
	pattern := strings.TrimPrefix(p.pattern, "**/")
	if strings.Contains(pattern, "/") {
		return false
	}
	segments := strings.Split(rel, "/")
	for _, seg := range segments[:max(len(segments)-1, 0)] {
		if ok, err := filepath.Match(pattern, seg); err == nil && ok {
			return true
		}
	}
	return false
}
