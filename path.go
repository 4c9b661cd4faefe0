package quench

import (
	"path/filepath"
	"strings"
)

// NormalizePath converts a path to use forward slashes consistently
// regardless of the operating system and cleans the path.
// It removes redundant separators, dot-segments, and normalizes separators
// to forward slashes. Empty paths remain empty.
func NormalizePath(path string) string {
	if path == "" {
		return ""
	}

	cleaned := filepath.Clean(path)
	return strings.ReplaceAll(cleaned, "\\", "/")
}

// JoinPaths joins path elements and normalizes the result.
func JoinPaths(elem ...string) string {
	return NormalizePath(filepath.Join(elem...))
}

// RelPath returns child relative to root with forward slashes. When child is
// not under root it is returned normalized as-is; ignore matching then runs
// against the full path, which is the safe direction.
func RelPath(root, child string) string {
	rel, err := filepath.Rel(root, child)
	if err != nil {
		return NormalizePath(child)
	}
	return NormalizePath(rel)
}

// IsSubPath checks if childPath is inside parentPath.
// Both paths are normalized before comparison.
func IsSubPath(parentPath, childPath string) bool {
	normalizedParent := NormalizePath(parentPath)
	normalizedChild := NormalizePath(childPath)

	if normalizedParent == "" || normalizedParent == "." {
		return true
	}

	if normalizedParent == normalizedChild {
		return true
	}

	if !strings.HasSuffix(normalizedParent, "/") {
		normalizedParent += "/"
	}

	return strings.HasPrefix(normalizedChild, normalizedParent)
}

// IsHidden reports whether a path component is hidden by dot-prefix
// convention. "." and ".." are not considered hidden.
func IsHidden(name string) bool {
	return len(name) > 1 && strings.HasPrefix(name, ".") && name != ".."
}
