package quench

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePath(t *testing.T) {
	tests := map[string]struct {
		in   string
		want string
	}{
		"empty":                {in: "", want: ""},
		"already clean":        {in: "/p/a.go", want: "/p/a.go"},
		"redundant separators": {in: "/p//sub///a.go", want: "/p/sub/a.go"},
		"dot segments":         {in: "/p/./sub/../a.go", want: "/p/a.go"},
		"trailing slash":       {in: "/p/sub/", want: "/p/sub"},
		"relative":             {in: "./a/b", want: "a/b"},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, test.want, NormalizePath(test.in))
		})
	}
}

func TestJoinPaths(t *testing.T) {
	assert.Equal(t, "/p/sub/a.go", JoinPaths("/p", "sub", "a.go"))
	assert.Equal(t, "a/b", JoinPaths("a", "", "b"))
}

func TestRelPath(t *testing.T) {
	assert.Equal(t, "sub/a.go", RelPath("/p", "/p/sub/a.go"))
	assert.Equal(t, ".", RelPath("/p", "/p"))
	assert.Equal(t, "../q/a.go", RelPath("/p", "/q/a.go"))
}

func TestIsSubPath(t *testing.T) {
	tests := map[string]struct {
		parent string
		child  string
		want   bool
	}{
		"direct child":       {parent: "internal/core", child: "internal/core/db", want: true},
		"same path":          {parent: "internal/core", child: "internal/core", want: true},
		"sibling":            {parent: "internal/core", child: "internal/ui", want: false},
		"prefix but not dir": {parent: "internal/core", child: "internal/corex", want: false},
		"empty parent":       {parent: "", child: "anything", want: true},
		"dot parent":         {parent: ".", child: "anything", want: true},
		"deeper nesting":     {parent: "a", child: "a/b/c/d", want: true},
		"child above parent": {parent: "a/b", child: "a", want: false},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, test.want, IsSubPath(test.parent, test.child))
		})
	}
}

func TestIsHidden(t *testing.T) {
	assert.True(t, IsHidden(".git"))
	assert.True(t, IsHidden(".quench"))
	assert.False(t, IsHidden("main.go"))
	assert.False(t, IsHidden("."))
	assert.False(t, IsHidden(".."))
}
