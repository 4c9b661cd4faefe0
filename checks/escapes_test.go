package checks

import (
	"context"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gophersatwork/quench"
)

func TestNewEscapesInvalidPattern(t *testing.T) {
	_, err := NewEscapes(quench.EscapesConfig{Patterns: []string{"[unclosed"}})
	require.Error(t, err)

	info, ok := quench.GetErrorInfo(err)
	require.True(t, ok)
	assert.Equal(t, quench.ErrorTypeConfig, info.Type)
}

func TestEscapesDefaultPatterns(t *testing.T) {
	memFs := afero.NewMemMapFs()
	content := `package p

func f() { // nothing here
	_ = 1 //nolint
}
`
	require.NoError(t, afero.WriteFile(memFs, "/p/a.go", []byte(content), 0o644))

	c, err := NewEscapes(quench.EscapesConfig{})
	require.NoError(t, err)

	result, err := c.Run(context.Background(),
		[]quench.FileDescriptor{descriptor(memFs, t, "/p/a.go")},
		testContext(memFs, "/p"))
	require.NoError(t, err)

	require.Len(t, result.Violations, 1)
	v := result.Violations[0]
	assert.Equal(t, 4, v.Line)
	assert.Equal(t, "escape-hatch", v.Kind)
	assert.Equal(t, quench.SeverityWarning, v.Severity)
	assert.Contains(t, v.Message, "//nolint")
}

func TestEscapesFindsVariousMarkers(t *testing.T) {
	tests := map[string]struct {
		file    string
		content string
		hits    int
	}{
		"python noqa": {
			file:    "/p/a.py",
			content: "x = 1  # noqa\ny = 2\n",
			hits:    1,
		},
		"python type ignore": {
			file:    "/p/b.py",
			content: "import foo  # type: ignore\n",
			hits:    1,
		},
		"typescript": {
			file:    "/p/c.ts",
			content: "// @ts-ignore\nbad()\n// @ts-nocheck\n",
			hits:    2,
		},
		"eslint": {
			file:    "/p/d.js",
			content: "/* eslint-disable */\n",
			hits:    1,
		},
		"clean file": {
			file:    "/p/e.go",
			content: "package e\n",
			hits:    0,
		},
	}

	c, err := NewEscapes(quench.EscapesConfig{})
	require.NoError(t, err)

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			memFs := afero.NewMemMapFs()
			require.NoError(t, afero.WriteFile(memFs, test.file, []byte(test.content), 0o644))

			result, err := c.Run(context.Background(),
				[]quench.FileDescriptor{descriptor(memFs, t, test.file)},
				testContext(memFs, "/p"))
			require.NoError(t, err)
			assert.Len(t, result.Violations, test.hits)
		})
	}
}

func TestEscapesOneViolationPerLine(t *testing.T) {
	memFs := afero.NewMemMapFs()
	// Two markers on one line still produce a single violation.
	require.NoError(t, afero.WriteFile(memFs, "/p/a.go",
		[]byte("_ = 1 //nolint // eslint-disable\n"), 0o644))

	c, err := NewEscapes(quench.EscapesConfig{})
	require.NoError(t, err)

	result, err := c.Run(context.Background(),
		[]quench.FileDescriptor{descriptor(memFs, t, "/p/a.go")},
		testContext(memFs, "/p"))
	require.NoError(t, err)
	assert.Len(t, result.Violations, 1)
}

func TestEscapesCustomPatterns(t *testing.T) {
	memFs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(memFs, "/p/a.go",
		[]byte("// HACK: temporary\n_ = 1 //nolint\n"), 0o644))

	c, err := NewEscapes(quench.EscapesConfig{Patterns: []string{`// HACK`}})
	require.NoError(t, err)

	result, err := c.Run(context.Background(),
		[]quench.FileDescriptor{descriptor(memFs, t, "/p/a.go")},
		testContext(memFs, "/p"))
	require.NoError(t, err)

	// Custom patterns replace the defaults outright.
	require.Len(t, result.Violations, 1)
	assert.Equal(t, 1, result.Violations[0].Line)
}
