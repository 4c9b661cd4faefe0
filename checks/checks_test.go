package checks

import (
	"io"
	"log/slog"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gophersatwork/quench"
)

func testContext(fs afero.Fs, root string) *quench.CheckContext {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return &quench.CheckContext{
		Root:   root,
		Config: quench.DefaultConfig(),
		Reader: quench.NewReader(fs, logger),
		Logger: logger,
		FS:     fs,
	}
}

func descriptor(fs afero.Fs, t *testing.T, path string) quench.FileDescriptor {
	t.Helper()
	info, err := fs.Stat(path)
	require.NoError(t, err)
	return quench.FileDescriptor{
		Path:      path,
		Size:      info.Size(),
		MTimeSec:  info.ModTime().Unix(),
		MTimeNsec: int64(info.ModTime().Nanosecond()),
	}
}

func TestEnabledDefaultsToAllChecks(t *testing.T) {
	checks, err := Enabled(quench.DefaultConfig())
	require.NoError(t, err)

	names := make([]string, len(checks))
	for i, c := range checks {
		names[i] = c.Name()
	}
	assert.ElementsMatch(t, []string{"line-limit", "escape-hatch", "import-guard"}, names)
}

func TestEnabledFiltersByName(t *testing.T) {
	cfg := quench.DefaultConfig()
	cfg.Checks = []string{"line-limit"}

	checks, err := Enabled(cfg)
	require.NoError(t, err)
	require.Len(t, checks, 1)
	assert.Equal(t, "line-limit", checks[0].Name())
}

func TestEnabledUnknownNameYieldsNothing(t *testing.T) {
	cfg := quench.DefaultConfig()
	cfg.Checks = []string{"no-such-check"}

	checks, err := Enabled(cfg)
	require.NoError(t, err)
	assert.Empty(t, checks)
}

func TestEnabledBadEscapePattern(t *testing.T) {
	cfg := quench.DefaultConfig()
	cfg.Escapes.Patterns = []string{"("}

	_, err := Enabled(cfg)
	require.Error(t, err)
}

func TestIsSourceFile(t *testing.T) {
	assert.True(t, isSourceFile("main.go"))
	assert.True(t, isSourceFile("APP.JS"))
	assert.True(t, isSourceFile("script.py"))
	assert.False(t, isSourceFile("README.md"))
	assert.False(t, isSourceFile("image.png"))
	assert.False(t, isSourceFile("Makefile"))
}
