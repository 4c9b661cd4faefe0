package quench

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

// Config holds every knob the pipeline consumes. It is produced by
// LoadConfig (quench.toml) or assembled directly by embedding callers.
type Config struct {
	// Checks lists enabled check names. Empty means every registered check.
	Checks []string `toml:"checks" mapstructure:"checks"`

	// Walker settings.
	IgnoreGlobs      []string `toml:"ignore" mapstructure:"ignore"`
	RespectGitignore bool     `toml:"respect_gitignore" mapstructure:"respect_gitignore"`
	IncludeHidden    bool     `toml:"include_hidden" mapstructure:"include_hidden"`
	MaxDepth         int      `toml:"max_depth" mapstructure:"max_depth"`

	// Runner settings.
	Threads        int           `toml:"threads" mapstructure:"threads"`
	ViolationLimit int           `toml:"violation_limit" mapstructure:"violation_limit"`
	CheckTimeout   time.Duration `toml:"check_timeout" mapstructure:"check_timeout"`

	// Cache settings.
	CacheEnabled bool   `toml:"cache" mapstructure:"cache"`
	CachePath    string `toml:"cache_path" mapstructure:"cache_path"`

	// Built-in check settings.
	LineLimit   LineLimitConfig `toml:"line_limit" mapstructure:"line_limit"`
	Escapes     EscapesConfig   `toml:"escapes" mapstructure:"escapes"`
	ImportRules []ImportRule    `toml:"import_rules" mapstructure:"import_rules"`
}

// LineLimitConfig bounds file and line length for the line-limit check.
type LineLimitConfig struct {
	MaxLines      int `toml:"max_lines" mapstructure:"max_lines"`
	MaxLineLength int `toml:"max_line_length" mapstructure:"max_line_length"`
}

// EscapesConfig lists escape-hatch patterns flagged by the escapes check.
type EscapesConfig struct {
	Patterns []string `toml:"patterns" mapstructure:"patterns"`
}

// ImportRule restricts imports for files under a path prefix.
type ImportRule struct {
	Path       string             `toml:"path" mapstructure:"path"`
	Allowed    []string           `toml:"allowed" mapstructure:"allowed"`
	Prohibited []ProhibitedImport `toml:"prohibited" mapstructure:"prohibited"`
}

// ProhibitedImport names a banned import and why it is banned.
type ProhibitedImport struct {
	Name  string `toml:"name" mapstructure:"name"`
	Cause string `toml:"cause" mapstructure:"cause"`
}

// DefaultCachePath is resolved relative to the project root.
const DefaultCachePath = ".quench/cache.bin"

// DefaultConfig returns the configuration used when no config file exists.
func DefaultConfig() Config {
	return Config{
		MaxDepth:       100,
		Threads:        0, // auto
		ViolationLimit: 100,
		CheckTimeout:   30 * time.Second,
		CacheEnabled:   true,
		CachePath:      DefaultCachePath,
		LineLimit: LineLimitConfig{
			MaxLines:      1000,
			MaxLineLength: 0, // disabled
		},
	}
}

// LoadConfig reads quench.toml from cfgFile, or searches root, the working
// directory and root/.quench. A missing config file is not an error; the
// defaults apply.
func LoadConfig(fs afero.Fs, root string, cfgFile string) (Config, error) {
	v := viper.New()
	v.SetFs(fs)
	v.SetConfigType("toml")

	explicit := false
	if cfgFile != "" {
		info, statErr := fs.Stat(cfgFile)
		if statErr != nil || info.IsDir() {
			return Config{}, NewConfigError("config file not found", statErr).WithFile(cfgFile)
		}
		v.SetConfigFile(cfgFile)
		explicit = true
	} else {
		v.SetConfigName("quench")
		v.AddConfigPath(root)
		v.AddConfigPath(".")
		v.AddConfigPath(JoinPaths(root, ".quench"))
	}

	def := DefaultConfig()
	v.SetDefault("max_depth", def.MaxDepth)
	v.SetDefault("threads", def.Threads)
	v.SetDefault("violation_limit", def.ViolationLimit)
	v.SetDefault("check_timeout", def.CheckTimeout)
	v.SetDefault("cache", def.CacheEnabled)
	v.SetDefault("cache_path", def.CachePath)
	v.SetDefault("line_limit.max_lines", def.LineLimit.MaxLines)
	v.SetDefault("line_limit.max_line_length", def.LineLimit.MaxLineLength)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !explicit && errors.As(err, &notFound) {
			return def, nil
		}
		return Config{}, NewConfigError("failed loading config file", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return Config{}, NewConfigError("failed unmarshaling config file", err)
	}

	return config, nil
}

// Hash returns a deterministic digest over every field that can change what
// a check computes for a file: enablement, traversal filters and per-check
// settings. Runtime-only knobs (threads, violation limit, cache path, check
// timeout) are excluded; skipped checks are never cached, so the timeout
// cannot alter a cached result.
func (c Config) Hash() uint64 {
	d := xxhash.New()

	checks := append([]string(nil), c.Checks...)
	sort.Strings(checks)
	for _, name := range checks {
		fmt.Fprintf(d, "check=%q;", name)
	}

	for _, g := range c.IgnoreGlobs {
		fmt.Fprintf(d, "ignore=%q;", g)
	}
	fmt.Fprintf(d, "vcs=%t;hidden=%t;depth=%d;", c.RespectGitignore, c.IncludeHidden, c.MaxDepth)

	fmt.Fprintf(d, "linelimit=%d,%d;", c.LineLimit.MaxLines, c.LineLimit.MaxLineLength)
	for _, p := range c.Escapes.Patterns {
		fmt.Fprintf(d, "escape=%q;", p)
	}
	for _, r := range c.ImportRules {
		fmt.Fprintf(d, "rule=%q:", r.Path)
		for _, a := range r.Allowed {
			fmt.Fprintf(d, "allow=%q,", a)
		}
		for _, p := range r.Prohibited {
			fmt.Fprintf(d, "deny=%q(%q),", p.Name, p.Cause)
		}
		fmt.Fprint(d, ";")
	}

	return d.Sum64()
}
