package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/charmbracelet/fang"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/gophersatwork/quench"
	"github.com/gophersatwork/quench/checks"
)

var (
	cfgFile   string
	path      string
	format    string
	verbose   bool
	watchMode bool
	noCache   bool
)

// errChecksFailed drives the non-zero exit code without extra noise; the
// formatter already printed the details.
var errChecksFailed = errors.New("quality checks failed")

func main() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is quench.toml in the project root)")
	rootCmd.PersistentFlags().StringVar(&path, "path", ".", "project root to check")
	rootCmd.PersistentFlags().StringVar(&format, "format", "text", "output format (text, json)")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable verbose logging")
	rootCmd.PersistentFlags().BoolVar(&watchMode, "watch", false, "re-run checks on file changes")
	rootCmd.PersistentFlags().BoolVar(&noCache, "no-cache", false, "disable the result cache for this run")

	if err := fang.Execute(context.Background(), rootCmd); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "quench",
	Short: "A fast, cache-backed code quality checker",
	Long: `Quench runs a suite of independent quality checks over a source tree.
Results are cached per file, so repeated runs only pay for what changed.`,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		logLevel := slog.LevelWarn
		if verbose {
			logLevel = slog.LevelDebug
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: logLevel,
		}))

		fs := afero.NewOsFs()

		cfg, err := quench.LoadConfig(fs, path, cfgFile)
		if err != nil {
			logger.Error("Failed to load configuration", "error", err)
			return err
		}
		if noCache {
			cfg.CacheEnabled = false
		}

		enabled, err := checks.Enabled(cfg)
		if err != nil {
			logger.Error("Failed to build checks", "error", err)
			return err
		}

		formatter, err := quench.NewFormatter(quench.OutputFormat(format))
		if err != nil {
			return err
		}

		if watchMode {
			return runWatch(cfg, enabled, logger, fs, formatter)
		}

		runner := quench.NewRunner(cfg, logger, fs, path, enabled)

		result, err := runner.Run(cmd.Context())
		if err != nil {
			logger.Error("Run failed", "error", err)
			return err
		}

		// Persist in the background while the report renders; join before
		// exit so a write failure still gets its warning.
		persist := runner.PersistCacheAsync()

		out, err := formatter.Format(result)
		if err != nil {
			return err
		}
		fmt.Print(string(out))

		if err := persist.Wait(); err != nil {
			logger.Warn("Failed to persist cache", "error", err)
		}

		if result.Failed() {
			return errChecksFailed
		}
		return nil
	},
}

func runWatch(cfg quench.Config, enabled []quench.Check, logger *slog.Logger, fs afero.Fs, formatter quench.Formatter) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	wm, err := quench.NewWatchMode(quench.WatchConfig{
		Root:       path,
		ConfigPath: cfgFile,
		Config:     cfg,
		Checks:     enabled,
		Logger:     logger,
		FS:         fs,
		Formatter:  formatter,
	})
	if err != nil {
		return err
	}
	defer wm.Stop()

	return wm.Start(ctx)
}
