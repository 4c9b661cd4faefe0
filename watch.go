package quench

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/afero"
)

// WatchMode re-runs the pipeline whenever the tree changes. Re-runs are
// full runs: the cache keeps them warm, so only changed files pay for
// check execution.
type WatchMode struct {
	runner     *Runner
	cfg        Config
	checks     []Check
	root       string
	configPath string
	logger     *slog.Logger
	fs         afero.Fs
	formatter  Formatter

	watcher      *fsnotify.Watcher
	debounceTime time.Duration

	// Debouncing state
	mu             sync.Mutex
	pendingChanges map[string]time.Time
	debounceTimer  *time.Timer
}

// WatchConfig holds configuration for watch mode
type WatchConfig struct {
	Root         string
	ConfigPath   string
	Config       Config
	Checks       []Check
	Logger       *slog.Logger
	FS           afero.Fs
	DebounceTime time.Duration
	Formatter    Formatter
}

// NewWatchMode creates a new WatchMode instance
func NewWatchMode(wc WatchConfig) (*WatchMode, error) {
	if wc.Logger == nil {
		wc.Logger = ensureLogger(nil)
	}
	if wc.FS == nil {
		wc.FS = afero.NewOsFs()
	}
	if wc.DebounceTime == 0 {
		wc.DebounceTime = 100 * time.Millisecond
	}
	if wc.Formatter == nil {
		wc.Formatter = &TextFormatter{}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	return &WatchMode{
		runner:         NewRunner(wc.Config, wc.Logger, wc.FS, wc.Root, wc.Checks),
		cfg:            wc.Config,
		checks:         wc.Checks,
		root:           wc.Root,
		configPath:     wc.ConfigPath,
		logger:         wc.Logger,
		fs:             wc.FS,
		formatter:      wc.Formatter,
		watcher:        watcher,
		debounceTime:   wc.DebounceTime,
		pendingChanges: make(map[string]time.Time),
	}, nil
}

// Start begins watching for file changes
func (w *WatchMode) Start(ctx context.Context) error {
	w.logger.Info("Starting watch mode", "path", w.root)

	if err := w.runAndPrint(ctx); err != nil {
		return fmt.Errorf("initial run failed: %w", err)
	}

	if err := w.addDirsToWatcher(); err != nil {
		return fmt.Errorf("failed to add directories to watcher: %w", err)
	}

	if w.configPath != "" {
		if err := w.watchConfigFile(w.configPath); err != nil {
			w.logger.Warn("Failed to watch config file", "path", w.configPath, "error", err)
		}
	}

	fmt.Println(color.New(color.FgGreen, color.Bold).Sprintf("Watching %s for changes...", w.root))
	fmt.Println(color.New(color.FgHiBlack).Sprint("Press Ctrl+C to stop"))

	return w.processEvents(ctx)
}

// Stop gracefully stops the watcher and persists the cache.
func (w *WatchMode) Stop() error {
	if w.watcher != nil {
		if err := w.watcher.Close(); err != nil {
			return err
		}
	}
	if err := w.runner.PersistCache(); err != nil {
		w.logger.Warn("Failed to persist cache", "error", err)
	}
	return nil
}

// addDirsToWatcher watches every directory so new files are detected.
func (w *WatchMode) addDirsToWatcher() error {
	return w.watchTree(w.root)
}

// watchTree registers root and every non-hidden directory below it.
func (w *WatchMode) watchTree(root string) error {
	return afero.Walk(w.fs, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			w.logger.Warn("Error walking path", "path", path, "error", err)
			return nil // Continue walking
		}

		if !info.IsDir() {
			return nil
		}

		// Hidden directories hold the cache and VCS state; watching them
		// would make the tool re-trigger itself.
		if path != root && IsHidden(info.Name()) {
			return filepath.SkipDir
		}

		if err := w.watcher.Add(path); err != nil {
			w.logger.Warn("Failed to watch directory", "path", path, "error", err)
		}
		return nil
	})
}

// watchNewDir registers a directory created while watching, so files added
// inside it later still trigger re-runs.
func (w *WatchMode) watchNewDir(name string) {
	info, err := w.fs.Stat(name)
	if err != nil || !info.IsDir() {
		return
	}
	if err := w.watchTree(name); err != nil {
		w.logger.Warn("Failed to watch new directory", "path", name, "error", err)
	}
}

// watchConfigFile adds the config file's directory to the watcher
func (w *WatchMode) watchConfigFile(configPath string) error {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return err
	}
	return w.watcher.Add(filepath.Dir(absPath))
}

// processEvents handles file system events with debouncing
func (w *WatchMode) processEvents(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Stopping watch mode")
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			w.handleEvent(ctx, event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			w.logger.Error("Watcher error", "error", err)
		}
	}
}

// handleEvent processes a single file system event
func (w *WatchMode) handleEvent(ctx context.Context, event fsnotify.Event) {
	if !w.shouldProcessEvent(event) {
		return
	}

	if w.isConfigFile(event.Name) {
		w.handleConfigChange(ctx)
		return
	}

	if event.Has(fsnotify.Create) {
		w.watchNewDir(event.Name)
	}

	w.mu.Lock()
	w.pendingChanges[event.Name] = time.Now()

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(w.debounceTime, func() {
		w.processPendingChanges(ctx)
	})
	w.mu.Unlock()
}

// shouldProcessEvent filters events we care about
func (w *WatchMode) shouldProcessEvent(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
		return false
	}

	// Never react to our own cache writes.
	name := NormalizePath(event.Name)
	for _, seg := range strings.Split(RelPath(w.root, name), "/") {
		if IsHidden(seg) {
			return false
		}
	}
	return true
}

// isConfigFile checks if the event is for the config file
func (w *WatchMode) isConfigFile(path string) bool {
	if w.configPath == "" {
		return false
	}

	absConfigPath, _ := filepath.Abs(w.configPath)
	absEventPath, _ := filepath.Abs(path)

	return absConfigPath == absEventPath
}

// handleConfigChange reloads config and rebuilds the runner. A config
// change moves the cache generation, so the next run starts cold.
func (w *WatchMode) handleConfigChange(ctx context.Context) {
	w.printTimestamp()
	fmt.Println(color.New(color.FgYellow, color.Bold).Sprint("Config file changed, reloading"))

	newConfig, err := LoadConfig(w.fs, w.root, w.configPath)
	if err != nil {
		fmt.Println(color.New(color.FgRed, color.Bold).Sprintf("Failed to reload config: %v", err))
		return
	}

	w.cfg = newConfig
	w.runner = NewRunner(newConfig, w.logger, w.fs, w.root, w.checks)

	if err := w.runAndPrint(ctx); err != nil {
		fmt.Println(color.New(color.FgRed, color.Bold).Sprintf("Run failed: %v", err))
	}
}

// processPendingChanges triggers a re-run after the debounce window.
func (w *WatchMode) processPendingChanges(ctx context.Context) {
	w.mu.Lock()
	changed := len(w.pendingChanges)
	w.pendingChanges = make(map[string]time.Time)
	w.mu.Unlock()

	if changed == 0 || ctx.Err() != nil {
		return
	}

	w.printTimestamp()
	fileText := "file"
	if changed > 1 {
		fileText = "files"
	}
	fmt.Println(color.New(color.FgCyan).Sprintf("%d %s changed, re-checking...", changed, fileText))

	if err := w.runAndPrint(ctx); err != nil {
		fmt.Println(color.New(color.FgRed, color.Bold).Sprintf("Run failed: %v", err))
	}
}

func (w *WatchMode) runAndPrint(ctx context.Context) error {
	result, err := w.runner.Run(ctx)
	if err != nil {
		return err
	}

	out, err := w.formatter.Format(result)
	if err != nil {
		return err
	}
	fmt.Print(string(out))

	if err := w.runner.PersistCache(); err != nil {
		w.logger.Warn("Failed to persist cache", "error", err)
	}
	return nil
}

// printTimestamp prints the current timestamp
func (w *WatchMode) printTimestamp() {
	timestamp := time.Now().Format("15:04:05")
	fmt.Printf("[%s] ", color.New(color.FgHiBlack).Sprint(timestamp))
}
