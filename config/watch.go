package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/revuhq/revu/budget"
)

// debounceWindow coalesces the burst of fsnotify events editors emit on
// a single save.
const debounceWindow = 250 * time.Millisecond

// WatchBudget watches a config file and calls onChange with the new
// budget limits whenever the file is rewritten. Spend caps are the one
// setting operators adjust mid-flight; everything else waits for a
// restart. Blocks until ctx is done.
func WatchBudget(ctx context.Context, path string, logger *slog.Logger, onChange func(budget.Config)) error {
	if logger == nil {
		logger = slog.Default()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory, not the file: editors replace files by
	// rename, which drops a file-level watch.
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	base := filepath.Base(path)
	var timer *time.Timer
	fire := make(chan struct{}, 1)

	logger.Info("Watching config for budget changes", "path", path)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != base {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounceWindow, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})

		case <-fire:
			cfg, err := LoadFromFile(path)
			if err != nil {
				logger.Warn("Budget reload skipped, config unreadable",
					"path", path, "error", err)
				continue
			}
			if err := cfg.Validate(); err != nil {
				logger.Warn("Budget reload skipped, config invalid",
					"path", path, "error", err)
				continue
			}
			logger.Info("Budget limits reloaded",
				"daily", cfg.Budget.DailyBudgetUSD,
				"per_pr", cfg.Budget.PerPRBudgetUSD,
				"monthly", cfg.Budget.MonthlyBudgetUSD)
			onChange(cfg.Budget)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("Config watcher error", "error", err)
		}
	}
}
