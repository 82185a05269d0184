package catalog

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Refreshable is anything that can reload the catalog on demand.
type Refreshable interface {
	Refresh(ctx context.Context) error
}

const defaultDebounce = 250 * time.Millisecond

// FileWatcher refreshes the catalog when the feed file changes. Editors
// tend to write a file in several steps, so refreshes fire once the file
// has been quiet for the debounce period.
type FileWatcher struct {
	path     string
	target   Refreshable
	debounce time.Duration
	logger   *zap.Logger
}

// NewFileWatcher creates a watcher for path. If logger is nil, a no-op
// logger is used.
func NewFileWatcher(path string, target Refreshable, logger *zap.Logger) *FileWatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileWatcher{
		path:     filepath.Clean(path),
		target:   target,
		debounce: defaultDebounce,
		logger:   logger.Named("catalog-watcher"),
	}
}

// WithDebounce overrides the quiet period.
func (w *FileWatcher) WithDebounce(d time.Duration) *FileWatcher {
	w.debounce = d
	return w
}

// Run watches until ctx is cancelled. The parent directory is watched
// rather than the file so that atomic replace-by-rename is seen.
func (w *FileWatcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	defer fsw.Close()

	dir := filepath.Dir(w.path)
	if err := fsw.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	w.logger.Info("Watching catalog feed", zap.String("path", w.path))

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			timer.Reset(w.debounce)

		case <-timer.C:
			w.logger.Info("Catalog feed changed, refreshing", zap.String("path", w.path))
			// Refresh logs its own failures and keeps the previous catalog.
			_ = w.target.Refresh(ctx)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("File watcher error", zap.Error(err))
		}
	}
}
