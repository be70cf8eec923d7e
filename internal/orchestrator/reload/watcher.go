package reload

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"

	"github.com/steelburn/candidacy-sub001/internal/shared/catalog"
)

// ApplyCatalog loads the catalog at path, writes it to store and reloads
func ApplyCatalog(ctx context.Context, path string, store catalog.Store, reloader Reloader) (catalog.Summary, error) {
	c, err := catalog.Load(path)
	if err != nil {
		return catalog.Summary{}, err
	}
	sum, err := c.Apply(ctx, store)
	if err != nil {
		return sum, err
	}
	if reloader != nil {
		if _, err := reloader.Reload(ctx); err != nil {
			return sum, fmt.Errorf("reloading after catalog apply: %w", err)
		}
	}
	return sum, nil
}

// Watcher re-applies the catalog file whenever it changes
type Watcher struct {
	path     string
	store    catalog.Store
	reloader Reloader
	debounce time.Duration
}

// NewWatcher creates a watcher for the catalog at path
func NewWatcher(path string, store catalog.Store, reloader Reloader) *Watcher {
	return &Watcher{path: path, store: store, reloader: reloader, debounce: 500 * time.Millisecond}
}

// Run watches until ctx is cancelled. The parent directory is watched so
// editors that replace the file by rename are still seen.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer fw.Close()

	target, err := filepath.Abs(w.path)
	if err != nil {
		return err
	}
	if err := fw.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("watching %s: %w", filepath.Dir(target), err)
	}

	log.WithFields(log.Fields{"event": "catalog_watch_started", "path": target}).Info("Watching catalog")

	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			log.WithField("event", "catalog_watch_error").WithError(err).Warn("Catalog watcher error")

		case <-fire:
			fire = nil
			sum, err := ApplyCatalog(ctx, target, w.store, w.reloader)
			if err != nil {
				log.WithFields(log.Fields{"event": "catalog_apply_failed", "path": target}).WithError(err).Error("Catalog change rejected")
				continue
			}
			log.WithFields(log.Fields{
				"event":     "catalog_reloaded",
				"providers": sum.Providers,
				"services":  sum.Services,
			}).Info("Catalog change applied")
		}
	}
}
