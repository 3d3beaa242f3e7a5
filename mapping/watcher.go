package mapping

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// DefaultDebounce is how long the watcher waits for writes to settle.
const DefaultDebounce = 250 * time.Millisecond

// Watcher reloads a mapping file into a Service whenever it changes. A
// change that fails to load leaves the previous snapshot in place.
type Watcher struct {
	service  *Service
	path     string
	debounce time.Duration
	logger   logrus.FieldLogger

	// OnReload, if set, is called after every reload attempt.
	OnReload func(*Snapshot, error)
}

// NewWatcher creates a watcher for path. A zero debounce uses DefaultDebounce.
func NewWatcher(service *Service, path string, debounce time.Duration) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		service:  service,
		path:     filepath.Clean(path),
		debounce: debounce,
		logger:   service.logger.WithField("path", path),
	}
}

// Run watches the file until ctx is done. The directory is watched rather
// than the file so that editors replacing the file are noticed.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watching %s: %w", w.path, err)
	}
	w.logger.Info("watching mapping file")

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path || !relevant(event.Op) {
				continue
			}
			w.logger.WithField("op", event.Op.String()).Debug("mapping file changed")
			timer.Reset(w.debounce)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.WithError(err).Warn("file watcher error")
		case <-timer.C:
			w.reload()
		}
	}
}

func relevant(op fsnotify.Op) bool {
	return op.Has(fsnotify.Write) || op.Has(fsnotify.Create) || op.Has(fsnotify.Rename)
}

func (w *Watcher) reload() {
	data, err := os.ReadFile(w.path)
	var snap *Snapshot
	if err == nil {
		snap, err = w.service.Load(data)
	} else {
		err = fmt.Errorf("reading mapping file: %w", err)
		w.logger.WithError(err).Warn("mapping reload failed")
	}
	if w.OnReload != nil {
		w.OnReload(snap, err)
	}
}
