package composition

import (
	"context"
	"path/filepath"
	"time"

	"github.com/bep/debounce"
	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"go.viam.com/birdseye/calibration"
	"go.viam.com/birdseye/logging"
)

const watchDebounce = 50 * time.Millisecond

// Watch reloads the calibration file at path whenever it is replaced and swaps the new snapshot
// in. Invalid or partial files are logged and the current Plan is kept. Watching stops on Close.
func (c *Composer) Watch(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "cannot watch calibration")
	}
	// the directory is watched since atomic saves replace the file
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return multierr.Combine(errors.Wrapf(err, "cannot watch %q", filepath.Dir(abs)), watcher.Close())
	}
	logger := c.logger.With("path", abs)
	closeWatcher := func() {
		if err := watcher.Close(); err != nil {
			logger.Debugw("closing calibration watcher", "error", err)
		}
	}
	// a save shows up as several events; only the last one in a burst triggers a reload
	changed := make(chan struct{}, 1)
	debounced := debounce.New(watchDebounce)
	started := c.workers.AddWorkers(func(ctx context.Context) {
		defer closeWatcher()
		for {
			select {
			case <-ctx.Done():
				return
			case <-changed:
				c.reload(ctx, logger, abs)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warnw("calibration watcher error", "error", err)
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != abs || !(event.Has(fsnotify.Create) || event.Has(fsnotify.Write)) {
					continue
				}
				debounced(func() {
					select {
					case changed <- struct{}{}:
					default:
					}
				})
			}
		}
	})
	if !started {
		closeWatcher()
		return errors.New("composer is closed")
	}
	return nil
}

func (c *Composer) reload(ctx context.Context, logger logging.Logger, path string) {
	snap, err := calibration.LoadSnapshot(path)
	if err != nil {
		logger.Warnw("ignoring calibration file", "error", err)
		return
	}
	if current := c.Plan(); current != nil && current.Snapshot.ID == snap.ID {
		return
	}
	if err := c.Swap(ctx, snap); err != nil {
		logger.Errorw("cannot use new calibration", "error", err)
	}
}
