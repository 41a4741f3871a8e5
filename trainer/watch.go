package trainer

import (
	"context"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"cardioml/logging"
)

// Watch retrains whenever the dataset file is written or recreated, until
// ctx is cancelled. Failed runs are logged and the watch continues.
func (t *Trainer) Watch(ctx context.Context, onTrained func(*Comparison)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "create fsnotify watcher")
	}
	defer watcher.Close()

	// editors replace files, so watch the directory and filter by name
	path := filepath.Clean(t.cfg.Dataset.Path)
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return errors.Wrapf(err, "watch %s", filepath.Dir(path))
	}
	t.logger.Info("watching dataset", zap.String(logging.FieldPath, path))

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			t.logger.Debug("dataset changed", zap.String(logging.FieldEvent, event.Op.String()))
			if timer == nil {
				timer = time.NewTimer(t.debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(t.debounce)
			}
			fire = timer.C

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			t.logger.Warn("dataset watcher error", zap.Error(err))

		case <-fire:
			fire = nil
			comparison, err := t.Train(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				t.logger.Error("retraining failed", zap.Error(err))
				continue
			}
			if onTrained != nil {
				onTrained(comparison)
			}
		}
	}
}
