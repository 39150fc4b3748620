package config

import (
	"context"
	"time"

	"github.com/dshills/gridsync/internal/config/watcher"
)

// reloadDebounce coalesces the events of a single save.
const reloadDebounce = 100 * time.Millisecond

// Watch reloads the file at path each time it changes and passes the new
// configuration to fn, until ctx is done. Configurations that fail to load
// are passed to onError instead and the previous one stays in effect.
// A removed file is ignored until it is created again.
func Watch(ctx context.Context, path string, fn func(*Config), onError func(error)) error {
	if onError == nil {
		onError = func(error) {}
	}
	w := watcher.New(
		watcher.WithDebounce(reloadDebounce),
		watcher.WithErrorHandler(onError),
	)
	if err := w.Watch(path); err != nil {
		return err
	}
	w.OnChange(func(e watcher.Event) {
		if e.Op == watcher.OpRemove || e.Op == watcher.OpRename {
			return
		}
		cfg, err := Load(path)
		if err != nil {
			onError(err)
			return
		}
		fn(cfg)
	})
	if err := w.Start(); err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		w.Stop()
	}()
	return nil
}
