package config

import (
	"context"
	"log/slog"

	"github.com/fsnotify/fsnotify"
)

// Watch re-reads the config file whenever it changes on disk and hands the
// new server section to apply. Only a subset of settings takes effect without
// a restart (currently the check interval); apply receives the whole section
// and picks what it honours.
//
// A rewrite that fails to load or validate is logged and dropped: the
// settings in effect always come from a file that passed validation. Watch
// blocks until ctx is cancelled.
func Watch(ctx context.Context, path string, apply func(ServerConfig)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(path); err != nil {
		return err
	}

	slog.Info("config: hot reload enabled", "path", path)

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			// Plain writes land as Write; editors doing atomic saves replace
			// the file, which shows up as Create.
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}

			cfg, err := Load(path)
			if err != nil {
				slog.Error("config: ignoring broken rewrite", "path", path, "err", err)
				continue
			}

			slog.Info("config: applying rewrite",
				"path", path, "check_interval", cfg.Server.CheckInterval)
			apply(cfg.Server)

			// An atomic save swapped the inode out from under the watch;
			// re-add so the next save is seen too.
			_ = w.Add(path)

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			slog.Error("config: watch error", "err", err)
		}
	}
}
