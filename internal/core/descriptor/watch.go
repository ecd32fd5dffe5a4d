package descriptor

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/solatis/metasync/internal/rules"
)

// reloadDebounce coalesces the burst of events an editor save produces.
const reloadDebounce = 200 * time.Millisecond

// Reloader rebuilds the registry from a descriptor path and publishes it.
// A failed reload leaves the current snapshot in place.
type Reloader struct {
	mu     sync.Mutex
	path   string
	holder *rules.Holder
	logger *slog.Logger
}

// NewReloader creates a reloader publishing into holder.
func NewReloader(path string, holder *rules.Holder, logger *slog.Logger) *Reloader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reloader{path: path, holder: holder, logger: logger}
}

// Reload loads the descriptors and publishes the result.
func (r *Reloader) Reload() (*rules.Registry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	next, err := Load(r.path)
	if err != nil {
		r.logger.Error("descriptor: reload failed",
			slog.String("path", r.path),
			slog.String("error", err.Error()))
		return nil, err
	}

	published := r.holder.Publish(next)
	r.logger.Info("descriptor: registry published",
		slog.String("path", r.path),
		slog.Uint64("generation", published.Generation()),
		slog.String("digest", published.Digest()),
		slog.Int("rules", len(published.Rules())))
	return published, nil
}

// Watch reloads whenever a descriptor file under the path changes, until
// ctx is cancelled. The directory is watched rather than the file so
// rename-on-save editors keep triggering events.
func (r *Reloader) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	dir, single := r.path, ""
	if info, err := os.Stat(r.path); err == nil && !info.IsDir() {
		dir, single = filepath.Dir(r.path), filepath.Clean(r.path)
	}
	if err := w.Add(dir); err != nil {
		return err
	}
	r.logger.Info("descriptor: watching", slog.String("path", dir))

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
			r.logger.Info("descriptor: watcher stopped")
			return nil

		case <-fire:
			fire = nil
			_, _ = r.Reload()

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if single != "" && filepath.Clean(ev.Name) != single {
				continue
			}
			if single == "" && !IsDescriptorFile(ev.Name) {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			r.logger.Debug("descriptor: change detected",
				slog.String("file", ev.Name),
				slog.String("op", ev.Op.String()))

			if timer == nil {
				timer = time.NewTimer(reloadDebounce)
			} else {
				timer.Reset(reloadDebounce)
			}
			fire = timer.C

		case werr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			r.logger.Error("descriptor: watcher error", slog.String("error", werr.Error()))
		}
	}
}
