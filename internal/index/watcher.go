package index

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/demanda/internal/ingest"
	"github.com/starford/demanda/internal/parser"
	"github.com/starford/demanda/internal/storage"
)

const (
	settleDelay    = 150 * time.Millisecond
	reconcileDelay = 200 * time.Millisecond
)

// Watch starts an fsnotify watcher on the input directory and keeps the index
// in step with it until ctx is cancelled. It calls cb (if non-nil) after
// each index mutation.
//
// Only files directly under the root with a matching extension are
// considered. Create and write events are coalesced per file and processed
// once the file has been quiet for a short delay, so a file copied in
// several writes is parsed once. Rename events trigger a reconciliation pass
// that removes index entries whose files no longer exist on disk.
func Watch(ctx context.Context, db Store, store storage.Provider, ext string, logger *slog.Logger, cb EventCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	root := store.Root()
	if err := w.Add(root); err != nil {
		return err
	}
	logger.Info("watcher: started", slog.String("root", root), slog.String("ext", ext))

	pending := make(map[string]struct{})
	settle := newDebounce(settleDelay)
	reconcile := newDebounce(reconcileDelay)
	defer settle.stop()
	defer reconcile.stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("watcher: stopped")
			return nil

		case <-settle.C():
			for name := range pending {
				delete(pending, name)
				refreshFile(db, store, name, logger, cb)
			}

		case <-reconcile.C():
			reconcileDir(ctx, db, store, ext, logger, cb)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Dir(ev.Name) != filepath.Clean(root) {
				continue
			}
			name := filepath.Base(ev.Name)
			if !storage.MatchExt(name, ext) {
				continue
			}

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				pending[name] = struct{}{}
				settle.reset()

			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				// fsnotify fires Rename on the old path only; the new path
				// arrives as a separate Create when it stays in the root.
				delete(pending, name)
				removeFile(db, name, logger, cb)
				if ev.Op&fsnotify.Rename != 0 {
					reconcile.reset()
				}
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// refreshFile re-indexes one file if its content changed.
func refreshFile(db Store, store storage.Provider, name string, logger *slog.Logger, cb EventCallback) {
	var ev Event
	data, err := store.Read(name)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// Gone again before it settled; the remove event handles it.
		logger.Debug("watcher: read failed", slog.String("file", name), slog.String("error", err.Error()))
		return
	case err != nil:
		ev, err = recordFailure(db, name, unreadableChecksum, &parser.ParseError{File: name, Err: err})
	default:
		if cs, _ := db.GetChecksum(name); cs == storage.Checksum(data) {
			return
		}
		entry := storage.Entry{Name: name, Path: filepath.Join(store.Root(), name)}
		ev, err = indexFile(db, ingest.SourceFileFor(entry), data)
	}
	if err != nil {
		logger.Warn("watcher: store failed", slog.String("file", name), slog.String("error", err.Error()))
		return
	}
	if ev.Kind == EventFailed {
		logger.Warn("watcher: failed", slog.String("file", name), slog.String("error", ev.Err))
	} else {
		logger.Debug("watcher: indexed", slog.String("file", name), slog.Int("rows", ev.Rows))
	}
	emit(cb, ev)
}

func removeFile(db Store, name string, logger *slog.Logger, cb EventCallback) {
	if cs, _ := db.GetChecksum(name); cs == "" {
		return
	}
	if err := db.DeleteSource(name); err != nil {
		logger.Warn("watcher: delete failed", slog.String("file", name), slog.String("error", err.Error()))
		return
	}
	logger.Debug("watcher: removed", slog.String("file", name))
	emit(cb, Event{Kind: EventRemoved, Name: name})
}

func reconcileDir(ctx context.Context, db Store, store storage.Provider, ext string, logger *slog.Logger, cb EventCallback) {
	if _, err := Sync(ctx, db, store, ext, logger, cb); err != nil {
		logger.Warn("reconcile: sync failed", slog.String("error", err.Error()))
	}
}

// debounce is a lazily created, resettable timer.
type debounce struct {
	d     time.Duration
	timer *time.Timer
}

func newDebounce(d time.Duration) *debounce { return &debounce{d: d} }

func (b *debounce) reset() {
	if b.timer == nil {
		b.timer = time.NewTimer(b.d)
		return
	}
	b.timer.Reset(b.d)
}

// C returns the timer channel, or nil (blocks forever) before the first reset.
func (b *debounce) C() <-chan time.Time {
	if b.timer == nil {
		return nil
	}
	return b.timer.C
}

func (b *debounce) stop() {
	if b.timer != nil {
		b.timer.Stop()
	}
}
