package catalog

import (
	"context"
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/autods/internal/checksum"
	"github.com/starford/autods/internal/snapshot"
)

// Event kinds passed to EventCallback.
const (
	EventCreated = "created"
	EventDeleted = "deleted"
)

// EventCallback is called after a watcher-driven catalog change.
type EventCallback func(kind, id string)

const reconcileDelay = 200 * time.Millisecond

// Watch follows the snapshot directory until ctx is cancelled and keeps
// the catalog current when files appear or vanish outside the API. Files
// the catalog already holds with the same checksum are skipped, so saves
// that went through the service layer do not fire cb twice.
func Watch(ctx context.Context, db *DB, src Source, dir string, logger *slog.Logger, cb EventCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(dir); err != nil {
		return err
	}
	logger.Info("watcher: started", slog.String("dir", dir))

	var reconcileTimer *time.Timer
	var reconcileCh <-chan time.Time
	scheduleReconcile := func() {
		if reconcileTimer == nil {
			reconcileTimer = time.NewTimer(reconcileDelay)
			reconcileCh = reconcileTimer.C
		} else {
			reconcileTimer.Reset(reconcileDelay)
		}
	}

	notify := func(kind, id string) {
		if cb != nil {
			cb(kind, id)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reconcileTimer != nil {
				reconcileTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-reconcileCh:
			reconcile(ctx, db, src, logger, notify)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			id, isSnapshot := snapshot.IDFromFile(ev.Name)
			if !isSnapshot {
				continue
			}

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				cs, _, err := checksum.File(src.Path(id))
				if err != nil {
					logger.Debug("watcher: checksum failed", slog.String("id", id), slog.String("error", err.Error()))
					continue
				}
				if db.Checksum(id) == cs {
					continue
				}
				if err := indexSnapshot(ctx, db, src, id); err != nil {
					// Partially written files from foreign writers fail to
					// decode; the next Write event retries.
					logger.Debug("watcher: index failed", slog.String("id", id), slog.String("error", err.Error()))
					continue
				}
				logger.Debug("watcher: indexed", slog.String("id", id))
				notify(EventCreated, id)

			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				if db.Checksum(id) != "" {
					if err := db.Delete(id); err != nil {
						logger.Warn("watcher: delete failed", slog.String("id", id), slog.String("error", err.Error()))
						continue
					}
					logger.Debug("watcher: deleted", slog.String("id", id))
					notify(EventDeleted, id)
				}
				if ev.Op&fsnotify.Rename != 0 {
					scheduleReconcile()
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

// reconcile removes rows without a file and indexes files without a row.
func reconcile(ctx context.Context, db *DB, src Source, logger *slog.Logger, notify EventCallback) {
	checksums, err := db.AllChecksums()
	if err != nil {
		logger.Warn("reconcile: all checksums failed", slog.String("error", err.Error()))
		return
	}
	ids, err := src.List()
	if err != nil {
		logger.Warn("reconcile: list failed", slog.String("error", err.Error()))
		return
	}

	disk := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		disk[id] = struct{}{}
	}
	for id := range checksums {
		if _, ok := disk[id]; !ok {
			if err := db.Delete(id); err == nil {
				logger.Debug("reconcile: removed stale", slog.String("id", id))
				notify(EventDeleted, id)
			}
		}
	}
	for _, id := range ids {
		if _, ok := checksums[id]; ok {
			continue
		}
		if err := indexSnapshot(ctx, db, src, id); err == nil {
			logger.Debug("reconcile: indexed new", slog.String("id", id))
			notify(EventCreated, id)
		}
	}
}
