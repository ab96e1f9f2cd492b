package catalog

import (
	"context"
	"log/slog"

	"github.com/starford/autods/internal/checksum"
)

// Sync brings the catalog in line with the snapshot directory:
//   - new or changed files are stat'ed and upserted
//   - rows whose file is gone are deleted
func Sync(ctx context.Context, db *DB, src Source, logger *slog.Logger) error {
	ids, err := src.List()
	if err != nil {
		return err
	}
	checksums, err := db.AllChecksums()
	if err != nil {
		return err
	}

	disk := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		disk[id] = struct{}{}

		cs, _, err := checksum.File(src.Path(id))
		if err != nil {
			logger.Warn("sync: checksum failed", slog.String("id", id), slog.String("error", err.Error()))
			continue
		}
		if checksums[id] == cs {
			continue
		}
		if err := indexSnapshot(ctx, db, src, id); err != nil {
			logger.Warn("sync: index failed", slog.String("id", id), slog.String("error", err.Error()))
		} else {
			logger.Debug("sync: indexed", slog.String("id", id))
		}
	}

	for id := range checksums {
		if _, ok := disk[id]; ok {
			continue
		}
		if err := db.Delete(id); err != nil {
			logger.Warn("sync: delete failed", slog.String("id", id), slog.String("error", err.Error()))
		} else {
			logger.Debug("sync: removed stale", slog.String("id", id))
		}
	}
	return nil
}

func indexSnapshot(ctx context.Context, db *DB, src Source, id string) error {
	meta, err := src.Stat(ctx, id)
	if err != nil {
		return err
	}
	return db.Upsert(meta)
}
