// internal/app/system/tasks/jobs.go
package tasks

import (
	"context"
	"time"

	"github.com/dalemusser/stratadrive/internal/app/drive"
	apistatsstore "github.com/dalemusser/stratadrive/internal/app/store/apistats"
	ledgerstore "github.com/dalemusser/stratadrive/internal/app/store/ledger"
	statsstore "github.com/dalemusser/stratadrive/internal/app/store/stats"
	"go.uber.org/zap"
)

// trashPurgeBatch caps how many top-level trashed items one run purges.
const trashPurgeBatch = 500

// TrashPurgeJob permanently deletes files and folders that have been in the
// trash longer than retention.
func TrashPurgeJob(svc *drive.Service, retention, interval time.Duration, logger *zap.Logger) Job {
	return Job{
		Name:     "trash-purge",
		Interval: interval,
		Run: func(ctx context.Context) error {
			cutoff := time.Now().Add(-retention)
			res, err := svc.PurgeExpired(ctx, cutoff, trashPurgeBatch)
			if err != nil {
				return err
			}
			if res.Folders > 0 || res.Files > 0 || res.Failed > 0 {
				logger.Info("purged expired trash",
					zap.Int64("folders", res.Folders),
					zap.Int64("files", res.Files),
					zap.Int64("bytes", res.Bytes),
					zap.Int64("detached", res.Detached),
					zap.Int("failed", res.Failed),
					zap.Time("cutoff", cutoff))
			}
			return nil
		},
	}
}

// QuotaReconcileJob recomputes every user's storage usage from their files
// and corrects drift.
func QuotaReconcileJob(svc *drive.Service, interval time.Duration, logger *zap.Logger) Job {
	return Job{
		Name:           "quota-reconcile",
		Interval:       interval,
		SkipInitialRun: true,
		Run: func(ctx context.Context) error {
			ids, err := svc.UserIDs(ctx)
			if err != nil {
				return err
			}

			corrected, skipped := 0, 0
			for _, id := range ids {
				if err := ctx.Err(); err != nil {
					return err
				}
				rec, err := svc.ReconcileQuota(ctx, id)
				if err != nil {
					logger.Warn("quota reconcile failed", zap.String("user_id", id.Hex()), zap.Error(err))
					continue
				}
				switch {
				case rec.Corrected:
					corrected++
				case rec.Skipped:
					skipped++
				}
			}

			logger.Info("quota reconcile finished",
				zap.Int("users", len(ids)),
				zap.Int("corrected", corrected),
				zap.Int("skipped", skipped))
			return nil
		},
	}
}

// LedgerPruneJob deletes request ledger entries older than retention.
func LedgerPruneJob(store *ledgerstore.Store, retention, interval time.Duration, logger *zap.Logger) Job {
	return Job{
		Name:     "ledger-prune",
		Interval: interval,
		Run: func(ctx context.Context) error {
			deleted, err := store.DeleteOlderThan(ctx, time.Now().Add(-retention))
			if err != nil {
				return err
			}
			if deleted > 0 {
				logger.Info("pruned ledger entries", zap.Int64("deleted", deleted))
			}
			return nil
		},
	}
}

// APIStatsPruneJob deletes request stat buckets older than retention.
func APIStatsPruneJob(store *apistatsstore.Store, retention, interval time.Duration, logger *zap.Logger) Job {
	return Job{
		Name:           "apistats-prune",
		Interval:       interval,
		SkipInitialRun: true,
		Run: func(ctx context.Context) error {
			deleted, err := store.DeleteOlderThan(ctx, time.Now().Add(-retention))
			if err != nil {
				return err
			}
			if deleted > 0 {
				logger.Info("pruned api stats", zap.Int64("buckets", deleted))
			}
			return nil
		},
	}
}

// DriveStatsJob writes today's drive totals to the daily stats and drops
// days older than retention. Running it more than once a day overwrites
// the day's snapshot.
func DriveStatsJob(svc *drive.Service, store *statsstore.Store, retention, interval time.Duration, logger *zap.Logger) Job {
	return Job{
		Name:     "drive-stats",
		Interval: interval,
		Run: func(ctx context.Context) error {
			t, err := svc.Totals(ctx)
			if err != nil {
				return err
			}
			now := time.Now()
			err = store.SetCounters(ctx, now, statsstore.TypeDrive, map[string]int64{
				"users":           t.Users,
				"folders":         t.Folders,
				"trashed_folders": t.TrashedFolders,
				"files":           t.Files,
				"trashed_files":   t.TrashedFiles,
				"stored_bytes":    t.StoredBytes,
				"trashed_bytes":   t.TrashedBytes,
			})
			if err != nil {
				return err
			}
			if retention > 0 {
				if _, err := store.DeleteOlderThan(ctx, now.Add(-retention)); err != nil {
					logger.Warn("prune daily stats failed", zap.Error(err))
				}
			}
			return nil
		},
	}
}
