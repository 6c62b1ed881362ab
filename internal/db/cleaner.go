package db

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Purger removes pending applications committed before a cutoff.
type Purger interface {
	PurgeAbandoned(ctx context.Context, cutoff time.Time) (int64, error)
}

// StartAbandonedCleaner periodically removes pending applications older
// than retention. onPurge, when set, receives the number of removed rows.
func StartAbandonedCleaner(
	ctx context.Context,
	store Purger,
	interval time.Duration,
	retention time.Duration,
	log *zap.Logger,
	onPurge func(int64),
) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				cutoff := time.Now().Add(-retention)
				rows, err := store.PurgeAbandoned(ctx, cutoff)
				if err != nil {
					log.Error("failed to clean abandoned applications", zap.Error(err))
					continue
				}
				if rows > 0 {
					log.Info("cleaned abandoned applications", zap.Int64("removed", rows))
					if onPurge != nil {
						onPurge(rows)
					}
				}
			}
		}
	}()
}
