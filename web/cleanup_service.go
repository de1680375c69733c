package web

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// ExpiredPurger is anything that can drop its expired entries.
type ExpiredPurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// CleanupService removes expired document-cache rows in the background
type CleanupService struct {
	purger ExpiredPurger
	logger *zap.Logger
}

func NewCleanupService(purger ExpiredPurger, logger *zap.Logger) *CleanupService {
	return &CleanupService{
		purger: purger,
		logger: logger,
	}
}

// PurgeExpiredDocuments runs one purge pass and returns the number of rows removed
func (cs *CleanupService) PurgeExpiredDocuments(ctx context.Context) (int64, error) {
	removed, err := cs.purger.PurgeExpired(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired documents: %w", err)
	}
	if removed > 0 {
		cs.logger.Info("Purged expired document cache entries", zap.Int64("removed", removed))
	} else {
		cs.logger.Debug("No expired document cache entries")
	}
	return removed, nil
}

// Run purges every interval until ctx is cancelled. A non-positive interval disables it.
func (cs *CleanupService) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		cs.logger.Info("Document cache cleanup disabled")
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := cs.PurgeExpiredDocuments(ctx); err != nil {
				// Keep going; the next tick may succeed.
				cs.logger.Error("Document cache cleanup failed", zap.Error(err))
			}
		case <-ctx.Done():
			return
		}
	}
}
