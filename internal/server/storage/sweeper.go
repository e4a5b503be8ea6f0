package storage

import (
	"context"
	"log/slog"
	"time"
)

// RunSweeper periodically purges expired entries from every purger
// until ctx is cancelled. Blocks; run it in a separate goroutine.
// onSweep, if not nil, receives the number of entries purged by each pass
func RunSweeper(ctx context.Context, logger *slog.Logger, interval time.Duration, onSweep func(purged int), purgers ...Purger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			n := SweepOnce(ctx, logger, purgers...)
			if onSweep != nil {
				onSweep(n)
			}
		case <-ctx.Done():
			return
		}
	}
}

// SweepOnce runs a single purge pass over all purgers.
// Errors are logged, the remaining purgers are still processed
func SweepOnce(ctx context.Context, logger *slog.Logger, purgers ...Purger) int {
	total := 0
	for _, p := range purgers {
		n, err := p.Purge(ctx)
		if err != nil {
			logger.WarnContext(ctx, "failed to purge expired secrets", slog.Any("error", err))
			continue
		}
		total += n
	}

	if total > 0 {
		logger.DebugContext(ctx, "expired secrets purged", slog.Int("count", total))
	}
	return total
}
