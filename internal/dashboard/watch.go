package dashboard

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// HeadSource reports the latest block number.
type HeadSource interface {
	LatestBlockNumber(ctx context.Context) (uint64, error)
}

// WatchHead polls heads every interval and schedules a refresh whenever the
// block number moves. It returns when ctx ends.
func (b *Board) WatchHead(ctx context.Context, heads HeadSource, interval time.Duration) error {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last uint64
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		block, err := heads.LatestBlockNumber(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			b.logger.Warn("head poll failed", zap.Error(err))
			continue
		}
		b.cfg.Metrics.Head(block)
		if block == last {
			continue
		}
		last = block
		b.Refresh("new block")
	}
}
