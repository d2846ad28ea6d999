package indexer

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"jointPacks/internal/chain"
	"jointPacks/internal/metrics"
	"jointPacks/internal/model"
	"jointPacks/internal/reward"
	"jointPacks/internal/storage"
)

// RunConfig holds runtime settings for the indexer.
type RunConfig struct {
	FromBlock    uint64
	ToBlock      uint64
	BatchSize    uint64
	MaxRetries   int
	RetryBackoff time.Duration
	// RateLimit caps RPC requests per second; zero disables the limiter.
	RateLimit float64
}

// Chain is the block metadata the runner reads.
type Chain interface {
	LatestBlockNumber(ctx context.Context) (uint64, error)
	BlockTimestamp(ctx context.Context, number uint64) (uint64, error)
}

// Runner archives RewardClaimed events into a sink, window by window.
type Runner struct {
	cfg        RunConfig
	chain      Chain
	source     reward.EventSource
	sink       storage.RewardSink
	checkpoint Checkpointer
	limiter    *rate.Limiter
	metrics    *metrics.Metrics
	logger     *zap.Logger
	seen       map[string]struct{}
}

// NewRunner builds a Runner. checkpoint may be nil to always start at FromBlock.
func NewRunner(cfg RunConfig, chainClient Chain, source reward.EventSource, sink storage.RewardSink, checkpoint Checkpointer, m *metrics.Metrics, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}
	return &Runner{
		cfg:        cfg,
		chain:      chainClient,
		source:     source,
		sink:       sink,
		checkpoint: checkpoint,
		limiter:    limiter,
		metrics:    m,
		logger:     logger,
		seen:       make(map[string]struct{}),
	}
}

// Run executes the archive loop and returns the last archived block.
func (r *Runner) Run(ctx context.Context) (uint64, error) {
	if r.chain == nil {
		return 0, fmt.Errorf("chain client is nil")
	}
	if r.source == nil {
		return 0, fmt.Errorf("event source is nil")
	}
	if r.sink == nil {
		return 0, fmt.Errorf("storage is nil")
	}
	if r.cfg.BatchSize == 0 {
		return 0, fmt.Errorf("batch size must be greater than zero")
	}

	from := r.cfg.FromBlock
	to := r.cfg.ToBlock
	if to == 0 {
		var latest uint64
		err := r.call(ctx, func(ctx context.Context) error {
			var err error
			latest, err = r.chain.LatestBlockNumber(ctx)
			return err
		})
		if err != nil {
			return 0, fmt.Errorf("get latest block: %w", err)
		}
		to = latest
	}

	if r.checkpoint != nil {
		last, ok, err := r.checkpoint.Load(ctx)
		if err != nil {
			return 0, fmt.Errorf("load checkpoint: %w", err)
		}
		if ok && last >= from {
			from = last + 1
			r.logger.Info("resume from checkpoint", zap.Uint64("last_processed", last), zap.Uint64("from", from))
		}
	}

	if from > to {
		r.logger.Info("nothing to sync", zap.Uint64("from", from), zap.Uint64("to", to))
		return to, nil
	}

	windows, err := chain.SplitWindows(from, to, r.cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	var last uint64
	for _, window := range windows {
		if err := ctx.Err(); err != nil {
			return last, err
		}

		r.logger.Info("fetch rewards", zap.Uint64("from", window.From), zap.Uint64("to", window.To))

		events, err := r.fetchWindow(ctx, window)
		if err != nil {
			return last, fmt.Errorf("fetch rewards %d-%d: %w", window.From, window.To, err)
		}

		records := make([]model.RewardEvent, 0, len(events))
		for _, event := range events {
			if r.isDuplicate(event) {
				continue
			}
			if event.Timestamp == 0 {
				ts, err := r.blockTimestamp(ctx, event.BlockNumber)
				if err != nil {
					return last, fmt.Errorf("block timestamp %d: %w", event.BlockNumber, err)
				}
				event.Timestamp = ts
			}
			records = append(records, event)
		}

		if err := r.sink.PutRewardBatch(ctx, records); err != nil {
			return last, fmt.Errorf("store rewards: %w", err)
		}

		if r.checkpoint != nil {
			if err := r.checkpoint.Save(ctx, window.To); err != nil {
				return last, fmt.Errorf("save checkpoint: %w", err)
			}
		}
		last = window.To
		r.metrics.Indexed(window.To, len(records))

		r.logger.Info("batch complete", zap.Int("rewards", len(records)), zap.Uint64("from", window.From), zap.Uint64("to", window.To))
	}

	return last, nil
}

func (r *Runner) fetchWindow(ctx context.Context, window chain.Window) ([]model.RewardEvent, error) {
	to := window.To
	query := reward.RewardQuery{FromBlock: window.From, ToBlock: &to}

	var events []model.RewardEvent
	err := r.call(ctx, func(ctx context.Context) error {
		var err error
		events, err = r.source.PastRewardEvents(ctx, query)
		if err != nil {
			r.logger.Warn("fetch rewards failed", zap.Error(err), zap.Uint64("from", window.From), zap.Uint64("to", window.To))
		}
		return err
	})
	return events, err
}

func (r *Runner) blockTimestamp(ctx context.Context, blockNumber uint64) (uint64, error) {
	var ts uint64
	err := r.call(ctx, func(ctx context.Context) error {
		var err error
		ts, err = r.chain.BlockTimestamp(ctx, blockNumber)
		if err != nil {
			r.logger.Warn("block timestamp fetch failed", zap.Error(err), zap.Uint64("block_number", blockNumber))
		}
		return err
	})
	return ts, err
}

// call runs fn under the rate limiter with retries.
func (r *Runner) call(ctx context.Context, fn func(context.Context) error) error {
	return withRetry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) error {
		if err := r.limiter.Wait(ctx); err != nil {
			return err
		}
		return fn(ctx)
	})
}

func (r *Runner) isDuplicate(event model.RewardEvent) bool {
	id := event.Key()
	if _, ok := r.seen[id]; ok {
		return true
	}
	r.seen[id] = struct{}{}
	return false
}
