package dashboard

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"jointPacks/internal/apperr"
	"jointPacks/internal/metrics"
	"jointPacks/internal/model"
	"jointPacks/internal/reward"
)

// ErrUnbound is returned while no event source is bound, e.g. after the
// contract configuration failed to load.
var ErrUnbound = errors.New("no event source bound")

// HoldingsSource lists the packs held by an account.
type HoldingsSource interface {
	Holdings(ctx context.Context, owner string) ([]model.Pack, error)
}

// Binding is the event source the board reads from. ID identifies the
// underlying contract and network; a new ID invalidates the snapshot.
type Binding struct {
	ID        string
	Source    reward.EventSource
	Holdings  HoldingsSource
	FromBlock uint64
}

// Config tunes the board.
type Config struct {
	Limit    int
	Debounce time.Duration
	Clock    reward.Clock
	Metrics  *metrics.Metrics
}

// Snapshot is the result of the last refresh pass. On a failed pass the
// previous entries are kept and Error carries the user-facing message.
type Snapshot struct {
	SourceID    string                   `json:"source_id"`
	Entries     []model.LeaderboardEntry `json:"entries"`
	Accounts    int                      `json:"accounts"`
	Reason      string                   `json:"reason,omitempty"`
	RefreshedAt time.Time                `json:"refreshed_at"`
	Error       string                   `json:"error,omitempty"`
	FailedAt    time.Time                `json:"failed_at,omitempty"`
}

// Board owns the source binding and the leaderboard snapshot. Refresh
// requests are debounced; rebinding cancels pending and in-flight passes.
type Board struct {
	cfg       Config
	logger    *zap.Logger
	debouncer *reward.Debouncer[string]

	rootCtx    context.Context
	rootCancel context.CancelFunc

	mu         sync.RWMutex
	binding    Binding
	gen        uint64
	passCtx    context.Context
	passCancel context.CancelFunc
	ranked     []model.LeaderboardEntry
	index      map[string]int
	snapshot   Snapshot

	refreshMu sync.Mutex
}

// New builds a board bound to binding. Nothing is fetched until Refresh.
func New(cfg Config, binding Binding, logger *zap.Logger) *Board {
	if cfg.Limit == 0 {
		cfg.Limit = reward.DefaultLeaderboardSize
	}
	if cfg.Clock == nil {
		cfg.Clock = reward.SystemClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	rootCtx, rootCancel := context.WithCancel(context.Background())
	b := &Board{
		cfg:        cfg,
		logger:     logger,
		rootCtx:    rootCtx,
		rootCancel: rootCancel,
		binding:    binding,
		index:      make(map[string]int),
		snapshot:   Snapshot{SourceID: binding.ID},
	}
	b.passCtx, b.passCancel = context.WithCancel(rootCtx)
	b.debouncer = reward.NewDebouncer(cfg.Clock, cfg.Debounce, b.debounced)
	return b
}

// Refresh schedules a debounced refresh pass.
func (b *Board) Refresh(reason string) {
	b.debouncer.Trigger(reason)
}

// Pending reports whether a debounced refresh is scheduled.
func (b *Board) Pending() bool {
	return b.debouncer.Pending()
}

// Flush runs a scheduled refresh immediately.
func (b *Board) Flush() bool {
	return b.debouncer.Flush()
}

func (b *Board) debounced(reason string) {
	b.mu.RLock()
	ctx := b.passCtx
	b.mu.RUnlock()

	if err := b.refresh(ctx, reason); err != nil && !errors.Is(err, context.Canceled) {
		b.logger.Warn("leaderboard refresh failed", zap.String("reason", reason), zap.Error(err))
	}
}

// RefreshNow runs a refresh pass synchronously. The pass is abandoned when
// either ctx ends or the board is rebound or closed.
func (b *Board) RefreshNow(ctx context.Context, reason string) error {
	b.mu.RLock()
	passCtx := b.passCtx
	b.mu.RUnlock()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(passCtx, cancel)
	defer stop()

	return b.refresh(ctx, reason)
}

func (b *Board) refresh(ctx context.Context, reason string) error {
	b.refreshMu.Lock()
	defer b.refreshMu.Unlock()

	b.mu.RLock()
	binding := b.binding
	gen := b.gen
	b.mu.RUnlock()

	start := b.cfg.Clock.Now()
	var (
		ranked []model.LeaderboardEntry
		err    error
	)
	if binding.Source == nil {
		err = &apperr.ConfigLoadError{Err: ErrUnbound}
	} else {
		var events []model.RewardEvent
		events, err = binding.Source.PastRewardEvents(ctx, reward.RewardQuery{FromBlock: binding.FromBlock})
		if err == nil {
			ranked, err = reward.Leaderboard(events, 0)
		}
	}
	if err == nil {
		err = ctx.Err()
	}
	now := b.cfg.Clock.Now()

	b.mu.Lock()
	if gen != b.gen {
		b.mu.Unlock()
		b.logger.Debug("dropping refresh for previous binding", zap.String("source", binding.ID))
		return context.Canceled
	}
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			b.snapshot.Error = apperr.UserMessage(err)
			b.snapshot.FailedAt = now
		}
		b.mu.Unlock()
		if !errors.Is(err, context.Canceled) {
			b.cfg.Metrics.Refreshed("error", now.Sub(start), 0)
			b.cfg.Metrics.Error(apperr.Kind(err))
		}
		return err
	}

	index := make(map[string]int, len(ranked))
	for i, entry := range ranked {
		index[entry.Account] = i
	}
	b.ranked = ranked
	b.index = index
	b.snapshot = Snapshot{
		SourceID:    binding.ID,
		Entries:     head(ranked, b.cfg.Limit),
		Accounts:    len(ranked),
		Reason:      reason,
		RefreshedAt: now,
	}
	b.mu.Unlock()

	b.cfg.Metrics.Refreshed("ok", now.Sub(start), len(ranked))
	b.logger.Info("leaderboard refreshed",
		zap.String("reason", reason),
		zap.String("source", binding.ID),
		zap.Int("accounts", len(ranked)),
	)
	return nil
}

// Rebind switches to a new source. Pending and in-flight refreshes of the
// old binding are cancelled. When the identity changed the snapshot is
// cleared and a refresh is scheduled; otherwise a refresh that was pending
// is scheduled again against the new binding.
func (b *Board) Rebind(binding Binding) {
	pending := b.debouncer.Cancel()

	b.mu.Lock()
	changed := binding.ID != b.binding.ID
	b.binding = binding
	b.gen++
	b.passCancel()
	b.passCtx, b.passCancel = context.WithCancel(b.rootCtx)
	if changed {
		b.ranked = nil
		b.index = make(map[string]int)
		b.snapshot = Snapshot{SourceID: binding.ID}
	}
	b.mu.Unlock()

	if changed {
		b.logger.Info("event source rebound", zap.String("source", binding.ID))
		b.Refresh("rebind")
	} else if pending {
		b.Refresh("rebind")
	}
}

// Close stops the debouncer and cancels in-flight passes. Later Refresh
// calls are ignored.
func (b *Board) Close() {
	b.debouncer.Stop()
	b.rootCancel()
}

// Snapshot returns a copy of the current snapshot.
func (b *Board) Snapshot() Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	snap := b.snapshot
	snap.Entries = append([]model.LeaderboardEntry(nil), b.snapshot.Entries...)
	return snap
}

// Leaderboard returns the top limit entries of the snapshot; limit <= 0
// uses the configured size.
func (b *Board) Leaderboard(limit int) []model.LeaderboardEntry {
	if limit <= 0 {
		limit = b.cfg.Limit
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]model.LeaderboardEntry(nil), head(b.ranked, limit)...)
}

// AccountTotal returns the ranked total of account. The bool is false when
// the account has no rewards in the snapshot.
func (b *Board) AccountTotal(account string) (model.LeaderboardEntry, bool) {
	key := reward.NormalizeAccount(account)
	b.mu.RLock()
	defer b.mu.RUnlock()
	i, ok := b.index[key]
	if !ok {
		return model.LeaderboardEntry{}, false
	}
	return b.ranked[i], true
}

// Holdings lists packs of owner through the bound contract.
func (b *Board) Holdings(ctx context.Context, owner string) ([]model.Pack, error) {
	b.mu.RLock()
	holdings := b.binding.Holdings
	b.mu.RUnlock()
	if holdings == nil {
		return nil, &apperr.ConfigLoadError{Err: ErrUnbound}
	}
	return holdings.Holdings(ctx, owner)
}

// Bound reports whether an event source is bound.
func (b *Board) Bound() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.binding.Source != nil
}

// Binding returns the current binding.
func (b *Board) Binding() Binding {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.binding
}

func head(entries []model.LeaderboardEntry, limit int) []model.LeaderboardEntry {
	if limit > 0 && len(entries) > limit {
		return entries[:limit]
	}
	return entries
}
