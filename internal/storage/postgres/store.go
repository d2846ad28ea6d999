package postgres

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"jointPacks/internal/apperr"
	"jointPacks/internal/model"
	"jointPacks/internal/reward"
	"jointPacks/internal/storage"
)

// Store provides Postgres persistence for reward events, leaderboard
// snapshots and indexer checkpoints.
type Store struct {
	pool *pgxpool.Pool
}

var (
	_ storage.RewardSink = (*Store)(nil)
	_ reward.EventSource = (*Store)(nil)
)

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, &apperr.ConnectionError{Endpoint: "postgres", Err: err}
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// PutRewardBatch inserts events, ignoring logs already stored.
func (s *Store) PutRewardBatch(ctx context.Context, events []model.RewardEvent) error {
	if len(events) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, e := range events {
		amount, err := reward.ParseWei(e.AmountWei)
		if err != nil {
			return fmt.Errorf("event %s: %w", e.Key(), err)
		}
		var ts *time.Time
		if e.Timestamp > 0 {
			t := time.Unix(int64(e.Timestamp), 0).UTC()
			ts = &t
		}
		batch.Queue(`
			INSERT INTO reward_events (
				tx_hash, log_index, contract, account, token_id, amount_wei, block_number, block_time, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
			ON CONFLICT (tx_hash, log_index) DO NOTHING
		`,
			e.TxHash,
			int64(e.LogIndex),
			e.Contract,
			reward.NormalizeAccount(e.Account),
			e.TokenID,
			pgtype.Numeric{Int: amount, Valid: true},
			int64(e.BlockNumber),
			ts,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range events {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// PastRewardEvents reads archived events matching query in chain order.
func (s *Store) PastRewardEvents(ctx context.Context, query reward.RewardQuery) ([]model.RewardEvent, error) {
	sql, args := rewardQuerySQL(query)
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, &apperr.QueryError{Op: "reward_events", Err: err}
	}
	defer rows.Close()

	events := make([]model.RewardEvent, 0)
	for rows.Next() {
		var (
			e         model.RewardEvent
			logIndex  int64
			block     int64
			blockTime *time.Time
		)
		if err := rows.Scan(&e.TxHash, &logIndex, &e.Contract, &e.Account, &e.TokenID, &e.AmountWei, &block, &blockTime); err != nil {
			return nil, &apperr.QueryError{Op: "reward_events", Err: err}
		}
		e.LogIndex = uint64(logIndex)
		e.BlockNumber = uint64(block)
		if blockTime != nil {
			e.Timestamp = uint64(blockTime.Unix())
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, &apperr.QueryError{Op: "reward_events", Err: err}
	}
	return events, nil
}

func rewardQuerySQL(query reward.RewardQuery) (string, []interface{}) {
	var (
		where []string
		args  []interface{}
	)
	add := func(clause string, arg interface{}) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}

	if query.Account != "" {
		add("account = $%d", reward.NormalizeAccount(query.Account))
	}
	if query.TokenID != "" {
		add("token_id = $%d", strings.TrimSpace(query.TokenID))
	}
	if query.FromBlock > 0 {
		add("block_number >= $%d", int64(query.FromBlock))
	}
	if query.ToBlock != nil {
		add("block_number <= $%d", int64(*query.ToBlock))
	}

	sql := `SELECT tx_hash, log_index, contract, account, token_id, amount_wei::text, block_number, block_time FROM reward_events`
	if len(where) > 0 {
		sql += " WHERE " + strings.Join(where, " AND ")
	}
	sql += " ORDER BY block_number, log_index"
	return sql, args
}

// SaveLeaderboard stores a ranked snapshot for contract.
func (s *Store) SaveLeaderboard(ctx context.Context, contract string, refreshedAt time.Time, entries []model.LeaderboardEntry) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var snapshotID int64
	if err := tx.QueryRow(ctx, `
		INSERT INTO leaderboard_snapshots (contract, refreshed_at, accounts)
		VALUES ($1, $2, $3)
		RETURNING id
	`, contract, refreshedAt.UTC(), len(entries)).Scan(&snapshotID); err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}

	if len(entries) > 0 {
		rows := make([][]interface{}, 0, len(entries))
		for _, entry := range entries {
			total := pgtype.Numeric{Int: big.NewInt(0), Valid: true}
			if entry.TotalWei != nil {
				total.Int = entry.TotalWei
			}
			rows = append(rows, []interface{}{snapshotID, entry.Rank, entry.Account, total, entry.TotalEther, entry.Events})
		}
		if _, err := tx.CopyFrom(ctx,
			pgx.Identifier{"leaderboard_entries"},
			[]string{"snapshot_id", "rank", "account", "total_wei", "total_ether", "events"},
			pgx.CopyFromRows(rows),
		); err != nil {
			return fmt.Errorf("copy entries: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// LatestLeaderboard returns the most recent snapshot for contract. The bool
// is false when none was saved yet.
func (s *Store) LatestLeaderboard(ctx context.Context, contract string) ([]model.LeaderboardEntry, time.Time, bool, error) {
	var (
		snapshotID  int64
		refreshedAt time.Time
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, refreshed_at FROM leaderboard_snapshots
		WHERE contract = $1
		ORDER BY refreshed_at DESC, id DESC
		LIMIT 1
	`, contract).Scan(&snapshotID, &refreshedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, time.Time{}, false, nil
		}
		return nil, time.Time{}, false, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT rank, account, total_wei::text, total_ether, events
		FROM leaderboard_entries
		WHERE snapshot_id = $1
		ORDER BY rank
	`, snapshotID)
	if err != nil {
		return nil, time.Time{}, false, err
	}
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.LeaderboardEntry, error) {
		var (
			entry model.LeaderboardEntry
			total string
		)
		if err := row.Scan(&entry.Rank, &entry.Account, &total, &entry.TotalEther, &entry.Events); err != nil {
			return entry, err
		}
		wei, ok := new(big.Int).SetString(total, 10)
		if !ok {
			return entry, fmt.Errorf("invalid total_wei %q", total)
		}
		entry.TotalWei = wei
		return entry, nil
	})
	if err != nil {
		return nil, time.Time{}, false, err
	}
	return entries, refreshedAt, true, nil
}

// LoadState returns last_processed_block for a name.
func (s *Store) LoadState(ctx context.Context, name string) (uint64, bool, error) {
	if name == "" {
		return 0, false, fmt.Errorf("state name required")
	}
	var block int64
	row := s.pool.QueryRow(ctx, `SELECT last_processed_block FROM indexer_state WHERE name=$1`, name)
	if err := row.Scan(&block); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return uint64(block), true, nil
}

// SaveState upserts last_processed_block for a name.
func (s *Store) SaveState(ctx context.Context, name string, block uint64) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO indexer_state (name, last_processed_block, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET last_processed_block = EXCLUDED.last_processed_block, updated_at = now()
	`, name, int64(block))
	return err
}
