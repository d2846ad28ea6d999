package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jointPacks/internal/api"
	"jointPacks/internal/apperr"
	"jointPacks/internal/dashboard"
	"jointPacks/internal/metrics"
	"jointPacks/internal/model"
	"jointPacks/internal/reward"
	"jointPacks/internal/testutil"
)

const (
	holder = "0x4444444444444444444444444444444444444444"
	signer = "0x9999999999999999999999999999999999999999"
)

type fakeBoard struct {
	mu        sync.Mutex
	bound     bool
	entries   []model.LeaderboardEntry
	packs     []model.Pack
	packsErr  error
	refreshes []string
}

func (b *fakeBoard) Bound() bool { return b.bound }

func (b *fakeBoard) Snapshot() dashboard.Snapshot {
	return dashboard.Snapshot{SourceID: "56:test", Entries: b.entries, Accounts: len(b.entries)}
}

func (b *fakeBoard) Leaderboard(limit int) []model.LeaderboardEntry {
	if limit < len(b.entries) {
		return b.entries[:limit]
	}
	return b.entries
}

func (b *fakeBoard) AccountTotal(account string) (model.LeaderboardEntry, bool) {
	for _, entry := range b.entries {
		if entry.Account == account {
			return entry, true
		}
	}
	return model.LeaderboardEntry{}, false
}

func (b *fakeBoard) Holdings(context.Context, string) ([]model.Pack, error) {
	return b.packs, b.packsErr
}

func (b *fakeBoard) Refresh(reason string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refreshes = append(b.refreshes, reason)
}

func entry(rank int, account, ether string, events int) model.LeaderboardEntry {
	return model.LeaderboardEntry{Rank: rank, AccountTotal: model.AccountTotal{
		Account:    reward.NormalizeAccount(account),
		TotalEther: ether,
		Events:     events,
	}}
}

func newBoard() *fakeBoard {
	return &fakeBoard{
		bound: true,
		entries: []model.LeaderboardEntry{
			entry(1, holder, "12.5", 3),
			entry(2, "0x5555555555555555555555555555555555555555", "4", 1),
			entry(3, "0x6666666666666666666666666666666666666666", "1", 1),
		},
	}
}

func do(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rec.Body).Decode(v))
}

func TestLeaderboardLimit(t *testing.T) {
	srv := api.NewServer(context.Background(), api.Config{Limit: 50}, newBoard(), nil, nil, nil)
	h := srv.Handler()

	rec := do(t, h, http.MethodGet, "/leaderboard?limit=2")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		SourceID string                   `json:"source_id"`
		Accounts int                      `json:"accounts"`
		Entries  []model.LeaderboardEntry `json:"entries"`
	}
	decode(t, rec, &body)
	assert.Equal(t, "56:test", body.SourceID)
	assert.Equal(t, 3, body.Accounts)
	require.Len(t, body.Entries, 2)
	assert.Equal(t, 1, body.Entries[0].Rank)
	assert.Equal(t, "12.5", body.Entries[0].TotalEther)

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/leaderboard?limit=abc").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/leaderboard?limit=0").Code)
}

func TestAccountRewards(t *testing.T) {
	h := api.NewServer(context.Background(), api.Config{}, newBoard(), nil, nil, nil).Handler()

	rec := do(t, h, http.MethodGet, "/accounts/"+strings.ToUpper(holder)+"/rewards")
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	decode(t, rec, &body)
	assert.Equal(t, true, body["has_rewards"])
	assert.Equal(t, "12.5", body["total_ether"])
	assert.EqualValues(t, 1, body["rank"])
	assert.EqualValues(t, 3, body["events"])

	rec = do(t, h, http.MethodGet, "/accounts/0x7777777777777777777777777777777777777777/rewards")
	require.Equal(t, http.StatusOK, rec.Code)
	body = nil
	decode(t, rec, &body)
	assert.Equal(t, false, body["has_rewards"])
	assert.NotContains(t, body, "total_ether")
	assert.NotContains(t, body, "events")

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/accounts/nope/rewards").Code)
}

func TestAccountPacks(t *testing.T) {
	board := newBoard()
	board.packs = []model.Pack{{TokenID: "7", TokenURI: "ipfs://7"}}
	h := api.NewServer(context.Background(), api.Config{}, board, nil, nil, nil).Handler()

	rec := do(t, h, http.MethodGet, "/accounts/"+holder+"/packs")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Packs []model.Pack `json:"packs"`
	}
	decode(t, rec, &body)
	require.Len(t, body.Packs, 1)
	assert.Equal(t, "7", body.Packs[0].TokenID)

	board.packsErr = &apperr.QueryError{Op: "balanceOf", Err: errors.New("rpc down")}
	rec = do(t, h, http.MethodGet, "/accounts/"+holder+"/packs")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	var errBody map[string]string
	decode(t, rec, &errBody)
	assert.Equal(t, apperr.MsgQuery, errBody["error"])
}

func TestDegradedServer(t *testing.T) {
	board := newBoard()
	board.bound = false
	h := api.NewServer(context.Background(), api.Config{}, board, nil, nil, nil).Handler()

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/leaderboard"},
		{http.MethodGet, "/accounts/" + holder + "/rewards"},
		{http.MethodPost, "/packs/7/open"},
		{http.MethodPost, "/refresh"},
	} {
		rec := do(t, h, tc.method, tc.path)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, tc.path)
		var body map[string]string
		decode(t, rec, &body)
		assert.Equal(t, apperr.MsgConfigUnavailable, body["error"], tc.path)
	}

	rec := do(t, h, http.MethodGet, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	var health map[string]interface{}
	decode(t, rec, &health)
	assert.Equal(t, false, health["bound"])
}

func TestRefreshSchedulesBoard(t *testing.T) {
	board := newBoard()
	h := api.NewServer(context.Background(), api.Config{}, board, nil, nil, nil).Handler()

	assert.Equal(t, http.StatusAccepted, do(t, h, http.MethodPost, "/refresh").Code)
	assert.Equal(t, []string{"manual"}, board.refreshes)
}

type instantSource struct{}

func (instantSource) PastRewardEvents(_ context.Context, q reward.RewardQuery) ([]model.RewardEvent, error) {
	return []model.RewardEvent{{
		Account:     q.Account,
		TokenID:     q.TokenID,
		AmountWei:   "3000000000000000000",
		BlockNumber: q.FromBlock + 1,
	}}, nil
}

type okOpener struct{}

func (okOpener) Open(context.Context, string) (reward.OpenReceipt, error) {
	block := uint64(100)
	return reward.OpenReceipt{TxHash: "0xabc", BlockNumber: &block}, nil
}

func (okOpener) BlockNumberByTx(context.Context, string) (uint64, error) {
	return 100, nil
}

func TestOpenRunsSession(t *testing.T) {
	board := newBoard()
	sessions := reward.NewSessions(0)
	srv := api.NewServer(context.Background(), api.Config{}, board, sessions, nil, nil)
	h := srv.Handler()

	rec := do(t, h, http.MethodPost, "/packs/7/open")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	poller := reward.NewPoller(reward.PollerConfig{
		Interval:   time.Second,
		Timeout:    10 * time.Second,
		Clock:      testutil.NewManualClock(time.Unix(0, 0)),
		OnResolved: func(reward.Status) { board.Refresh("reward") },
	}, instantSource{}, okOpener{}, sessions, nil)
	srv.SetOpener(poller, signer)

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/packs/x7/open").Code)

	rec = do(t, h, http.MethodPost, "/packs/7/open")
	require.Equal(t, http.StatusAccepted, rec.Code)
	var started reward.Status
	decode(t, rec, &started)
	require.NotEmpty(t, started.SessionID)
	assert.Equal(t, reward.NormalizeAccount(signer), started.Account)

	srv.Wait()

	rec = do(t, h, http.MethodGet, "/sessions/"+started.SessionID)
	require.Equal(t, http.StatusOK, rec.Code)
	var final reward.Status
	decode(t, rec, &final)
	assert.Equal(t, reward.StateResolved, final.State)
	assert.Equal(t, "3", final.RewardEther)
	assert.Equal(t, "0xabc", final.TxHash)
	assert.Equal(t, []string{"reward"}, board.refreshes)

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/sessions/missing").Code)
}

type blockingSource struct{}

func (blockingSource) PastRewardEvents(ctx context.Context, _ reward.RewardQuery) ([]model.RewardEvent, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestOpenRejectsDuplicateSession(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sessions := reward.NewSessions(0)
	srv := api.NewServer(ctx, api.Config{}, newBoard(), sessions, nil, nil)
	srv.SetOpener(reward.NewPoller(reward.PollerConfig{
		Interval: time.Millisecond,
		Timeout:  time.Minute,
	}, blockingSource{}, okOpener{}, sessions, nil), signer)
	h := srv.Handler()

	require.Equal(t, http.StatusAccepted, do(t, h, http.MethodPost, "/packs/7/open").Code)
	assert.Equal(t, http.StatusConflict, do(t, h, http.MethodPost, "/packs/7/open").Code)

	cancel()
	srv.Wait()
	assert.Zero(t, sessions.Active())
}

func TestRateLimit(t *testing.T) {
	h := api.NewServer(context.Background(), api.Config{RateLimit: 1, RateBurst: 2}, newBoard(), nil, nil, nil).Handler()

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/leaderboard").Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/leaderboard").Code)
	assert.Equal(t, http.StatusTooManyRequests, do(t, h, http.MethodGet, "/leaderboard").Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/healthz").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.Head(42)

	h := api.NewServer(context.Background(), api.Config{}, newBoard(), nil, reg, nil).Handler()
	rec := do(t, h, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "packs_head_block 42")
}

func TestOpenCanonicalTokenID(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sessions := reward.NewSessions(0)
	srv := api.NewServer(ctx, api.Config{}, newBoard(), sessions, nil, nil)
	srv.SetOpener(reward.NewPoller(reward.PollerConfig{
		Interval: time.Millisecond,
		Timeout:  time.Minute,
	}, blockingSource{}, okOpener{}, sessions, nil), signer)
	h := srv.Handler()

	rec := do(t, h, http.MethodPost, "/packs/007/open")
	require.Equal(t, http.StatusAccepted, rec.Code)
	var started reward.Status
	decode(t, rec, &started)
	assert.Equal(t, "7", started.TokenID)
	assert.Equal(t, http.StatusConflict, do(t, h, http.MethodPost, "/packs/7/open").Code)

	// above uint64 but within uint256
	rec = do(t, h, http.MethodPost, "/packs/18446744073709551616/open")
	require.Equal(t, http.StatusAccepted, rec.Code)
	decode(t, rec, &started)
	assert.Equal(t, "18446744073709551616", started.TokenID)

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/packs/-1/open").Code)

	cancel()
	srv.Wait()
	assert.Zero(t, sessions.Active())
}
