package indexer

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jointPacks/internal/apperr"
	"jointPacks/internal/model"
	"jointPacks/internal/reward"
)

type fakeChain struct {
	latest uint64
}

func (f *fakeChain) LatestBlockNumber(context.Context) (uint64, error) {
	return f.latest, nil
}

func (f *fakeChain) BlockTimestamp(_ context.Context, number uint64) (uint64, error) {
	return 1700000000 + number, nil
}

type fakeSource struct {
	events  []model.RewardEvent
	failOn  map[uint64]int
	queries []reward.RewardQuery
}

func (f *fakeSource) PastRewardEvents(_ context.Context, query reward.RewardQuery) ([]model.RewardEvent, error) {
	f.queries = append(f.queries, query)
	if f.failOn[query.FromBlock] > 0 {
		f.failOn[query.FromBlock]--
		return nil, errors.New("rpc timeout")
	}
	out := make([]model.RewardEvent, 0)
	for _, event := range f.events {
		if query.Matches(event) {
			out = append(out, event)
		}
	}
	return out, nil
}

type memSink struct {
	events  []model.RewardEvent
	batches int
}

func (m *memSink) PutRewardBatch(_ context.Context, events []model.RewardEvent) error {
	m.batches++
	m.events = append(m.events, events...)
	return nil
}

func event(block uint64, tx string) model.RewardEvent {
	return model.RewardEvent{
		Account:     "0x1111111111111111111111111111111111111111",
		TokenID:     "1",
		AmountWei:   "10",
		BlockNumber: block,
		TxHash:      tx,
	}
}

func TestRunnerArchivesWindows(t *testing.T) {
	source := &fakeSource{events: []model.RewardEvent{event(3, "0xa"), event(12, "0xb"), event(25, "0xc")}}
	sink := &memSink{}
	checkpoint := NewFileCheckpoint(filepath.Join(t.TempDir(), "cp.json"), true)

	runner := NewRunner(RunConfig{FromBlock: 0, BatchSize: 10}, &fakeChain{latest: 29}, source, sink, checkpoint, nil, nil)
	last, err := runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(29), last)

	assert.Len(t, source.queries, 3)
	assert.Equal(t, 3, sink.batches)
	require.Len(t, sink.events, 3)
	assert.Equal(t, uint64(1700000012), sink.events[1].Timestamp)

	saved, ok, err := checkpoint.Load(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint64(29), saved)
}

func TestRunnerResumesFromCheckpoint(t *testing.T) {
	checkpoint := NewFileCheckpoint(filepath.Join(t.TempDir(), "cp.json"), true)
	require.NoError(t, checkpoint.Save(context.Background(), 19))

	source := &fakeSource{events: []model.RewardEvent{event(3, "0xa"), event(25, "0xc")}}
	sink := &memSink{}
	runner := NewRunner(RunConfig{BatchSize: 10, ToBlock: 29}, &fakeChain{}, source, sink, checkpoint, nil, nil)

	_, err := runner.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, source.queries, 1)
	assert.Equal(t, uint64(20), source.queries[0].FromBlock)
	require.Len(t, sink.events, 1)
	assert.Equal(t, "0xc", sink.events[0].TxHash)
}

func TestRunnerNothingToSync(t *testing.T) {
	checkpoint := NewFileCheckpoint(filepath.Join(t.TempDir(), "cp.json"), true)
	require.NoError(t, checkpoint.Save(context.Background(), 50))

	source := &fakeSource{}
	runner := NewRunner(RunConfig{BatchSize: 10, ToBlock: 40}, &fakeChain{}, source, &memSink{}, checkpoint, nil, nil)
	last, err := runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(40), last)
	assert.Empty(t, source.queries)
}

func TestRunnerDeduplicates(t *testing.T) {
	dup := event(5, "0xa")
	source := &fakeSource{events: []model.RewardEvent{dup, dup}}
	sink := &memSink{}
	runner := NewRunner(RunConfig{BatchSize: 100, ToBlock: 9}, &fakeChain{}, source, sink, nil, nil, nil)

	_, err := runner.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, sink.events, 1)
}

func TestRunnerRetriesWindow(t *testing.T) {
	source := &fakeSource{
		events: []model.RewardEvent{event(15, "0xb")},
		failOn: map[uint64]int{10: 2},
	}
	sink := &memSink{}
	runner := NewRunner(RunConfig{BatchSize: 10, ToBlock: 19, MaxRetries: 3, RetryBackoff: time.Millisecond}, &fakeChain{}, source, sink, nil, nil, nil)

	_, err := runner.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, source.queries, 4)
	assert.Len(t, sink.events, 1)
}

func TestRunnerStopsAfterRetries(t *testing.T) {
	checkpoint := NewFileCheckpoint(filepath.Join(t.TempDir(), "cp.json"), true)
	source := &fakeSource{failOn: map[uint64]int{10: 10}}
	runner := NewRunner(RunConfig{BatchSize: 10, ToBlock: 29, MaxRetries: 1, RetryBackoff: time.Millisecond}, &fakeChain{}, source, &memSink{}, checkpoint, nil, nil)

	last, err := runner.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, uint64(9), last)

	saved, ok, err := checkpoint.Load(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint64(9), saved)
}

func TestRunnerValidation(t *testing.T) {
	_, err := NewRunner(RunConfig{}, &fakeChain{}, &fakeSource{}, &memSink{}, nil, nil, nil).Run(context.Background())
	assert.Error(t, err)

	_, err = NewRunner(RunConfig{BatchSize: 1}, &fakeChain{}, nil, &memSink{}, nil, nil, nil).Run(context.Background())
	assert.Error(t, err)
}

type memState struct {
	values map[string]uint64
}

func (m *memState) LoadState(_ context.Context, name string) (uint64, bool, error) {
	v, ok := m.values[name]
	return v, ok, nil
}

func (m *memState) SaveState(_ context.Context, name string, block uint64) error {
	m.values[name] = block
	return nil
}

func TestDBCheckpoint(t *testing.T) {
	state := &memState{values: map[string]uint64{}}
	cp := &DBCheckpoint{Store: state, Name: "rewards"}

	_, ok, err := cp.Load(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, cp.Save(context.Background(), 77))
	assert.Equal(t, uint64(77), state.values["rewards"])

	var nilCP *DBCheckpoint
	_, ok, err = nilCP.Load(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFileCheckpointDisabled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cp.json")
	cp := NewFileCheckpoint(path, false)
	require.NoError(t, cp.Save(context.Background(), 10))

	_, ok, err := NewFileCheckpoint(path, true).Load(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWithRetryStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := withRetry(ctx, 5, time.Hour, func(context.Context) error {
		calls++
		cancel()
		return errors.New("boom")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestWithRetrySkipsConfigErrors(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), 5, time.Millisecond, func(context.Context) error {
		calls++
		return &apperr.ConfigLoadError{Path: "contract.json", Err: errors.New("missing")}
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestWithRetryRetriesQueryErrors(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), 2, time.Millisecond, func(context.Context) error {
		calls++
		if calls < 3 {
			return &apperr.QueryError{Err: errors.New("rpc busy")}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}
