package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"jointPacks/internal/apperr"
	"jointPacks/internal/model"
	"jointPacks/internal/reward"
)

func TestJsonlStorageReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "rewards.jsonl")
	store := NewJsonlStorage(path)
	ctx := context.Background()

	first := []model.RewardEvent{
		{Account: "0x1111111111111111111111111111111111111111", TokenID: "1", AmountWei: "10", BlockNumber: 5, TxHash: "0xa", LogIndex: 0},
		{Account: "0x2222222222222222222222222222222222222222", TokenID: "2", AmountWei: "20", BlockNumber: 6, TxHash: "0xb", LogIndex: 1},
	}
	if err := store.PutRewardBatch(ctx, first); err != nil {
		t.Fatalf("put: %v", err)
	}
	// A re-run after a lost checkpoint appends the same log again.
	if err := store.PutRewardBatch(ctx, first[1:]); err != nil {
		t.Fatalf("put again: %v", err)
	}
	if err := store.PutRewardBatch(ctx, nil); err != nil {
		t.Fatalf("put empty: %v", err)
	}

	all, err := store.PastRewardEvents(ctx, reward.RewardQuery{})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 events after dedupe, got %d", len(all))
	}
	if all[0] != first[0] || all[1] != first[1] {
		t.Fatalf("events mismatch: %+v", all)
	}

	filtered, err := store.PastRewardEvents(ctx, reward.RewardQuery{FromBlock: 6})
	if err != nil {
		t.Fatalf("replay filtered: %v", err)
	}
	if len(filtered) != 1 || filtered[0].TokenID != "2" {
		t.Fatalf("filter mismatch: %+v", filtered)
	}
}

func TestJsonlStorageMissingFile(t *testing.T) {
	store := NewJsonlStorage(filepath.Join(t.TempDir(), "none.jsonl"))
	_, err := store.PastRewardEvents(context.Background(), reward.RewardQuery{})
	if apperr.Kind(err) != "query" {
		t.Fatalf("expected query error, got %v", err)
	}
}

func TestJsonlStorageCorruptLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rewards.jsonl")
	if err := os.WriteFile(path, []byte("{\"account\":\"0x1\"}\nnot json\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err := NewJsonlStorage(path).PastRewardEvents(context.Background(), reward.RewardQuery{})
	if err == nil {
		t.Fatalf("expected error for corrupt line")
	}
}
