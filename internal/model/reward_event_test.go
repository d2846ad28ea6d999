package model

import (
	"encoding/json"
	"testing"
)

func TestRewardEventJSONStringAmount(t *testing.T) {
	event := RewardEvent{
		Account:     "0x1111111111111111111111111111111111111111",
		TokenID:     "42",
		AmountWei:   "123456789012345678901234567890",
		BlockNumber: 36000000,
		TxHash:      "0xdef456",
		LogIndex:    12,
	}

	data, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if _, ok := decoded["amount_wei"].(string); !ok {
		t.Fatalf("amount_wei should be string")
	}
	if _, ok := decoded["token_id"].(string); !ok {
		t.Fatalf("token_id should be string")
	}
}

func TestRewardEventKey(t *testing.T) {
	event := RewardEvent{TxHash: "0xabc", LogIndex: 105}
	if got := event.Key(); got != "0xabc:105" {
		t.Fatalf("key mismatch: %s", got)
	}
	event.LogIndex = 0
	if got := event.Key(); got != "0xabc:0" {
		t.Fatalf("key mismatch: %s", got)
	}
}
