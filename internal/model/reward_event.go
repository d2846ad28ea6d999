package model

import "strconv"

// RewardEvent is a decoded RewardClaimed log. Amounts stay in wei as decimal strings.
type RewardEvent struct {
	Account     string `json:"account"`
	TokenID     string `json:"token_id"`
	AmountWei   string `json:"amount_wei"`
	BlockNumber uint64 `json:"block_number"`
	TxHash      string `json:"tx_hash,omitempty"`
	LogIndex    uint64 `json:"log_index"`
	Contract    string `json:"contract,omitempty"`
	Timestamp   uint64 `json:"timestamp,omitempty"`
}

// Key identifies the log that produced the event.
func (e RewardEvent) Key() string {
	return e.TxHash + ":" + strconv.FormatUint(e.LogIndex, 10)
}
