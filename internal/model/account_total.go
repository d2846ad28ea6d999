package model

import "math/big"

// AccountTotal is the summed reward of one account.
type AccountTotal struct {
	Account    string   `json:"account"`
	TotalWei   *big.Int `json:"-"`
	TotalEther string   `json:"total_ether"`
	Events     int      `json:"events"`
}

// LeaderboardEntry is an AccountTotal with its 1-based rank.
type LeaderboardEntry struct {
	Rank int `json:"rank"`
	AccountTotal
}
