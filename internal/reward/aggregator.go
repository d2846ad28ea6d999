package reward

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"jointPacks/internal/apperr"
	"jointPacks/internal/model"
)

// NormalizeAccount returns the checksum form of hex addresses so case variants aggregate together.
func NormalizeAccount(account string) string {
	account = strings.TrimSpace(account)
	if common.IsHexAddress(account) {
		return common.HexToAddress(account).Hex()
	}
	return strings.ToLower(account)
}

// Aggregate sums reward amounts per account. Totals are returned in order of
// each account's first appearance. Accounts without events are absent.
func Aggregate(events []model.RewardEvent) ([]model.AccountTotal, error) {
	index := make(map[string]int)
	totals := make([]model.AccountTotal, 0)

	for _, event := range events {
		amount, err := ParseWei(event.AmountWei)
		if err != nil {
			return nil, &apperr.QueryError{Op: "aggregate rewards", Err: fmt.Errorf("event %s: %w", event.Key(), err)}
		}

		key := NormalizeAccount(event.Account)
		i, ok := index[key]
		if !ok {
			i = len(totals)
			index[key] = i
			totals = append(totals, model.AccountTotal{Account: key, TotalWei: new(big.Int)})
		}
		totals[i].TotalWei.Add(totals[i].TotalWei, amount)
		totals[i].Events++
	}

	for i := range totals {
		totals[i].TotalEther = FormatEther(totals[i].TotalWei)
	}
	return totals, nil
}

// Totals is Aggregate keyed by normalized account.
func Totals(events []model.RewardEvent) (map[string]model.AccountTotal, error) {
	totals, err := Aggregate(events)
	if err != nil {
		return nil, err
	}
	out := make(map[string]model.AccountTotal, len(totals))
	for _, total := range totals {
		out[total.Account] = total
	}
	return out, nil
}

// AccountTotal filters events down to account before summing. The bool is
// false when the account has no reward events.
func AccountTotal(events []model.RewardEvent, account string) (model.AccountTotal, bool, error) {
	key := NormalizeAccount(account)
	filtered := make([]model.RewardEvent, 0)
	for _, event := range events {
		if NormalizeAccount(event.Account) == key {
			filtered = append(filtered, event)
		}
	}

	totals, err := Aggregate(filtered)
	if err != nil {
		return model.AccountTotal{}, false, err
	}
	if len(totals) == 0 {
		return model.AccountTotal{Account: key, TotalWei: new(big.Int), TotalEther: "0"}, false, nil
	}
	return totals[0], true, nil
}
