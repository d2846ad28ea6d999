package reward

import (
	"sort"

	"jointPacks/internal/model"
)

// DefaultLeaderboardSize is the number of ranked accounts kept when no limit is configured.
const DefaultLeaderboardSize = 50

// Rank sorts totals descending and keeps the first limit entries. Ties keep
// their input order. limit <= 0 keeps everything.
func Rank(totals []model.AccountTotal, limit int) []model.LeaderboardEntry {
	sorted := make([]model.AccountTotal, len(totals))
	copy(sorted, totals)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].TotalWei.Cmp(sorted[j].TotalWei) > 0
	})

	if limit > 0 && len(sorted) > limit {
		sorted = sorted[:limit]
	}

	entries := make([]model.LeaderboardEntry, 0, len(sorted))
	for i, total := range sorted {
		entries = append(entries, model.LeaderboardEntry{Rank: i + 1, AccountTotal: total})
	}
	return entries
}

// Leaderboard aggregates events and ranks the result.
func Leaderboard(events []model.RewardEvent, limit int) ([]model.LeaderboardEntry, error) {
	totals, err := Aggregate(events)
	if err != nil {
		return nil, err
	}
	return Rank(totals, limit), nil
}
