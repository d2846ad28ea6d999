package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"jointPacks/internal/model"
	"jointPacks/internal/reward"
)

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// jsonLines encodes one compact JSON document per line.
func jsonLines(w io.Writer) func(interface{}) error {
	enc := json.NewEncoder(w)
	return enc.Encode
}

func writeLeaderboard(w io.Writer, entries []model.LeaderboardEntry) error {
	if len(entries) == 0 {
		_, err := fmt.Fprintln(w, "no rewards claimed yet")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "RANK\tACCOUNT\t$JOINT\tPACKS\t")
	for _, entry := range entries {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t\n", entry.Rank, entry.Account, reward.RoundEther(entry.TotalEther, 4), entry.Events)
	}
	return tw.Flush()
}

func writePacks(w io.Writer, packs []model.Pack) error {
	if len(packs) == 0 {
		_, err := fmt.Fprintln(w, "no packs held")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TOKEN\tURI")
	for _, pack := range packs {
		fmt.Fprintf(tw, "#%s\t%s\n", pack.TokenID, pack.TokenURI)
	}
	return tw.Flush()
}
