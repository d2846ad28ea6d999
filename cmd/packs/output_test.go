package main

import (
	"bytes"
	"strings"
	"testing"

	"jointPacks/internal/model"
	"jointPacks/internal/reward"
)

func TestWriteLeaderboard(t *testing.T) {
	var buf bytes.Buffer
	entries := []model.LeaderboardEntry{
		{Rank: 1, AccountTotal: model.AccountTotal{Account: "0xAbC", TotalEther: "12.345678", Events: 3}},
		{Rank: 2, AccountTotal: model.AccountTotal{Account: "0xDef", TotalEther: "1", Events: 1}},
	}
	if err := writeLeaderboard(&buf, entries); err != nil {
		t.Fatalf("write: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header and 2 rows, got %q", buf.String())
	}
	if !strings.Contains(lines[1], "12.3457") || !strings.Contains(lines[1], "0xAbC") {
		t.Fatalf("unexpected first row: %q", lines[1])
	}
	if !strings.Contains(lines[2], "1.0000") {
		t.Fatalf("unexpected second row: %q", lines[2])
	}
}

func TestWriteLeaderboardEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := writeLeaderboard(&buf, nil); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := buf.String(); got != "no rewards claimed yet\n" {
		t.Fatalf("unexpected output: %q", got)
	}
}

func TestWritePacks(t *testing.T) {
	var buf bytes.Buffer
	if err := writePacks(&buf, []model.Pack{{TokenID: "7", TokenURI: "ipfs://seven"}, {TokenID: "9"}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "#7") || !strings.Contains(out, "ipfs://seven") || !strings.Contains(out, "#9") {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestStatusPrinter(t *testing.T) {
	var buf bytes.Buffer
	statusPrinter(&buf, false)(reward.Status{State: reward.StateAwaitingReward, Message: "waiting"})
	if got := buf.String(); got != "[awaiting_reward] waiting\n" {
		t.Fatalf("unexpected text status: %q", got)
	}

	buf.Reset()
	statusPrinter(&buf, true)(reward.Status{SessionID: "s1", State: reward.StateResolved})
	out := buf.String()
	if !strings.Contains(out, `"session_id":"s1"`) || !strings.Contains(out, `"state":"resolved"`) {
		t.Fatalf("unexpected json status: %q", out)
	}
	if strings.Count(out, "\n") != 1 {
		t.Fatalf("expected one line, got %q", out)
	}
}
