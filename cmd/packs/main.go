package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"jointPacks/internal/apperr"
)

func main() {
	root := &cobra.Command{
		Use:           "packs",
		Short:         "$JOINT Pack rewards, holdings and leaderboard",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	leaderboardCmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Rank accounts by total $JOINT received from packs",
		RunE:  runLeaderboard,
	}
	addReadFlags(leaderboardCmd)
	leaderboardCmd.Flags().Int("limit", 50, "number of ranked accounts to show")
	leaderboardCmd.Flags().String("in", "", "read events from a JSONL archive instead of the chain")
	leaderboardCmd.Flags().String("pg-dsn", "", "read events from the Postgres archive")
	leaderboardCmd.Flags().Bool("save", false, "store the computed snapshot in Postgres (requires --pg-dsn)")
	leaderboardCmd.Flags().Bool("cached", false, "show the last snapshot stored in Postgres (requires --pg-dsn)")
	root.AddCommand(leaderboardCmd)

	rewardsCmd := &cobra.Command{
		Use:   "rewards",
		Short: "Show the total $JOINT an account received",
		RunE:  runRewards,
	}
	addReadFlags(rewardsCmd)
	rewardsCmd.Flags().String("account", "", "account address")
	rewardsCmd.Flags().String("in", "", "read events from a JSONL archive instead of the chain")
	rewardsCmd.Flags().String("pg-dsn", "", "read events from the Postgres archive")
	root.AddCommand(rewardsCmd)

	holdingsCmd := &cobra.Command{
		Use:   "holdings",
		Short: "List the packs held by an account",
		RunE:  runHoldings,
	}
	addReadFlags(holdingsCmd)
	holdingsCmd.Flags().String("account", "", "account address")
	root.AddCommand(holdingsCmd)

	openCmd := &cobra.Command{
		Use:   "open <tokenId>",
		Short: "Open a pack and wait for its reward",
		Args:  cobra.ExactArgs(1),
		RunE:  runOpen,
	}
	addOpenFlags(openCmd)
	openCmd.Flags().String("private-key", "", "hex private key of the pack owner")
	root.AddCommand(openCmd)

	awaitCmd := &cobra.Command{
		Use:   "await <tokenId>",
		Short: "Wait for the reward of a pack that was already opened",
		Args:  cobra.ExactArgs(1),
		RunE:  runAwait,
	}
	addOpenFlags(awaitCmd)
	awaitCmd.Flags().String("account", "", "account that opened the pack")
	awaitCmd.Flags().Uint64("from", 0, "block the open transaction was mined in")
	root.AddCommand(awaitCmd)

	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Archive RewardClaimed events",
		RunE:  runSync,
	}
	syncCmd.Flags().String("rpc", "", "RPC URL")
	syncCmd.Flags().String("contract-config", "./config/config.json", "contract config JSON")
	syncCmd.Flags().Uint64("from", 0, "start block (inclusive), 0 means deploy block")
	syncCmd.Flags().Uint64("to", 0, "end block (inclusive), 0 means latest")
	syncCmd.Flags().Uint64("batch-size", 2000, "blocks per batch")
	syncCmd.Flags().String("out", "./data/rewards.jsonl", "output JSONL path")
	syncCmd.Flags().String("pg-dsn", "", "write to Postgres instead of JSONL")
	syncCmd.Flags().String("checkpoint", "./data/checkpoint.json", "checkpoint file path")
	syncCmd.Flags().Bool("checkpoint-enabled", true, "enable checkpointing")
	syncCmd.Flags().Int("max-retries", 5, "maximum retry attempts")
	syncCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	syncCmd.Flags().Float64("rate-limit", 0, "RPC requests per second, 0 means unlimited")
	syncCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.AddCommand(syncCmd)

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the leaderboard and pack API over HTTP",
		RunE:  runServe,
	}
	serveCmd.Flags().String("rpc", "", "RPC URL")
	serveCmd.Flags().String("contract-config", "./config/config.json", "contract config JSON")
	serveCmd.Flags().String("private-key", "", "hex private key; enables POST /packs/{tokenId}/open")
	serveCmd.Flags().String("listen", ":8080", "listen address")
	serveCmd.Flags().String("pg-dsn", "", "read leaderboard events from the Postgres archive")
	serveCmd.Flags().Int("limit", 50, "leaderboard size")
	serveCmd.Flags().Duration("debounce", 300*time.Millisecond, "leaderboard refresh debounce")
	serveCmd.Flags().Duration("head-interval", 5*time.Second, "latest block poll interval")
	serveCmd.Flags().Duration("poll-interval", 2*time.Second, "reward poll interval")
	serveCmd.Flags().Duration("poll-timeout", 60*time.Second, "reward poll budget")
	serveCmd.Flags().Float64("rate-limit", 5, "requests per second per IP, 0 disables")
	serveCmd.Flags().Int("rate-burst", 10, "request burst per IP")
	serveCmd.Flags().Duration("shutdown-grace", 10*time.Second, "graceful shutdown timeout")
	serveCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.AddCommand(serveCmd)

	if err := root.Execute(); err != nil {
		if apperr.Kind(err) != "unknown" {
			fmt.Fprintln(os.Stderr, apperr.UserMessage(err))
		}
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func addReadFlags(cmd *cobra.Command) {
	cmd.Flags().String("rpc", "", "RPC URL")
	cmd.Flags().String("contract-config", "./config/config.json", "contract config JSON")
	cmd.Flags().Bool("json", false, "print JSON instead of a table")
	cmd.Flags().Duration("timeout", 30*time.Second, "overall timeout")
	cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
}

func addOpenFlags(cmd *cobra.Command) {
	cmd.Flags().String("rpc", "", "RPC URL")
	cmd.Flags().String("contract-config", "./config/config.json", "contract config JSON")
	cmd.Flags().Duration("poll-interval", 2*time.Second, "reward poll interval")
	cmd.Flags().Duration("poll-timeout", 60*time.Second, "reward poll budget")
	cmd.Flags().Bool("json", false, "print status updates as JSON lines")
	cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
