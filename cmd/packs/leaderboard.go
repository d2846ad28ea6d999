package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"jointPacks/internal/config"
	"jointPacks/internal/reward"
	"jointPacks/internal/storage/postgres"
)

func readCommand(cmd *cobra.Command) (config.Config, *zap.Logger, context.Context, context.CancelFunc, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return cfg, nil, nil, nil, err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return cfg, nil, nil, nil, err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	return cfg, logger, ctx, func() {
		cancel()
		stop()
	}, nil
}

func runLeaderboard(cmd *cobra.Command, _ []string) error {
	cfg, logger, ctx, done, err := readCommand(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()
	defer done()

	if (cfg.Save || cfg.Cached) && cfg.PGDSN == "" {
		return fmt.Errorf("--save and --cached require --pg-dsn")
	}

	if cfg.Cached {
		return showCachedLeaderboard(ctx, cfg)
	}

	src, err := openEventSource(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer src.Close()

	events, err := src.PastRewardEvents(ctx, reward.RewardQuery{FromBlock: src.fromBlock})
	if err != nil {
		return err
	}
	entries, err := reward.Leaderboard(events, cfg.Limit)
	if err != nil {
		return err
	}

	logger.Info("leaderboard computed",
		zap.Int("events", len(events)),
		zap.Int("entries", len(entries)),
		zap.String("contract", src.identity),
	)

	if cfg.Save {
		if src.identity == "" {
			return fmt.Errorf("--save needs a readable contract config to identify the snapshot")
		}
		if err := src.store.SaveLeaderboard(ctx, src.identity, time.Now().UTC(), entries); err != nil {
			return fmt.Errorf("save leaderboard: %w", err)
		}
		logger.Info("leaderboard saved", zap.String("contract", src.identity))
	}

	if cfg.JSON {
		return writeJSON(os.Stdout, entries)
	}
	return writeLeaderboard(os.Stdout, entries)
}

func showCachedLeaderboard(ctx context.Context, cfg config.Config) error {
	doc, err := config.LoadContract(cfg.ContractPath)
	if err != nil {
		return err
	}
	store, err := postgres.NewStore(ctx, cfg.PGDSN)
	if err != nil {
		return err
	}
	defer store.Close()

	entries, refreshedAt, ok, err := store.LatestLeaderboard(ctx, doc.Identity())
	if err != nil {
		return fmt.Errorf("load leaderboard: %w", err)
	}
	if !ok {
		return errors.New("no saved leaderboard for this contract, run with --save first")
	}
	if cfg.Limit > 0 && len(entries) > cfg.Limit {
		entries = entries[:cfg.Limit]
	}

	if cfg.JSON {
		return writeJSON(os.Stdout, struct {
			RefreshedAt time.Time   `json:"refreshed_at"`
			Entries     interface{} `json:"entries"`
		}{refreshedAt, entries})
	}
	fmt.Fprintf(os.Stdout, "snapshot from %s\n", refreshedAt.Format(time.RFC3339))
	return writeLeaderboard(os.Stdout, entries)
}

func runRewards(cmd *cobra.Command, _ []string) error {
	cfg, logger, ctx, done, err := readCommand(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()
	defer done()

	if cfg.Account == "" {
		return fmt.Errorf("account is required")
	}

	src, err := openEventSource(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer src.Close()

	events, err := src.PastRewardEvents(ctx, reward.RewardQuery{Account: cfg.Account, FromBlock: src.fromBlock})
	if err != nil {
		return err
	}
	total, found, err := reward.AccountTotal(events, cfg.Account)
	if err != nil {
		return err
	}

	if cfg.JSON {
		if !found {
			return writeJSON(os.Stdout, map[string]interface{}{"account": total.Account, "has_rewards": false})
		}
		return writeJSON(os.Stdout, total)
	}
	if !found {
		fmt.Fprintf(os.Stdout, "%s has no rewards yet\n", reward.NormalizeAccount(cfg.Account))
		return nil
	}
	fmt.Fprintf(os.Stdout, "%s received %s $JOINT from %d packs\n", total.Account, total.TotalEther, total.Events)
	return nil
}

func runHoldings(cmd *cobra.Command, _ []string) error {
	cfg, logger, ctx, done, err := readCommand(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()
	defer done()

	if cfg.Account == "" {
		return fmt.Errorf("account is required")
	}

	client, err := dialChain(ctx, cfg.RPCURL)
	if err != nil {
		return err
	}
	defer client.Close()

	contract, _, err := bindContract(ctx, client, cfg.ContractPath, nil, logger)
	if err != nil {
		return err
	}

	packs, err := contract.Holdings(ctx, cfg.Account)
	if err != nil {
		return err
	}

	if cfg.JSON {
		return writeJSON(os.Stdout, packs)
	}
	return writePacks(os.Stdout, packs)
}
