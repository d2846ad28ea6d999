package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"jointPacks/internal/config"
	"jointPacks/internal/indexer"
	"jointPacks/internal/storage"
	"jointPacks/internal/storage/postgres"
)

func runSync(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadSync(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := dialChain(ctx, cfg.RPCURL)
	if err != nil {
		return err
	}
	defer client.Close()

	contract, doc, err := bindContract(ctx, client, cfg.ContractPath, nil, logger)
	if err != nil {
		return err
	}

	fromBlock := cfg.FromBlock
	if fromBlock == 0 {
		fromBlock = doc.DeployBlock
	}

	var (
		sink       storage.RewardSink
		checkpoint indexer.Checkpointer
	)
	if cfg.PGDSN != "" {
		store, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer store.Close()
		sink = store
		checkpoint = &indexer.DBCheckpoint{Store: store, Name: "rewards:" + doc.Identity()}
	} else {
		sink = storage.NewJsonlStorage(cfg.Out)
		checkpoint = indexer.NewFileCheckpoint(cfg.Checkpoint, cfg.CheckpointEnabled)
	}

	runner := indexer.NewRunner(indexer.RunConfig{
		FromBlock:    fromBlock,
		ToBlock:      cfg.ToBlock,
		BatchSize:    cfg.BatchSize,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
		RateLimit:    cfg.RateLimit,
	}, client, contract, sink, checkpoint, nil, logger)

	logger.Info("sync start",
		zap.String("rpc", cfg.RPCURL),
		zap.String("contract", doc.Identity()),
		zap.Uint64("from", fromBlock),
		zap.Uint64("to", cfg.ToBlock),
		zap.Uint64("batch_size", cfg.BatchSize),
		zap.Bool("postgres", cfg.PGDSN != ""),
		zap.String("out", cfg.Out),
		zap.Bool("checkpoint_enabled", cfg.CheckpointEnabled),
		zap.String("checkpoint", cfg.Checkpoint),
	)

	last, err := runner.Run(ctx)
	if err != nil {
		return err
	}
	logger.Info("sync complete", zap.Uint64("last_block", last))
	return nil
}
