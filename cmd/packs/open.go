package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"jointPacks/internal/apperr"
	"jointPacks/internal/config"
	"jointPacks/internal/lootbox"
	"jointPacks/internal/reward"
)

func runOpen(cmd *cobra.Command, args []string) error {
	tokenID, err := reward.CanonicalTokenID(args[0])
	if err != nil {
		return err
	}

	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadOpen(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	signer, err := loadSigner(cfg.PrivateKey)
	if err != nil {
		return err
	}
	if signer == nil {
		return &apperr.ConnectionError{Endpoint: "signer", Err: errors.New("private key is required to open packs")}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := dialChain(ctx, cfg.RPCURL)
	if err != nil {
		return err
	}
	defer client.Close()

	contract, doc, err := bindContract(ctx, client, cfg.ContractPath, signer, logger)
	if err != nil {
		return err
	}

	poller := reward.NewPoller(reward.PollerConfig{
		Interval: cfg.PollInterval,
		Timeout:  cfg.PollTimeout,
	}, contract, contract, nil, logger)

	account := signer.Address().Hex()
	logger.Info("open pack",
		zap.String("account", account),
		zap.String("token_id", tokenID),
		zap.String("contract", doc.Identity()),
	)

	status, err := poller.Open(ctx, account, tokenID, statusPrinter(os.Stdout, cfg.JSON))
	if status.TxHash != "" && !cfg.JSON {
		if link := doc.TxLink(status.TxHash); link != "" {
			fmt.Fprintf(os.Stdout, "transaction: %s\n", link)
		}
	}
	if err != nil {
		return err
	}

	return printAfterReward(ctx, contract, account, cfg.JSON)
}

func runAwait(cmd *cobra.Command, args []string) error {
	tokenID, err := reward.CanonicalTokenID(args[0])
	if err != nil {
		return err
	}

	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadOpen(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.Account == "" {
		return fmt.Errorf("account is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := dialChain(ctx, cfg.RPCURL)
	if err != nil {
		return err
	}
	defer client.Close()

	contract, _, err := bindContract(ctx, client, cfg.ContractPath, nil, logger)
	if err != nil {
		return err
	}

	fromBlock := cfg.FromBlock
	if fromBlock == 0 {
		fromBlock = contract.DeployBlock()
	}

	poller := reward.NewPoller(reward.PollerConfig{
		Interval: cfg.PollInterval,
		Timeout:  cfg.PollTimeout,
	}, contract, nil, nil, logger)

	if _, err := poller.Await(ctx, cfg.Account, tokenID, fromBlock, statusPrinter(os.Stdout, cfg.JSON)); err != nil {
		return err
	}
	return printAfterReward(ctx, contract, cfg.Account, cfg.JSON)
}

// printAfterReward shows the refreshed total and remaining packs once a
// reward arrived.
func printAfterReward(ctx context.Context, contract *lootbox.Contract, account string, asJSON bool) error {
	events, err := contract.PastRewardEvents(ctx, reward.RewardQuery{Account: account, FromBlock: contract.DeployBlock()})
	if err != nil {
		return err
	}
	total, _, err := reward.AccountTotal(events, account)
	if err != nil {
		return err
	}
	packs, err := contract.Holdings(ctx, account)
	if err != nil {
		return err
	}

	if asJSON {
		return writeJSON(os.Stdout, struct {
			Total interface{} `json:"total"`
			Packs interface{} `json:"packs"`
		}{total, packs})
	}
	fmt.Fprintf(os.Stdout, "total received: %s $JOINT, packs left: %d\n", total.TotalEther, len(packs))
	return nil
}

func statusPrinter(w io.Writer, asJSON bool) reward.Observer {
	if asJSON {
		enc := jsonLines(w)
		return func(s reward.Status) { _ = enc(s) }
	}
	return func(s reward.Status) {
		fmt.Fprintf(w, "[%s] %s\n", s.State, s.Message)
	}
}
