package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"jointPacks/internal/apperr"
	"jointPacks/internal/chain"
	"jointPacks/internal/config"
	"jointPacks/internal/lootbox"
	"jointPacks/internal/reward"
	"jointPacks/internal/storage"
	"jointPacks/internal/storage/postgres"
)

func dialChain(ctx context.Context, rpcURL string) (*chain.Client, error) {
	if strings.TrimSpace(rpcURL) == "" {
		return nil, &apperr.ConnectionError{Err: errors.New("rpc url is required")}
	}
	return chain.NewClient(ctx, rpcURL)
}

func loadSigner(privateKey string) (*lootbox.Signer, error) {
	if strings.TrimSpace(privateKey) == "" {
		return nil, nil
	}
	signer, err := lootbox.NewSigner(privateKey)
	if err != nil {
		return nil, &apperr.ConnectionError{Endpoint: "signer", Err: err}
	}
	return signer, nil
}

// bindContract loads the contract document and binds it to client.
func bindContract(ctx context.Context, client *chain.Client, contractPath string, signer *lootbox.Signer, logger *zap.Logger) (*lootbox.Contract, config.ContractConfig, error) {
	doc, err := config.LoadContract(contractPath)
	if err != nil {
		return nil, config.ContractConfig{}, err
	}

	if doc.Network.ID != 0 {
		id, err := client.ChainID(ctx)
		if err != nil {
			return nil, doc, &apperr.ConnectionError{Endpoint: client.Endpoint(), Err: fmt.Errorf("chain id: %w", err)}
		}
		if id.Uint64() != doc.Network.ID {
			logger.Warn("rpc chain id differs from contract config",
				zap.Uint64("rpc_chain_id", id.Uint64()),
				zap.Uint64("config_chain_id", doc.Network.ID),
				zap.String("network", doc.Network.Name),
			)
		}
	}

	contract, err := lootbox.NewContract(doc.Binding(), client, signer, logger)
	if err != nil {
		return nil, doc, &apperr.ConfigLoadError{Path: contractPath, Err: err}
	}
	return contract, doc, nil
}

// eventSource is where a read command takes RewardClaimed events from.
type eventSource struct {
	reward.EventSource
	fromBlock uint64
	// identity is the contract identity, empty when the document is unavailable.
	identity string
	store    *postgres.Store
	closers  []func()
}

func (s *eventSource) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// openEventSource picks the JSONL archive, the Postgres archive or the chain,
// in that order.
func openEventSource(ctx context.Context, cfg config.Config, logger *zap.Logger) (*eventSource, error) {
	src := &eventSource{}

	if cfg.PGDSN != "" {
		store, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return nil, err
		}
		src.store = store
		src.closers = append(src.closers, store.Close)
	}

	switch {
	case cfg.Input != "":
		src.EventSource = storage.NewJsonlStorage(cfg.Input)
		if doc, err := config.LoadContract(cfg.ContractPath); err == nil {
			src.identity = doc.Identity()
		}
	case src.store != nil:
		src.EventSource = src.store
		if doc, err := config.LoadContract(cfg.ContractPath); err == nil {
			src.identity = doc.Identity()
		}
	default:
		client, err := dialChain(ctx, cfg.RPCURL)
		if err != nil {
			src.Close()
			return nil, err
		}
		src.closers = append(src.closers, client.Close)
		contract, doc, err := bindContract(ctx, client, cfg.ContractPath, nil, logger)
		if err != nil {
			src.Close()
			return nil, err
		}
		src.EventSource = contract
		src.fromBlock = doc.DeployBlock
		src.identity = doc.Identity()
	}

	logger.Debug("event source",
		zap.String("identity", src.identity),
		zap.Uint64("from_block", src.fromBlock),
		zap.String("in", cfg.Input),
		zap.Bool("postgres", src.store != nil),
	)
	return src, nil
}
