package lootbox

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"jointPacks/internal/apperr"
	"jointPacks/internal/chain"
	"jointPacks/internal/model"
	"jointPacks/internal/reward"
)

// DefaultMaxBlockRange bounds a single eth_getLogs window.
const DefaultMaxBlockRange = 5000

// Backend is the subset of *chain.Client the contract binding needs.
type Backend interface {
	LatestBlockNumber(ctx context.Context) (uint64, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	ChainID(ctx context.Context) (*big.Int, error)
	FilterLogs(ctx context.Context, fromBlock, toBlock uint64, address common.Address, topics [][]common.Hash) ([]types.Log, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error)
}

var _ Backend = (*chain.Client)(nil)

// Config describes the deployed contract.
type Config struct {
	Address       common.Address
	DeployBlock   uint64
	MaxBlockRange uint64
	// GasLimit is used for openLootBox when set; otherwise gas is estimated.
	GasLimit uint64
	// ChainID skips the eth_chainId lookup when set.
	ChainID *big.Int
}

// Contract binds the LootBox contract. It serves as the reward event source
// and, when a signer is present, as the pack opener.
type Contract struct {
	cfg     Config
	backend Backend
	signer  *Signer
	abi     abi.ABI
	logger  *zap.Logger
}

var (
	_ reward.EventSource = (*Contract)(nil)
	_ reward.Opener      = (*Contract)(nil)
)

// NewContract builds a binding. signer may be nil for read-only use.
func NewContract(cfg Config, backend Backend, signer *Signer, logger *zap.Logger) (*Contract, error) {
	if backend == nil {
		return nil, fmt.Errorf("chain backend is nil")
	}
	if cfg.Address == (common.Address{}) {
		return nil, fmt.Errorf("contract address is required")
	}
	if cfg.MaxBlockRange == 0 {
		cfg.MaxBlockRange = DefaultMaxBlockRange
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	parsed, err := LootBoxABI()
	if err != nil {
		return nil, fmt.Errorf("parse lootbox abi: %w", err)
	}
	return &Contract{
		cfg:     cfg,
		backend: backend,
		signer:  signer,
		abi:     parsed,
		logger:  logger,
	}, nil
}

func (c *Contract) Address() common.Address {
	return c.cfg.Address
}

func (c *Contract) DeployBlock() uint64 {
	return c.cfg.DeployBlock
}

// CanOpen reports whether a signer is configured.
func (c *Contract) CanOpen() bool {
	return c.signer != nil
}

// PastRewardEvents fetches RewardClaimed events matching query. The range is
// clamped to the deploy block and split into MaxBlockRange windows.
func (c *Contract) PastRewardEvents(ctx context.Context, query reward.RewardQuery) ([]model.RewardEvent, error) {
	topics, err := c.rewardTopics(query)
	if err != nil {
		return nil, &apperr.QueryError{Op: "RewardClaimed filter", Err: err}
	}

	from := query.FromBlock
	if from < c.cfg.DeployBlock {
		from = c.cfg.DeployBlock
	}
	var to uint64
	if query.ToBlock != nil {
		to = *query.ToBlock
	} else {
		to, err = c.backend.LatestBlockNumber(ctx)
		if err != nil {
			return nil, &apperr.QueryError{Op: "latest block", Err: err}
		}
	}
	if from > to {
		return nil, nil
	}

	windows, err := chain.SplitWindows(from, to, c.cfg.MaxBlockRange)
	if err != nil {
		return nil, &apperr.QueryError{Op: "RewardClaimed logs", Err: err}
	}

	events := make([]model.RewardEvent, 0)
	for _, window := range windows {
		logs, err := c.backend.FilterLogs(ctx, window.From, window.To, c.cfg.Address, topics)
		if err != nil {
			return nil, &apperr.QueryError{Op: "RewardClaimed logs", Err: fmt.Errorf("blocks %d-%d: %w", window.From, window.To, err)}
		}
		for _, log := range logs {
			if log.Removed {
				continue
			}
			event, err := DecodeRewardClaimed(log)
			if err != nil {
				return nil, &apperr.QueryError{Op: "decode RewardClaimed", Err: fmt.Errorf("tx %s log %d: %w", log.TxHash.Hex(), log.Index, err)}
			}
			if query.Matches(event) {
				events = append(events, event)
			}
		}
		c.logger.Debug("reward logs fetched",
			zap.Uint64("from", window.From),
			zap.Uint64("to", window.To),
			zap.Int("logs", len(logs)),
		)
	}

	return events, nil
}

// rewardTopics builds the eth_getLogs topic filter. Only indexed arguments
// can be filtered server side; the rest is left to RewardQuery.Matches.
func (c *Contract) rewardTopics(query reward.RewardQuery) ([][]common.Hash, error) {
	event := c.abi.Events[EventRewardClaimed]

	rules := make([][]interface{}, 0, len(event.Inputs))
	for _, arg := range event.Inputs {
		if !arg.Indexed {
			continue
		}
		var rule []interface{}
		switch arg.Name {
		case "user":
			if query.Account != "" {
				if !common.IsHexAddress(query.Account) {
					return nil, fmt.Errorf("invalid account: %s", query.Account)
				}
				rule = append(rule, common.HexToAddress(query.Account))
			}
		case "tokenId":
			if query.TokenID != "" {
				tokenID, err := parseTokenID(query.TokenID)
				if err != nil {
					return nil, err
				}
				rule = append(rule, tokenID)
			}
		}
		rules = append(rules, rule)
	}

	topics, err := abi.MakeTopics(rules...)
	if err != nil {
		return nil, fmt.Errorf("make topics: %w", err)
	}
	return append([][]common.Hash{{event.ID}}, topics...), nil
}

// Open sends openLootBox(tokenID) and waits for it to be mined.
func (c *Contract) Open(ctx context.Context, tokenID string) (reward.OpenReceipt, error) {
	if c.signer == nil {
		return reward.OpenReceipt{}, &apperr.ConnectionError{Err: errors.New("no signer key configured")}
	}
	id, err := parseTokenID(tokenID)
	if err != nil {
		return reward.OpenReceipt{}, &apperr.ContractCallError{Method: MethodOpenLootBox, Err: err}
	}

	from := c.signer.Address()
	owner, err := c.OwnerOf(ctx, tokenID)
	if err != nil {
		return reward.OpenReceipt{}, &apperr.ContractCallError{Method: MethodOpenLootBox, Err: err}
	}
	if owner != from {
		return reward.OpenReceipt{}, &apperr.ContractCallError{
			Method: MethodOpenLootBox,
			Err:    fmt.Errorf("pack %s is owned by %s, not %s", tokenID, owner.Hex(), from.Hex()),
		}
	}

	data, err := c.abi.Pack(MethodOpenLootBox, id)
	if err != nil {
		return reward.OpenReceipt{}, &apperr.ContractCallError{Method: MethodOpenLootBox, Err: fmt.Errorf("pack args: %w", err)}
	}

	tx, chainID, err := c.buildTx(ctx, from, data)
	if err != nil {
		return reward.OpenReceipt{}, err
	}
	signed, err := c.signer.Sign(tx, chainID)
	if err != nil {
		return reward.OpenReceipt{}, &apperr.ContractCallError{Method: MethodOpenLootBox, Err: fmt.Errorf("sign: %w", err)}
	}
	txHash := signed.Hash().Hex()

	if err := c.backend.SendTransaction(ctx, signed); err != nil {
		return reward.OpenReceipt{}, &apperr.ContractCallError{Method: MethodOpenLootBox, TxHash: txHash, Err: err}
	}
	c.logger.Info("open transaction sent", zap.String("token_id", tokenID), zap.String("tx", txHash))

	receipt, err := c.backend.WaitMined(ctx, signed)
	if err != nil {
		if ctx.Err() != nil {
			return reward.OpenReceipt{TxHash: txHash}, ctx.Err()
		}
		return reward.OpenReceipt{}, &apperr.ContractCallError{Method: MethodOpenLootBox, TxHash: txHash, Err: err}
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return reward.OpenReceipt{}, &apperr.ContractCallError{Method: MethodOpenLootBox, TxHash: txHash, Err: errors.New("transaction reverted")}
	}

	out := reward.OpenReceipt{TxHash: txHash}
	if receipt.BlockNumber != nil {
		block := receipt.BlockNumber.Uint64()
		out.BlockNumber = &block
	}
	return out, nil
}

func (c *Contract) buildTx(ctx context.Context, from common.Address, data []byte) (*types.Transaction, *big.Int, error) {
	to := c.cfg.Address

	chainID := c.cfg.ChainID
	if chainID == nil {
		id, err := c.backend.ChainID(ctx)
		if err != nil {
			return nil, nil, &apperr.ConnectionError{Err: fmt.Errorf("chain id: %w", err)}
		}
		chainID = id
	}
	nonce, err := c.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, nil, &apperr.ConnectionError{Err: fmt.Errorf("pending nonce: %w", err)}
	}

	gas := c.cfg.GasLimit
	if gas == 0 {
		gas, err = c.backend.EstimateGas(ctx, ethereum.CallMsg{From: from, To: &to, Data: data})
		if err != nil {
			return nil, nil, &apperr.ContractCallError{Method: MethodOpenLootBox, Err: fmt.Errorf("estimate gas: %w", err)}
		}
	}

	head, err := c.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, nil, &apperr.ConnectionError{Err: fmt.Errorf("latest header: %w", err)}
	}

	if head.BaseFee != nil {
		tip, err := c.backend.SuggestGasTipCap(ctx)
		if err != nil {
			return nil, nil, &apperr.ConnectionError{Err: fmt.Errorf("suggest tip: %w", err)}
		}
		feeCap := new(big.Int).Add(tip, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))
		return types.NewTx(&types.DynamicFeeTx{
			ChainID:   chainID,
			Nonce:     nonce,
			GasTipCap: tip,
			GasFeeCap: feeCap,
			Gas:       gas,
			To:        &to,
			Data:      data,
		}), chainID, nil
	}

	gasPrice, err := c.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, nil, &apperr.ConnectionError{Err: fmt.Errorf("suggest gas price: %w", err)}
	}
	return types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gas,
		To:       &to,
		Data:     data,
	}), chainID, nil
}

// BlockNumberByTx looks up the block a transaction was mined in.
func (c *Contract) BlockNumberByTx(ctx context.Context, txHash string) (uint64, error) {
	receipt, err := c.backend.TransactionReceipt(ctx, common.HexToHash(txHash))
	if err != nil {
		return 0, fmt.Errorf("receipt %s: %w", txHash, err)
	}
	if receipt.BlockNumber == nil {
		return 0, fmt.Errorf("receipt %s has no block number", txHash)
	}
	return receipt.BlockNumber.Uint64(), nil
}

// OwnerOf returns the current holder of a pack.
func (c *Contract) OwnerOf(ctx context.Context, tokenID string) (common.Address, error) {
	id, err := parseTokenID(tokenID)
	if err != nil {
		return common.Address{}, err
	}
	values, err := c.call(ctx, MethodOwnerOf, id)
	if err != nil {
		return common.Address{}, err
	}
	return asAddress(values[0])
}

func (c *Contract) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	msg := ethereum.CallMsg{To: &c.cfg.Address, Data: data}
	resp, err := c.backend.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	values, err := c.abi.Unpack(method, resp)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%s returned no values", method)
	}
	return values, nil
}

func parseTokenID(tokenID string) (*big.Int, error) {
	canonical, err := reward.CanonicalTokenID(tokenID)
	if err != nil {
		return nil, err
	}
	id, _ := new(big.Int).SetString(canonical, 10)
	return id, nil
}
