package lootbox

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"jointPacks/internal/model"
)

// DecodeRewardClaimed converts a RewardClaimed log into a RewardEvent.
// Arguments are read by name, so the decoder does not depend on which of
// them the contract marks as indexed.
func DecodeRewardClaimed(log types.Log) (model.RewardEvent, error) {
	parsed, err := LootBoxABI()
	if err != nil {
		return model.RewardEvent{}, fmt.Errorf("parse lootbox abi: %w", err)
	}
	event := parsed.Events[EventRewardClaimed]

	if len(log.Topics) == 0 {
		return model.RewardEvent{}, fmt.Errorf("missing topics")
	}
	if log.Topics[0] != event.ID {
		return model.RewardEvent{}, fmt.Errorf("unexpected topic0: %s", log.Topics[0].Hex())
	}

	values := make(map[string]interface{}, len(event.Inputs))
	if err := abi.ParseTopicsIntoMap(values, indexedArguments(event.Inputs), log.Topics[1:]); err != nil {
		return model.RewardEvent{}, fmt.Errorf("parse topics: %w", err)
	}
	if nonIndexed := event.Inputs.NonIndexed(); len(nonIndexed) > 0 {
		if err := nonIndexed.UnpackIntoMap(values, log.Data); err != nil {
			return model.RewardEvent{}, fmt.Errorf("unpack data: %w", err)
		}
	}

	user, err := asAddress(values["user"])
	if err != nil {
		return model.RewardEvent{}, fmt.Errorf("user: %w", err)
	}
	tokenID, err := asBigInt(values["tokenId"])
	if err != nil {
		return model.RewardEvent{}, fmt.Errorf("tokenId: %w", err)
	}
	amount, err := asBigInt(values["amount"])
	if err != nil {
		return model.RewardEvent{}, fmt.Errorf("amount: %w", err)
	}

	return model.RewardEvent{
		Account:     user.Hex(),
		TokenID:     tokenID.String(),
		AmountWei:   amount.String(),
		BlockNumber: log.BlockNumber,
		TxHash:      log.TxHash.Hex(),
		LogIndex:    uint64(log.Index),
		Contract:    log.Address.Hex(),
	}, nil
}

func indexedArguments(args abi.Arguments) abi.Arguments {
	indexed := make(abi.Arguments, 0, len(args))
	for _, arg := range args {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	return indexed
}

func asAddress(value interface{}) (common.Address, error) {
	switch v := value.(type) {
	case common.Address:
		return v, nil
	case *common.Address:
		if v == nil {
			return common.Address{}, fmt.Errorf("nil address")
		}
		return *v, nil
	default:
		return common.Address{}, fmt.Errorf("unexpected type %T", value)
	}
}

func asBigInt(value interface{}) (*big.Int, error) {
	switch v := value.(type) {
	case *big.Int:
		if v == nil {
			return nil, fmt.Errorf("nil integer")
		}
		return v, nil
	case big.Int:
		return &v, nil
	default:
		return nil, fmt.Errorf("unexpected type %T", value)
	}
}
