package lootbox

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"jointPacks/internal/apperr"
	"jointPacks/internal/model"
)

// MaxHoldings caps how many packs are enumerated for one owner.
const MaxHoldings = 500

// Holdings lists the packs owned by owner through the enumerable extension.
// A failing tokenURI call leaves TokenURI empty instead of failing the list.
func (c *Contract) Holdings(ctx context.Context, owner string) ([]model.Pack, error) {
	if !common.IsHexAddress(owner) {
		return nil, &apperr.QueryError{Op: "holdings", Err: fmt.Errorf("invalid owner: %s", owner)}
	}
	ownerAddr := common.HexToAddress(owner)

	values, err := c.call(ctx, MethodBalanceOf, ownerAddr)
	if err != nil {
		return nil, &apperr.QueryError{Op: "holdings", Err: err}
	}
	balance, err := asBigInt(values[0])
	if err != nil {
		return nil, &apperr.QueryError{Op: "holdings", Err: fmt.Errorf("balanceOf: %w", err)}
	}
	count := balance.Uint64()
	if !balance.IsUint64() || count > MaxHoldings {
		c.logger.Warn("holdings truncated", zap.String("owner", ownerAddr.Hex()), zap.String("balance", balance.String()))
		count = MaxHoldings
	}

	packs := make([]model.Pack, 0, count)
	for i := uint64(0); i < count; i++ {
		values, err := c.call(ctx, MethodTokenOfOwnerByIndex, ownerAddr, new(big.Int).SetUint64(i))
		if err != nil {
			return nil, &apperr.QueryError{Op: "holdings", Err: err}
		}
		tokenID, err := asBigInt(values[0])
		if err != nil {
			return nil, &apperr.QueryError{Op: "holdings", Err: fmt.Errorf("tokenOfOwnerByIndex: %w", err)}
		}

		pack := model.Pack{TokenID: tokenID.String()}
		if values, err := c.call(ctx, MethodTokenURI, tokenID); err == nil {
			if uri, ok := values[0].(string); ok {
				pack.TokenURI = uri
			}
		} else {
			c.logger.Debug("tokenURI call failed", zap.String("token_id", pack.TokenID), zap.Error(err))
		}
		packs = append(packs, pack)
	}

	return packs, nil
}
