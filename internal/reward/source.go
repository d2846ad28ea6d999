package reward

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"jointPacks/internal/model"
)

// ErrInvalidTokenID is returned for token ids that are not non-negative decimal integers.
var ErrInvalidTokenID = errors.New("invalid token id")

// CanonicalTokenID returns tokenID as a decimal uint256 without leading
// zeros, the form RewardClaimed events carry.
func CanonicalTokenID(tokenID string) (string, error) {
	id, ok := new(big.Int).SetString(strings.TrimSpace(tokenID), 10)
	if !ok || id.Sign() < 0 || id.BitLen() > 256 {
		return "", fmt.Errorf("%w: %q", ErrInvalidTokenID, tokenID)
	}
	return id.String(), nil
}

func sameTokenID(a, b string) bool {
	ca, errA := CanonicalTokenID(a)
	cb, errB := CanonicalTokenID(b)
	if errA != nil || errB != nil {
		return strings.TrimSpace(a) == strings.TrimSpace(b)
	}
	return ca == cb
}

// RewardQuery selects RewardClaimed events. Empty Account or TokenID match
// everything; a nil ToBlock means latest.
type RewardQuery struct {
	Account   string
	TokenID   string
	FromBlock uint64
	ToBlock   *uint64
}

// Matches applies the query filter to an already fetched event.
func (q RewardQuery) Matches(event model.RewardEvent) bool {
	if q.Account != "" && NormalizeAccount(q.Account) != NormalizeAccount(event.Account) {
		return false
	}
	if q.TokenID != "" && !sameTokenID(q.TokenID, event.TokenID) {
		return false
	}
	if event.BlockNumber < q.FromBlock {
		return false
	}
	if q.ToBlock != nil && event.BlockNumber > *q.ToBlock {
		return false
	}
	return true
}

// EventSource fetches historical reward events.
type EventSource interface {
	PastRewardEvents(ctx context.Context, query RewardQuery) ([]model.RewardEvent, error)
}

// OpenReceipt is the confirmation of an open transaction. BlockNumber is nil
// when the confirmation did not carry it.
type OpenReceipt struct {
	TxHash      string
	BlockNumber *uint64
}

// Opener issues the state-changing open call.
type Opener interface {
	Open(ctx context.Context, tokenID string) (OpenReceipt, error)
	BlockNumberByTx(ctx context.Context, txHash string) (uint64, error)
}
