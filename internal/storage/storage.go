package storage

import (
	"context"

	"jointPacks/internal/model"
)

// RewardSink stores archived RewardClaimed events. Writing an event that is
// already stored must not create a duplicate.
type RewardSink interface {
	PutRewardBatch(ctx context.Context, events []model.RewardEvent) error
}
