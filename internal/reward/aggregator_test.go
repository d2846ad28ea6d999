package reward

import (
	"math/big"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jointPacks/internal/apperr"
	"jointPacks/internal/model"
)

var bigIntComparer = cmp.Comparer(func(a, b *big.Int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Cmp(b) == 0
})

const (
	alice = "0x1111111111111111111111111111111111111111"
	bob   = "0x2222222222222222222222222222222222222222"
	carol = "0x3333333333333333333333333333333333333333"
)

func rewardEvent(account, tokenID, amountWei string, block uint64) model.RewardEvent {
	return model.RewardEvent{
		Account:     account,
		TokenID:     tokenID,
		AmountWei:   amountWei,
		BlockNumber: block,
		TxHash:      "0xfeed",
		LogIndex:    block,
	}
}

func sampleEvents() []model.RewardEvent {
	return []model.RewardEvent{
		rewardEvent(alice, "1", "1000000000000000000", 10),
		rewardEvent(bob, "2", "2500000000000000000", 11),
		rewardEvent(alice, "3", "500000000000000000", 12),
		rewardEvent(carol, "4", "1", 13),
		rewardEvent(bob, "5", "123456789000000000000", 14),
	}
}

func TestAggregateSumsPerAccount(t *testing.T) {
	totals, err := Totals(sampleEvents())
	require.NoError(t, err)
	require.Len(t, totals, 3)

	assert.Equal(t, "1.5", totals[alice].TotalEther)
	assert.Equal(t, "125.956789", totals[bob].TotalEther)
	assert.Equal(t, "0.000000000000000001", totals[carol].TotalEther)
	assert.Equal(t, 2, totals[alice].Events)
}

func TestAggregatePreservesGrandTotal(t *testing.T) {
	events := sampleEvents()
	totals, err := Aggregate(events)
	require.NoError(t, err)

	want := new(big.Int)
	for _, event := range events {
		amount, ok := new(big.Int).SetString(event.AmountWei, 10)
		require.True(t, ok)
		want.Add(want, amount)
	}

	got := new(big.Int)
	for _, total := range totals {
		got.Add(got, total.TotalWei)
	}
	assert.Zero(t, want.Cmp(got), "grand total %s != %s", got, want)
}

func TestAggregateOrderIndependent(t *testing.T) {
	events := sampleEvents()
	want, err := Totals(events)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 20; i++ {
		shuffled := make([]model.RewardEvent, len(events))
		copy(shuffled, events)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })

		got, err := Totals(shuffled)
		require.NoError(t, err)
		if diff := cmp.Diff(want, got, bigIntComparer); diff != "" {
			t.Fatalf("totals differ after shuffle (-want +got):\n%s", diff)
		}
	}
}

func TestAggregateIdempotent(t *testing.T) {
	events := sampleEvents()
	first, err := Aggregate(events)
	require.NoError(t, err)
	second, err := Aggregate(events)
	require.NoError(t, err)
	if diff := cmp.Diff(first, second, bigIntComparer); diff != "" {
		t.Fatalf("second pass differs (-first +second):\n%s", diff)
	}
}

func TestAggregateEmpty(t *testing.T) {
	totals, err := Aggregate(nil)
	require.NoError(t, err)
	assert.Empty(t, totals)
}

func TestAggregateNormalizesAccountCase(t *testing.T) {
	upper := "0xABCDEFabcdefABCDEFabcdefABCDEFabcdefABCD"
	lower := "0xabcdefabcdefabcdefabcdefabcdefabcdefabcd"
	totals, err := Aggregate([]model.RewardEvent{
		rewardEvent(upper, "1", "1000000000000000000", 1),
		rewardEvent(lower, "2", "1000000000000000000", 2),
	})
	require.NoError(t, err)
	require.Len(t, totals, 1)
	assert.Equal(t, "2", totals[0].TotalEther)
}

func TestAggregateRejectsInvalidAmount(t *testing.T) {
	events := append(sampleEvents(), rewardEvent(alice, "9", "not-a-number", 20))
	_, err := Aggregate(events)
	require.Error(t, err)
	assert.Equal(t, apperr.MsgQuery, apperr.UserMessage(err))
}

func TestAccountTotal(t *testing.T) {
	total, ok, err := AccountTotal(sampleEvents(), "0x2222222222222222222222222222222222222222")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, bob, total.Account)
	assert.Equal(t, "125.956789", total.TotalEther)

	total, ok, err = AccountTotal(sampleEvents(), "0x9999999999999999999999999999999999999999")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "0", total.TotalEther)
}

func TestAccountTotalIgnoresOtherAccountsBadAmounts(t *testing.T) {
	events := append(sampleEvents(), rewardEvent(carol, "9", "garbage", 20))
	total, ok, err := AccountTotal(events, alice)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1.5", total.TotalEther)
}
