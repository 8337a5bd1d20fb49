package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTierFor(t *testing.T) {
	tt := NewTierTable(false)

	t.Run("ThresholdsAreInclusive", func(t *testing.T) {
		cases := []struct {
			balance float64
			want    Tier
		}{
			{0, TierNone},
			{49_999, TierNone},
			{50_000, TierBronze},
			{149_999, TierBronze},
			{150_000, TierSilver},
			{599_999, TierSilver},
			{600_000, TierGold},
			{700_000, TierGold},
			{2_999_999, TierGold},
			{3_000_000, TierWhale},
			{50_000_000, TierWhale},
		}

		for _, tc := range cases {
			assert.Equal(t, tc.want, tt.TierFor(tc.balance), "balance %v", tc.balance)
		}
	})

	t.Run("NegativeBalanceClampsToZero", func(t *testing.T) {
		assert.Equal(t, TierNone, tt.TierFor(-1))
		assert.Equal(t, TierNone, tt.TierFor(-1e12))
	})

	t.Run("Monotonicity", func(t *testing.T) {
		balances := []float64{0, 100, 49_999, 50_000, 50_001, 149_999, 150_000,
			200_000, 599_999, 600_000, 1_000_000, 2_999_999, 3_000_000, 9_999_999}

		for i := 1; i < len(balances); i++ {
			lower := tt.TierFor(balances[i-1])
			higher := tt.TierFor(balances[i])
			assert.LessOrEqual(t, lower, higher,
				"tier must not decrease from balance %v to %v", balances[i-1], balances[i])
		}
	})
}

func TestQuotaFor(t *testing.T) {
	t.Run("FiniteQuotas", func(t *testing.T) {
		tt := NewTierTable(false)

		cases := []struct {
			tier  Tier
			quota int
		}{
			{TierNone, 0},
			{TierBronze, 5},
			{TierSilver, 10},
			{TierGold, 20},
			{TierWhale, 50},
		}

		for _, tc := range cases {
			limit, unlimited := tt.QuotaFor(tc.tier)
			assert.False(t, unlimited)
			assert.Equal(t, tc.quota, limit)
		}
	})

	t.Run("WhaleUnlimitedPolicy", func(t *testing.T) {
		tt := NewTierTable(true)

		_, unlimited := tt.QuotaFor(TierWhale)
		assert.True(t, unlimited)

		// Policy only lifts the top tier
		limit, unlimited := tt.QuotaFor(TierGold)
		assert.False(t, unlimited)
		assert.Equal(t, 20, limit)
	})
}

func TestTierString(t *testing.T) {
	assert.Equal(t, "none", TierNone.String())
	assert.Equal(t, "bronze", TierBronze.String())
	assert.Equal(t, "silver", TierSilver.String())
	assert.Equal(t, "gold", TierGold.String())
	assert.Equal(t, "whale", TierWhale.String())
}
