package fees

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeTierBoundaries(t *testing.T) {
	tests := []struct {
		name               string
		priceCents         int64
		wantProtection     int64
		wantProtectionPct  float64
		wantCommission     int64
		wantCommissionPct  float64
	}{
		{
			name:              "just below tier 2",
			priceCents:        9_999_999,
			wantProtection:    149_999, // floor(9,999,999 * 1.5%)
			wantProtectionPct: 1.5,
			wantCommission:    499_999,
			wantCommissionPct: 5,
		},
		{
			name:              "tier 2 lower bound",
			priceCents:        10_000_000,
			wantProtection:    100_000, // 1.0%
			wantProtectionPct: 1.0,
			wantCommission:    500_000,
			wantCommissionPct: 5,
		},
		{
			name:              "just below tier 3",
			priceCents:        49_999_999,
			wantProtection:    499_999,
			wantProtectionPct: 1.0,
			wantCommission:    2_499_999,
			wantCommissionPct: 5,
		},
		{
			name:              "tier 3 lower bound",
			priceCents:        50_000_000,
			wantProtection:    500_000, // flat
			wantProtectionPct: 1.0,     // 500,000 / 50,000,000
			wantCommission:    2_000_000,
			wantCommissionPct: 4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Compute(tt.priceCents)
			assert.Equal(t, tt.wantProtection, got.ProtectionFeeCents)
			assert.Equal(t, tt.wantCommission, got.CommissionCents)
			assert.InDelta(t, tt.wantProtectionPct, got.ProtectionFeePercent, 1e-9)
			assert.InDelta(t, tt.wantCommissionPct, got.CommissionPercent, 1e-9)
		})
	}
}

func TestComputeProtectionFloor(t *testing.T) {
	// 1.5% of 1,000,000 is 15,000, below the 50,000 minimum
	got := Compute(1_000_000)
	assert.Equal(t, int64(50_000), got.ProtectionFeeCents)
	// The nominal rate is still reported
	assert.InDelta(t, 1.5, got.ProtectionFeePercent, 1e-9)
}

func TestComputeConservation(t *testing.T) {
	prices := []int64{
		1, 99, 50_000, 999_999, 1_000_000, 9_999_999,
		10_000_000, 25_000_000, 49_999_999,
		50_000_000, 123_456_789, 1_000_000_000,
	}

	for _, price := range prices {
		got := Compute(price)
		assert.Equal(t, price, got.TotalPaidCents-got.ProtectionFeeCents,
			"total minus protection fee must equal item price for %d", price)
		assert.Equal(t, got.CommissionCents, price-got.SellerReceivesCents,
			"price minus seller payout must equal commission for %d", price)
	}
}

func TestComputeDeterministic(t *testing.T) {
	prices := []int64{1, 735_001, 9_999_999, 10_000_000, 50_000_000, 777_777_777}

	for _, price := range prices {
		first := Compute(price)
		second := Compute(price)
		require.Equal(t, first, second, "repeated computation must be identical for %d", price)
	}
}
