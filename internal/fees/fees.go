package fees

// Tiered escrow fee schedule. All amounts are integer minor units (kobo for
// NGN listings); percentages are held as basis points so the math stays in
// integers and floors the way the schedule requires.
const (
	tier2LowerCents int64 = 10_000_000 // below this: tier 1
	tier3LowerCents int64 = 50_000_000 // at or above: tier 3

	tier1ProtectionBps int64 = 150 // 1.5%
	tier2ProtectionBps int64 = 100 // 1.0%
	minProtectionCents int64 = 50_000
	tier3FlatCents     int64 = 500_000

	standardCommissionBps int64 = 500 // 5%
	tier3CommissionBps    int64 = 400 // 4%
)

// Breakdown is the complete fee computation for one purchase. The cents
// fields are locked onto the escrow transaction at creation and never
// recomputed; the percent fields are display values.
type Breakdown struct {
	ItemPriceCents       int64   `json:"item_price_cents"`
	ProtectionFeeCents   int64   `json:"protection_fee_cents"`
	CommissionCents      int64   `json:"commission_cents"`
	TotalPaidCents       int64   `json:"total_paid_cents"`
	SellerReceivesCents  int64   `json:"seller_receives_cents"`
	ProtectionFeePercent float64 `json:"protection_fee_percent"`
	CommissionPercent    float64 `json:"commission_percent"`
}

// Compute maps an item price to its fee breakdown under the tiered schedule.
// Pure and deterministic: identical input always yields identical output.
// Callers must validate price > 0 before persisting anything; Compute itself
// clamps nothing and performs no I/O.
func Compute(itemPriceCents int64) Breakdown {
	var (
		protectionCents int64
		protectionPct   float64
		commissionBps   int64
	)

	switch {
	case itemPriceCents < tier2LowerCents:
		protectionCents = itemPriceCents * tier1ProtectionBps / 10_000
		if protectionCents < minProtectionCents {
			protectionCents = minProtectionCents
		}
		// Nominal rate is reported even when the floor clamps the fee
		protectionPct = float64(tier1ProtectionBps) / 100
		commissionBps = standardCommissionBps

	case itemPriceCents < tier3LowerCents:
		protectionCents = itemPriceCents * tier2ProtectionBps / 10_000
		if protectionCents < minProtectionCents {
			protectionCents = minProtectionCents
		}
		protectionPct = float64(tier2ProtectionBps) / 100
		commissionBps = standardCommissionBps

	default:
		// Flat fee, so the displayed percentage varies with price
		protectionCents = tier3FlatCents
		protectionPct = float64(protectionCents) / float64(itemPriceCents) * 100
		commissionBps = tier3CommissionBps
	}

	commissionCents := itemPriceCents * commissionBps / 10_000

	return Breakdown{
		ItemPriceCents:       itemPriceCents,
		ProtectionFeeCents:   protectionCents,
		CommissionCents:      commissionCents,
		TotalPaidCents:       itemPriceCents + protectionCents,
		SellerReceivesCents:  itemPriceCents - commissionCents,
		ProtectionFeePercent: protectionPct,
		CommissionPercent:    float64(commissionBps) / 100,
	}
}
