package services

// Tier is an entitlement level derived from a held gating-token balance.
// Ordered by ascending balance threshold.
type Tier int

const (
	TierNone Tier = iota
	TierBronze
	TierSilver
	TierGold
	TierWhale
)

// String returns the display name
func (t Tier) String() string {
	switch t {
	case TierBronze:
		return "bronze"
	case TierSilver:
		return "silver"
	case TierGold:
		return "gold"
	case TierWhale:
		return "whale"
	default:
		return "none"
	}
}

// tierRow is one entry of the ascending threshold table.
// Thresholds are inclusive lower bounds.
type tierRow struct {
	threshold float64
	tier      Tier
	quota     int
}

var tierRows = []tierRow{
	{0, TierNone, 0},
	{50_000, TierBronze, 5},
	{150_000, TierSilver, 10},
	{600_000, TierGold, 20},
	{3_000_000, TierWhale, 50},
}

// TierTable maps balances to tiers and tiers to daily action quotas.
// Pure lookup, no state beyond the whale policy flag.
type TierTable struct {
	whaleUnlimited bool
}

// NewTierTable creates a tier table. When whaleUnlimited is set the top
// tier's quota is unbounded instead of its finite default.
func NewTierTable(whaleUnlimited bool) *TierTable {
	return &TierTable{whaleUnlimited: whaleUnlimited}
}

// TierFor returns the highest tier whose threshold the balance meets or
// exceeds. Negative balances are clamped to 0 rather than rejected.
func (tt *TierTable) TierFor(balance float64) Tier {
	if balance < 0 {
		balance = 0
	}

	result := TierNone
	for _, row := range tierRows {
		if balance >= row.threshold {
			result = row.tier
		}
	}
	return result
}

// QuotaFor returns the daily action quota for a tier. unlimited is true
// only for the whale tier under the unlimited policy.
func (tt *TierTable) QuotaFor(t Tier) (limit int, unlimited bool) {
	if t == TierWhale && tt.whaleUnlimited {
		return 0, true
	}
	for _, row := range tierRows {
		if row.tier == t {
			return row.quota, false
		}
	}
	return 0, false
}
