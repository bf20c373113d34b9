package discovery

import (
	"github.com/shopspring/decimal"

	"github.com/warden-labs/warden/internal/performance"
)

// ---------------------------------------------------------------------------
// Composite Scoring — performance buckets plus graph adjustments, 0..100
// ---------------------------------------------------------------------------

// Classifications for qualified wallets.
const (
	ClassSafe  = "safe"
	ClassWatch = "watch"
	ClassRisky = "risky"
)

const (
	classSafeFloor  = 75
	classWatchFloor = 50
)

var (
	volumeHigh = decimal.NewFromInt(100_000)
	volumeMid  = decimal.NewFromInt(50_000)
	volumeLow  = decimal.NewFromInt(15_000)
)

// baseScore converts realized performance into additive bucket points.
// Each metric lands in at most one bucket, so the ceiling before graph
// adjustments is 90.
func baseScore(m *performance.WalletMetrics) float64 {
	var score float64

	switch {
	case m.WinRate >= 80:
		score += 20
	case m.WinRate >= 70:
		score += 15
	case m.WinRate >= 65:
		score += 10
	}

	switch {
	case m.MaxMultiplier >= 200:
		score += 20
	case m.MaxMultiplier >= 100:
		score += 15
	case m.MaxMultiplier >= 50:
		score += 10
	}

	switch {
	case m.AvgROI > 5:
		score += 15
	case m.AvgROI > 3:
		score += 10
	case m.AvgROI > 2:
		score += 5
	}

	switch {
	case m.TotalVolumeUSD.GreaterThan(volumeHigh):
		score += 15
	case m.TotalVolumeUSD.GreaterThan(volumeMid):
		score += 10
	case m.TotalVolumeUSD.GreaterThan(volumeLow):
		score += 5
	}

	switch {
	case m.TotalTrades > 30:
		score += 10
	case m.TotalTrades > 15:
		score += 5
	}

	// Recency counts realized exits only; a wallet still holding its latest
	// buy has proven nothing new.
	if m.RecentActivityCount > 0 {
		score += 10
	}
	return score
}

// graphAdjustment rewards network prominence and punishes mirror trading.
// Hubs with centrality above 0.7 gain 5, fringe wallets below 0.1 lose 5,
// and a copycat match costs a flat 10.
func graphAdjustment(centrality float64, copycat bool) float64 {
	var adj float64
	switch {
	case centrality > 0.7:
		adj += 5
	case centrality < 0.1:
		adj -= 5
	}
	if copycat {
		adj -= 10
	}
	return adj
}

// Classify maps a composite score to a trader classification.
func Classify(score float64) string {
	switch {
	case score >= classSafeFloor:
		return ClassSafe
	case score >= classWatchFloor:
		return ClassWatch
	default:
		return ClassRisky
	}
}
