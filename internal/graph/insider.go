package graph

// ---------------------------------------------------------------------------
// Insider scoring — weighted evidence that a wallet trades on privileged info
// ---------------------------------------------------------------------------

// Per-component point weights and caps. Stronger signals earn more points
// per occurrence but saturate quickly.
const (
	devInteractionPts = 2
	devInteractionCap = 6

	earlyBuyPts = 1
	earlyBuyCap = 5

	earlyMultiplierPts = 2
	earlyMultiplierCap = 4

	clusterTradePts = 1
	clusterTradeCap = 3

	freshInflowPts = 1
	freshInflowCap = 2

	insiderProbable = 15
	insiderPossible = 10
)

// Insider verdict levels.
const (
	InsiderProbable = "probable"
	InsiderPossible = "possible"
	InsiderNormal   = "normal"
)

// InsiderEvidence holds raw occurrence counts gathered during analysis.
type InsiderEvidence struct {
	// DevInteractions counts distinct flagged dev wallets this wallet
	// exchanged funds with.
	DevInteractions int `json:"dev_interactions"`
	// EarlyBuys counts tokens bought within the first blocks after launch.
	EarlyBuys int `json:"early_buys"`
	// EarlyHighMultipliers counts early buys that went on to extreme
	// multiples.
	EarlyHighMultipliers int `json:"early_high_multipliers"`
	// ClusterTrades counts trades mirrored inside the wallet's funding
	// cluster.
	ClusterTrades int `json:"cluster_trades"`
	// FreshDeployerInflows counts inbound transfers from freshly funded
	// deployer addresses.
	FreshDeployerInflows int `json:"fresh_deployer_inflows"`
}

// InsiderVerdict is the scored outcome. Points holds the capped
// per-component contribution so callers can show a breakdown.
type InsiderVerdict struct {
	Score  int             `json:"score"`
	Level  string          `json:"level"`
	Points InsiderEvidence `json:"points"`
}

// ScoreInsider converts evidence counts into a 0-20 score. Scores of 15 and
// up read as probable insiders, 10 and up as possible.
func ScoreInsider(ev InsiderEvidence) InsiderVerdict {
	pts := InsiderEvidence{
		DevInteractions:      capPoints(ev.DevInteractions, devInteractionPts, devInteractionCap),
		EarlyBuys:            capPoints(ev.EarlyBuys, earlyBuyPts, earlyBuyCap),
		EarlyHighMultipliers: capPoints(ev.EarlyHighMultipliers, earlyMultiplierPts, earlyMultiplierCap),
		ClusterTrades:        capPoints(ev.ClusterTrades, clusterTradePts, clusterTradeCap),
		FreshDeployerInflows: capPoints(ev.FreshDeployerInflows, freshInflowPts, freshInflowCap),
	}
	score := pts.DevInteractions + pts.EarlyBuys + pts.EarlyHighMultipliers +
		pts.ClusterTrades + pts.FreshDeployerInflows

	level := InsiderNormal
	switch {
	case score >= insiderProbable:
		level = InsiderProbable
	case score >= insiderPossible:
		level = InsiderPossible
	}
	return InsiderVerdict{Score: score, Level: level, Points: pts}
}

func capPoints(count, pts, limit int) int {
	if count <= 0 {
		return 0
	}
	total := count * pts
	if total > limit {
		return limit
	}
	return total
}
