package honeypot

import "strings"

// ---------------------------------------------------------------------------
// Revert-reason signatures
// ---------------------------------------------------------------------------

// revertSignature maps a revert-reason fragment to a factor tag. Matching is
// case-insensitive substring; the first hit wins.
type revertSignature struct {
	needle string
	tag    string
}

var revertSignatures = []revertSignature{
	{"transfer_failed", "transfer_failed"},
	{"liquidity_locked", "liquidity_locked"},
	{"trading_disabled", "trading_disabled"},
	{"trading is disabled", "trading_disabled"},
	{"insufficient_output", "insufficient_output"},
	{"insufficient output amount", "insufficient_output"},
	{"max_wallet", "max_wallet_limit"},
	{"cooldown", "trade_cooldown"},
	{"blacklist", "blacklisted"},
	{"only_owner", "owner_restricted"},
	{"not owner", "owner_restricted"},
}

// classifyRevert maps a raw revert reason to its factor tag.
func classifyRevert(reason string) (string, bool) {
	lower := strings.ToLower(reason)
	for _, sig := range revertSignatures {
		if strings.Contains(lower, sig.needle) {
			return sig.tag, true
		}
	}
	return "", false
}

// Admin function selectors sniffed from bytecode. Presence of any suggests
// the owner retains a lever over holders.
var adminSelectors = []struct {
	selector string
	name     string
}{
	{"40c10f19", "mint"},
	{"8456cb59", "pause"},
	{"f9f92be4", "blacklist"},
	{"ec28438a", "max tx limit"},
	{"437823ec", "fee exemption"},
}
