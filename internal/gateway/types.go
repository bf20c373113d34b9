package gateway

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warden-labs/warden/internal/chains"
)

// ---------------------------------------------------------------------------
// Provider capability contracts — typed results, validated at the boundary
// ---------------------------------------------------------------------------

// Direction marks which side of a transfer the analyzed wallet is on.
type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

// Transaction is a recent on-chain transaction used for candidate seeding.
type Transaction struct {
	Hash        string          `json:"hash"`
	From        string          `json:"from"`
	To          string          `json:"to"`
	ValueUSD    decimal.Decimal `json:"value_usd"`
	BlockHeight int64           `json:"block_height"`
	Timestamp   time.Time       `json:"timestamp"`
}

// Transfer is a token transfer touching the analyzed wallet.
type Transfer struct {
	TxHash       string          `json:"tx_hash"`
	Token        string          `json:"token"`
	TokenSymbol  string          `json:"token_symbol"`
	Direction    Direction       `json:"direction"`
	Counterparty string          `json:"counterparty"`
	Amount       decimal.Decimal `json:"amount"`
	ValueUSD     decimal.Decimal `json:"value_usd"`
	BlockHeight  int64           `json:"block_height"`
	Timestamp    time.Time       `json:"timestamp"`
}

// Holder is one entry of a token's holder distribution.
type Holder struct {
	Address     string          `json:"address"`
	Balance     decimal.Decimal `json:"balance"`
	PctOfSupply float64         `json:"pct_of_supply"`
}

// RiskLevel buckets a weighted security score.
type RiskLevel string

const (
	RiskSafe   RiskLevel = "safe"
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// AddressSecurity is the scanner verdict for a wallet address.
type AddressSecurity struct {
	Blacklisted bool      `json:"blacklisted"`
	RiskLevel   RiskLevel `json:"risk_level"`
	Tags        []string  `json:"tags"`
}

// TokenSecurity is the scanner verdict for a token contract, with the
// weighted factor score already computed.
type TokenSecurity struct {
	Honeypot              bool      `json:"honeypot"`
	BuyTaxPct             float64   `json:"buy_tax_pct"`
	SellTaxPct            float64   `json:"sell_tax_pct"`
	CannotSellAll         bool      `json:"cannot_sell_all"`
	Proxy                 bool      `json:"proxy"`
	Mintable              bool      `json:"mintable"`
	OwnerCanChangeBalance bool      `json:"owner_can_change_balance"`
	AntiWhale             bool      `json:"anti_whale"`
	SlippageModifiable    bool      `json:"slippage_modifiable"`
	TradingCooldown       bool      `json:"trading_cooldown"`
	OpenSource            bool      `json:"open_source"`
	RiskScore             int       `json:"risk_score"`
	RiskLevel             RiskLevel `json:"risk_level"`
	Factors               []string  `json:"factors"`
}

// LiquidityInfo describes a token's tradable liquidity.
type LiquidityInfo struct {
	LiquidityUSD decimal.Decimal `json:"liquidity_usd"`
	Locked       bool            `json:"locked"`
	Owner        string          `json:"owner"`
}

// SimAction selects the simulated trade leg.
type SimAction string

const (
	SimBuy      SimAction = "buy"
	SimSell     SimAction = "sell"
	SimTransfer SimAction = "transfer"
)

// SimCall describes one non-mutating call simulation.
type SimCall struct {
	Action   SimAction       `json:"action"`
	Router   string          `json:"router"`
	TokenIn  string          `json:"token_in"`
	TokenOut string          `json:"token_out"`
	From     string          `json:"from"`
	To       string          `json:"to,omitempty"`
	AmountIn decimal.Decimal `json:"amount_in"`
}

// SimOutcome is the result of a simulated call. A failed simulation is a
// successful gateway operation; Success refers to the simulated trade.
type SimOutcome struct {
	Success      bool            `json:"success"`
	RevertReason string          `json:"revert_reason"`
	AmountOut    decimal.Decimal `json:"amount_out"`
	GasUsed      int64           `json:"gas_used"`
}

// ChainIndexer provides raw chain data: transactions, transfers, holders,
// bytecode and call simulation.
type ChainIndexer interface {
	RecentTransactions(ctx context.Context, chain chains.Chain, limit int) ([]Transaction, error)
	WalletTransfers(ctx context.Context, address string, chain chains.Chain) ([]Transfer, error)
	TokenHolders(ctx context.Context, token string, chain chains.Chain, limit int) ([]Holder, error)
	ContractBytecode(ctx context.Context, address string, chain chains.Chain) (string, error)
	SimulateCall(ctx context.Context, chain chains.Chain, call SimCall) (*SimOutcome, error)
}

// SecurityScanner provides address and token security verdicts.
type SecurityScanner interface {
	AddressSecurity(ctx context.Context, address string, chain chains.Chain) (*AddressSecurity, error)
	TokenSecurity(ctx context.Context, token string, chain chains.Chain) (*TokenSecurity, error)
}

// PriceOracle provides token prices and liquidity.
type PriceOracle interface {
	TokenPrice(ctx context.Context, token string, chain chains.Chain) (decimal.Decimal, error)
	TokenLiquidity(ctx context.Context, token string, chain chains.Chain) (*LiquidityInfo, error)
}
