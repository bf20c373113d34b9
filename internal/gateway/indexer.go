package gateway

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/warden-labs/warden/internal/chains"
)

// ---------------------------------------------------------------------------
// HTTP chain-indexer provider
// ---------------------------------------------------------------------------

// HTTPIndexer speaks to a Covalent-style indexed chain data API.
type HTTPIndexer struct {
	c *httpClient
}

// NewHTTPIndexer builds the chain-indexer provider.
func NewHTTPIndexer(name, baseURL string, keys KeySource, rps float64, timeout time.Duration, log zerolog.Logger) *HTTPIndexer {
	return &HTTPIndexer{c: newHTTPClient(name, baseURL, keys, rps, timeout, log)}
}

type txItem struct {
	Hash        string          `json:"hash"`
	From        string          `json:"from"`
	To          string          `json:"to"`
	ValueUSD    decimal.Decimal `json:"value_usd"`
	BlockHeight int64           `json:"block_height"`
	Timestamp   int64           `json:"timestamp"`
}

type transferItem struct {
	TxHash       string          `json:"tx_hash"`
	Token        string          `json:"token_address"`
	TokenSymbol  string          `json:"token_symbol"`
	Direction    string          `json:"direction"`
	Counterparty string          `json:"counterparty"`
	Amount       decimal.Decimal `json:"amount"`
	ValueUSD     decimal.Decimal `json:"value_usd"`
	BlockHeight  int64           `json:"block_height"`
	Timestamp    int64           `json:"timestamp"`
}

type holderItem struct {
	Address     string          `json:"address"`
	Balance     decimal.Decimal `json:"balance"`
	PctOfSupply float64         `json:"pct_of_supply"`
}

func (x *HTTPIndexer) RecentTransactions(ctx context.Context, chain chains.Chain, limit int) ([]Transaction, error) {
	var resp struct {
		Items []txItem `json:"items"`
	}
	q := url.Values{"limit": {strconv.Itoa(limit)}}
	path := fmt.Sprintf("/v1/%d/transactions/recent", chain.ID())
	if err := x.c.getJSON(ctx, "recent_transactions", path, q, &resp); err != nil {
		return nil, err
	}

	out := make([]Transaction, 0, len(resp.Items))
	dropped := 0
	for _, it := range resp.Items {
		if it.Hash == "" || it.From == "" || it.BlockHeight <= 0 {
			dropped++
			continue
		}
		out = append(out, Transaction{
			Hash:        it.Hash,
			From:        it.From,
			To:          it.To,
			ValueUSD:    it.ValueUSD,
			BlockHeight: it.BlockHeight,
			Timestamp:   time.Unix(it.Timestamp, 0).UTC(),
		})
	}
	x.logDropped("recent_transactions", dropped)
	return out, nil
}

func (x *HTTPIndexer) WalletTransfers(ctx context.Context, address string, chain chains.Chain) ([]Transfer, error) {
	if !chains.ValidAddress(address, chain) {
		return nil, &ProviderError{Provider: x.c.name, Op: "wallet_transfers", Class: ClassInvalidInput,
			Err: fmt.Errorf("malformed address %q for chain %s", address, chain)}
	}

	var resp struct {
		Items []transferItem `json:"items"`
	}
	path := fmt.Sprintf("/v1/%d/address/%s/transfers", chain.ID(), address)
	if err := x.c.getJSON(ctx, "wallet_transfers", path, nil, &resp); err != nil {
		return nil, err
	}

	out := make([]Transfer, 0, len(resp.Items))
	dropped := 0
	for _, it := range resp.Items {
		dir := Direction(it.Direction)
		if it.TxHash == "" || it.Token == "" || it.BlockHeight <= 0 ||
			(dir != DirectionIn && dir != DirectionOut) || it.ValueUSD.IsNegative() {
			dropped++
			continue
		}
		out = append(out, Transfer{
			TxHash:       it.TxHash,
			Token:        it.Token,
			TokenSymbol:  it.TokenSymbol,
			Direction:    dir,
			Counterparty: it.Counterparty,
			Amount:       it.Amount,
			ValueUSD:     it.ValueUSD,
			BlockHeight:  it.BlockHeight,
			Timestamp:    time.Unix(it.Timestamp, 0).UTC(),
		})
	}
	x.logDropped("wallet_transfers", dropped)
	return out, nil
}

func (x *HTTPIndexer) TokenHolders(ctx context.Context, token string, chain chains.Chain, limit int) ([]Holder, error) {
	if !chains.ValidAddress(token, chain) {
		return nil, &ProviderError{Provider: x.c.name, Op: "token_holders", Class: ClassInvalidInput,
			Err: fmt.Errorf("malformed token %q for chain %s", token, chain)}
	}

	var resp struct {
		Items []holderItem `json:"items"`
	}
	q := url.Values{"limit": {strconv.Itoa(limit)}}
	path := fmt.Sprintf("/v1/%d/token/%s/holders", chain.ID(), token)
	if err := x.c.getJSON(ctx, "token_holders", path, q, &resp); err != nil {
		return nil, err
	}

	out := make([]Holder, 0, len(resp.Items))
	dropped := 0
	for _, it := range resp.Items {
		if it.Address == "" || it.PctOfSupply < 0 || it.PctOfSupply > 100 {
			dropped++
			continue
		}
		out = append(out, Holder{Address: it.Address, Balance: it.Balance, PctOfSupply: it.PctOfSupply})
	}
	x.logDropped("token_holders", dropped)
	return out, nil
}

func (x *HTTPIndexer) ContractBytecode(ctx context.Context, address string, chain chains.Chain) (string, error) {
	if !chains.ValidAddress(address, chain) {
		return "", &ProviderError{Provider: x.c.name, Op: "contract_bytecode", Class: ClassInvalidInput,
			Err: fmt.Errorf("malformed address %q for chain %s", address, chain)}
	}

	var resp struct {
		Bytecode string `json:"bytecode"`
	}
	path := fmt.Sprintf("/v1/%d/contract/%s/bytecode", chain.ID(), address)
	if err := x.c.getJSON(ctx, "contract_bytecode", path, nil, &resp); err != nil {
		return "", err
	}
	return resp.Bytecode, nil
}

func (x *HTTPIndexer) SimulateCall(ctx context.Context, chain chains.Chain, call SimCall) (*SimOutcome, error) {
	var resp SimOutcome
	path := fmt.Sprintf("/v1/%d/simulate", chain.ID())
	if err := x.c.postJSON(ctx, "simulate_call", path, call, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (x *HTTPIndexer) logDropped(op string, dropped int) {
	if dropped > 0 {
		x.c.log.Debug().Str("component", "gateway").Str("provider", x.c.name).
			Str("op", op).Int("dropped", dropped).Msg("gateway: malformed items dropped")
	}
}

var _ ChainIndexer = (*HTTPIndexer)(nil)
