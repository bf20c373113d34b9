package gateway

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/warden-labs/warden/internal/chains"
)

// ---------------------------------------------------------------------------
// Stub providers (for testing and keyless development runs)
// ---------------------------------------------------------------------------

type stubFailer struct {
	mu       sync.Mutex
	failNext bool
	failWith error
}

// SetFailNext makes the next call fail with a generic transient error.
func (f *stubFailer) SetFailNext() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failNext = true
}

// SetFailWith makes the next call fail with the given error.
func (f *stubFailer) SetFailWith(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failWith = err
}

func (f *stubFailer) shouldFail(provider, op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		err := f.failWith
		f.failWith = nil
		return err
	}
	if f.failNext {
		f.failNext = false
		return &ProviderError{Provider: provider, Op: op, Class: ClassTransient,
			Err: fmt.Errorf("stub: simulated provider failure")}
	}
	return nil
}

// StubIndexer is a scriptable in-memory chain indexer.
type StubIndexer struct {
	stubFailer
	mu           sync.RWMutex
	transactions map[chains.Chain][]Transaction
	transfers    map[string][]Transfer
	holders      map[string][]Holder
	bytecode     map[string]string
	simOutcomes  map[SimAction]*SimOutcome
	simErrors    map[SimAction]error
	simCalls     []SimCall
}

// NewStubIndexer creates an empty stub indexer.
func NewStubIndexer() *StubIndexer {
	return &StubIndexer{
		transactions: make(map[chains.Chain][]Transaction),
		transfers:    make(map[string][]Transfer),
		holders:      make(map[string][]Holder),
		bytecode:     make(map[string]string),
		simOutcomes:  make(map[SimAction]*SimOutcome),
		simErrors:    make(map[SimAction]error),
	}
}

// AddTransactions registers recent transactions for a chain.
func (s *StubIndexer) AddTransactions(chain chains.Chain, txs ...Transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transactions[chain] = append(s.transactions[chain], txs...)
}

// AddTransfers registers transfers for a wallet address.
func (s *StubIndexer) AddTransfers(address string, transfers ...Transfer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transfers[address] = append(s.transfers[address], transfers...)
}

// AddHolders registers the holder distribution for a token.
func (s *StubIndexer) AddHolders(token string, holders []Holder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.holders[token] = holders
}

// SetBytecode registers contract bytecode for an address.
func (s *StubIndexer) SetBytecode(address, code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bytecode[address] = code
}

// SetSimOutcome scripts the simulation result for an action.
func (s *StubIndexer) SetSimOutcome(action SimAction, outcome *SimOutcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.simOutcomes[action] = outcome
}

// SetSimError makes simulations of an action fail at the provider level.
func (s *StubIndexer) SetSimError(action SimAction, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.simErrors[action] = err
}

// SimCalls returns every simulation request the stub has seen.
func (s *StubIndexer) SimCalls() []SimCall {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]SimCall, len(s.simCalls))
	copy(out, s.simCalls)
	return out
}

func (s *StubIndexer) RecentTransactions(_ context.Context, chain chains.Chain, limit int) ([]Transaction, error) {
	if err := s.shouldFail("stub-indexer", "recent_transactions"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	txs := s.transactions[chain]
	if limit > 0 && len(txs) > limit {
		txs = txs[:limit]
	}
	out := make([]Transaction, len(txs))
	copy(out, txs)
	return out, nil
}

func (s *StubIndexer) WalletTransfers(_ context.Context, address string, chain chains.Chain) ([]Transfer, error) {
	if err := s.shouldFail("stub-indexer", "wallet_transfers"); err != nil {
		return nil, err
	}
	if !chains.ValidAddress(address, chain) {
		return nil, &ProviderError{Provider: "stub-indexer", Op: "wallet_transfers", Class: ClassInvalidInput,
			Err: fmt.Errorf("malformed address %q", address)}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Transfer, len(s.transfers[address]))
	copy(out, s.transfers[address])
	return out, nil
}

func (s *StubIndexer) TokenHolders(_ context.Context, token string, _ chains.Chain, limit int) ([]Holder, error) {
	if err := s.shouldFail("stub-indexer", "token_holders"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	holders := s.holders[token]
	if limit > 0 && len(holders) > limit {
		holders = holders[:limit]
	}
	out := make([]Holder, len(holders))
	copy(out, holders)
	return out, nil
}

func (s *StubIndexer) ContractBytecode(_ context.Context, address string, _ chains.Chain) (string, error) {
	if err := s.shouldFail("stub-indexer", "contract_bytecode"); err != nil {
		return "", err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bytecode[address], nil
}

func (s *StubIndexer) SimulateCall(_ context.Context, _ chains.Chain, call SimCall) (*SimOutcome, error) {
	if err := s.shouldFail("stub-indexer", "simulate_call"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.simCalls = append(s.simCalls, call)
	outcome := s.simOutcomes[call.Action]
	err := s.simErrors[call.Action]
	s.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if outcome != nil {
		cp := *outcome
		return &cp, nil
	}
	return &SimOutcome{Success: true, AmountOut: call.AmountIn, GasUsed: 120_000}, nil
}

// StubScanner is a scriptable security scanner. Unknown subjects are clean.
type StubScanner struct {
	stubFailer
	mu        sync.RWMutex
	addresses map[string]*AddressSecurity
	tokens    map[string]*TokenSecurity
}

// NewStubScanner creates an empty stub scanner.
func NewStubScanner() *StubScanner {
	return &StubScanner{
		addresses: make(map[string]*AddressSecurity),
		tokens:    make(map[string]*TokenSecurity),
	}
}

// SetAddressSecurity scripts the verdict for an address.
func (s *StubScanner) SetAddressSecurity(address string, sec *AddressSecurity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addresses[address] = sec
}

// SetTokenSecurity scripts the verdict for a token.
func (s *StubScanner) SetTokenSecurity(token string, sec *TokenSecurity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token] = sec
}

func (s *StubScanner) AddressSecurity(_ context.Context, address string, _ chains.Chain) (*AddressSecurity, error) {
	if err := s.shouldFail("stub-scanner", "address_security"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if sec, ok := s.addresses[address]; ok {
		cp := *sec
		return &cp, nil
	}
	return &AddressSecurity{RiskLevel: RiskSafe}, nil
}

func (s *StubScanner) TokenSecurity(_ context.Context, token string, _ chains.Chain) (*TokenSecurity, error) {
	if err := s.shouldFail("stub-scanner", "token_security"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if sec, ok := s.tokens[token]; ok {
		cp := *sec
		return &cp, nil
	}
	return &TokenSecurity{OpenSource: true, RiskLevel: RiskSafe}, nil
}

// StubOracle is a scriptable price oracle. Unknown tokens price at $1 with
// healthy liquidity so unrelated checks stay quiet in tests.
type StubOracle struct {
	stubFailer
	mu        sync.RWMutex
	prices    map[string]decimal.Decimal
	liquidity map[string]*LiquidityInfo
}

// NewStubOracle creates an empty stub oracle.
func NewStubOracle() *StubOracle {
	return &StubOracle{
		prices:    make(map[string]decimal.Decimal),
		liquidity: make(map[string]*LiquidityInfo),
	}
}

// SetPrice scripts the USD price for a token.
func (s *StubOracle) SetPrice(token string, price decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[token] = price
}

// SetLiquidity scripts the liquidity for a token.
func (s *StubOracle) SetLiquidity(token string, info *LiquidityInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.liquidity[token] = info
}

func (s *StubOracle) TokenPrice(_ context.Context, token string, _ chains.Chain) (decimal.Decimal, error) {
	if err := s.shouldFail("stub-oracle", "token_price"); err != nil {
		return decimal.Zero, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if price, ok := s.prices[token]; ok {
		return price, nil
	}
	return decimal.NewFromInt(1), nil
}

func (s *StubOracle) TokenLiquidity(_ context.Context, token string, _ chains.Chain) (*LiquidityInfo, error) {
	if err := s.shouldFail("stub-oracle", "token_liquidity"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if info, ok := s.liquidity[token]; ok {
		cp := *info
		return &cp, nil
	}
	return &LiquidityInfo{LiquidityUSD: decimal.NewFromInt(100_000)}, nil
}

var (
	_ ChainIndexer    = (*StubIndexer)(nil)
	_ SecurityScanner = (*StubScanner)(nil)
	_ PriceOracle     = (*StubOracle)(nil)
)
