package chains

import (
	"errors"
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Chain Registry — supported networks, routers, wrapped natives, CEX wallets
// ---------------------------------------------------------------------------

// Chain identifies a supported blockchain network.
type Chain string

const (
	Ethereum Chain = "ethereum"
	BSC      Chain = "bsc"
	Polygon  Chain = "polygon"
	Arbitrum Chain = "arbitrum"
	Optimism Chain = "optimism"
	Solana   Chain = "solana"
)

// ErrUnsupportedChain is returned when a chain name cannot be resolved.
var ErrUnsupportedChain = errors.New("unsupported chain")

// ErrInvalidAddress is returned when an address fails chain format checks.
var ErrInvalidAddress = errors.New("invalid address")

var chainIDs = map[Chain]int64{
	Ethereum: 1,
	BSC:      56,
	Polygon:  137,
	Arbitrum: 42161,
	Optimism: 10,
	Solana:   101,
}

var aliases = map[string]Chain{
	"eth":      Ethereum,
	"ethereum": Ethereum,
	"bsc":      BSC,
	"bnb":      BSC,
	"polygon":  Polygon,
	"matic":    Polygon,
	"arbitrum": Arbitrum,
	"arb":      Arbitrum,
	"optimism": Optimism,
	"op":       Optimism,
	"sol":      Solana,
	"solana":   Solana,
}

// DEX routers used when constructing simulated trades.
var routers = map[Chain]string{
	Ethereum: "0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D", // Uniswap V2
	BSC:      "0x10ED43C718714eb63d5aA57B78B54704E256024E", // PancakeSwap V2
	Polygon:  "0xa5E0829CaCEd8fFDD4De3c43696c57F7D7A678ff", // QuickSwap
	Arbitrum: "0x1b02dA8Cb0d097eB8D57A175b88c7D8b47997506", // SushiSwap
}

// Wrapped native tokens, the input side of simulated buys.
var wrappedNatives = map[Chain]string{
	Ethereum: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2", // WETH
	BSC:      "0xbb4CdB9CBd36B01bD1cBaEBF2De08d9173bc095c", // WBNB
	Polygon:  "0x0d500B1d8E8eF31E21C99d1Db9A6444d3ADf1270", // WMATIC
	Arbitrum: "0x82aF49447D8a07e3bd95BD0d56f35241523fBab1", // WETH
	Optimism: "0x4200000000000000000000000000000000000006", // WETH predeploy
	Solana:   "So11111111111111111111111111111111111111112",
}

// Parse resolves a chain name or alias to a Chain.
func Parse(s string) (Chain, error) {
	c, ok := aliases[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedChain, s)
	}
	return c, nil
}

// ParseList resolves a list of chain names, rejecting the whole list on the
// first unknown entry.
func ParseList(names []string) ([]Chain, error) {
	out := make([]Chain, 0, len(names))
	seen := make(map[Chain]bool, len(names))
	for _, name := range names {
		c, err := Parse(name)
		if err != nil {
			return nil, err
		}
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	return out, nil
}

// ID returns the numeric network id.
func (c Chain) ID() int64 {
	return chainIDs[c]
}

// IsEVM reports whether the chain uses EVM-style addresses.
func (c Chain) IsEVM() bool {
	return c != Solana && chainIDs[c] != 0
}

// Supported reports whether the chain is in the registry.
func (c Chain) Supported() bool {
	_, ok := chainIDs[c]
	return ok
}

// RouterAddress returns the DEX router used for simulated trades on the
// chain, if one is configured.
func RouterAddress(c Chain) (string, bool) {
	addr, ok := routers[c]
	return addr, ok
}

// WrappedNative returns the wrapped native token address for the chain.
func WrappedNative(c Chain) (string, bool) {
	addr, ok := wrappedNatives[c]
	return addr, ok
}

// All returns every supported chain.
func All() []Chain {
	return []Chain{Ethereum, BSC, Polygon, Arbitrum, Optimism, Solana}
}

// ---------------------------------------------------------------------------
// Address validation
// ---------------------------------------------------------------------------

// ValidAddress reports whether an address is well-formed for the chain.
// EVM chains expect 0x + 40 hex characters. Solana expects a base58 string
// of 32-44 characters.
func ValidAddress(addr string, c Chain) bool {
	if c == Solana {
		return validBase58(addr)
	}
	return ValidEVMAddress(addr)
}

// ValidEVMAddress reports whether an address looks like a 20-byte hex address.
func ValidEVMAddress(addr string) bool {
	if len(addr) != 42 || !strings.HasPrefix(addr, "0x") {
		return false
	}
	for _, r := range addr[2:] {
		if !isHex(r) {
			return false
		}
	}
	return true
}

func validBase58(addr string) bool {
	if len(addr) < 32 || len(addr) > 44 || strings.HasPrefix(addr, "0x") {
		return false
	}
	for _, r := range addr {
		if !isBase58(r) {
			return false
		}
	}
	return true
}

func isHex(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')
}

func isBase58(r rune) bool {
	switch {
	case r >= '1' && r <= '9':
		return true
	case r >= 'A' && r <= 'Z':
		return r != 'I' && r != 'O'
	case r >= 'a' && r <= 'z':
		return r != 'l'
	}
	return false
}
