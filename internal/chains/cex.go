package chains

import "strings"

// ---------------------------------------------------------------------------
// CEX Hot Wallet Database — known exchange addresses
// Transfers to/from these are deposit/withdrawal noise, not trader linkage:
// graph traversal never expands through them.
// ---------------------------------------------------------------------------

// cexWallets maps known centralized exchange hot wallets to the exchange name.
// EVM keys are lowercase.
var cexWallets = map[string]string{
	// Binance (EVM)
	"0xf977814e90da44bfa03b6295a0616a897441acec": "binance",
	"0xbe0eb53f46cd790cd13851d5eff43d12404d33e8": "binance",
	"0x28c6c06298d514db089934071355e5743bf21d60": "binance",
	"0x21a31ee1afc51d94c2efccaa2092ad1028285549": "binance",
	"0xdfd5293d8e347dfe59e90efd55b2956a1343963d": "binance",

	// Coinbase (EVM)
	"0x71660c4005ba85c37ccec55d0c4493e66fe775d3": "coinbase",
	"0x503828976d22510aad0201ac7ec88293211d23da": "coinbase",
	"0xddfabcdc4d8ffc6d5beaf154f18b778f892a0740": "coinbase",

	// Kraken (EVM)
	"0x2910543af39aba0cd09dbb2d50200b3e800a63d2": "kraken",
	"0x0a869d79a7052c7f1b55a8ebabbea3420f0d1e13": "kraken",

	// OKX (EVM)
	"0x6cc5f688a315f3dc28a7781717a9a798a59fda7b": "okx",

	// Bitfinex (EVM)
	"0x876eabf441b2ee5b5b0554fd502a8e0600950cfa": "bitfinex",

	// Binance (Solana)
	"5tzFkiKscXHK5ZXCGbXZxdw7gTjjD1mBwuoFbhUvuAi9": "binance",
	"9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM": "binance",
	"2ojv9BAiHUrvsm9gxDe7fJSzbNZSJcxZvf8dqmWGHG8S": "binance",

	// Coinbase (Solana)
	"GJRs4FwHtemZ5ZE9x3FNvJ8TMwitKTh21yxdRPqn7npE": "coinbase",
	"H8sMJSCQxfKiFTCfDR3DUMLPwcRbM61LGFJ8N4dK3WjS": "coinbase",

	// Kraken (Solana)
	"FWznbcNXWQuHTawe9RxvQ2LdCENssh12dsznf4RiouN5": "kraken",

	// OKX (Solana)
	"5VCwKtCXgCJ6kit5FybXjvFnPXCrKoKwFqgq5YVe1rAS": "okx",

	// Bybit (Solana)
	"AC5RDfQFmDS1deWZos921JfqscXdByf6BKHAbETSYnh7": "bybit",

	// KuCoin (Solana)
	"BmFdpraQhkiDQE6SnfG5PVddTtR3GYBnCkEHAowHvPLJ": "kucoin",
}

// cexKey folds EVM addresses to lowercase; providers disagree on checksum
// casing. Solana base58 is case-significant and passes through.
func cexKey(address string) string {
	if strings.HasPrefix(address, "0x") || strings.HasPrefix(address, "0X") {
		return strings.ToLower(address)
	}
	return address
}

// IsCEX reports whether an address is a known exchange hot wallet and, when
// it is, which exchange.
func IsCEX(address string) (string, bool) {
	exchange, ok := cexWallets[cexKey(address)]
	return exchange, ok
}

// AddCEX registers an exchange hot wallet at runtime. Call during startup;
// not safe concurrently with IsCEX.
func AddCEX(address, exchange string) {
	cexWallets[cexKey(address)] = exchange
}

// CEXCount returns the number of known exchange wallets.
func CEXCount() int {
	return len(cexWallets)
}
