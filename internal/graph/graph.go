package graph

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/warden-labs/warden/internal/chains"
	"github.com/warden-labs/warden/internal/gateway"
)

// ---------------------------------------------------------------------------
// Wallet graph — bounded BFS over transfer counterparties
// ---------------------------------------------------------------------------

const (
	maxDepth        = 5
	devMinOutDegree = 10
	devFanoutFactor = 2
)

// Config bounds graph construction. Depth and NodeBudget are the termination
// guarantee on pathological fan-out, so both are always enforced.
type Config struct {
	Depth      int `yaml:"depth"`
	NodeBudget int `yaml:"node_budget"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{Depth: 2, NodeBudget: 200}
}

// TransferSource is the slice of the data gateway the analyzer needs.
type TransferSource interface {
	WalletTransfers(ctx context.Context, address string, chain chains.Chain) ([]gateway.Transfer, error)
}

// Node is one wallet in the analyzed subgraph.
type Node struct {
	Address  string `json:"address"`
	Depth    int    `json:"depth"`
	IsCEX    bool   `json:"is_cex"`
	Exchange string `json:"exchange,omitempty"`
}

// Edge is the aggregated USD flow between an ordered wallet pair.
type Edge struct {
	From      string          `json:"from"`
	To        string          `json:"to"`
	TotalUSD  decimal.Decimal `json:"total_usd"`
	Transfers int             `json:"transfers"`
}

// Connection is a neighbor of an analyzed wallet ranked by flow.
type Connection struct {
	Address   string          `json:"address"`
	TotalUSD  decimal.Decimal `json:"total_usd"`
	Transfers int             `json:"transfers"`
	IsCEX     bool            `json:"is_cex"`
	Exchange  string          `json:"exchange,omitempty"`
}

// Summary is the per-wallet digest the discovery pipeline consumes.
type Summary struct {
	Wallet         string       `json:"wallet"`
	Chain          chains.Chain `json:"chain"`
	Nodes          int          `json:"nodes"`
	Edges          int          `json:"edges"`
	Truncated      bool         `json:"truncated"`
	Centrality     float64      `json:"centrality"`
	InDegree       int          `json:"in_degree"`
	OutDegree      int          `json:"out_degree"`
	DevWallet      bool         `json:"dev_wallet"`
	ComponentSize  int          `json:"component_size"`
	Components     int          `json:"connected_components"`
	FundingSources []Connection `json:"funding_sources,omitempty"`
	TopConnections []Connection `json:"top_connections,omitempty"`
}

type pairKey struct{ from, to string }

// WalletGraph is an immutable bounded subgraph around one or more seeds.
type WalletGraph struct {
	Seeds     []string
	Chain     chains.Chain
	Truncated bool

	nodes map[string]*Node
	edges map[pairKey]*Edge
	out   map[string]map[string]bool
	in    map[string]map[string]bool
}

func newWalletGraph(chain chains.Chain) *WalletGraph {
	return &WalletGraph{
		Chain: chain,
		nodes: make(map[string]*Node),
		edges: make(map[pairKey]*Edge),
		out:   make(map[string]map[string]bool),
		in:    make(map[string]map[string]bool),
	}
}

func (g *WalletGraph) NodeCount() int { return len(g.nodes) }
func (g *WalletGraph) EdgeCount() int { return len(g.edges) }

// Degrees returns the distinct in- and out-counterparty counts of a wallet.
func (g *WalletGraph) Degrees(addr string) (in, out int) {
	return len(g.in[addr]), len(g.out[addr])
}

// Centrality is the degree centrality of a wallet: distinct neighbors over
// all other nodes in the subgraph.
func (g *WalletGraph) Centrality(addr string) float64 {
	if len(g.nodes) < 2 {
		return 0
	}
	neighbors := make(map[string]bool, len(g.out[addr])+len(g.in[addr]))
	for n := range g.out[addr] {
		neighbors[n] = true
	}
	for n := range g.in[addr] {
		neighbors[n] = true
	}
	return float64(len(neighbors)) / float64(len(g.nodes)-1)
}

// IsLikelyDev flags distribution behavior: fan-out dwarfing fan-in with a
// minimum absolute out-degree.
func (g *WalletGraph) IsLikelyDev(addr string) bool {
	in, out := g.Degrees(addr)
	return out > in*devFanoutFactor && out > devMinOutDegree
}

// FundingSources lists wallets sending funds into addr, largest flow first.
func (g *WalletGraph) FundingSources(addr string) []Connection {
	conns := make([]Connection, 0, len(g.in[addr]))
	for from := range g.in[addr] {
		e := g.edges[pairKey{from, addr}]
		conns = append(conns, g.connection(from, e.TotalUSD, e.Transfers))
	}
	sortConnections(conns)
	return conns
}

// TopConnections ranks addr's neighbors by combined two-way flow.
func (g *WalletGraph) TopConnections(addr string, n int) []Connection {
	totals := make(map[string]*Connection)
	add := func(peer string, e *Edge) {
		c, ok := totals[peer]
		if !ok {
			cc := g.connection(peer, decimal.Zero, 0)
			c = &cc
			totals[peer] = c
		}
		c.TotalUSD = c.TotalUSD.Add(e.TotalUSD)
		c.Transfers += e.Transfers
	}
	for peer := range g.out[addr] {
		add(peer, g.edges[pairKey{addr, peer}])
	}
	for peer := range g.in[addr] {
		add(peer, g.edges[pairKey{peer, addr}])
	}

	conns := make([]Connection, 0, len(totals))
	for _, c := range totals {
		conns = append(conns, *c)
	}
	sortConnections(conns)
	if n > 0 && len(conns) > n {
		conns = conns[:n]
	}
	return conns
}

// ComponentSize returns the size of addr's connected component, ignoring
// edge direction.
func (g *WalletGraph) ComponentSize(addr string) int {
	if _, ok := g.nodes[addr]; !ok {
		return 0
	}
	visited := map[string]bool{addr: true}
	queue := []string{addr}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for n := range g.out[current] {
			if !visited[n] {
				visited[n] = true
				queue = append(queue, n)
			}
		}
		for n := range g.in[current] {
			if !visited[n] {
				visited[n] = true
				queue = append(queue, n)
			}
		}
	}
	return len(visited)
}

// Components returns the number of connected components in the subgraph.
func (g *WalletGraph) Components() int {
	visited := make(map[string]bool, len(g.nodes))
	components := 0
	for addr := range g.nodes {
		if visited[addr] {
			continue
		}
		components++
		queue := []string{addr}
		visited[addr] = true
		for len(queue) > 0 {
			current := queue[0]
			queue = queue[1:]
			for n := range g.out[current] {
				if !visited[n] {
					visited[n] = true
					queue = append(queue, n)
				}
			}
			for n := range g.in[current] {
				if !visited[n] {
					visited[n] = true
					queue = append(queue, n)
				}
			}
		}
	}
	return components
}

// SameComponent reports whether two wallets are transitively connected.
func (g *WalletGraph) SameComponent(a, b string) bool {
	if _, ok := g.nodes[a]; !ok {
		return false
	}
	if _, ok := g.nodes[b]; !ok {
		return false
	}
	if a == b {
		return true
	}
	visited := map[string]bool{a: true}
	queue := []string{a}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, adj := range []map[string]bool{g.out[current], g.in[current]} {
			for n := range adj {
				if n == b {
					return true
				}
				if !visited[n] {
					visited[n] = true
					queue = append(queue, n)
				}
			}
		}
	}
	return false
}

// Summarize digests one wallet's position in the graph.
func (g *WalletGraph) Summarize(addr string) Summary {
	in, out := g.Degrees(addr)
	return Summary{
		Wallet:         addr,
		Chain:          g.Chain,
		Nodes:          len(g.nodes),
		Edges:          len(g.edges),
		Truncated:      g.Truncated,
		Centrality:     g.Centrality(addr),
		InDegree:       in,
		OutDegree:      out,
		DevWallet:      g.IsLikelyDev(addr),
		ComponentSize:  g.ComponentSize(addr),
		Components:     g.Components(),
		FundingSources: g.FundingSources(addr),
		TopConnections: g.TopConnections(addr, 5),
	}
}

func (g *WalletGraph) connection(addr string, usd decimal.Decimal, transfers int) Connection {
	c := Connection{Address: addr, TotalUSD: usd, Transfers: transfers}
	if node := g.nodes[addr]; node != nil {
		c.IsCEX = node.IsCEX
		c.Exchange = node.Exchange
	}
	return c
}

func sortConnections(conns []Connection) {
	sort.Slice(conns, func(i, j int) bool {
		if cmp := conns[i].TotalUSD.Cmp(conns[j].TotalUSD); cmp != 0 {
			return cmp > 0
		}
		return conns[i].Address < conns[j].Address
	})
}

// ---------------------------------------------------------------------------
// Analyzer — builds bounded subgraphs from gateway transfers
// ---------------------------------------------------------------------------

// Stats counts analyzer activity.
type Stats struct {
	Builds      int64 `json:"builds"`
	Truncated   int64 `json:"truncated"`
	FetchErrors int64 `json:"fetch_errors"`
}

// Analyzer builds per-wallet transfer graphs. Each Build call produces an
// independent graph owned by the caller; the analyzer itself holds no graph
// state and is safe for concurrent use.
type Analyzer struct {
	src TransferSource
	cfg Config
	log zerolog.Logger

	builds      atomic.Int64
	truncated   atomic.Int64
	fetchErrors atomic.Int64
}

func NewAnalyzer(src TransferSource, cfg Config, log zerolog.Logger) *Analyzer {
	if cfg.Depth <= 0 {
		cfg.Depth = 2
	}
	if cfg.Depth > maxDepth {
		cfg.Depth = maxDepth
	}
	if cfg.NodeBudget <= 0 {
		cfg.NodeBudget = 200
	}
	return &Analyzer{src: src, cfg: cfg, log: log}
}

// Build traverses breadth-first from the seed wallet.
func (a *Analyzer) Build(ctx context.Context, wallet string, chain chains.Chain) (*WalletGraph, error) {
	return a.BuildMany(ctx, []string{wallet}, chain)
}

// BuildMany traverses breadth-first from several seeds into one shared
// subgraph, so component membership can link seeds to each other. Traversal
// stops at the configured depth, at the node budget, and at CEX wallets.
func (a *Analyzer) BuildMany(ctx context.Context, wallets []string, chain chains.Chain) (*WalletGraph, error) {
	g := newWalletGraph(chain)
	frontier, err := g.seed(wallets, a.cfg.NodeBudget)
	if err != nil {
		return nil, err
	}
	return a.traverse(ctx, g, frontier, 0, make(map[string]bool))
}

// BuildFromTransfers builds a graph for a wallet whose first-hop transfers
// the caller already fetched, then traverses the remaining depth through the
// transfer source.
func (a *Analyzer) BuildFromTransfers(ctx context.Context, wallet string, chain chains.Chain, transfers []gateway.Transfer) (*WalletGraph, error) {
	g := newWalletGraph(chain)
	if _, err := g.seed([]string{wallet}, a.cfg.NodeBudget); err != nil {
		return nil, err
	}
	seenTx := make(map[string]bool)
	frontier := a.expand(g, wallet, 0, transfers, seenTx)
	return a.traverse(ctx, g, frontier, 1, seenTx)
}

func (g *WalletGraph) seed(wallets []string, budget int) ([]string, error) {
	var frontier []string
	for _, w := range wallets {
		if !chains.ValidAddress(w, g.Chain) {
			return nil, fmt.Errorf("graph seed %q on %s: %w", w, g.Chain, chains.ErrInvalidAddress)
		}
		if _, seen := g.nodes[w]; seen {
			continue
		}
		if len(g.nodes) >= budget {
			g.Truncated = true
			break
		}
		g.addNode(w, 0)
		g.Seeds = append(g.Seeds, w)
		frontier = append(frontier, w)
	}
	return frontier, nil
}

func (a *Analyzer) traverse(ctx context.Context, g *WalletGraph, frontier []string, startDepth int, seenTx map[string]bool) (*WalletGraph, error) {
	for depth := startDepth; depth < a.cfg.Depth && len(frontier) > 0; depth++ {
		var next []string
		for _, addr := range frontier {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			transfers, err := a.src.WalletTransfers(ctx, addr, g.Chain)
			if err != nil {
				if depth == 0 {
					return nil, fmt.Errorf("graph seed transfers for %s: %w", addr, err)
				}
				a.fetchErrors.Add(1)
				a.log.Debug().Str("component", "graph").
					Str("wallet", addr).Int("depth", depth).Err(err).
					Msg("graph: neighbor fetch failed, branch truncated")
				continue
			}
			next = append(next, a.expand(g, addr, depth, transfers, seenTx)...)
		}
		frontier = next
	}

	a.builds.Add(1)
	if g.Truncated {
		a.truncated.Add(1)
	}
	a.log.Debug().Str("component", "graph").
		Strs("seeds", g.Seeds).
		Str("chain", string(g.Chain)).
		Int("nodes", len(g.nodes)).
		Int("edges", len(g.edges)).
		Bool("truncated", g.Truncated).
		Msg("graph: subgraph built")
	return g, nil
}

// expand folds one wallet's transfers into the graph and returns the
// counterparties eligible for further traversal. The tx key is direction
// agnostic so a flow reported by both endpoints counts once.
func (a *Analyzer) expand(g *WalletGraph, addr string, depth int, transfers []gateway.Transfer, seenTx map[string]bool) []string {
	var next []string
	for _, tr := range transfers {
		peer := tr.Counterparty
		if peer == "" || peer == addr || !chains.ValidAddress(peer, g.Chain) {
			continue
		}
		if !tr.ValueUSD.IsPositive() {
			continue
		}
		from, to := addr, peer
		if tr.Direction == gateway.DirectionIn {
			from, to = peer, addr
		}
		txKey := tr.TxHash + "|" + from + "|" + to
		if seenTx[txKey] {
			continue
		}
		seenTx[txKey] = true

		node, exists := g.nodes[peer]
		if !exists {
			if len(g.nodes) >= a.cfg.NodeBudget {
				g.Truncated = true
				continue
			}
			node = g.addNode(peer, depth+1)
			if !node.IsCEX {
				next = append(next, peer)
			}
		}
		g.addEdge(from, to, tr.ValueUSD)
	}
	return next
}

func (g *WalletGraph) addNode(addr string, depth int) *Node {
	exchange, isCEX := chains.IsCEX(addr)
	node := &Node{Address: addr, Depth: depth, IsCEX: isCEX, Exchange: exchange}
	g.nodes[addr] = node
	return node
}

func (g *WalletGraph) addEdge(from, to string, usd decimal.Decimal) {
	key := pairKey{from, to}
	e, ok := g.edges[key]
	if !ok {
		e = &Edge{From: from, To: to, TotalUSD: decimal.Zero}
		g.edges[key] = e
	}
	e.TotalUSD = e.TotalUSD.Add(usd)
	e.Transfers++

	if g.out[from] == nil {
		g.out[from] = make(map[string]bool)
	}
	g.out[from][to] = true
	if g.in[to] == nil {
		g.in[to] = make(map[string]bool)
	}
	g.in[to][from] = true
}

// Stats returns cumulative analyzer counters.
func (a *Analyzer) Stats() Stats {
	return Stats{
		Builds:      a.builds.Load(),
		Truncated:   a.truncated.Load(),
		FetchErrors: a.fetchErrors.Load(),
	}
}
