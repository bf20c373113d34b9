// Package observability provides the in-process metric registry, the
// Prometheus text exporter, and the component health monitor shared by the
// warden daemons.
package observability

import (
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// MetricType identifies the kind of metric.
type MetricType string

const (
	MetricCounter   MetricType = "counter"
	MetricGauge     MetricType = "gauge"
	MetricHistogram MetricType = "histogram"
)

// MetricEntry is a point-in-time view of one metric, as served on /stats.
type MetricEntry struct {
	Name      string            `json:"name"`
	Type      MetricType        `json:"type"`
	Help      string            `json:"help"`
	Value     float64           `json:"value"`
	Labels    map[string]string `json:"labels,omitempty"`
	Timestamp time.Time         `json:"ts"`
}

// ---------------------------------------------------------------------------
// Counter
// ---------------------------------------------------------------------------

// Counter counts events. It only goes up.
type Counter struct {
	name   string
	help   string
	labels map[string]string
	n      atomic.Int64
}

// Inc adds one.
func (c *Counter) Inc() {
	c.n.Add(1)
}

// Add adds n. Negative deltas are ignored.
func (c *Counter) Add(n int64) {
	if n < 0 {
		return
	}
	c.n.Add(n)
}

// Value returns the current count.
func (c *Counter) Value() float64 {
	return float64(c.n.Load())
}

// Entry returns a snapshot of the counter.
func (c *Counter) Entry() MetricEntry {
	return MetricEntry{
		Name:      c.name,
		Type:      MetricCounter,
		Help:      c.help,
		Value:     c.Value(),
		Labels:    copyLabels(c.labels),
		Timestamp: time.Now(),
	}
}

// ---------------------------------------------------------------------------
// Gauge
// ---------------------------------------------------------------------------

// Gauge holds an arbitrary float that can move in both directions. The value
// lives in an atomic word as IEEE 754 bits, so reads never contend with
// writes.
type Gauge struct {
	name   string
	help   string
	labels map[string]string
	bits   atomic.Uint64
}

// Set replaces the gauge value.
func (g *Gauge) Set(v float64) {
	g.bits.Store(math.Float64bits(v))
}

// Add shifts the gauge by delta, which may be negative.
func (g *Gauge) Add(delta float64) {
	for {
		old := g.bits.Load()
		next := math.Float64bits(math.Float64frombits(old) + delta)
		if g.bits.CompareAndSwap(old, next) {
			return
		}
	}
}

// Inc adds one.
func (g *Gauge) Inc() { g.Add(1) }

// Dec subtracts one.
func (g *Gauge) Dec() { g.Add(-1) }

// Value returns the current gauge value.
func (g *Gauge) Value() float64 {
	return math.Float64frombits(g.bits.Load())
}

// Entry returns a snapshot of the gauge.
func (g *Gauge) Entry() MetricEntry {
	return MetricEntry{
		Name:      g.name,
		Type:      MetricGauge,
		Help:      g.help,
		Value:     g.Value(),
		Labels:    copyLabels(g.labels),
		Timestamp: time.Now(),
	}
}

// ---------------------------------------------------------------------------
// Histogram
// ---------------------------------------------------------------------------

// Histogram records a value distribution over fixed upper-bound buckets.
// counts[i] holds the observations that landed in (bounds[i-1], bounds[i]];
// anything above the last bound is only visible in the total count.
type Histogram struct {
	name   string
	help   string
	labels map[string]string
	mu     sync.Mutex
	bounds []float64
	counts []int64
	sum    float64
	count  int64
}

// Observe records one value.
func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sum += v
	h.count++
	if i := sort.SearchFloat64s(h.bounds, v); i < len(h.bounds) {
		h.counts[i]++
	}
}

// Count returns the total number of observations.
func (h *Histogram) Count() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

// Sum returns the sum of all observed values.
func (h *Histogram) Sum() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sum
}

// Cumulative returns the bucket bounds with running totals in exposition
// shape: cumulative[i] counts every observation <= bounds[i].
func (h *Histogram) Cumulative() (bounds []float64, cumulative []int64, sum float64, count int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	bounds = append([]float64(nil), h.bounds...)
	cumulative = make([]int64, len(h.counts))
	var running int64
	for i, c := range h.counts {
		running += c
		cumulative[i] = running
	}
	return bounds, cumulative, h.sum, h.count
}

// Quantile estimates the q-th percentile (0..1) by linear interpolation
// inside the bucket where the target rank falls.
func (h *Histogram) Quantile(q float64) float64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.count == 0 || len(h.bounds) == 0 || q < 0 || q > 1 {
		return 0
	}

	target := q * float64(h.count)
	var running int64
	for i, c := range h.counts {
		prev := float64(running)
		running += c
		if float64(running) < target {
			continue
		}
		var lower float64
		if i > 0 {
			lower = h.bounds[i-1]
		}
		upper := h.bounds[i]
		if c == 0 {
			return upper
		}
		frac := (target - prev) / float64(c)
		return lower + frac*(upper-lower)
	}

	// Rank beyond the last bound: the overflow bucket has no upper edge.
	return h.bounds[len(h.bounds)-1]
}

// Entry returns a snapshot of the histogram; Value carries the observation
// count.
func (h *Histogram) Entry() MetricEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	return MetricEntry{
		Name:      h.name,
		Type:      MetricHistogram,
		Help:      h.help,
		Value:     float64(h.count),
		Labels:    copyLabels(h.labels),
		Timestamp: time.Now(),
	}
}

// ---------------------------------------------------------------------------
// Registry
// ---------------------------------------------------------------------------

// Registry owns every metric of a daemon. Registration is idempotent by
// name, so packages can re-request a metric instead of threading pointers.
type Registry struct {
	mu         sync.RWMutex
	counters   map[string]*Counter
	gauges     map[string]*Gauge
	histograms map[string]*Histogram
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		counters:   make(map[string]*Counter),
		gauges:     make(map[string]*Gauge),
		histograms: make(map[string]*Histogram),
	}
}

// NewCounter registers a counter, or returns the existing one by that name.
func (r *Registry) NewCounter(name, help string, labels map[string]string) *Counter {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.counters[name]; ok {
		return c
	}
	c := &Counter{name: name, help: help, labels: copyLabels(labels)}
	r.counters[name] = c
	return c
}

// NewGauge registers a gauge, or returns the existing one by that name.
func (r *Registry) NewGauge(name, help string, labels map[string]string) *Gauge {
	r.mu.Lock()
	defer r.mu.Unlock()
	if g, ok := r.gauges[name]; ok {
		return g
	}
	g := &Gauge{name: name, help: help, labels: copyLabels(labels)}
	r.gauges[name] = g
	return g
}

// NewHistogram registers a histogram, or returns the existing one by that
// name. Bucket bounds are sorted; they need not arrive sorted.
func (r *Registry) NewHistogram(name, help string, labels map[string]string, buckets []float64) *Histogram {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.histograms[name]; ok {
		return h
	}
	bounds := append([]float64(nil), buckets...)
	sort.Float64s(bounds)
	h := &Histogram{
		name:   name,
		help:   help,
		labels: copyLabels(labels),
		bounds: bounds,
		counts: make([]int64, len(bounds)),
	}
	r.histograms[name] = h
	return h
}

// GetCounter returns a registered counter or nil.
func (r *Registry) GetCounter(name string) *Counter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.counters[name]
}

// GetGauge returns a registered gauge or nil.
func (r *Registry) GetGauge(name string) *Gauge {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.gauges[name]
}

// GetHistogram returns a registered histogram or nil.
func (r *Registry) GetHistogram(name string) *Histogram {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.histograms[name]
}

// Snapshot returns every registered metric, counters first, then gauges,
// then histograms, each group sorted by name.
func (r *Registry) Snapshot() []MetricEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]MetricEntry, 0, len(r.counters)+len(r.gauges)+len(r.histograms))
	for _, name := range sortedKeys(r.counters) {
		entries = append(entries, r.counters[name].Entry())
	}
	for _, name := range sortedKeys(r.gauges) {
		entries = append(entries, r.gauges[name].Entry())
	}
	for _, name := range sortedKeys(r.histograms) {
		entries = append(entries, r.histograms[name].Entry())
	}
	return entries
}

// ---------------------------------------------------------------------------
// Warden metric set
// ---------------------------------------------------------------------------

// DefaultLatencyBuckets suit request-scale latencies, in milliseconds.
var DefaultLatencyBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000}

// ScanDurationBuckets suit full discovery runs, in milliseconds.
var ScanDurationBuckets = []float64{250, 1000, 5000, 15000, 60000, 300000, 900000}

// WardenMetrics returns a registry pre-loaded with the metric surface both
// daemons share. Counters are bumped inline at the call sites that own the
// event; gauges are synced from component stats on a ticker.
func WardenMetrics() *Registry {
	r := NewRegistry()

	r.NewCounter("warden_scan_runs_total",
		"Discovery scan runs completed", nil)
	r.NewCounter("warden_candidates_analyzed_total",
		"Candidate wallets pulled through the analysis pool", nil)
	r.NewCounter("warden_wallets_qualified_total",
		"Wallets that passed every gate and the score floor", nil)
	r.NewCounter("warden_token_checks_total",
		"Token safety checks served", nil)
	r.NewCounter("warden_honeypots_detected_total",
		"Token checks that came back honeypot", nil)
	r.NewCounter("warden_watch_activities_total",
		"Watchlist activity events observed", nil)
	r.NewCounter("warden_consensus_alerts_total",
		"Consensus buy alerts raised", nil)

	r.NewGauge("warden_watchlist_size",
		"Wallets currently on the watchlist", nil)
	r.NewGauge("warden_keys_available",
		"Credentials usable across all key pools", nil)
	r.NewGauge("warden_keys_cooling",
		"Credentials in cooldown across all key pools", nil)
	r.NewGauge("warden_provider_errors",
		"Cumulative provider errors seen by the circuit breakers", nil)
	r.NewGauge("warden_known_rugs",
		"Token signatures held by the rug registry", nil)
	r.NewGauge("warden_scan_in_progress",
		"1 while a discovery scan is running", nil)

	r.NewHistogram("warden_token_check_ms",
		"Token safety check latency in milliseconds", nil, DefaultLatencyBuckets)
	r.NewHistogram("warden_scan_duration_ms",
		"Discovery scan duration in milliseconds", nil, ScanDurationBuckets)

	return r
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func copyLabels(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
