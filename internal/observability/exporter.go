package observability

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// PrometheusExporter renders a Registry in the Prometheus text exposition
// format (version 0.0.4) and doubles as the /metrics handler.
type PrometheusExporter struct {
	registry *Registry
}

// NewPrometheusExporter wraps the given registry.
func NewPrometheusExporter(registry *Registry) *PrometheusExporter {
	return &PrometheusExporter{registry: registry}
}

// ServeHTTP implements http.Handler.
func (e *PrometheusExporter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(e.Format()))
}

// Format renders every registered metric as exposition text, one family per
// block, families sorted by name within their kind.
func (e *PrometheusExporter) Format() string {
	var b strings.Builder

	e.registry.mu.RLock()
	defer e.registry.mu.RUnlock()

	for _, name := range sortedKeys(e.registry.counters) {
		writeCounter(&b, e.registry.counters[name])
	}
	for _, name := range sortedKeys(e.registry.gauges) {
		writeGauge(&b, e.registry.gauges[name])
	}
	for _, name := range sortedKeys(e.registry.histograms) {
		writeHistogram(&b, e.registry.histograms[name])
	}
	return b.String()
}

func writeCounter(b *strings.Builder, c *Counter) {
	writeHeader(b, c.name, c.help, MetricCounter)
	fmt.Fprintf(b, "%s%s %s\n\n", c.name, labelString(c.labels), formatValue(c.Value()))
}

func writeGauge(b *strings.Builder, g *Gauge) {
	writeHeader(b, g.name, g.help, MetricGauge)
	fmt.Fprintf(b, "%s%s %s\n\n", g.name, labelString(g.labels), formatValue(g.Value()))
}

func writeHistogram(b *strings.Builder, h *Histogram) {
	bounds, cumulative, sum, count := h.Cumulative()

	writeHeader(b, h.name, h.help, MetricHistogram)
	for i, bound := range bounds {
		fmt.Fprintf(b, "%s_bucket%s %d\n",
			h.name, labelStringWith(h.labels, "le", formatValue(bound)), cumulative[i])
	}
	fmt.Fprintf(b, "%s_bucket%s %d\n",
		h.name, labelStringWith(h.labels, "le", "+Inf"), count)

	base := labelString(h.labels)
	fmt.Fprintf(b, "%s_sum%s %s\n", h.name, base, formatValue(sum))
	fmt.Fprintf(b, "%s_count%s %d\n\n", h.name, base, count)
}

func writeHeader(b *strings.Builder, name, help string, kind MetricType) {
	fmt.Fprintf(b, "# HELP %s %s\n", name, help)
	fmt.Fprintf(b, "# TYPE %s %s\n", name, kind)
}

// labelString renders labels as {k1="v1",k2="v2"}, keys sorted, or an empty
// string when there are none.
func labelString(labels map[string]string) string {
	if len(labels) == 0 {
		return ""
	}
	keys := sortedKeys(labels)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+strconv.Quote(labels[k]))
	}
	return "{" + strings.Join(parts, ",") + "}"
}

// labelStringWith renders labels with one extra pair merged in, as needed
// for the per-bucket le label.
func labelStringWith(base map[string]string, key, value string) string {
	merged := make(map[string]string, len(base)+1)
	for k, v := range base {
		merged[k] = v
	}
	merged[key] = value
	return labelString(merged)
}

// formatValue renders a sample value. strconv handles the Inf and NaN
// spellings Prometheus expects.
func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
