package observability

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// LedgerMetrics tracks instruction processing.
type LedgerMetrics struct {
	instructions *prometheus.CounterVec
	failures     *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	rejected     *prometheus.CounterVec
}

var (
	ledgerMetricsOnce sync.Once
	ledgerRegistry    *LedgerMetrics

	keeperMetricsOnce sync.Once
	keeperRegistry    *KeeperMetrics
)

// Ledger returns the lazily-initialised instruction metrics registry.
func Ledger() *LedgerMetrics {
	ledgerMetricsOnce.Do(func() {
		ledgerRegistry = &LedgerMetrics{
			instructions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "tally",
				Subsystem: "ledger",
				Name:      "instructions_total",
				Help:      "Total applied instructions segmented by type and outcome.",
			}, []string{"type", "outcome"}),
			failures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "tally",
				Subsystem: "ledger",
				Name:      "instruction_failures_total",
				Help:      "Failed instructions segmented by type and error code.",
			}, []string{"type", "code"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "tally",
				Subsystem: "ledger",
				Name:      "instruction_duration_seconds",
				Help:      "Latency distribution for instruction execution including commit.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"type"}),
			rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "tally",
				Subsystem: "ledger",
				Name:      "rejected_total",
				Help:      "Transactions refused before execution segmented by reason.",
			}, []string{"reason"}),
		}
		prometheus.MustRegister(
			ledgerRegistry.instructions,
			ledgerRegistry.failures,
			ledgerRegistry.latency,
			ledgerRegistry.rejected,
		)
	})
	return ledgerRegistry
}

// Observe records one executed instruction. A zero code means success.
func (m *LedgerMetrics) Observe(txType string, code uint32, duration time.Duration) {
	if m == nil {
		return
	}
	txType = normaliseLabel(txType, "unknown")
	outcome := "success"
	if code != 0 {
		outcome = "failure"
		m.failures.WithLabelValues(txType, fmt.Sprintf("%d", code)).Inc()
	}
	m.instructions.WithLabelValues(txType, outcome).Inc()
	m.latency.WithLabelValues(txType).Observe(duration.Seconds())
}

// RecordRejected counts a transaction refused before execution. Reasons
// should be stable strings such as "nonce" or "signature".
func (m *LedgerMetrics) RecordRejected(reason string) {
	if m == nil {
		return
	}
	m.rejected.WithLabelValues(normaliseLabel(reason, "unspecified")).Inc()
}

// KeeperMetrics captures the renewal keeper's activity.
type KeeperMetrics struct {
	scans    prometheus.Counter
	due      prometheus.Gauge
	renewals *prometheus.CounterVec
	errors   *prometheus.CounterVec
	latency  prometheus.Histogram
}

// Keeper returns the lazily-initialised keeper metrics registry.
func Keeper() *KeeperMetrics {
	keeperMetricsOnce.Do(func() {
		keeperRegistry = &KeeperMetrics{
			scans: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "tally",
				Subsystem: "keeper",
				Name:      "scans_total",
				Help:      "Completed scans for due subscriptions.",
			}),
			due: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "tally",
				Subsystem: "keeper",
				Name:      "due_subscriptions",
				Help:      "Subscriptions found due during the most recent scan.",
			}),
			renewals: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "tally",
				Subsystem: "keeper",
				Name:      "renewals_total",
				Help:      "Renewals submitted by the keeper segmented by outcome.",
			}, []string{"outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "tally",
				Subsystem: "keeper",
				Name:      "errors_total",
				Help:      "Keeper errors segmented by stage.",
			}, []string{"stage"}),
			latency: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: "tally",
				Subsystem: "keeper",
				Name:      "scan_duration_seconds",
				Help:      "Duration of a full keeper pass.",
				Buckets:   prometheus.DefBuckets,
			}),
		}
		prometheus.MustRegister(
			keeperRegistry.scans,
			keeperRegistry.due,
			keeperRegistry.renewals,
			keeperRegistry.errors,
			keeperRegistry.latency,
		)
	})
	return keeperRegistry
}

// RecordScan records a completed pass and the number of due subscriptions.
func (m *KeeperMetrics) RecordScan(due int, duration time.Duration) {
	if m == nil {
		return
	}
	m.scans.Inc()
	m.due.Set(float64(due))
	m.latency.Observe(duration.Seconds())
}

// RecordRenewal counts one submitted renewal.
func (m *KeeperMetrics) RecordRenewal(success bool) {
	if m == nil {
		return
	}
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	m.renewals.WithLabelValues(outcome).Inc()
}

// RecordError counts a keeper error at the given stage.
func (m *KeeperMetrics) RecordError(stage string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(normaliseLabel(stage, "unknown")).Inc()
}

func normaliseLabel(value, fallback string) string {
	trimmed := strings.ToLower(strings.TrimSpace(value))
	if trimmed == "" {
		return fallback
	}
	return trimmed
}
