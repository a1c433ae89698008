package keeper

import "tally/observability"

// Metrics exposes Prometheus collectors for keeper instrumentation.
type Metrics = observability.KeeperMetrics

// NewMetrics returns a lazily initialised metrics registry.
func NewMetrics() *Metrics { return observability.Keeper() }
