// Package prometheus exports goGuard metrics through client_golang.
//
// [NewCollector] wraps a [goGuard.Engine] as a prometheus.Collector that
// callers register wherever they like. [Handler] serves the collector from a
// private registry. Counter names follow goguard_*_total; latency histograms
// are goguard_validate_latency_seconds and goguard_rotate_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in the global Prometheus registry.
//   - Mutate engine state.
package prometheus
