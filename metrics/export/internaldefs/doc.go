// Package internaldefs holds the metric names, help strings and bucket
// bounds shared by the goGuard exporters, so the Prometheus and OTel
// renditions never drift apart.
//
// # What this package must NOT do
//
//   - Import an exporter package.
//   - Perform I/O.
package internaldefs
