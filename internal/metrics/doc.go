// Package metrics exports task pipeline and HTTP metrics in the Prometheus
// format. Collector consumes task lifecycle events, Middleware instruments
// the chi router and Handler serves the registry on /metrics.
package metrics
