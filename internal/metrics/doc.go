// Package metrics exposes controller counters to Prometheus.
package metrics
