// Package api implements the controller's read-only HTTP API and live
// WebSocket feed.
//
// This package provides:
//   - Status, health and runtime metrics endpoints under /api/v1
//   - Recent transition and perception history from the journal
//   - The Prometheus scrape endpoint at /metrics
//   - A WebSocket hub that is also a controller event sink
//
// # Graceful Degradation
//
// The journal, MQTT client and Prometheus handler are optional. History
// endpoints answer 503 when no journal is configured; everything else
// keeps working.
package api
