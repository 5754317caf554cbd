// Package report adapts the controller's outbound events to the places
// they are recorded: the SQLite journal, MQTT and InfluxDB. Payload gives
// the JSON shape shared by MQTT and the WebSocket feed.
//
// Each adapter is a controller.Sink and runs on the dispatcher goroutine.
// Wrap adapters with Counted so failed deliveries show up in metrics.
package report
