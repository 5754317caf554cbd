// Package mqtt publishes controller state to an MQTT broker.
//
// Topic layout under the configured prefix (default "icu"):
//
//	{prefix}/state/lifecycle             retained, current lifecycle state
//	{prefix}/event/perception/{kind}     one message per decoded line
//	{prefix}/event/startup/failure       peripheral bring-up failures
//	{prefix}/telemetry/environment       climate readings
//	{prefix}/system/status               retained online/offline + LWT
//
// The broker is optional. Publishing never happens on the control-loop
// goroutine; the reporting sinks call in from the event dispatcher.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, cfg.Device.ID, logger)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.PublishJSON(client.Topics().Lifecycle(), state, true)
package mqtt
