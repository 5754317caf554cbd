// Package influxdb writes controller telemetry to InfluxDB v2.
//
// Measurements:
//
//	icu_lifecycle    tags device, boot_id, state, phase   fields code, uptime_ms
//	icu_perception   tags device, boot_id, kind           fields count (+ box geometry)
//	icu_environment  tags device                          fields temperature_c, humidity_pct, pressure_hpa
//
// The point builders are exported so they can be tested without a server.
// Environment fields that read NaN are omitted rather than written.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB, cfg.Device.ID)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//	client.SetOnError(func(err error) { logger.Warn("influx write failed", "error", err) })
package influxdb
