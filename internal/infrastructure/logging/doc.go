// Package logging provides structured logging for the ICU controller.
//
// It wraps log/slog with a handful of conventions:
//
//   - JSON output for deployed rigs, text output on the bench
//   - Default fields (service, version, device) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, cfg.Device.ID, version)
//	logger.Component("serial").Info("port opened", "port", cfg.Serial.Port)
//
// *Logger satisfies the small Logger interfaces declared by the domain
// packages, so one instance is passed everywhere.
package logging
