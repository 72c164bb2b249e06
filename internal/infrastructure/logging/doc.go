// Package logging provides structured logging for the KNX/IP device daemon.
//
// This package wraps Go's standard log/slog package so every component
// (device core, transport, bridge, API) logs with the same handler.
//
// # Features
//
//   - JSON output for production (machine-parsable)
//   - Text output for development (human-readable)
//   - Default fields (service, version) on all log entries
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
//	logger := logging.New(cfg.Logging, version)
//	dev, err := knxip.New(knxip.Options{Logger: logger.Component("knxip")})
//
// Dropped frames are logged at debug level. Enable it when diagnosing a
// bus that appears silent.
package logging
