// Package logging provides structured logging for Bluerial.
//
// This package wraps Go's standard log/slog package so every component
// logs with the same format and default fields.
//
// # Features
//
//   - JSON output for production, text output for development
//   - Default fields (service, version) on all log entries
//   - Per-component child loggers via Component
//   - Level-based filtering (debug, info, warn, error)
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr, discard
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	w := watcher.New(src, opts)
//	w.SetLogger(logger.Component("watcher"))
//
// Never log broker passwords or InfluxDB tokens.
package logging
