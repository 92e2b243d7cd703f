// Package logging provides structured logging for graynotify.
//
// It wraps log/slog with JSON or text output, level filtering and default
// service and version fields on every entry.
//
// Configuration:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Usage:
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Info("sync finished", "inserted", report.Inserted)
//
// Never log secrets such as the JWT secret or broker passwords.
package logging
