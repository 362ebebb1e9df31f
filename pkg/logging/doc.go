// Package logging provides structured logging utilities for gpudoctor components.
//
// It wraps the standard library slog package with project defaults: JSON
// output to stderr, environment-based level configuration, and app/version
// context attached to every record. Debug level additionally records source
// locations.
//
// Typical usage:
//
//	func main() {
//	    logging.SetDefaultStructuredLoggerWithLevel("gpudoctor", version, "")
//
//	    slog.Info("starting diagnosis", "nodes", n)
//	    slog.Error("provisioning failed", "node", name, "error", err)
//	}
//
// Supported log levels (case-insensitive): DEBUG, INFO (default), WARN,
// ERROR. Set via GPUDOCTOR_LOG_LEVEL (or LOG_LEVEL) or the --log-level flag.
package logging
