// Package log builds slog loggers that mask proxy credentials.
//
// The SecureHandler replaces values logged under credential keys (id, uuid,
// user_id, password, authorization and similar) and any value shaped like a
// UUID or a raw share link with MaskValue, in both text and JSON output and
// inside groups.
//
//	logger := log.NewLogger(os.Stderr, log.Options{Verbose: true})
//	logger.Info("probing", "server", "a.example:443", "user_id", id) // user_id=***REDACTED***
package log
