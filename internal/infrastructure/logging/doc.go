// Package logging builds the zap logger shared by every component.
//
// Production output is JSON; --dev switches to colored console output with
// callers. Diagnostic logs go to stderr, never stdout, which carries command
// output. The request log written by instrumented applications is a separate
// file with its own codec (see domain/logrecord).
//
//	logger, err := logging.New(logging.Config{Level: "info"})
//	logger.Info("Injected block", zap.String("path", path), zap.String("marker", marker))
package logging
