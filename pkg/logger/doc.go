// Package logger provides the structured logging interface used across igparser.
//
// It wraps zerolog and writes two streams:
//   - colored human-readable lines on stderr (Console)
//   - JSON lines appended to {directory}/{file}, by default /app/logs/parser.log
//
// Every line carries service=instagram-parser. Setting DEBUG=true in the
// environment lowers the level to debug.
//
// Basic Usage:
//
//	if err := logger.Initialize(&cfg.Logging); err != nil {
//	    return err
//	}
//	log := logger.GetLogger().WithField("run_id", runID)
//	log.WithField("account_id", 42).Info("Account processed")
//
// Components take a Logger in their constructor; tests pass NewNopLogger()
// or NewTestLogger() to capture output.
package logger
