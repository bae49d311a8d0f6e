// Package logging provides the structured logger shared by the orchestrator,
// the phase agents and the daemon.
//
// It wraps zap with context-first methods so that trace correlation and
// workflow identifiers ride along automatically:
//
//	logger, err := logging.NewLogger(logging.NewDefaultConfig(), nil)
//	if err != nil {
//	    return err
//	}
//	defer logger.Sync()
//
//	ctx = logging.WithRunID(ctx, runID)
//	logger.Info(ctx, "phase started", zap.String("phase", "cicd"))
//
// When an OpenTelemetry LoggerProvider is supplied and Output.OTEL is set,
// entries are teed to the otelzap bridge as well as stdout.
//
// Tests use NewTestLogger, which records entries in memory.
package logging
