// Package logging provides structured logging on top of zap.
//
// Logger methods take a context and add its correlation fields to every
// entry: trace_id and span_id from OpenTelemetry, run.id, query.id and
// request.id.
//
//	cfg := logging.NewDefaultConfig()
//	logger, err := logging.NewLogger(cfg, nil)
//	if err != nil {
//	    return err
//	}
//	defer logger.Sync()
//
//	ctx = logging.WithRunID(ctx, runID)
//	logger.Info(ctx, "run file exported", zap.Int("lines", n))
//
// Below Debug sits a Trace level (-2). Entries below Error are sampled per
// second, errors never are. Credential-like keys (password, api_key, ...)
// and bearer/API-key patterns are redacted by the encoder; use Secret or
// RedactedString for values known to be sensitive.
//
// Configuration comes from the logging section of the stylerank config
// file and STYLERANK_LOGGING_* variables.
//
// Tests use NewTestLogger to assert on what was logged.
package logging
