// Package log provides the farm's structured logging facade.
//
// Components receive a Logger through their constructors and tag
// themselves with Component. Records flow through a slog.Handler that
// renders them with a Formatter (JSON or text) onto one or more Outputs.
//
//	l := log.NewLogger(
//	    log.WithLevel(log.InfoLevel),
//	    log.WithFormatter(&log.TextFormatter{}),
//	    log.WithOutput(log.NewConsoleOutput()),
//	)
//	l = l.With(log.Component("scheduler"))
//	l.Debug("dispatched", log.Str("key", key), log.Str("processor", "p1"))
//
// ApplyConfig builds a logger from Config, adding key redaction and
// per-message sampling. ContextWithFields attaches request-scoped fields
// (e.g. the HTTP request id) that WithContext copies into a logger.
// ToStdLogger and RedirectStdLog route standard library logging, such as
// Pebble's, through a Logger.
package log
