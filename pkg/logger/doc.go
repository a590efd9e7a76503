// Package logger builds the *slog.Logger instances used across sessionkit and
// provides attribute helpers that keep key names consistent between the client
// side session components and the server side registry.
//
// # Usage
//
//	log := logger.New(logger.WithEnvironment("production", "sessiond"))
//	log.Warn("heartbeat failed", logger.Component("session"), logger.Error(err))
//
// Library packages never create loggers themselves. They accept one through a
// functional option and fall back to Discard, so embedding applications decide
// where session diagnostics go.
package logger
