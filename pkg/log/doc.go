/*
Package log provides structured logging for harvestd using zerolog.

A single global Logger is configured once via Init and then shared by
every subsystem through component-scoped child loggers:

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true, Output: os.Stdout})

	followerLog := log.WithComponent("follower")
	followerLog.Info().Str("path", path).Msg("follower started")

WithPath and WithPod attach the fields most harvest components key off
of (a log file path, or a namespace/pod pair) without requiring callers
to repeat them on every call site.
*/
package log
