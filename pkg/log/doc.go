/*
Package log provides structured logging for hcluster using zerolog.

A single package-level zerolog.Logger is configured once by Init and shared by
every package. Call sites attach context fields the same way everywhere:

	log.Logger.Info().
		Str("component", "launcher").
		Str("role", "worker").
		Int("count", 3).
		Msg("launching role")

Child loggers carry a fixed field set for longer-lived components:

	logger := log.WithRole("hcluster", "quorum")
	logger.Debug().Str("node_id", id).Msg("node running")

# Levels

Debug is used for per-poll readiness output and remote command output when the
cluster debug verbosity is raised. Info marks lifecycle progress (perimeter
check, each role launch, final initialization). Warn covers absorbed transient
failures (instance not found yet, SSH not ready). Error is reserved for
failures surfaced to the caller.

# Output

Console output (human readable, RFC3339 timestamps) is the default; JSONOutput
switches to one JSON object per line for log shippers. Output defaults to
stderr so command output on stdout stays machine readable.
*/
package log
