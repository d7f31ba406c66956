package tracing

// Span names.
const (
	SpanSession = "cvrexport.session"
)

// Span attribute keys.
const (
	AttrSessionID   = "session.id"
	AttrArgv        = "process.argv"
	AttrProcessPID  = "process.pid"
	AttrExitCode    = "process.exit_code"
	AttrCancelled   = "session.cancelled"
	AttrKilled      = "session.killed"
	AttrChars       = "stream.chars"
	AttrTurns       = "driver.turns"
	AttrDiagnostics = "stream.diagnostic_lines"
)

// Event names for span events.
const (
	EventCancel = "session.cancel"
)
