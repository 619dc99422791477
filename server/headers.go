package server

const (
	// HeaderXResponseTime reports request processing duration. Set by Timing.
	HeaderXResponseTime = "X-Response-Time"

	// HeaderTraceParent is the W3C trace context header.
	HeaderTraceParent = "traceparent"
)
