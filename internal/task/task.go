// Package task defines the outbound dispatch shape shared by the
// subscription bus, the transition binder, and the outbound task client.
package task

// Dispatch is one outbound HTTP task produced by a subscription handler or
// the notification factory, awaiting delivery by the outbound task client.
type Dispatch struct {
	// Path is appended to the configured base URL.
	Path string
	// Method defaults to POST when empty.
	Method string
	Body    map[string]any
	// Headers are forwarded verbatim; passthrough headers conventionally
	// use the "NTORQUE-PASSTHROUGH-<NAME>" prefix.
	Headers map[string]string
}

// Result is what the outbound task client returns after attempting a
// Dispatch, whether buffered-then-flushed or sent directly.
type Result struct {
	Status          int
	Response        any
	ResponseHeaders map[string][]string
	Data            any
	URL             string
	Path            string
}
