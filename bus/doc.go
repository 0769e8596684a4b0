// Package bus implements the coordination controller: agent registration,
// priority routing, per-agent circuit breaking, and the admin built-ins.
//
// # Routing model
//
// Route is pull-based. Each call enqueues one message onto its priority
// lane, then drains and processes exactly one message from the highest
// non-empty lane. Under sustained high-priority load a low-priority
// message can wait indefinitely; that starvation is a deliberate
// trade-off in favor of strict ordering.
//
// Operational failures never surface as Go errors from Route. Timeouts,
// open breakers, unroutable recipients, and handler failures all come
// back as an Error-kind message carrying the failure code and the
// original message, so a caller can always correlate a reply to its
// request. Go errors are reserved for programmer mistakes: a nil or
// method-less message, or an unknown priority name.
//
// # Timeouts
//
// A dispatch that exceeds the timeout cancels the bus's wait, not the
// handler. The handler goroutine may still be running; agents must be
// abandon-safe or idempotent.
//
// # Isolation
//
// Every agent gets its own circuit breaker. An open breaker refuses
// dispatch immediately without invoking the agent, so one failing agent
// cannot consume the timeout budget of the others. Broadcasts skip
// agents with open breakers and isolate per-agent failures from the
// remaining targets.
package bus
