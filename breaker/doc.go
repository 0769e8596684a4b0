// Package breaker provides per-agent circuit breakers for failure isolation.
//
// # State machine
//
// Each registered agent gets one breaker. The breaker starts closed and
// moves between three states:
//
//	closed    --[failures reach threshold]-->    open
//	open      --[recovery timeout elapses]-->    half_open (read-time)
//	half_open --[consecutive successes]-->       closed
//	half_open --[any failure]-->                 open
//
// Dispatch to an agent whose breaker is open fails immediately without
// invoking the agent. This is the isolation guarantee: a failing agent
// cannot consume dispatch-timeout budget once tripped.
//
// # Accounting
//
// The open-to-half-open transition happens lazily, the moment the next
// dispatch is attempted via Allow. While closed, each success decays the
// failure count by one (floored at zero) instead of resetting it, so
// recovery from a burst of failures requires sustained success.
package breaker
