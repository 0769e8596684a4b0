package bus

import "sync/atomic"

// metrics holds the controller's global counters.
type metrics struct {
	messagesRouted     atomic.Int64
	dispatched         atomic.Int64
	dispatchFailures   atomic.Int64
	timeouts           atomic.Int64
	breakerTrips       atomic.Int64 // global circuit-breaker trip counter
	breakerRejections  atomic.Int64 // dispatches refused by an open breaker
	broadcasts         atomic.Int64
	builtinCalls       atomic.Int64
	droppedOnShutdown  atomic.Int64
	unroutableMessages atomic.Int64
}

// Metrics is a point-in-time snapshot of the controller's counters.
type Metrics struct {
	MessagesRouted     int64 `json:"messages_routed"`
	Dispatched         int64 `json:"dispatched"`
	DispatchFailures   int64 `json:"dispatch_failures"`
	Timeouts           int64 `json:"timeouts"`
	BreakerTrips       int64 `json:"circuit_breaker_trips"`
	BreakerRejections  int64 `json:"circuit_breaker_rejections"`
	Broadcasts         int64 `json:"broadcasts"`
	BuiltinCalls       int64 `json:"builtin_calls"`
	DroppedOnShutdown  int64 `json:"dropped_on_shutdown"`
	UnroutableMessages int64 `json:"unroutable_messages"`
}

func (m *metrics) snapshot() Metrics {
	return Metrics{
		MessagesRouted:     m.messagesRouted.Load(),
		Dispatched:         m.dispatched.Load(),
		DispatchFailures:   m.dispatchFailures.Load(),
		Timeouts:           m.timeouts.Load(),
		BreakerTrips:       m.breakerTrips.Load(),
		BreakerRejections:  m.breakerRejections.Load(),
		Broadcasts:         m.broadcasts.Load(),
		BuiltinCalls:       m.builtinCalls.Load(),
		DroppedOnShutdown:  m.droppedOnShutdown.Load(),
		UnroutableMessages: m.unroutableMessages.Load(),
	}
}
