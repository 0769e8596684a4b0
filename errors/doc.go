// Package errors provides structured errors for the agent bus.
//
// # Overview
//
// Every operational failure at the dispatch boundary is represented as an
// Error carrying a code, a category, and optional agent/message context.
// The controller converts these into Error-kind reply messages; callers can
// inspect the code to decide on retry.
//
// # Usage
//
// Create errors with domain constructors:
//
//	err := errors.CircuitOpen("risk-1")
//	err := errors.DispatchTimeout("signal-2", 30*time.Second)
//
// Wrap errors from handlers while preserving the chain:
//
//	return errors.Wrap(err, "dispatch failed", errors.WithAgentID(id))
//
// Inspect errors for handling decisions:
//
//	if errors.IsCode(err, errors.ErrCodeCircuitOpen) {
//	    // back off until the recovery timeout elapses
//	}
//	if errors.IsRetryable(err) {
//	    // retry policy belongs to the caller, not the bus
//	}
package errors
