package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"testing"
	"time"
)

func TestErrorBasics(t *testing.T) {
	err := New(ErrCodeUnroutable, "nowhere to go")

	if err.Code() != ErrCodeUnroutable {
		t.Errorf("Code = %v, want %v", err.Code(), ErrCodeUnroutable)
	}
	if err.Category() != CategoryPermanent {
		t.Errorf("Category = %v, want %v", err.Category(), CategoryPermanent)
	}
	if err.Retryable() {
		t.Error("unroutable should not be retryable")
	}
	if err.Error() != "nowhere to go" {
		t.Errorf("Error() = %q", err.Error())
	}
	if err.Timestamp().IsZero() {
		t.Error("timestamp should be set")
	}
}

func TestDefaultCategories(t *testing.T) {
	tests := []struct {
		code      ErrorCode
		category  ErrorCategory
		retryable bool
	}{
		{ErrCodeCircuitOpen, CategoryIsolation, true},
		{ErrCodeDispatchTimeout, CategoryTransient, true},
		{ErrCodeAgentInactive, CategoryTransient, true},
		{ErrCodeUnroutable, CategoryPermanent, false},
		{ErrCodeHandlerFailed, CategoryPermanent, false},
		{ErrCodeShutdown, CategoryPermanent, false},
		{ErrCodeInternal, CategoryInternal, false},
	}

	for _, tt := range tests {
		if got := tt.code.DefaultCategory(); got != tt.category {
			t.Errorf("%s: category = %v, want %v", tt.code, got, tt.category)
		}
		if got := tt.code.DefaultRetryable(); got != tt.retryable {
			t.Errorf("%s: retryable = %v, want %v", tt.code, got, tt.retryable)
		}
	}
}

func TestDomainConstructors(t *testing.T) {
	err := CircuitOpen("risk-1")
	if err.AgentID() != "risk-1" {
		t.Errorf("AgentID = %q, want %q", err.AgentID(), "risk-1")
	}
	if !err.Retryable() {
		t.Error("circuit open should be retryable after recovery timeout")
	}

	err = DispatchTimeout("signal-2", 5*time.Second)
	if err.Metadata()["timeout"] != "5s" {
		t.Errorf("timeout metadata = %q", err.Metadata()["timeout"])
	}

	err = Unroutable("msg-7")
	if err.MessageID() != "msg-7" {
		t.Errorf("MessageID = %q, want %q", err.MessageID(), "msg-7")
	}

	cause := stderrors.New("boom")
	err = HandlerFailed("quality-3", cause)
	if !stderrors.Is(err, cause) {
		t.Error("cause should be in the chain")
	}
}

func TestOptions(t *testing.T) {
	err := New(ErrCodeInternal, "oops",
		WithRetryable(true),
		WithMetadata("stage", "dispatch"),
		WithAgentID("a1"),
		WithMessageID("m1"),
	)

	if !err.Retryable() {
		t.Error("WithRetryable(true) should override category default")
	}
	if err.Metadata()["stage"] != "dispatch" {
		t.Error("metadata not set")
	}
	if err.AgentID() != "a1" || err.MessageID() != "m1" {
		t.Error("IDs not set")
	}

	// Metadata must be a copy
	err.Metadata()["stage"] = "mutated"
	if err.Metadata()["stage"] != "dispatch" {
		t.Error("Metadata() should return a copy")
	}
}

func TestWrap(t *testing.T) {
	inner := CircuitOpen("risk-1")
	wrapped := Wrap(inner, "route failed")

	if wrapped.Code() != ErrCodeCircuitOpen {
		t.Errorf("wrapped code = %v, want code preserved", wrapped.Code())
	}
	if wrapped.AgentID() != "risk-1" {
		t.Error("wrapped should preserve agent ID")
	}
	if !stderrors.Is(wrapped, inner) {
		t.Error("wrapped should unwrap to inner")
	}
}

func TestWrapNil(t *testing.T) {
	if Wrap(nil, "nothing") != nil {
		t.Error("Wrap(nil) should return nil")
	}
	if WrapWithCode(nil, ErrCodeInternal, "nothing") != nil {
		t.Error("WrapWithCode(nil) should return nil")
	}
}

func TestWrapContextErrors(t *testing.T) {
	err := Wrap(context.DeadlineExceeded, "dispatch wait")
	if err.Code() != ErrCodeDispatchTimeout {
		t.Errorf("deadline exceeded: code = %v, want %v", err.Code(), ErrCodeDispatchTimeout)
	}

	err = Wrap(context.Canceled, "dispatch wait")
	if err.Code() != ErrCodeCanceled {
		t.Errorf("canceled: code = %v, want %v", err.Code(), ErrCodeCanceled)
	}
}

func TestWrapUnknown(t *testing.T) {
	err := Wrap(fmt.Errorf("some failure"), "context")
	if err.Code() != ErrCodeInternal {
		t.Errorf("unknown error: code = %v, want %v", err.Code(), ErrCodeInternal)
	}
}

func TestCodeOf(t *testing.T) {
	if CodeOf(nil) != "" {
		t.Error("CodeOf(nil) should be empty")
	}
	if CodeOf(stderrors.New("plain")) != ErrCodeInternal {
		t.Error("plain errors map to INTERNAL")
	}
	if CodeOf(AgentInactive("a1")) != ErrCodeAgentInactive {
		t.Error("bus error code not extracted")
	}
	if !IsCode(Unroutable("m1"), ErrCodeUnroutable) {
		t.Error("IsCode mismatch")
	}
}

func TestIsRetryable(t *testing.T) {
	if IsRetryable(nil) {
		t.Error("nil is not retryable")
	}
	if IsRetryable(stderrors.New("plain")) {
		t.Error("plain errors are not retryable")
	}
	if !IsRetryable(DispatchTimeout("a1", time.Second)) {
		t.Error("timeouts are retryable")
	}
}

func TestMarshalJSON(t *testing.T) {
	err := DispatchTimeout("a1", time.Second, WithMessageID("m1"))

	data, merr := json.Marshal(err)
	if merr != nil {
		t.Fatalf("Marshal error: %v", merr)
	}

	var j map[string]interface{}
	if uerr := json.Unmarshal(data, &j); uerr != nil {
		t.Fatalf("Unmarshal error: %v", uerr)
	}

	if j["code"] != "DISPATCH_TIMEOUT" {
		t.Errorf("code = %v", j["code"])
	}
	if j["agent_id"] != "a1" {
		t.Errorf("agent_id = %v", j["agent_id"])
	}
	if j["retryable"] != true {
		t.Errorf("retryable = %v", j["retryable"])
	}
}
