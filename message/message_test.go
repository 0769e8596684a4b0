package message

import (
	"errors"
	"testing"
)

func TestNewFillsIDAndTimestamp(t *testing.T) {
	m := NewRequest("", "process", "sender-1", "agent-1", nil)
	if m.ID == "" {
		t.Error("expected a generated ID")
	}
	if m.Timestamp.IsZero() {
		t.Error("expected a timestamp")
	}
	if m.Kind != KindRequest {
		t.Errorf("Kind = %s, want request", m.Kind)
	}

	m = NewRequest("custom-id", "process", "sender-1", "agent-1", nil)
	if m.ID != "custom-id" {
		t.Errorf("ID = %s, want caller-assigned custom-id", m.ID)
	}
}

func TestNewResponseAddressing(t *testing.T) {
	req := NewRequest("req-1", "evaluate", "strategy", "signal-1", nil)
	resp := NewResponse(req, map[string]interface{}{"ok": true})

	if resp.ID != "response_req-1" {
		t.Errorf("ID = %s, want response_req-1", resp.ID)
	}
	if resp.Recipient != "strategy" {
		t.Errorf("Recipient = %s, want the request's sender", resp.Recipient)
	}
	if resp.Method != "evaluate" {
		t.Errorf("Method = %s, want evaluate", resp.Method)
	}
	if resp.Kind != KindResponse {
		t.Errorf("Kind = %s, want response", resp.Kind)
	}
}

func TestNewErrorCarriesOriginal(t *testing.T) {
	req := NewRequest("req-2", "fill", "risk", "exec-1", nil)
	em := NewError(req, errors.New("downstream unavailable"))

	if em.ID != "error_req-2" {
		t.Errorf("ID = %s, want error_req-2", em.ID)
	}
	if em.Kind != KindError {
		t.Errorf("Kind = %s, want error", em.Kind)
	}
	if em.Recipient != "risk" {
		t.Errorf("Recipient = %s, want the request's sender", em.Recipient)
	}
	if em.Params["error"] != "downstream unavailable" {
		t.Errorf("error param = %v", em.Params["error"])
	}
	if em.Params["original"] != req {
		t.Error("error message should reference the original request")
	}
}

func TestValidate(t *testing.T) {
	var nilMsg *Message
	if err := nilMsg.Validate(); !errors.Is(err, ErrNilMessage) {
		t.Errorf("nil: err = %v, want ErrNilMessage", err)
	}

	m := &Message{ID: "x", Kind: KindRequest}
	if err := m.Validate(); !errors.Is(err, ErrMissingMethod) {
		t.Errorf("no method: err = %v, want ErrMissingMethod", err)
	}

	m.Method = "process"
	if err := m.Validate(); err != nil {
		t.Errorf("valid message: err = %v", err)
	}
}

func TestIsBroadcast(t *testing.T) {
	if !NewRequest("", "risk", "a", "", nil).IsBroadcast() {
		t.Error("empty recipient should be a broadcast")
	}
	if NewRequest("", "risk", "a", "risk-1", nil).IsBroadcast() {
		t.Error("addressed message should not be a broadcast")
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	m := NewNotification("tick", "feed", "signal-1", map[string]interface{}{"price": 101.5})
	data, err := m.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	got, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.Method != "tick" || got.Kind != KindNotification || got.Recipient != "signal-1" {
		t.Errorf("round trip = %+v", got)
	}
	if got.Params["price"] != 101.5 {
		t.Errorf("price = %v, want 101.5", got.Params["price"])
	}
}
