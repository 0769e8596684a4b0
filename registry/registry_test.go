package registry

import (
	"context"
	"testing"

	"github.com/swarmlab/agentbus/message"
)

func echoAgent(id, role string) Agent {
	return NewAgent(id, role, func(ctx context.Context, msg *message.Message) (*message.Message, error) {
		return message.NewResponse(msg, map[string]interface{}{"echo": msg.Method}), nil
	})
}

func TestRegister(t *testing.T) {
	r := New()

	if err := r.Register(echoAgent("risk-1", "risk")); err != nil {
		t.Fatalf("Register error: %v", err)
	}

	info, err := r.Info("risk-1")
	if err != nil {
		t.Fatalf("Info error: %v", err)
	}
	if info.Role != "risk" {
		t.Errorf("Role = %q, want %q", info.Role, "risk")
	}
	if !info.Active {
		t.Error("new registration should be active")
	}
	if info.RegisteredAt.IsZero() {
		t.Error("RegisteredAt should be set")
	}
}

func TestRegisterInvalid(t *testing.T) {
	r := New()

	if err := r.Register(nil); err != ErrNilAgent {
		t.Errorf("nil agent: got %v, want ErrNilAgent", err)
	}
	if err := r.Register(echoAgent("", "risk")); err != ErrInvalidID {
		t.Errorf("empty id: got %v, want ErrInvalidID", err)
	}
}

func TestRegisterLastWriterWins(t *testing.T) {
	r := New()
	r.Register(echoAgent("a1", "risk"))
	r.Register(echoAgent("a1", "signal"))

	info, _ := r.Info("a1")
	if info.Role != "signal" {
		t.Errorf("Role = %q, want last-written %q", info.Role, "signal")
	}

	// Old role index entry must be gone.
	if ids := r.FindByRole("risk"); len(ids) != 0 {
		t.Errorf("FindByRole(risk) = %v, want empty after re-registration", ids)
	}
	if ids := r.FindByRole("signal"); len(ids) != 1 {
		t.Errorf("FindByRole(signal) = %v, want [a1]", ids)
	}
}

func TestDeregister(t *testing.T) {
	r := New()
	r.Register(echoAgent("a1", "risk"))

	if err := r.Deregister("a1"); err != nil {
		t.Fatalf("Deregister error: %v", err)
	}
	if _, err := r.Get("a1"); err != ErrNotFound {
		t.Errorf("Get after deregister: got %v, want ErrNotFound", err)
	}
	if ids := r.FindByRole("risk"); len(ids) != 0 {
		t.Errorf("role index should be cleaned up, got %v", ids)
	}

	if err := r.Deregister("nope"); err != ErrNotFound {
		t.Errorf("Deregister unknown: got %v, want ErrNotFound", err)
	}
}

func TestFindByRoleSkipsInactive(t *testing.T) {
	r := New()
	r.Register(echoAgent("m1", "monitor"))
	r.Register(echoAgent("m2", "monitor"))
	r.Register(echoAgent("m3", "monitor"))
	r.Register(echoAgent("r1", "risk"))

	r.SetActive("m2", false)

	ids := r.FindByRole("monitor")
	if len(ids) != 2 {
		t.Fatalf("FindByRole = %v, want 2 active monitors", ids)
	}
	if ids[0] != "m1" || ids[1] != "m3" {
		t.Errorf("FindByRole = %v, want sorted [m1 m3]", ids)
	}
}

func TestSetActive(t *testing.T) {
	r := New()
	r.Register(echoAgent("a1", "risk"))

	if err := r.SetActive("a1", false); err != nil {
		t.Fatalf("SetActive error: %v", err)
	}
	active, _ := r.IsActive("a1")
	if active {
		t.Error("agent should be inactive")
	}

	// Inactive agents stay registered and resolvable by ID.
	if _, err := r.Get("a1"); err != nil {
		t.Errorf("inactive agent should still be resolvable: %v", err)
	}

	if err := r.SetActive("nope", true); err != ErrNotFound {
		t.Errorf("SetActive unknown: got %v, want ErrNotFound", err)
	}
}

func TestDeactivateAll(t *testing.T) {
	r := New()
	r.Register(echoAgent("a1", "risk"))
	r.Register(echoAgent("a2", "signal"))
	r.SetActive("a2", false)

	if n := r.DeactivateAll(); n != 1 {
		t.Errorf("DeactivateAll = %d, want 1 (a2 already inactive)", n)
	}
	for _, id := range []string{"a1", "a2"} {
		if active, _ := r.IsActive(id); active {
			t.Errorf("%s should be inactive", id)
		}
	}
}

func TestListSorted(t *testing.T) {
	r := New()
	r.Register(echoAgent("b", "x"))
	r.Register(echoAgent("a", "y"))
	r.Register(echoAgent("c", "z"))

	list := r.List()
	if len(list) != 3 {
		t.Fatalf("List = %d entries, want 3", len(list))
	}
	if list[0].AgentID != "a" || list[2].AgentID != "c" {
		t.Errorf("List not sorted: %v", list)
	}
}

func TestClosed(t *testing.T) {
	r := New()
	r.Close()

	if err := r.Register(echoAgent("a1", "risk")); err != ErrClosed {
		t.Errorf("Register after close: got %v, want ErrClosed", err)
	}
	if err := r.Deregister("a1"); err != ErrClosed {
		t.Errorf("Deregister after close: got %v, want ErrClosed", err)
	}
}

func TestHandlerFuncAgent(t *testing.T) {
	a := echoAgent("a1", "risk")

	resp, err := a.Handle(context.Background(), message.NewRequest("m1", "check", "caller", "a1", nil))
	if err != nil {
		t.Fatalf("Handle error: %v", err)
	}
	if resp.Kind != message.KindResponse {
		t.Errorf("Kind = %v, want response", resp.Kind)
	}
	if resp.Params["echo"] != "check" {
		t.Errorf("echo = %v, want check", resp.Params["echo"])
	}
	if resp.Recipient != "caller" {
		t.Errorf("Recipient = %q, want original sender", resp.Recipient)
	}
}
