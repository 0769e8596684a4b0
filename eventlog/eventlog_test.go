package eventlog

import (
	"testing"
)

func TestAppendAndQuery(t *testing.T) {
	l := New(Config{Capacity: 16})

	l.Append(TypeMessageReceived, map[string]interface{}{"id": "m1"})
	l.Append(TypeMessageDispatched, map[string]interface{}{"id": "m1"})
	l.Append(TypeDispatchFailed, map[string]interface{}{"id": "m2"})

	if l.Len() != 3 {
		t.Fatalf("Len = %d, want 3", l.Len())
	}

	all := l.Query(0, "")
	if len(all) != 3 {
		t.Fatalf("Query all = %d events, want 3", len(all))
	}
	// Newest-last ordering.
	if all[0].Type != TypeMessageReceived || all[2].Type != TypeDispatchFailed {
		t.Errorf("order wrong: first=%s last=%s", all[0].Type, all[2].Type)
	}

	for _, ev := range all {
		if ev.ID == "" {
			t.Error("event ID should be generated")
		}
		if ev.Timestamp.IsZero() {
			t.Error("event timestamp should be set")
		}
	}
}

func TestQueryLimit(t *testing.T) {
	l := New(Config{Capacity: 16})
	for i := 0; i < 10; i++ {
		l.Append(TypeMessageReceived, map[string]interface{}{"seq": i})
	}

	got := l.Query(3, "")
	if len(got) != 3 {
		t.Fatalf("Query(3) = %d events, want 3", len(got))
	}
	// The 3 most recent, newest last.
	if got[2].Data["seq"] != 9 || got[0].Data["seq"] != 7 {
		t.Errorf("expected seqs 7..9, got %v..%v", got[0].Data["seq"], got[2].Data["seq"])
	}
}

func TestQueryTypeFilter(t *testing.T) {
	l := New(Config{Capacity: 16})
	l.Append(TypeMessageReceived, nil)
	l.Append(TypeBreakerTripped, map[string]interface{}{"agent": "a1"})
	l.Append(TypeMessageReceived, nil)

	got := l.Query(0, TypeBreakerTripped)
	if len(got) != 1 {
		t.Fatalf("filtered query = %d events, want 1", len(got))
	}
	if got[0].Data["agent"] != "a1" {
		t.Errorf("wrong event returned: %v", got[0])
	}
}

func TestCapacityEviction(t *testing.T) {
	const capacity = 8
	l := New(Config{Capacity: capacity})

	for i := 0; i <= capacity; i++ {
		l.Append(TypeMessageReceived, map[string]interface{}{"seq": i})
	}

	if l.Len() != capacity {
		t.Fatalf("Len = %d, want %d (never exceeds capacity)", l.Len(), capacity)
	}

	all := l.Query(0, "")
	// Oldest (seq 0) evicted, newest (seq capacity) present.
	if all[0].Data["seq"] != 1 {
		t.Errorf("oldest surviving seq = %v, want 1", all[0].Data["seq"])
	}
	if all[len(all)-1].Data["seq"] != capacity {
		t.Errorf("newest seq = %v, want %d", all[len(all)-1].Data["seq"], capacity)
	}
}

func TestDefaultCapacity(t *testing.T) {
	l := New(Config{})
	if l.Capacity() != DefaultCapacity {
		t.Errorf("Capacity = %d, want %d", l.Capacity(), DefaultCapacity)
	}
}

func TestWrapAroundOrdering(t *testing.T) {
	l := New(Config{Capacity: 4})
	for i := 0; i < 11; i++ {
		l.Append(TypeMessageReceived, map[string]interface{}{"seq": i})
	}

	all := l.Query(0, "")
	if len(all) != 4 {
		t.Fatalf("Len = %d, want 4", len(all))
	}
	for i, ev := range all {
		want := 7 + i
		if ev.Data["seq"] != want {
			t.Errorf("position %d: seq = %v, want %d", i, ev.Data["seq"], want)
		}
	}
}
