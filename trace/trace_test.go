package trace

import "testing"

func TestEqualIdenticalFrames(t *testing.T) {
	a := Trace{Frames: []Frame{{PC: 0x1}, {PC: 0x2}}}
	b := Trace{Frames: []Frame{{PC: 0x1}, {PC: 0x2}}}
	if !Equal(a, b) {
		t.Fatalf("expected identical frame traces to be equal")
	}
}

func TestEqualDifferentDepth(t *testing.T) {
	a := Trace{Frames: []Frame{{PC: 0x1}}}
	b := Trace{Frames: []Frame{{PC: 0x1}, {PC: 0x2}}}
	if Equal(a, b) {
		t.Fatalf("expected traces of different depth to be unequal")
	}
}

// TestEqualBulkMemoryRelaxation mirrors §4.3.4: two stores issued from
// different call sites but both routed through the same bulk-memory
// primitive (memcpy/memset) should still merge, since the top frame in
// both cases names the primitive rather than meaningful call-site info.
func TestEqualBulkMemoryRelaxation(t *testing.T) {
	a := Trace{Frames: []Frame{{Name: "memcpy", PC: 0x1}, {Name: "caller_a", PC: 0x10}}}
	b := Trace{Frames: []Frame{{Name: "memset", PC: 0x2}, {Name: "caller_a", PC: 0x10}}}
	if !Equal(a, b) {
		t.Fatalf("expected bulk-memory top frames to be relaxed away when both sides are bulk-memory calls")
	}
}

func TestEqualBulkMemoryRelaxationRequiresBothSides(t *testing.T) {
	a := Trace{Frames: []Frame{{Name: "memcpy", PC: 0x1}, {Name: "caller_a", PC: 0x10}}}
	b := Trace{Frames: []Frame{{Name: "caller_b", PC: 0x3}, {Name: "caller_a", PC: 0x10}}}
	if Equal(a, b) {
		t.Fatalf("expected no relaxation when only one side's top frame is a bulk-memory call")
	}
}

func TestNewMintsDistinctHandles(t *testing.T) {
	a := New([]Frame{{PC: 0x1}})
	b := New([]Frame{{PC: 0x1}})
	if a.Handle == b.Handle {
		t.Fatalf("expected distinct traces to get distinct handles")
	}
}
