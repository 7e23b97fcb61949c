package interval

import "testing"

type span struct {
	addr, end uint64
}

func (s span) Bounds() (uint64, uint64)         { return s.addr, s.end }
func (s span) WithBounds(addr, end uint64) span { return span{addr, end} }

func assertBounds(t *testing.T, s span, addr, end uint64, ctx string) {
	t.Helper()
	if s.addr != addr || s.end != end {
		t.Errorf("%s: got [%#x,%#x), want [%#x,%#x)", ctx, s.addr, s.end, addr, end)
	}
}

// TestRegionCoalescing mirrors §8 scenario 1: inserting three touching
// regions in order collapses them into a single span.
func TestRegionCoalescing(t *testing.T) {
	s := New[span]()
	InsertCoalescing(s, span{0x100, 0x110})
	InsertCoalescing(s, span{0x110, 0x120})
	got := InsertCoalescing(s, span{0x120, 0x130})

	assertBounds(t, got, 0x100, 0x130, "final merge")
	if s.Len() != 1 {
		t.Fatalf("expected a single coalesced region, got %d", s.Len())
	}
}

// TestRegionSplitting mirrors §8 scenario 2.
func TestRegionSplitting(t *testing.T) {
	s := New[span]()
	s.Put(span{0x100, 0x130})
	RemoveSplitting(s, 0x10B, 0x121)

	if s.Len() != 2 {
		t.Fatalf("expected two slivers, got %d", s.Len())
	}
	left, ok := s.Get(0x100, 0x101)
	if !ok {
		t.Fatal("missing left sliver")
	}
	assertBounds(t, left, 0x100, 0x10B, "left sliver")
	right, ok := s.Get(0x125, 0x126)
	if !ok {
		t.Fatal("missing right sliver")
	}
	assertBounds(t, right, 0x121, 0x130, "right sliver")
}

func TestClassify(t *testing.T) {
	s := New[span]()
	s.Put(span{0x100, 0x200})

	if c := Classify(s, 0x300, 0x310); c != Absent {
		t.Errorf("expected Absent, got %v", c)
	}
	if c := Classify(s, 0x110, 0x120); c != Full {
		t.Errorf("expected Full, got %v", c)
	}
	if c := Classify(s, 0x1F0, 0x210); c != Partial {
		t.Errorf("expected Partial, got %v", c)
	}
}

func TestInsertCoalescingIfBlocksUnmergeable(t *testing.T) {
	s := New[span]()
	s.Put(span{0x100, 0x110})
	got := InsertCoalescingIf(s, span{0x110, 0x120}, func(a, b span) bool { return false })
	assertBounds(t, got, 0x110, 0x120, "not merged")
	if s.Len() != 2 {
		t.Fatalf("expected two distinct spans, got %d", s.Len())
	}
}

func TestRemoveSplittingSupersetDrops(t *testing.T) {
	s := New[span]()
	s.Put(span{0x100, 0x110})
	RemoveSplitting(s, 0x0F0, 0x120)
	if s.Len() != 0 {
		t.Fatalf("expected the region to be fully dropped, got %d", s.Len())
	}
}

// TestOverlappingFindsStraddlingAndContainingItems guards against
// Overlapping silently excluding a stored item that extends past the
// query's end, or that fully contains the query range.
func TestOverlappingFindsStraddlingAndContainingItems(t *testing.T) {
	s := New[span]()
	s.Put(span{0x0, 0x10}) // contains the query below
	s.Put(span{0x20, 0x40}) // straddles the query's end
	s.Put(span{0x100, 0x110}) // disjoint, must not be returned

	got := s.Overlapping(0x8, 0x30)
	if len(got) != 2 {
		t.Fatalf("expected 2 overlapping items, got %d: %+v", len(got), got)
	}
	assertBounds(t, got[0], 0x0, 0x10, "containing item")
	assertBounds(t, got[1], 0x20, 0x40, "straddling item")
}
