package region

import (
	"testing"

	"github.com/pmguard/pmguard/interval"
)

func TestRegistryMappingsLifecycle(t *testing.T) {
	reg := NewRegistry()
	reg.Mappings.Add(0x1000, 0x2000)
	reg.Mappings.Add(0x2000, 0x2100)

	if reg.Mappings.Len() != 1 {
		t.Fatalf("expected adjacent mappings to coalesce, got %d regions", reg.Mappings.Len())
	}
	if c := reg.Mappings.Classify(0x1800, 0x1900); c != interval.Full {
		t.Errorf("expected Full, got %v", c)
	}
	if !reg.Mappings.Contains(0x1000, 0x2100) {
		t.Errorf("expected the coalesced mapping to contain its own bounds")
	}

	reg.Mappings.Remove(0x1800, 0x1900)
	if reg.Mappings.Len() != 2 {
		t.Fatalf("expected removal to split into two slivers, got %d", reg.Mappings.Len())
	}
	if c := reg.Mappings.Classify(0x1800, 0x1900); c != interval.Absent {
		t.Errorf("expected the removed gap to read Absent, got %v", c)
	}
}

func TestSetOverlapsVsContains(t *testing.T) {
	s := NewSet()
	s.Add(0x100, 0x110)

	if !s.Overlaps(0x108, 0x120) {
		t.Errorf("expected partial overlap to be reported by Overlaps")
	}
	if s.Contains(0x108, 0x120) {
		t.Errorf("did not expect partial overlap to satisfy Contains")
	}
	if !s.Contains(0x100, 0x110) {
		t.Errorf("expected exact bounds to satisfy Contains")
	}
}

func TestLoggableIndependentOfMappings(t *testing.T) {
	reg := NewRegistry()
	reg.Mappings.Add(0x100, 0x200)
	reg.Loggable.Add(0x180, 0x190)

	if reg.Mappings.Len() != 1 || reg.Loggable.Len() != 1 {
		t.Fatalf("expected the two registries to track independently")
	}
	if c := reg.Loggable.Classify(0x100, 0x110); c != interval.Absent {
		t.Errorf("expected loggable set to be blind to the mappings set, got %v", c)
	}
}
