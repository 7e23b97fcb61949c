package handle

import "testing"

func TestNewDistinctFromZero(t *testing.T) {
	h := New()
	if h == Zero {
		t.Fatalf("expected a freshly minted handle to differ from Zero")
	}
}

func TestNewProducesDistinctHandles(t *testing.T) {
	seen := make(map[Handle]bool)
	for i := 0; i < 100; i++ {
		h := New()
		if seen[h] {
			t.Fatalf("New produced a duplicate handle after %d calls", i)
		}
		seen[h] = true
	}
}

func TestStringIsStable(t *testing.T) {
	h := New()
	if h.String() != h.String() {
		t.Fatalf("expected String() to be stable across calls")
	}
}
