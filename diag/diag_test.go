package diag

import "testing"

func TestBufferAccumulatesUntilCapacity(t *testing.T) {
	overflowed := false
	var gotRecords int
	b := &Buffer{category: MultipleOverwrite, cap: 2, onOverflow: func(c Category, records []Record) {
		overflowed = true
		gotRecords = len(records)
	}}

	b.Add(Record{Addr: 0x10})
	if overflowed {
		t.Fatalf("did not expect overflow after 1 of 2")
	}
	b.Add(Record{Addr: 0x20})
	if overflowed {
		t.Fatalf("did not expect overflow after exactly filling capacity")
	}
	b.Add(Record{Addr: 0x30})
	if !overflowed {
		t.Fatalf("expected overflow on the (cap+1)th record")
	}
	if gotRecords != 3 {
		t.Errorf("expected overflow callback to see all 3 accumulated records, got %d", gotRecords)
	}
	if b.Len() != 3 {
		t.Errorf("expected buffer to keep the triggering record too, got %d", b.Len())
	}
}

func TestDefaultCapacities(t *testing.T) {
	cases := []struct {
		c    Category
		want int
	}{
		{MultipleOverwrite, 10000},
		{RedundantFlush, 10000},
		{SuperfluousFlush, 10000},
		{OutOfTxStore, 10000},
		{CrossTxOverlap, 1000},
	}
	for _, tc := range cases {
		if got := defaultCapacity(tc.c); got != tc.want {
			t.Errorf("%s: got capacity %d, want %d", tc.c, got, tc.want)
		}
	}
}

func TestBuffersTotal(t *testing.T) {
	bufs := NewBuffers(func(Category, []Record) {})
	bufs.Overwrite.Add(Record{Addr: 1})
	bufs.CrossTx.Add(Record{Addr: 2})
	bufs.CrossTx.Add(Record{Addr: 3})

	if bufs.Total() != 3 {
		t.Fatalf("expected aggregate total 3, got %d", bufs.Total())
	}
}

func TestCategoryString(t *testing.T) {
	if MultipleOverwrite.String() != "MultipleOverwrite" {
		t.Errorf("unexpected String() for MultipleOverwrite: %s", MultipleOverwrite.String())
	}
}
