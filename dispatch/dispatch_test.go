package dispatch

import (
	"strings"
	"testing"

	"github.com/pmguard/pmguard/config"
	"github.com/pmguard/pmguard/trace"
)

func newTestDispatcher() *Dispatcher {
	cfg := config.Defaults()
	cfg.CheckFlush = true
	cfg.LogStores = true
	return New(cfg)
}

func TestStoreIgnoredOutsideMappings(t *testing.T) {
	d := newTestDispatcher()
	d.Store(0x1000, 8, 0xAB, trace.Trace{})
	if d.stores.Len() != 0 {
		t.Fatalf("expected a store outside any registered mapping to be ignored, got %d records", d.stores.Len())
	}
}

func TestStoreFlushFenceCommitLifecycle(t *testing.T) {
	d := newTestDispatcher()
	d.RegisterMapping(0x1000, 0x100)

	var txID uint64 = 7
	WithThread(1, func() {
		d.BeginTx(&txID, trace.Trace{})
		if err := d.AddObj(txID, 0x1000, 0x100); err != nil {
			t.Fatalf("AddObj: %v", err)
		}
		d.Store(0x1000, 8, 0xAB, trace.Trace{})
	})

	if d.buffers.OutOfTx.Len() != 0 {
		t.Fatalf("expected the store inside the tx's region to not be flagged out-of-tx")
	}

	d.Flush(0x1000, 8)
	d.Fence()
	d.Commit()

	WithThread(1, func() {
		if err := d.EndTx(&txID); err != nil {
			t.Fatalf("EndTx: %v", err)
		}
	})

	log := d.Log()
	if !strings.HasPrefix(log, "START") || !strings.HasSuffix(log, "STOP\n") {
		t.Fatalf("expected a well-formed log stream, got %q", log)
	}
	if !strings.Contains(log, "STORE;") || !strings.Contains(log, "FLUSH;") ||
		!strings.Contains(log, "FENCE") || !strings.Contains(log, "COMMIT") {
		t.Fatalf("expected STORE/FLUSH/FENCE/COMMIT records in log, got %q", log)
	}
}

func TestOutOfTxStoreFlaggedUnderTransactionsOnly(t *testing.T) {
	cfg := config.Defaults()
	cfg.TransactionsOnly = true
	d := New(cfg)
	d.RegisterMapping(0x2000, 0x100)

	d.Store(0x2000, 8, 1, trace.Trace{})

	if d.buffers.OutOfTx.Len() != 1 {
		t.Fatalf("expected one OutOfTxStore diagnostic under transactions_only, got %d", d.buffers.OutOfTx.Len())
	}
}

func TestStoreWideDecomposesIntoLanes(t *testing.T) {
	// Overwrite-tracking mode keeps adjacent stores as separate records;
	// simple mode would merge the same-context lanes into one.
	cfg := config.Defaults()
	cfg.TrackMultipleStores = true
	d := New(cfg)
	d.RegisterMapping(0x4000, 0x100)

	d.StoreWide(0x4000, []uint64{0x1111, 0x2222, 0x3333}, trace.Trace{})

	if d.stores.Len() != 3 {
		t.Fatalf("expected 3 lane-sized store records, got %d", d.stores.Len())
	}
	for _, rec := range d.stores.Dangling() {
		if rec.End-rec.Addr != 8 {
			t.Errorf("expected each lane to be 8 bytes wide, got [%#x,%#x)", rec.Addr, rec.End)
		}
	}
}

func TestReportReflectsAccumulatedDiagnostics(t *testing.T) {
	d := newTestDispatcher()
	d.Flush(0x8000, 64) // no mapping, no store: superfluous

	rep := d.Report()
	if got := rep.String(); !strings.Contains(got, "SuperfluousFlush") {
		t.Errorf("expected SuperfluousFlush to appear in the report, got:\n%s", got)
	}
}
