package config

import "testing"

func TestDefaults(t *testing.T) {
	d := Defaults()
	if d.TrackMultipleStores || d.LogStores || d.CheckFlush || d.ForceFlushAlign ||
		d.TransactionsOnly || d.WeakClflush {
		t.Errorf("expected all off-by-default knobs to be false: %+v", d)
	}
	if !d.PrintSummary || !d.AutomaticISARec || !d.ErrorSummary {
		t.Errorf("expected all on-by-default knobs to be true: %+v", d)
	}
	if d.IndiffWindow != 0 {
		t.Errorf("expected IndiffWindow default 0, got %d", d.IndiffWindow)
	}
}

func TestGetSet(t *testing.T) {
	o := Defaults()
	o.Set("CheckFlush", true)
	if got := o.Get("CheckFlush"); got != true {
		t.Errorf("expected CheckFlush to read back true, got %v", got)
	}
	o.Set("IndiffWindow", uint64(5))
	if got := o.Get("IndiffWindow"); got != uint64(5) {
		t.Errorf("expected IndiffWindow to read back 5, got %v", got)
	}
}

func TestGetUnknownPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected Get of an unknown setting to panic")
		}
	}()
	Defaults().Get("NotARealSetting")
}
