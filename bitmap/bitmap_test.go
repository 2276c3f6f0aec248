package bitmap

import "testing"

func TestSetClearTest(t *testing.T) {
	b := New(128)
	if b.Test(5) {
		t.Fatal("bit 5 should start clear")
	}
	b.Set(5)
	if !b.Test(5) {
		t.Fatal("bit 5 should be set")
	}
	b.Clear(5)
	if b.Test(5) {
		t.Fatal("bit 5 should be clear again")
	}
}

func TestScanZeroSkipsFullWords(t *testing.T) {
	b := New(200)
	b.SetRange(0, 130)
	idx, ok := b.ScanZero()
	if !ok || idx != 130 {
		t.Fatalf("expected first zero at 130, got %d (%v)", idx, ok)
	}
}

func TestScanZeroAllSet(t *testing.T) {
	b := New(64)
	b.SetRange(0, 64)
	if _, ok := b.ScanZero(); ok {
		t.Fatal("expected no zero bit")
	}
}

func TestScanZeroRunFindsContiguous(t *testing.T) {
	b := New(20)
	b.SetRange(0, 5)
	b.SetRange(8, 2)
	idx, ok := b.ScanZeroRun(4)
	if !ok || idx != 10 {
		t.Fatalf("expected run at 10, got %d (%v)", idx, ok)
	}
}

func TestScanZeroRunNoFit(t *testing.T) {
	b := New(10)
	b.SetRange(0, 3)
	if _, ok := b.ScanZeroRun(20); ok {
		t.Fatal("expected no fit for run longer than bitmap")
	}
}

func TestCount(t *testing.T) {
	b := New(70)
	b.SetRange(0, 70)
	if c := b.Count(); c != 70 {
		t.Fatalf("expected 70 set bits, got %d", c)
	}
	b.ClearRange(0, 70)
	if c := b.Count(); c != 0 {
		t.Fatalf("expected 0 set bits, got %d", c)
	}
}

func TestIndexOutOfRangePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on out-of-range index")
		}
	}()
	b := New(8)
	b.Set(8)
}
